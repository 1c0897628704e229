package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kassa/internal/platform/db"
	"github.com/odyssey-erp/kassa/internal/shared"
)

const customerColumns = `id, name, phone, address, credit_limit, current_debt, notes, COALESCE(created_by, 0), created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a page of customers ordered by name.
func (r *Repository) List(ctx context.Context, search string, page shared.PageRequest) ([]Customer, int, error) {
	cond := "TRUE"
	args := []any{}
	if s := strings.TrimSpace(search); s != "" {
		args = append(args, "%"+s+"%")
		cond = "(name ILIKE $1 OR phone ILIKE $1)"
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM customers WHERE %s ORDER BY name, id LIMIT $%d OFFSET $%d`, customerColumns, cond, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Get loads a customer by id.
func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

// Create inserts a customer.
func (r *Repository) Create(ctx context.Context, c Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO customers (name, phone, address, credit_limit, current_debt, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), NOW(), NOW()) RETURNING `+customerColumns,
		c.Name, c.Phone, c.Address, c.CreditLimit, c.CurrentDebt, c.Notes, c.CreatedBy)
	created, err := scanCustomer(row)
	if db.IsUniqueViolation(err) {
		return Customer{}, ErrDuplicatePhone
	}
	return created, err
}

// Update overwrites the editable columns.
func (r *Repository) Update(ctx context.Context, c Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx, `UPDATE customers SET name = $2, phone = $3, address = $4, credit_limit = $5, notes = $6, updated_at = NOW()
WHERE id = $1 RETURNING `+customerColumns,
		c.ID, c.Name, c.Phone, c.Address, c.CreditLimit, c.Notes)
	updated, err := scanCustomer(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Customer{}, ErrCustomerNotFound
	case db.IsUniqueViolation(err):
		return Customer{}, ErrDuplicatePhone
	}
	return updated, err
}

// Delete removes a customer row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrHasSales
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.CreditLimit, &c.CurrentDebt, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
