package employees

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kassa/internal/platform/db"
)

const employeeColumns = `id, first_name, last_name, position, department, phone, email, hire_date, salary, status, address, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns employees ordered by creation time, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Employee, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conds = append(conds, fmt.Sprintf("department = $%d", len(args)))
	}
	query := `SELECT ` + employeeColumns + ` FROM employees`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get loads an employee by id.
func (r *Repository) Get(ctx context.Context, id int64) (Employee, error) {
	e, err := scanEmployee(r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, err
}

// Create inserts an employee.
func (r *Repository) Create(ctx context.Context, e Employee) (Employee, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO employees (first_name, last_name, position, department, phone, email, hire_date, salary, status, address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()) RETURNING `+employeeColumns,
		e.FirstName, e.LastName, e.Position, e.Department, e.Phone, e.Email, e.HireDate, e.Salary, e.Status, e.Address)
	created, err := scanEmployee(row)
	if db.IsUniqueViolation(err) {
		return Employee{}, ErrDuplicateEmail
	}
	return created, err
}

// Update overwrites the editable columns.
func (r *Repository) Update(ctx context.Context, e Employee) (Employee, error) {
	row := r.pool.QueryRow(ctx, `UPDATE employees SET first_name = $2, last_name = $3, position = $4, department = $5, phone = $6,
email = $7, hire_date = $8, salary = $9, status = $10, address = $11, updated_at = NOW()
WHERE id = $1 RETURNING `+employeeColumns,
		e.ID, e.FirstName, e.LastName, e.Position, e.Department, e.Phone, e.Email, e.HireDate, e.Salary, e.Status, e.Address)
	updated, err := scanEmployee(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Employee{}, ErrEmployeeNotFound
	case db.IsUniqueViolation(err):
		return Employee{}, ErrDuplicateEmail
	}
	return updated, err
}

// Delete removes an employee row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.FirstName, &e.LastName, &e.Position, &e.Department, &e.Phone, &e.Email,
		&e.HireDate, &e.Salary, &e.Status, &e.Address, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
