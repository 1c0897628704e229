package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kassa/internal/employees"
	"github.com/odyssey-erp/kassa/internal/platform/db"
)

const salaryColumns = `id, employee_id, employee_first_name, employee_position, month, year, amount, bonus, deductions, net_salary,
payment_date, notes, COALESCE(created_by, 0), created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns salaries matching filter, latest period first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Salary, error) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if filter.Year != 0 {
		add("year = $%d", filter.Year)
	}
	if filter.Month != 0 {
		add("month = $%d", filter.Month)
	}
	if filter.EmployeeID != nil {
		add("employee_id = $%d", *filter.EmployeeID)
	}
	if filter.PaidFrom != nil {
		add("payment_date >= $%d", *filter.PaidFrom)
	}
	if filter.PaidTo != nil {
		add("payment_date < $%d", *filter.PaidTo)
	}
	query := `SELECT ` + salaryColumns + ` FROM salaries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY year DESC, month DESC, id DESC"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Salary
	for rows.Next() {
		s, err := scanSalary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get loads a salary record by id.
func (r *Repository) Get(ctx context.Context, id int64) (Salary, error) {
	s, err := scanSalary(r.pool.QueryRow(ctx, `SELECT `+salaryColumns+` FROM salaries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Salary{}, ErrSalaryNotFound
	}
	return s, err
}

// Create inserts a salary record.
func (r *Repository) Create(ctx context.Context, s Salary) (Salary, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO salaries (employee_id, employee_first_name, employee_position, month, year, amount, bonus, deductions,
net_salary, payment_date, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, 0), NOW(), NOW()) RETURNING `+salaryColumns,
		s.Employee.ID, s.Employee.FirstName, s.Employee.Position, s.Month, s.Year, s.Amount, s.Bonus, s.Deductions,
		s.NetSalary, s.PaymentDate, s.Notes, s.CreatedBy)
	created, err := scanSalary(row)
	if db.IsForeignKeyViolation(err) {
		return Salary{}, employees.ErrEmployeeNotFound
	}
	return created, err
}

// Update overwrites a salary record.
func (r *Repository) Update(ctx context.Context, s Salary) (Salary, error) {
	row := r.pool.QueryRow(ctx, `UPDATE salaries SET employee_id = $2, employee_first_name = $3, employee_position = $4, month = $5, year = $6,
amount = $7, bonus = $8, deductions = $9, net_salary = $10, payment_date = $11, notes = $12, updated_at = NOW()
WHERE id = $1 RETURNING `+salaryColumns,
		s.ID, s.Employee.ID, s.Employee.FirstName, s.Employee.Position, s.Month, s.Year,
		s.Amount, s.Bonus, s.Deductions, s.NetSalary, s.PaymentDate, s.Notes)
	updated, err := scanSalary(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Salary{}, ErrSalaryNotFound
	case db.IsForeignKeyViolation(err):
		return Salary{}, employees.ErrEmployeeNotFound
	}
	return updated, err
}

// Delete removes a salary record.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM salaries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSalaryNotFound
	}
	return nil
}

func scanSalary(row pgx.Row) (Salary, error) {
	var s Salary
	err := row.Scan(&s.ID, &s.Employee.ID, &s.Employee.FirstName, &s.Employee.Position, &s.Month, &s.Year,
		&s.Amount, &s.Bonus, &s.Deductions, &s.NetSalary, &s.PaymentDate, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
