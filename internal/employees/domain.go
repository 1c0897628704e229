// Package employees keeps the staff register that payroll draws from.
package employees

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// Status values.
const (
	StatusActive     = "active"
	StatusOnLeave    = "on_leave"
	StatusTerminated = "terminated"
)

// Employee is a member of staff.
type Employee struct {
	ID         int64           `json:"id"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	Position   string          `json:"position"`
	Department string          `json:"department"`
	Phone      string          `json:"phone"`
	Email      string          `json:"email"`
	HireDate   time.Time       `json:"hireDate"`
	Salary     decimal.Decimal `json:"salary"`
	Status     string          `json:"status"`
	Address    string          `json:"address,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// FullName joins first and last name.
func (e Employee) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// EmployeeInput is the create/replace payload.
type EmployeeInput struct {
	FirstName  string          `json:"firstName" validate:"required,max=100"`
	LastName   string          `json:"lastName" validate:"required,max=100"`
	Position   string          `json:"position" validate:"required,max=100"`
	Department string          `json:"department" validate:"required,max=100"`
	Phone      string          `json:"phone" validate:"required,max=32"`
	Email      string          `json:"email" validate:"required,email"`
	HireDate   *time.Time      `json:"hireDate"`
	Salary     decimal.Decimal `json:"salary" validate:"gte=0"`
	Status     string          `json:"status" validate:"omitempty,oneof=active on_leave terminated"`
	Address    string          `json:"address" validate:"max=255"`
}

// ListFilter narrows the employee listing.
type ListFilter struct {
	Status     string
	Department string
}

var (
	// ErrEmployeeNotFound indicates an unknown employee id.
	ErrEmployeeNotFound = shared.NewError(shared.ErrNotFound, "employees: employee not found")
	// ErrDuplicateEmail indicates the email belongs to another employee.
	ErrDuplicateEmail = shared.NewError(shared.ErrConflict, "employees: email already registered")
)
