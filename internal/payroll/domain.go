// Package payroll records monthly salary payments to employees.
package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// EmployeeRef is the employee snapshot stored with a salary record. It survives the
// employee being deleted.
type EmployeeRef struct {
	ID        *int64 `json:"id,omitempty"`
	FirstName string `json:"firstName"`
	Position  string `json:"position"`
}

// Salary is one payroll entry.
type Salary struct {
	ID          int64           `json:"id"`
	Employee    EmployeeRef     `json:"employee"`
	Month       int             `json:"month"`
	Year        int             `json:"year"`
	Amount      decimal.Decimal `json:"amount"`
	Bonus       decimal.Decimal `json:"bonus"`
	Deductions  decimal.Decimal `json:"deductions"`
	NetSalary   decimal.Decimal `json:"netSalary"`
	PaymentDate time.Time       `json:"paymentDate"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   int64           `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NetSalary is amount + bonus - deductions, rounded to cents.
func NetSalary(amount, bonus, deductions decimal.Decimal) decimal.Decimal {
	return amount.Add(bonus).Sub(deductions).Round(2)
}

// SalaryInput is the create/replace payload. When EmployeeID is set the snapshot
// fields default to the employee's current values.
type SalaryInput struct {
	EmployeeID  *int64          `json:"employeeId"`
	FirstName   string          `json:"firstName" validate:"max=100"`
	Position    string          `json:"position" validate:"max=100"`
	Month       int             `json:"month" validate:"required,min=1,max=12"`
	Year        int             `json:"year" validate:"required,min=2000,max=2100"`
	Amount      decimal.Decimal `json:"amount" validate:"gte=0"`
	Bonus       decimal.Decimal `json:"bonus" validate:"gte=0"`
	Deductions  decimal.Decimal `json:"deductions" validate:"gte=0"`
	PaymentDate *time.Time      `json:"paymentDate"`
	Notes       string          `json:"notes" validate:"max=500"`
}

// ListFilter narrows the salary listing. PaymentMonth selects by payment date within
// Year (or the current year when Year is zero).
type ListFilter struct {
	Year         int
	Month        int
	PaymentMonth int
	EmployeeID   *int64
	PaidFrom     *time.Time
	PaidTo       *time.Time
}

var (
	// ErrSalaryNotFound indicates an unknown salary id.
	ErrSalaryNotFound = shared.NewError(shared.ErrNotFound, "payroll: salary record not found")
	// ErrEmployeeRequired is returned when neither an employee id nor a name is given.
	ErrEmployeeRequired = shared.FieldError("employee", "employeeId or firstName and position are required")
)
