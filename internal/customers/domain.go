// Package customers manages the buyers that credit sales are booked against.
package customers

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/shared"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// Customer is a buyer with an optional credit line.
type Customer struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Address     string          `json:"address,omitempty"`
	CreditLimit decimal.Decimal `json:"creditLimit"`
	CurrentDebt decimal.Decimal `json:"currentDebt"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   int64           `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// AvailableCredit is max(0, creditLimit - currentDebt).
func (c Customer) AvailableCredit() decimal.Decimal {
	avail := c.CreditLimit.Sub(c.CurrentDebt)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// MarshalJSON includes the derived available credit.
func (c Customer) MarshalJSON() ([]byte, error) {
	type alias Customer
	return json.Marshal(struct {
		alias
		AvailableCredit decimal.Decimal `json:"availableCredit"`
	}{alias: alias(c), AvailableCredit: c.AvailableCredit()})
}

// CreditSale is an open or settled credit sale seen from the customer side.
type CreditSale struct {
	SaleID          int64           `json:"saleId"`
	InvoiceNumber   string          `json:"invoiceNumber"`
	SaleDate        time.Time       `json:"saleDate"`
	GrandTotal      decimal.Decimal `json:"grandTotal"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	PaymentStatus   string          `json:"paymentStatus"`
}

// Detail is a customer together with their credit sales.
type Detail struct {
	Customer
	CreditSales []CreditSale    `json:"creditSales"`
	TotalDebt   decimal.Decimal `json:"totalDebt"`
}

// MarshalJSON flattens the customer fields next to the credit summary.
func (d Detail) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(d.Customer)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	sales := d.CreditSales
	if sales == nil {
		sales = []CreditSale{}
	}
	if fields["creditSales"], err = json.Marshal(sales); err != nil {
		return nil, err
	}
	if fields["totalDebt"], err = json.Marshal(d.TotalDebt); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// CreateCustomerRequest is the payload for a new customer.
type CreateCustomerRequest struct {
	Name        string          `json:"name" validate:"required,max=50"`
	Phone       string          `json:"phone" validate:"required"`
	Address     string          `json:"address" validate:"max=255"`
	CreditLimit decimal.Decimal `json:"creditLimit" validate:"gte=0"`
	CurrentDebt decimal.Decimal `json:"currentDebt" validate:"gte=0"`
	Notes       string          `json:"notes" validate:"max=500"`
}

// UpdateCustomerRequest changes the non-nil fields.
type UpdateCustomerRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=50"`
	Phone       *string          `json:"phone"`
	Address     *string          `json:"address" validate:"omitempty,max=255"`
	CreditLimit *decimal.Decimal `json:"creditLimit" validate:"omitempty,gte=0"`
	Notes       *string          `json:"notes" validate:"omitempty,max=500"`
}

var (
	// ErrCustomerNotFound indicates an unknown customer id.
	ErrCustomerNotFound = shared.NewError(shared.ErrNotFound, "customers: customer not found")
	// ErrDuplicatePhone indicates the phone number belongs to another customer.
	ErrDuplicatePhone = shared.NewError(shared.ErrConflict, "customers: phone already registered")
	// ErrHasSales blocks deleting a customer that sales still reference.
	ErrHasSales = shared.NewError(shared.ErrConflict, "customers: customer has sales")
	// ErrCreditLimitAdminOnly is returned when a non-admin edits a credit limit.
	ErrCreditLimitAdminOnly = shared.NewError(shared.ErrForbidden, "customers: only admins may change the credit limit")
)

// ValidPhone reports whether phone matches the accepted format.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}
