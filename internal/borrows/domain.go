// Package borrows tracks goods taken on loan from outside lenders and the payments
// made against them.
package borrows

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// Payment methods accepted for lender payments.
const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
)

// Item is one borrowed line.
type Item struct {
	ID         int64           `json:"id"`
	ItemName   string          `json:"itemName"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	PaidAmount decimal.Decimal `json:"paidAmount"`
}

// Total is price x quantity.
func (i Item) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Allocation credits part of a payment to one item.
type Allocation struct {
	ItemID int64           `json:"itemId"`
	Amount decimal.Decimal `json:"amount"`
}

// Payment is one payment made to the lender.
type Payment struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"paymentMethod"`
	PaidAt      time.Time       `json:"paymentDate"`
	Allocations []Allocation    `json:"items"`
}

// Borrow is a lender record.
type Borrow struct {
	ID         int64      `json:"id"`
	LenderName string     `json:"lenderName"`
	BorrowDate time.Time  `json:"borrowDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Returned   bool       `json:"returned"`
	Items      []Item     `json:"items"`
	Payments   []Payment  `json:"payments"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// PaidAmount sums all payments.
func (b Borrow) PaidAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range b.Payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// TotalAmount sums price x quantity over the items.
func (b Borrow) TotalAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range b.Items {
		sum = sum.Add(it.Total())
	}
	return sum
}

// RemainingAmount is TotalAmount - PaidAmount.
func (b Borrow) RemainingAmount() decimal.Decimal {
	return b.TotalAmount().Sub(b.PaidAmount())
}

// MarshalJSON adds the derived totals.
func (b Borrow) MarshalJSON() ([]byte, error) {
	type alias Borrow
	out := alias(b)
	if out.Items == nil {
		out.Items = []Item{}
	}
	if out.Payments == nil {
		out.Payments = []Payment{}
	}
	for i := range out.Payments {
		if out.Payments[i].Allocations == nil {
			out.Payments[i].Allocations = []Allocation{}
		}
	}
	return json.Marshal(struct {
		alias
		PaidAmount      decimal.Decimal `json:"paidAmount"`
		TotalAmount     decimal.Decimal `json:"totalAmount"`
		RemainingAmount decimal.Decimal `json:"remainingAmount"`
	}{
		alias:           out,
		PaidAmount:      b.PaidAmount(),
		TotalAmount:     b.TotalAmount(),
		RemainingAmount: b.RemainingAmount(),
	})
}

// ItemInput describes an item on create or update. ID keeps an existing item (and
// its paid amount) across an update.
type ItemInput struct {
	ID       int64           `json:"id"`
	ItemName string          `json:"itemName" validate:"required,max=200"`
	Quantity int             `json:"quantity" validate:"min=1"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
}

// BorrowInput is the create/replace payload.
type BorrowInput struct {
	LenderName string      `json:"lenderName" validate:"required,max=200"`
	BorrowDate *time.Time  `json:"borrowDate"`
	ReturnDate *time.Time  `json:"returnDate"`
	Returned   bool        `json:"returned"`
	Items      []ItemInput `json:"items" validate:"dive"`
}

// PaymentInput is the partial-payment payload.
type PaymentInput struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Method      string          `json:"paymentMethod" validate:"required,oneof=cash card transfer"`
	PaidAt      *time.Time      `json:"paymentDate"`
	Allocations []Allocation    `json:"items"`
}

var (
	// ErrBorrowNotFound indicates an unknown borrow id.
	ErrBorrowNotFound = shared.NewError(shared.ErrNotFound, "borrows: record not found")
	// ErrInvalidAmount indicates a non-positive payment or a negative allocation.
	ErrInvalidAmount = shared.NewError(shared.ErrValidation, "borrows: amount must be positive")
	// ErrOverPayment is returned when a payment exceeds the remaining amount.
	ErrOverPayment = shared.NewError(shared.ErrBusinessRule, "borrows: payment exceeds remaining amount")
	// ErrAllocationExceedsPayment is returned when allocations sum to more than the payment.
	ErrAllocationExceedsPayment = shared.NewError(shared.ErrValidation, "borrows: allocations exceed payment amount")
)

// ItemCredit is the paid-amount increase for one item.
type ItemCredit struct {
	ItemID int64
	Amount decimal.Decimal
}

// PlanPayment validates p against b and returns the per-item credits it causes.
// Allocations naming items that are not on the record are kept on the payment but
// credit nothing. An item is never credited past its own open amount.
func PlanPayment(b Borrow, p Payment) ([]ItemCredit, error) {
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if p.Amount.GreaterThan(b.RemainingAmount()) {
		return nil, ErrOverPayment
	}
	open := make(map[int64]decimal.Decimal, len(b.Items))
	for _, it := range b.Items {
		open[it.ID] = decimal.Max(it.Total().Sub(it.PaidAmount), decimal.Zero)
	}
	allocated := decimal.Zero
	var credits []ItemCredit
	for _, a := range p.Allocations {
		if a.Amount.IsNegative() {
			return nil, ErrInvalidAmount
		}
		allocated = allocated.Add(a.Amount)
		rest, ok := open[a.ItemID]
		if !ok {
			continue
		}
		credit := decimal.Min(a.Amount, rest)
		if credit.IsPositive() {
			credits = append(credits, ItemCredit{ItemID: a.ItemID, Amount: credit})
			open[a.ItemID] = rest.Sub(credit)
		}
	}
	if allocated.GreaterThan(p.Amount) {
		return nil, ErrAllocationExceedsPayment
	}
	return credits, nil
}
