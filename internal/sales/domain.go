// Package sales owns the monetary lifecycle of a sale: creation against stock, credit
// payments, cancellation and refunds.
package sales

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/inventory"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// PaymentMethod enumerates accepted tenders.
type PaymentMethod string

const (
	// PaymentCash is money handed over at the counter.
	PaymentCash PaymentMethod = "cash"
	// PaymentCard is a debit or credit card.
	PaymentCard PaymentMethod = "card"
	// PaymentTransfer is a bank transfer.
	PaymentTransfer PaymentMethod = "transfer"
	// PaymentOther covers any other tender.
	PaymentOther PaymentMethod = "other"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentOther:
		return true
	}
	return false
}

// Status is the lifecycle state of a sale record.
type Status string

const (
	// StatusCompleted is a live sale whose stock has left the shelf.
	StatusCompleted Status = "completed"
	// StatusCancelled is a voided unpaid or partially paid sale.
	StatusCancelled Status = "cancelled"
	// StatusRefunded is a fully paid sale that was returned.
	StatusRefunded Status = "refunded"
)

// Closed reports whether no further payments or stock changes are allowed.
func (s Status) Closed() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// PaymentStatus is derived from the monetary state of a sale.
type PaymentStatus string

const (
	// PaymentStatusUnpaid means no payment has been taken.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPartial means some of the grand total is still owed.
	PaymentStatusPartial PaymentStatus = "partial"
	// PaymentStatusPaid means nothing is owed.
	PaymentStatusPaid PaymentStatus = "paid"
)

// LineItem is one product line captured at sale time.
type LineItem struct {
	ID          int64           `json:"id,omitempty"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Total is price times quantity.
func (l LineItem) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(l.Quantity))
}

// PaymentRecord is an append-only entry in a sale's payment history.
type PaymentRecord struct {
	ID         int64           `json:"id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	PaidAt     time.Time       `json:"paidAt"`
	ReceivedBy int64           `json:"receivedBy,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	Reference  string          `json:"reference,omitempty"`
}

// Sale is the persisted sale record. RemainingAmount and PaymentStatus are never stored;
// they are computed from the snapshot on read.
type Sale struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	CustomerID    *int64          `json:"customerId,omitempty"`
	CustomerName  string          `json:"customerName,omitempty"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	IsCredit      bool            `json:"isCredit"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	Payments      []PaymentRecord `json:"paymentHistory"`
	SellerID      int64           `json:"sellerId"`
	SellerName    string          `json:"sellerName,omitempty"`
	SaleDate      time.Time       `json:"saleDate"`
	Notes         string          `json:"notes,omitempty"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// MarshalJSON adds the derived fields.
func (s Sale) MarshalJSON() ([]byte, error) {
	type alias Sale
	items := s.Items
	if items == nil {
		items = []LineItem{}
	}
	payments := s.Payments
	if payments == nil {
		payments = []PaymentRecord{}
	}
	a := alias(s)
	a.Items = items
	a.Payments = payments
	return json.Marshal(struct {
		alias
		RemainingAmount decimal.Decimal `json:"remainingAmount"`
		PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	}{alias: a, RemainingAmount: RemainingAmount(s), PaymentStatus: PaymentStatusOf(s)})
}

// StockLines returns the inventory view of the sale's lines.
func (s Sale) StockLines() []inventory.StockLine {
	out := make([]inventory.StockLine, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, inventory.StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// SaleItemRequest is one requested line. Price is optional and defaults to the catalog price.
type SaleItemRequest struct {
	ProductID int64            `json:"productId" validate:"required,gt=0"`
	Quantity  int64            `json:"quantity" validate:"required,gte=1"`
	Price     *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
}

// CreateSaleRequest is the payload for a new sale.
type CreateSaleRequest struct {
	CustomerID    *int64            `json:"customerId" validate:"omitempty,gt=0"`
	Items         []SaleItemRequest `json:"items" validate:"dive"`
	Discount      decimal.Decimal   `json:"discount" validate:"gte=0"`
	Tax           decimal.Decimal   `json:"tax" validate:"gte=0"`
	IsCredit      bool              `json:"isCredit"`
	PaymentMethod PaymentMethod     `json:"paymentMethod" validate:"omitempty,oneof=cash card transfer other"`
	PaidAmount    decimal.Decimal   `json:"paidAmount" validate:"gte=0"`
	SaleDate      *time.Time        `json:"saleDate"`
	Notes         string            `json:"notes" validate:"max=1000"`
}

// PaymentRequest is the payload for paying down a credit sale.
type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"paymentMethod" validate:"omitempty,oneof=cash card transfer other"`
	Notes     string          `json:"notes" validate:"max=500"`
	Reference string          `json:"reference" validate:"max=100"`
}

// ListFilter narrows sale listings.
type ListFilter struct {
	CustomerID *int64
	IsCredit   *bool
	Status     Status
	From       *time.Time
	To         *time.Time
	Page       shared.PageRequest
}

// CustomerPayment is a flattened payment history row for one customer.
type CustomerPayment struct {
	SaleID        int64           `json:"saleId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	SaleDate      time.Time       `json:"saleDate"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	PaidAt        time.Time       `json:"paidAt"`
	ReceivedBy    int64           `json:"receivedBy,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// Summary aggregates the sales book.
type Summary struct {
	Count           int             `json:"count"`
	TotalSales      decimal.Decimal `json:"totalSales"`
	TotalPaid       decimal.Decimal `json:"totalPaid"`
	TotalCredit     decimal.Decimal `json:"totalCredit"`
	TotalCreditPaid decimal.Decimal `json:"totalCreditPaid"`
	Outstanding     decimal.Decimal `json:"outstanding"`
}
