package sales

import (
	"fmt"

	"github.com/odyssey-erp/kassa/internal/shared"
)

var (
	// ErrSaleNotFound indicates an unknown sale id.
	ErrSaleNotFound = shared.NewError(shared.ErrNotFound, "sales: sale not found")
	// ErrEmptyOrder is returned when a sale has no lines.
	ErrEmptyOrder = shared.NewError(shared.ErrValidation, "sales: at least one item is required")
	// ErrInvalidAmount is returned for non-positive payments or negative money fields.
	ErrInvalidAmount = shared.NewError(shared.ErrValidation, "sales: amount must be positive")
	// ErrDiscountExceedsSubtotal is returned when the discount is larger than the subtotal.
	ErrDiscountExceedsSubtotal = shared.NewError(shared.ErrValidation, "sales: discount exceeds subtotal")
	// ErrOverPayment is returned when the initial payment exceeds the grand total.
	ErrOverPayment = shared.NewError(shared.ErrBusinessRule, "sales: paid amount exceeds grand total")
	// ErrAlreadySettled is returned when paying a sale that owes nothing.
	ErrAlreadySettled = shared.NewError(shared.ErrBusinessRule, "sales: sale is already paid")
	// ErrNotCredit is returned when paying a cash sale.
	ErrNotCredit = shared.NewError(shared.ErrBusinessRule, "sales: sale is not a credit sale")
	// ErrSaleClosed is returned for changes to cancelled or refunded sales.
	ErrSaleClosed = shared.NewError(shared.ErrBusinessRule, "sales: sale is closed")
	// ErrSettledSale is returned when cancelling a fully paid sale; refund it instead.
	ErrSettledSale = shared.NewError(shared.ErrBusinessRule, "sales: fully paid sale must be refunded, not cancelled")
	// ErrNotSettled is returned when refunding a sale that is not fully paid.
	ErrNotSettled = shared.NewError(shared.ErrBusinessRule, "sales: only fully paid sales can be refunded")
)

// PartialCommitTypeURI identifies partial commit problems.
const PartialCommitTypeURI = "https://kassa.local/problems/partial-commit"

// PartialCommitError reports a sale whose commit outcome is unknown. The sale row and
// the stock decrement were written in one transaction, so either both landed or neither
// did; a reconciliation job determines which.
type PartialCommitError struct {
	SaleID        int64
	InvoiceNumber string
	Err           error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("sales: sale %d (%s) commit outcome unknown: %v", e.SaleID, e.InvoiceNumber, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// ProblemType implements httpx.TypeProvider.
func (e *PartialCommitError) ProblemType() string { return PartialCommitTypeURI }

// ProblemMeta implements httpx.MetaProvider.
func (e *PartialCommitError) ProblemMeta() map[string]any {
	return map[string]any{"saleId": e.SaleID, "invoiceNumber": e.InvoiceNumber, "reconciliation": "queued"}
}
