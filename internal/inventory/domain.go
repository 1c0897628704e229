package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// DefaultCategory is assigned to products created without one.
const DefaultCategory = "Хозтовар"

// Product is a catalog entry with its on-hand quantity.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	MinQuantity int64           `json:"minQuantity"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// BelowReorder reports whether stock is at or under the reorder threshold.
func (p Product) BelowReorder() bool {
	return p.Quantity <= p.MinQuantity
}

// StockLine asks for quantity units of a product.
type StockLine struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gte=1"`
}

// StockDelta is a signed change to a product's on-hand quantity.
type StockDelta struct {
	ProductID int64
	Delta     int64
}

// MovementReason tags why stock moved.
type MovementReason string

const (
	// MovementSale decrements stock for a completed sale.
	MovementSale MovementReason = "SALE"
	// MovementCancel restores stock from a cancelled sale.
	MovementCancel MovementReason = "CANCEL"
	// MovementRefund restores stock from a refunded sale.
	MovementRefund MovementReason = "REFUND"
	// MovementCorrection is a manual catalog correction.
	MovementCorrection MovementReason = "CORRECTION"
)

// Adjustment is a batch of deltas applied together, with the journal metadata
// recorded for each touched product.
type Adjustment struct {
	Deltas  []StockDelta
	Reason  MovementReason
	RefID   int64
	ActorID int64
	Note    string
}

// Movement is one stock card line.
type Movement struct {
	ID           int64          `json:"id"`
	ProductID    int64          `json:"productId"`
	Delta        int64          `json:"delta"`
	BalanceAfter int64          `json:"balanceAfter"`
	Reason       MovementReason `json:"reason"`
	RefID        int64          `json:"refId,omitempty"`
	ActorID      int64          `json:"actorId,omitempty"`
	Note         string         `json:"note,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Shortfall describes one line that cannot be served.
type Shortfall struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name,omitempty"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
}

// StockReport is the result of a standalone availability check.
type StockReport struct {
	Available  bool        `json:"available"`
	Shortfalls []Shortfall `json:"shortfalls"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search   string
	Category string
	Page     shared.PageRequest
}

// CreateProductRequest is the payload for creating a product.
type CreateProductRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	SKU         string          `json:"sku" validate:"required,max=64"`
	Category    string          `json:"category" validate:"omitempty,max=100"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity    int64           `json:"quantity" validate:"gte=0"`
	MinQuantity int64           `json:"minQuantity" validate:"gte=0"`
	Description string          `json:"description" validate:"max=1000"`
}

// UpdateProductRequest carries the fields to change; nil fields are left alone.
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=200"`
	SKU         *string          `json:"sku" validate:"omitempty,max=64"`
	Category    *string          `json:"category" validate:"omitempty,max=100"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Quantity    *int64           `json:"quantity" validate:"omitempty,gte=0"`
	MinQuantity *int64           `json:"minQuantity" validate:"omitempty,gte=0"`
	Description *string          `json:"description" validate:"omitempty,max=1000"`
}

var (
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = shared.NewError(shared.ErrNotFound, "inventory: product not found")
	// ErrDuplicateSKU indicates the SKU is taken.
	ErrDuplicateSKU = shared.NewError(shared.ErrConflict, "inventory: sku already exists")
	// ErrProductInUse indicates the product is referenced by a sale line.
	ErrProductInUse = shared.NewError(shared.ErrConflict, "inventory: product is referenced by sales")
	// ErrInsufficientStock is the class matched by every InsufficientStockError.
	ErrInsufficientStock = shared.NewError(shared.ErrConflict, "inventory: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = shared.NewError(shared.ErrValidation, "inventory: quantity must be at least 1")
	// ErrEmptyAdjustment indicates an adjustment without deltas.
	ErrEmptyAdjustment = shared.NewError(shared.ErrValidation, "inventory: adjustment has no lines")
)

// InsufficientStockError reports the first product that cannot cover a request.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("#%d", e.ProductID)
	}
	return fmt.Sprintf("inventory: insufficient stock for %s: available %d, requested %d", name, e.Available, e.Requested)
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ProblemMeta exposes the shortfall to API clients.
func (e *InsufficientStockError) ProblemMeta() map[string]any {
	return map[string]any{
		"productId": e.ProductID,
		"name":      e.Name,
		"available": e.Available,
		"requested": e.Requested,
	}
}

// productNotFound wraps ErrProductNotFound with the offending id.
func productNotFound(id int64) error {
	return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
}
