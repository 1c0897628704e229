package inventory

import (
	"context"
	"strconv"
	"strings"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	ListBelowThreshold(ctx context.Context, threshold int64) ([]Product, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Catalog
	InsertProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold int64
}

// Service coordinates catalog operations.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	threshold int64
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = 10
	}
	return &Service{repo: repo, audit: audit, threshold: threshold}
}

// ListProducts returns a page of products and the total match count.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filter)
}

// GetProduct loads one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct adds a catalog entry.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest, actorID int64) (Product, error) {
	p := Product{
		Name:        strings.TrimSpace(req.Name),
		SKU:         strings.TrimSpace(req.SKU),
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price,
		Quantity:    req.Quantity,
		MinQuantity: req.MinQuantity,
		Description: strings.TrimSpace(req.Description),
	}
	if p.Category == "" {
		p.Category = DefaultCategory
	}
	if p.Name == "" {
		return Product{}, shared.FieldError("name", "is required")
	}
	if p.SKU == "" {
		return Product{}, shared.FieldError("sku", "is required")
	}
	if p.Price.IsNegative() {
		return Product{}, shared.FieldError("price", "must be at least 0")
	}
	var created Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertProduct(ctx, p)
		if err != nil {
			return err
		}
		if created.Quantity > 0 {
			return tx.InsertMovements(ctx, []Movement{{
				ProductID:    created.ID,
				Delta:        created.Quantity,
				BalanceAfter: created.Quantity,
				Reason:       MovementCorrection,
				ActorID:      actorID,
				Note:         "opening balance",
			}})
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "product:create", created.ID, map[string]any{"sku": created.SKU, "quantity": created.Quantity})
	return created, nil
}

// UpdateProduct applies a partial update. A quantity change is a catalog correction and is
// journaled as such.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req UpdateProductRequest, actorID int64) (Product, error) {
	var updated Product
	var before int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockProducts(ctx, []int64{id})
		if err != nil {
			return err
		}
		p, ok := locked[id]
		if !ok {
			return productNotFound(id)
		}
		before = p.Quantity
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.SKU != nil {
			p.SKU = strings.TrimSpace(*req.SKU)
		}
		if req.Category != nil {
			p.Category = strings.TrimSpace(*req.Category)
		}
		if req.Price != nil {
			if req.Price.IsNegative() {
				return shared.FieldError("price", "must be at least 0")
			}
			p.Price = *req.Price
		}
		if req.Quantity != nil {
			if *req.Quantity < 0 {
				return shared.FieldError("quantity", "must be at least 0")
			}
			p.Quantity = *req.Quantity
		}
		if req.MinQuantity != nil {
			p.MinQuantity = *req.MinQuantity
		}
		if req.Description != nil {
			p.Description = strings.TrimSpace(*req.Description)
		}
		if p.Name == "" || p.SKU == "" {
			return shared.FieldError("name", "name and sku cannot be blank")
		}
		if p.Category == "" {
			p.Category = DefaultCategory
		}
		updated, err = tx.UpdateProduct(ctx, p)
		if err != nil {
			return err
		}
		if updated.Quantity != before {
			return tx.InsertMovements(ctx, []Movement{{
				ProductID:    id,
				Delta:        updated.Quantity - before,
				BalanceAfter: updated.Quantity,
				Reason:       MovementCorrection,
				ActorID:      actorID,
			}})
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	meta := map[string]any{"sku": updated.SKU}
	if updated.Quantity != before {
		meta["quantity_before"] = before
		meta["quantity_after"] = updated.Quantity
	}
	s.record(ctx, actorID, "product:update", id, meta)
	return updated, nil
}

// DeleteProduct removes a product that no sale references.
func (s *Service) DeleteProduct(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "product:delete", id, nil)
	return nil
}

// LowStock lists products whose quantity is below the configured threshold.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListBelowThreshold(ctx, s.threshold)
}

// Threshold returns the low stock cut-off.
func (s *Service) Threshold() int64 {
	return s.threshold
}

// CheckStock reports whether lines can be served right now. It takes no locks, so the
// answer is advisory; sale creation re-checks under lock.
func (s *Service) CheckStock(ctx context.Context, lines []StockLine) (StockReport, error) {
	if len(lines) == 0 {
		return StockReport{}, shared.FieldError("items", "must not be empty")
	}
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return StockReport{}, ErrInvalidQuantity
		}
		ids = append(ids, l.ProductID)
	}
	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return StockReport{}, err
	}
	shortfalls := Shortfalls(products, lines)
	if shortfalls == nil {
		shortfalls = []Shortfall{}
	}
	return StockReport{Available: len(shortfalls) == 0, Shortfalls: shortfalls}, nil
}

// Movements returns the most recent stock card lines for a product.
func (s *Service) Movements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
