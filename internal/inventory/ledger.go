package inventory

import (
	"context"
	"fmt"
	"sort"
)

// Catalog is the transaction-scoped view of product stock. Implementations lock the
// rows returned by LockProducts until the enclosing transaction ends.
type Catalog interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	SetQuantities(ctx context.Context, quantities map[int64]int64) error
	InsertMovements(ctx context.Context, movements []Movement) error
}

// CheckAvailability locks every product in lines and fails on the first line, in request
// order, whose product cannot cover the requested total. Lines naming the same product are
// summed. It returns the locked products so callers can price the lines.
func CheckAvailability(ctx context.Context, cat Catalog, lines []StockLine) (map[int64]Product, error) {
	order, requested, err := totalsByProduct(lines)
	if err != nil {
		return nil, err
	}
	products, err := cat.LockProducts(ctx, sortedIDs(order))
	if err != nil {
		return nil, fmt.Errorf("inventory: lock products: %w", err)
	}
	for _, id := range order {
		p, ok := products[id]
		if !ok {
			return nil, productNotFound(id)
		}
		if requested[id] > p.Quantity {
			return nil, &InsufficientStockError{ProductID: id, Name: p.Name, Available: p.Quantity, Requested: requested[id]}
		}
	}
	return products, nil
}

// ApplyAdjustment applies every delta or none. All products are loaded and checked before
// the first write; a missing product or a result below zero aborts the whole batch.
func ApplyAdjustment(ctx context.Context, cat Catalog, adj Adjustment) error {
	if len(adj.Deltas) == 0 {
		return ErrEmptyAdjustment
	}
	merged := mergeDeltas(adj.Deltas)
	ids := make([]int64, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := cat.LockProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("inventory: lock products: %w", err)
	}

	next := make(map[int64]int64, len(ids))
	movements := make([]Movement, 0, len(ids))
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return productNotFound(id)
		}
		delta := merged[id]
		qty := p.Quantity + delta
		if qty < 0 {
			return &InsufficientStockError{ProductID: id, Name: p.Name, Available: p.Quantity, Requested: -delta}
		}
		next[id] = qty
		movements = append(movements, Movement{
			ProductID:    id,
			Delta:        delta,
			BalanceAfter: qty,
			Reason:       adj.Reason,
			RefID:        adj.RefID,
			ActorID:      adj.ActorID,
			Note:         adj.Note,
		})
	}

	if err := cat.SetQuantities(ctx, next); err != nil {
		return fmt.Errorf("inventory: set quantities: %w", err)
	}
	if err := cat.InsertMovements(ctx, movements); err != nil {
		return fmt.Errorf("inventory: record movements: %w", err)
	}
	return nil
}

// Shortfalls lists every line that cannot be served from products. Unlike
// CheckAvailability it does not stop at the first problem.
func Shortfalls(products map[int64]Product, lines []StockLine) []Shortfall {
	order, requested, err := totalsByProduct(lines)
	if err != nil {
		return nil
	}
	var out []Shortfall
	for _, id := range order {
		p, ok := products[id]
		if !ok {
			out = append(out, Shortfall{ProductID: id, Requested: requested[id]})
			continue
		}
		if requested[id] > p.Quantity {
			out = append(out, Shortfall{ProductID: id, Name: p.Name, Available: p.Quantity, Requested: requested[id]})
		}
	}
	return out
}

// Decrements turns sale lines into negative deltas.
func Decrements(lines []StockLine) []StockDelta {
	out := make([]StockDelta, 0, len(lines))
	for _, l := range lines {
		out = append(out, StockDelta{ProductID: l.ProductID, Delta: -l.Quantity})
	}
	return out
}

// Restocks turns sale lines into positive deltas.
func Restocks(lines []StockLine) []StockDelta {
	out := make([]StockDelta, 0, len(lines))
	for _, l := range lines {
		out = append(out, StockDelta{ProductID: l.ProductID, Delta: l.Quantity})
	}
	return out
}

func totalsByProduct(lines []StockLine) ([]int64, map[int64]int64, error) {
	order := make([]int64, 0, len(lines))
	totals := make(map[int64]int64, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, nil, ErrInvalidQuantity
		}
		if _, seen := totals[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		totals[l.ProductID] += l.Quantity
	}
	return order, totals, nil
}

func mergeDeltas(deltas []StockDelta) map[int64]int64 {
	merged := make(map[int64]int64, len(deltas))
	for _, d := range deltas {
		merged[d.ProductID] += d.Delta
	}
	return merged
}

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
