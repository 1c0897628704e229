package borrows

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kassa/internal/platform/db"
)

const borrowColumns = `id, lender_name, borrow_date, return_date, returned, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// List returns all records newest first.
func (r *Repository) List(ctx context.Context) ([]Borrow, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+borrowColumns+` FROM borrows ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	var out []Borrow
	for rows.Next() {
		b, err := scanBorrow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, r.pool, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads one record.
func (r *Repository) Get(ctx context.Context, id int64) (Borrow, error) {
	return getBorrow(ctx, r.pool, `SELECT `+borrowColumns+` FROM borrows WHERE id = $1`, id)
}

// Delete removes a record; items and payments cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM borrows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBorrowNotFound
	}
	return nil
}

// Insert writes the header and items.
func (t *txRepo) Insert(ctx context.Context, b Borrow) (Borrow, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO borrows (lender_name, borrow_date, return_date, returned, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING `+borrowColumns,
		b.LenderName, b.BorrowDate, b.ReturnDate, b.Returned)
	created, err := scanBorrow(row)
	if err != nil {
		return Borrow{}, err
	}
	created.Items = b.Items
	for i := range created.Items {
		if err := t.insertItem(ctx, created.ID, &created.Items[i]); err != nil {
			return Borrow{}, err
		}
	}
	return created, nil
}

// GetForUpdate loads a record and locks its header row.
func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Borrow, error) {
	return getBorrow(ctx, t.tx, `SELECT `+borrowColumns+` FROM borrows WHERE id = $1 FOR UPDATE`, id)
}

// UpdateHeader stores lender, dates and the returned flag.
func (t *txRepo) UpdateHeader(ctx context.Context, b Borrow) error {
	tag, err := t.tx.Exec(ctx, `UPDATE borrows SET lender_name = $2, borrow_date = $3, return_date = $4, returned = $5, updated_at = NOW()
WHERE id = $1`, b.ID, b.LenderName, b.BorrowDate, b.ReturnDate, b.Returned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBorrowNotFound
	}
	return nil
}

// ReplaceItems makes the stored item list equal to items. Items with an id are
// updated in place, the rest are inserted.
func (t *txRepo) ReplaceItems(ctx context.Context, borrowID int64, items []Item) error {
	keep := make([]int64, 0, len(items))
	for _, it := range items {
		if it.ID != 0 {
			keep = append(keep, it.ID)
		}
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM borrow_items WHERE borrow_id = $1 AND NOT (id = ANY($2))`, borrowID, keep); err != nil {
		return fmt.Errorf("prune borrow items: %w", err)
	}
	for i := range items {
		it := &items[i]
		if it.ID == 0 {
			if err := t.insertItem(ctx, borrowID, it); err != nil {
				return err
			}
			continue
		}
		if _, err := t.tx.Exec(ctx, `UPDATE borrow_items SET item_name = $3, quantity = $4, price = $5 WHERE id = $1 AND borrow_id = $2`,
			it.ID, borrowID, it.ItemName, it.Quantity, it.Price); err != nil {
			return fmt.Errorf("update borrow item: %w", err)
		}
	}
	return nil
}

// InsertPayment appends a payment with its allocations.
func (t *txRepo) InsertPayment(ctx context.Context, borrowID int64, p Payment) (Payment, error) {
	allocations := p.Allocations
	if allocations == nil {
		allocations = []Allocation{}
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO borrow_payments (borrow_id, amount, method, paid_at, allocations)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, borrowID, p.Amount, p.Method, p.PaidAt, allocations).Scan(&p.ID)
	if err != nil {
		return Payment{}, err
	}
	if _, err := t.tx.Exec(ctx, `UPDATE borrows SET updated_at = NOW() WHERE id = $1`, borrowID); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// CreditItems increases item paid amounts.
func (t *txRepo) CreditItems(ctx context.Context, borrowID int64, credits []ItemCredit) error {
	if len(credits) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range credits {
		batch.Queue(`UPDATE borrow_items SET paid_amount = paid_amount + $3 WHERE id = $1 AND borrow_id = $2`, c.ItemID, borrowID, c.Amount)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) insertItem(ctx context.Context, borrowID int64, it *Item) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO borrow_items (borrow_id, item_name, quantity, price, paid_amount)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, borrowID, it.ItemName, it.Quantity, it.Price, it.PaidAmount).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("insert borrow item: %w", err)
	}
	return nil
}

func getBorrow(ctx context.Context, q db.DBTX, query string, id int64) (Borrow, error) {
	b, err := scanBorrow(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Borrow{}, ErrBorrowNotFound
	}
	if err != nil {
		return Borrow{}, err
	}
	out := []Borrow{b}
	if err := loadChildren(ctx, q, out); err != nil {
		return Borrow{}, err
	}
	return out[0], nil
}

func loadChildren(ctx context.Context, q db.DBTX, borrows []Borrow) error {
	if len(borrows) == 0 {
		return nil
	}
	ids := make([]int64, len(borrows))
	index := make(map[int64]int, len(borrows))
	for i, b := range borrows {
		ids[i] = b.ID
		index[b.ID] = i
	}

	rows, err := q.Query(ctx, `SELECT id, borrow_id, item_name, quantity, price, paid_amount
FROM borrow_items WHERE borrow_id = ANY($1) ORDER BY borrow_id, id`, ids)
	if err != nil {
		return fmt.Errorf("load borrow items: %w", err)
	}
	for rows.Next() {
		var it Item
		var borrowID int64
		if err := rows.Scan(&it.ID, &borrowID, &it.ItemName, &it.Quantity, &it.Price, &it.PaidAmount); err != nil {
			rows.Close()
			return err
		}
		i := index[borrowID]
		borrows[i].Items = append(borrows[i].Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.Query(ctx, `SELECT id, borrow_id, amount, method, paid_at, allocations
FROM borrow_payments WHERE borrow_id = ANY($1) ORDER BY borrow_id, paid_at, id`, ids)
	if err != nil {
		return fmt.Errorf("load borrow payments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Payment
		var borrowID int64
		if err := rows.Scan(&p.ID, &borrowID, &p.Amount, &p.Method, &p.PaidAt, &p.Allocations); err != nil {
			return err
		}
		i := index[borrowID]
		borrows[i].Payments = append(borrows[i].Payments, p)
	}
	return rows.Err()
}

func scanBorrow(row pgx.Row) (Borrow, error) {
	var b Borrow
	err := row.Scan(&b.ID, &b.LenderName, &b.BorrowDate, &b.ReturnDate, &b.Returned, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}
