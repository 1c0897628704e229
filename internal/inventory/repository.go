package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kassa/internal/platform/db"
)

const productColumns = `id, name, sku, category, price, quantity, min_quantity, description, created_at, updated_at`

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*PGCatalog
}

// WithTx executes the callback inside a locking transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PGCatalog: NewPGCatalog(tx)})
	})
}

// ListProducts returns a filtered page of products ordered by name.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args)))
	}
	if c := strings.TrimSpace(filter.Category); c != "" {
		args = append(args, c)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.Page.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page.Page <= 0 {
		page.Page = 1
	}
	page.PerPage = perPage
	args = append(args, perPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY name, id LIMIT $%d OFFSET $%d`, productColumns, cond, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, productNotFound(id)
	}
	return p, err
}

// GetProducts loads products by id without locking.
func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	return queryProductMap(ctx, r.pool, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
}

// ListBelowThreshold lists products with quantity strictly below threshold.
func (r *Repository) ListBelowThreshold(ctx context.Context, threshold int64) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE quantity < $1 ORDER BY quantity, name`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// ListMovements returns the latest stock card lines for productID.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, delta, balance_after, reason, COALESCE(ref_id, 0), COALESCE(actor_id, 0), note, created_at
FROM stock_movements WHERE product_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var reason string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.BalanceAfter, &reason, &m.RefID, &m.ActorID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Reason = MovementReason(reason)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MovementsForRef returns the journal lines written for a sale or other reference.
func (r *Repository) MovementsForRef(ctx context.Context, refID int64, reason MovementReason) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, delta, balance_after, reason, COALESCE(ref_id, 0), COALESCE(actor_id, 0), note, created_at
FROM stock_movements WHERE ref_id = $1 AND reason = $2 ORDER BY id`, refID, string(reason))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var rs string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.BalanceAfter, &rs, &m.RefID, &m.ActorID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Reason = MovementReason(rs)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PGCatalog implements Catalog and product writes on a PostgreSQL transaction. Other
// packages embed it to run stock changes inside their own transactions.
type PGCatalog struct {
	tx pgx.Tx
}

// NewPGCatalog binds a catalog to tx.
func NewPGCatalog(tx pgx.Tx) *PGCatalog {
	return &PGCatalog{tx: tx}
}

// LockProducts selects products FOR UPDATE in ascending id order so concurrent writers
// acquire row locks in the same sequence.
func (c *PGCatalog) LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	return queryProductMap(ctx, c.tx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
}

// SetQuantities writes new on-hand quantities.
func (c *PGCatalog) SetQuantities(ctx context.Context, quantities map[int64]int64) error {
	batch := &pgx.Batch{}
	for id, qty := range quantities {
		batch.Queue(`UPDATE products SET quantity = $2, updated_at = NOW() WHERE id = $1`, id, qty)
	}
	br := c.tx.SendBatch(ctx, batch)
	for range quantities {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			if db.IsCheckViolation(err) {
				return ErrInsufficientStock
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return ErrProductNotFound
		}
	}
	return br.Close()
}

// InsertMovements appends stock card lines.
func (c *PGCatalog) InsertMovements(ctx context.Context, movements []Movement) error {
	if len(movements) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range movements {
		batch.Queue(`INSERT INTO stock_movements (product_id, delta, balance_after, reason, ref_id, actor_id, note, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, 0), $7, NOW())`,
			m.ProductID, m.Delta, m.BalanceAfter, string(m.Reason), m.RefID, m.ActorID, m.Note)
	}
	return c.tx.SendBatch(ctx, batch).Close()
}

// InsertProduct creates a product row.
func (c *PGCatalog) InsertProduct(ctx context.Context, p Product) (Product, error) {
	row := c.tx.QueryRow(ctx, `INSERT INTO products (name, sku, category, price, quantity, min_quantity, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING `+productColumns,
		p.Name, p.SKU, p.Category, p.Price, p.Quantity, p.MinQuantity, p.Description)
	created, err := scanProduct(row)
	if db.IsUniqueViolation(err) {
		return Product{}, ErrDuplicateSKU
	}
	return created, err
}

// UpdateProduct overwrites a product row.
func (c *PGCatalog) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	row := c.tx.QueryRow(ctx, `UPDATE products SET name = $2, sku = $3, category = $4, price = $5, quantity = $6,
min_quantity = $7, description = $8, updated_at = NOW() WHERE id = $1 RETURNING `+productColumns,
		p.ID, p.Name, p.SKU, p.Category, p.Price, p.Quantity, p.MinQuantity, p.Description)
	updated, err := scanProduct(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Product{}, productNotFound(p.ID)
	case db.IsUniqueViolation(err):
		return Product{}, ErrDuplicateSKU
	}
	return updated, err
}

// DeleteProduct removes a product row.
func (c *PGCatalog) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := c.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrProductInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return productNotFound(id)
	}
	return nil
}

func queryProductMap(ctx context.Context, q db.DBTX, query string, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.Price, &p.Quantity, &p.MinQuantity, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
