package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/customers"
	"github.com/odyssey-erp/kassa/internal/inventory"
	"github.com/odyssey-erp/kassa/internal/platform/db"
	"github.com/odyssey-erp/kassa/internal/shared"
)

const idempotencyModule = "sales:pay"

const saleColumns = `id, invoice_number, customer_id, customer_name, subtotal, discount, tax, total, grand_total,
is_credit, payment_method, paid_amount, seller_id, seller_name, sale_date, notes, status, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for the sale ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*inventory.PGCatalog
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction. Rows are locked explicitly with
// SELECT ... FOR UPDATE.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PGCatalog: inventory.NewPGCatalog(tx), tx: tx})
	})
}

// ============================================================================
// READS
// ============================================================================

// Get loads a sale with its lines and payments.
func (r *Repository) Get(ctx context.Context, id int64) (Sale, error) {
	return getSale(ctx, r.pool, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
}

// List returns a page of sales matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	conds := []string{"TRUE"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.CustomerID != nil {
		add("customer_id = $%d", *filter.CustomerID)
	}
	if filter.IsCredit != nil {
		add("is_credit = $%d", *filter.IsCredit)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add("sale_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("sale_date <= $%d", *filter.To)
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page.PerPage <= 0 {
		page = shared.PageRequest{Page: 1, PerPage: 20}
	}
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM sales WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		saleColumns, where, len(args)-1, len(args))
	sales, err := querySales(ctx, r.pool, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

// Recent returns the newest sales.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Sale, error) {
	return querySales(ctx, r.pool, `SELECT `+saleColumns+` FROM sales ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

// CustomerPayments returns every payment on sales the customer bought on credit, newest
// first, including sales that have since been paid off. The window applies to paid_at.
func (r *Repository) CustomerPayments(ctx context.Context, customerID int64, from, to *time.Time) ([]CustomerPayment, error) {
	conds := []string{"s.customer_id = $1", "s.on_credit"}
	args := []any{customerID}
	if from != nil {
		args = append(args, *from)
		conds = append(conds, fmt.Sprintf("p.paid_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conds = append(conds, fmt.Sprintf("p.paid_at <= $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.invoice_number, s.sale_date, s.grand_total,
       p.amount, p.method, p.paid_at, COALESCE(p.received_by, 0), p.notes
FROM sale_payments p
JOIN sales s ON s.id = p.sale_id
WHERE `+strings.Join(conds, " AND ")+`
ORDER BY p.paid_at DESC, p.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CustomerPayment
	for rows.Next() {
		var cp CustomerPayment
		var method string
		if err := rows.Scan(&cp.SaleID, &cp.InvoiceNumber, &cp.SaleDate, &cp.GrandTotal,
			&cp.Amount, &method, &cp.PaidAt, &cp.ReceivedBy, &cp.Notes); err != nil {
			return nil, err
		}
		cp.Method = PaymentMethod(method)
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Summary aggregates completed sales. Cancelled and refunded sales are excluded.
func (r *Repository) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
       COALESCE(SUM(grand_total), 0),
       COALESCE(SUM(paid_amount), 0),
       COALESCE(SUM(grand_total) FILTER (WHERE on_credit), 0),
       COALESCE(SUM(paid_amount) FILTER (WHERE on_credit), 0),
       COALESCE(SUM(grand_total - paid_amount) FILTER (WHERE is_credit), 0)
FROM sales WHERE status = $1`, string(StatusCompleted)).
		Scan(&s.Count, &s.TotalSales, &s.TotalPaid, &s.TotalCredit, &s.TotalCreditPaid, &s.Outstanding)
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}

// CreditSalesForCustomer implements customers.SalesReader.
func (r *Repository) CreditSalesForCustomer(ctx context.Context, customerID int64) ([]customers.CreditSale, error) {
	sales, err := querySales(ctx, r.pool, `SELECT `+saleColumns+` FROM sales
WHERE customer_id = $1 AND is_credit AND status = $2 ORDER BY sale_date DESC, id DESC`, customerID, string(StatusCompleted))
	if err != nil {
		return nil, err
	}
	out := make([]customers.CreditSale, 0, len(sales))
	for _, s := range sales {
		out = append(out, customers.CreditSale{
			SaleID:          s.ID,
			InvoiceNumber:   s.InvoiceNumber,
			SaleDate:        s.SaleDate,
			GrandTotal:      s.GrandTotal,
			PaidAmount:      s.PaidAmount,
			RemainingAmount: RemainingAmount(s),
			PaymentStatus:   string(PaymentStatusOf(s)),
		})
	}
	return out, nil
}

// CountSalesForCustomer implements customers.SalesReader.
func (r *Repository) CountSalesForCustomer(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE customer_id = $1`, customerID).Scan(&n)
	return n, err
}

// ============================================================================
// TRANSACTIONAL WRITES
// ============================================================================

// NextInvoiceNumber draws from the invoice sequence: INV-YYMM-NNNNNN.
func (t *txRepo) NextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('sales_invoice_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return FormatInvoiceNumber(at, seq), nil
}

// InsertSale writes the sale header, its lines and any initial payment.
func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO sales (invoice_number, customer_id, customer_name, subtotal, discount, tax, total,
grand_total, is_credit, on_credit, payment_method, paid_amount, seller_id, seller_name, sale_date, notes, status,
created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10, $11, NULLIF($12, 0), $13, $14, $15, $16, $17, $17)
RETURNING id`,
		sale.InvoiceNumber, sale.CustomerID, sale.CustomerName, sale.Subtotal, sale.Discount, sale.Tax, sale.Total,
		sale.GrandTotal, sale.IsCredit, string(sale.PaymentMethod), sale.PaidAmount, sale.SellerID, sale.SellerName,
		sale.SaleDate, sale.Notes, string(sale.Status), sale.CreatedAt)
	if err := row.Scan(&sale.ID); err != nil {
		if db.IsForeignKeyViolation(err) {
			return Sale{}, customers.ErrCustomerNotFound
		}
		return Sale{}, err
	}

	batch := &pgx.Batch{}
	for _, it := range sale.Items {
		batch.Queue(`INSERT INTO sale_items (sale_id, product_id, product_name, quantity, price) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			sale.ID, it.ProductID, it.ProductName, it.Quantity, it.Price)
	}
	for _, p := range sale.Payments {
		batch.Queue(`INSERT INTO sale_payments (sale_id, amount, method, paid_at, received_by, notes, reference)
VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7) RETURNING id`,
			sale.ID, p.Amount, string(p.Method), p.PaidAt, p.ReceivedBy, p.Notes, p.Reference)
	}
	br := t.tx.SendBatch(ctx, batch)
	for i := range sale.Items {
		if err := br.QueryRow().Scan(&sale.Items[i].ID); err != nil {
			_ = br.Close()
			return Sale{}, fmt.Errorf("insert sale item: %w", err)
		}
	}
	for i := range sale.Payments {
		if err := br.QueryRow().Scan(&sale.Payments[i].ID); err != nil {
			_ = br.Close()
			return Sale{}, fmt.Errorf("insert payment: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// GetSaleForUpdate loads a sale and locks its row until the transaction ends.
func (t *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	return getSale(ctx, t.tx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
}

// AppendPayment inserts a payment record and stores the new balance on the sale.
func (t *txRepo) AppendPayment(ctx context.Context, saleID int64, rec PaymentRecord, paidAmount decimal.Decimal, isCredit bool) (PaymentRecord, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_payments (sale_id, amount, method, paid_at, received_by, notes, reference)
VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7) RETURNING id`,
		saleID, rec.Amount, string(rec.Method), rec.PaidAt, rec.ReceivedBy, rec.Notes, rec.Reference).Scan(&rec.ID)
	if err != nil {
		return PaymentRecord{}, err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET paid_amount = $2, is_credit = $3, updated_at = $4 WHERE id = $1`,
		saleID, paidAmount, isCredit, rec.PaidAt)
	if err != nil {
		if db.IsCheckViolation(err) {
			return PaymentRecord{}, ErrOverPayment
		}
		return PaymentRecord{}, err
	}
	if tag.RowsAffected() == 0 {
		return PaymentRecord{}, ErrSaleNotFound
	}
	return rec, nil
}

// UpdateStatus moves a sale to status.
func (t *txRepo) UpdateStatus(ctx context.Context, saleID int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2, updated_at = NOW() WHERE id = $1`, saleID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

// ClaimIdempotencyKey records a payment request key for saleID in the same transaction as
// the payment. Keys are scoped per sale.
func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, saleID int64, key string) error {
	return shared.ClaimIdempotencyKey(ctx, t.tx, key, fmt.Sprintf("%s:%d", idempotencyModule, saleID))
}

// ============================================================================
// HELPERS
// ============================================================================

// FormatInvoiceNumber renders the invoice number for sequence value seq.
func FormatInvoiceNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%06d", at.UTC().Format("0601"), seq%1_000_000)
}

func getSale(ctx context.Context, q db.DBTX, query string, id int64) (Sale, error) {
	sale, err := scanSale(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return Sale{}, err
	}
	sales := []Sale{sale}
	if err := loadChildren(ctx, q, sales); err != nil {
		return Sale{}, err
	}
	return sales[0], nil
}

func querySales(ctx context.Context, q db.DBTX, query string, args ...any) ([]Sale, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadChildren fills items and payments for sales with two queries.
func loadChildren(ctx context.Context, q db.DBTX, sales []Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]int64, len(sales))
	index := make(map[int64]int, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
		index[s.ID] = i
	}

	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, product_name, quantity, price
FROM sale_items WHERE sale_id = ANY($1) ORDER BY sale_id, id`, ids)
	if err != nil {
		return fmt.Errorf("load sale items: %w", err)
	}
	for rows.Next() {
		var it LineItem
		var saleID int64
		if err := rows.Scan(&it.ID, &saleID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			rows.Close()
			return err
		}
		i := index[saleID]
		sales[i].Items = append(sales[i].Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.Query(ctx, `SELECT id, sale_id, amount, method, paid_at, COALESCE(received_by, 0), notes, reference
FROM sale_payments WHERE sale_id = ANY($1) ORDER BY sale_id, paid_at, id`, ids)
	if err != nil {
		return fmt.Errorf("load payments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p PaymentRecord
		var saleID int64
		var method string
		if err := rows.Scan(&p.ID, &saleID, &p.Amount, &method, &p.PaidAt, &p.ReceivedBy, &p.Notes, &p.Reference); err != nil {
			return err
		}
		p.Method = PaymentMethod(method)
		i := index[saleID]
		sales[i].Payments = append(sales[i].Payments, p)
	}
	return rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s          Sale
		customerID *int64
		sellerID   *int64
		method     string
		status     string
	)
	err := row.Scan(&s.ID, &s.InvoiceNumber, &customerID, &s.CustomerName, &s.Subtotal, &s.Discount, &s.Tax,
		&s.Total, &s.GrandTotal, &s.IsCredit, &method, &s.PaidAmount, &sellerID, &s.SellerName, &s.SaleDate,
		&s.Notes, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Sale{}, err
	}
	s.CustomerID = customerID
	if sellerID != nil {
		s.SellerID = *sellerID
	}
	s.PaymentMethod = PaymentMethod(method)
	s.Status = Status(status)
	return s, nil
}
