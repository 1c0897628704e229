package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the aggregate queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountProducts counts catalog entries.
func (r *Repository) CountProducts(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

// CountLowStock counts products at or under their reorder threshold.
func (r *Repository) CountLowStock(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE quantity <= min_quantity`).Scan(&n)
	return n, err
}

// CountCustomers counts customers.
func (r *Repository) CountCustomers(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n)
	return n, err
}

// SalesTotals counts completed sales and sums their grand totals.
func (r *Repository) SalesTotals(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(grand_total), 0) FROM sales WHERE status = 'completed'`).
		Scan(&d.TotalSales, &d.TotalRevenue)
	return d, err
}

// SalesByMonth groups completed sales of year by calendar month.
func (r *Repository) SalesByMonth(ctx context.Context, year int) ([]MonthlySales, error) {
	rows, err := r.pool.Query(ctx, `SELECT EXTRACT(MONTH FROM sale_date)::int AS m, COUNT(*), COALESCE(SUM(grand_total), 0)
FROM sales
WHERE status = 'completed' AND EXTRACT(YEAR FROM sale_date)::int = $1
GROUP BY m ORDER BY m`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthlySales
	for rows.Next() {
		var m MonthlySales
		if err := rows.Scan(&m.Month, &m.TotalSales, &m.TotalRevenue); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TopProducts ranks products by units sold on completed sales.
func (r *Repository) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.sku, SUM(si.quantity)::bigint AS sold, SUM(si.quantity * si.price)
FROM sale_items si
JOIN sales s ON s.id = si.sale_id AND s.status = 'completed'
JOIN products p ON p.id = si.product_id
GROUP BY p.id, p.name, p.sku
ORDER BY sold DESC, p.id
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopProduct
	for rows.Next() {
		var tp TopProduct
		if err := rows.Scan(&tp.ProductID, &tp.Name, &tp.SKU, &tp.TotalSold, &tp.TotalRevenue); err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

// ProductStats values products created in [from, to).
func (r *Repository) ProductStats(ctx context.Context, from, to time.Time) (ProductStats, error) {
	var s ProductStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(price * quantity), 0)
FROM products WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&s.Count, &s.StockValue)
	return s, err
}

// SalesStats sums completed sales dated in [from, to).
func (r *Repository) SalesStats(ctx context.Context, from, to time.Time) (SalesStats, error) {
	var s SalesStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(grand_total), 0), COALESCE(SUM(paid_amount), 0)
FROM sales WHERE status = 'completed' AND sale_date >= $1 AND sale_date < $2`, from, to).Scan(&s.Count, &s.Total, &s.Paid)
	return s, err
}

// SalaryStats sums net salaries paid in [from, to).
func (r *Repository) SalaryStats(ctx context.Context, from, to time.Time) (SalaryStats, error) {
	var s SalaryStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(net_salary), 0)
FROM salaries WHERE payment_date >= $1 AND payment_date < $2`, from, to).Scan(&s.Count, &s.Total)
	return s, err
}

// BorrowStats sums lender records created in [from, to).
func (r *Repository) BorrowStats(ctx context.Context, from, to time.Time) (BorrowStats, error) {
	var s BorrowStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
COALESCE(SUM((SELECT COALESCE(SUM(i.price * i.quantity), 0) FROM borrow_items i WHERE i.borrow_id = b.id)), 0),
COALESCE(SUM((SELECT COALESCE(SUM(p.amount), 0) FROM borrow_payments p WHERE p.borrow_id = b.id)), 0)
FROM borrows b WHERE b.created_at >= $1 AND b.created_at < $2`, from, to).Scan(&s.Count, &s.Total, &s.Paid)
	return s, err
}

// ExpenseStats sums expenditures dated in [from, to).
func (r *Repository) ExpenseStats(ctx context.Context, from, to time.Time) (ExpenseStats, error) {
	var s ExpenseStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(price), 0)
FROM expenditures WHERE spent_on >= $1 AND spent_on < $2`, from, to).Scan(&s.Count, &s.Total)
	return s, err
}
