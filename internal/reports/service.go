package reports

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/kassa/internal/platform/cache"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// TopProductsLimit is how many products the ranking returns.
const TopProductsLimit = 5

// RepositoryPort exposes the aggregate queries.
type RepositoryPort interface {
	CountProducts(ctx context.Context) (int, error)
	CountLowStock(ctx context.Context) (int, error)
	CountCustomers(ctx context.Context) (int, error)
	SalesTotals(ctx context.Context) (Dashboard, error)
	SalesByMonth(ctx context.Context, year int) ([]MonthlySales, error)
	TopProducts(ctx context.Context, limit int) ([]TopProduct, error)
	ProductStats(ctx context.Context, from, to time.Time) (ProductStats, error)
	SalesStats(ctx context.Context, from, to time.Time) (SalesStats, error)
	SalaryStats(ctx context.Context, from, to time.Time) (SalaryStats, error)
	BorrowStats(ctx context.Context, from, to time.Time) (BorrowStats, error)
	ExpenseStats(ctx context.Context, from, to time.Time) (ExpenseStats, error)
}

// Cache is the JSON cache the service reads through.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Service coordinates report queries with the cache layer.
type Service struct {
	repo  RepositoryPort
	cache Cache
	now   func() time.Time
}

// NewService wires a repository with a cache. A nil cache reads straight through.
func NewService(repo RepositoryPort, c Cache) *Service {
	if c == nil {
		c = cache.NewVersioned(nil, "reports", 0)
	}
	return &Service{repo: repo, cache: c, now: time.Now}
}

// Dashboard returns the headline counts.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var out Dashboard
	err := s.cached(ctx, &out, s.buildDashboard, "dashboard")
	return out, err
}

// SalesByMonth returns completed sales per month of year. Zero means the current year.
func (s *Service) SalesByMonth(ctx context.Context, year int) ([]MonthlySales, error) {
	if year == 0 {
		year = s.now().Year()
	}
	var out []MonthlySales
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		rows, err := s.repo.SalesByMonth(ctx, year)
		if rows == nil {
			rows = []MonthlySales{}
		}
		return rows, err
	}, "sales_by_month", strconv.Itoa(year))
	return out, err
}

// TopProducts returns the best sellers by units.
func (s *Service) TopProducts(ctx context.Context) ([]TopProduct, error) {
	var out []TopProduct
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		rows, err := s.repo.TopProducts(ctx, TopProductsLimit)
		if rows == nil {
			rows = []TopProduct{}
		}
		return rows, err
	}, "top_products")
	return out, err
}

// MonthStatistic builds the close-out sheet for year/month.
func (s *Service) MonthStatistic(ctx context.Context, year, month int) (MonthStatistic, error) {
	if month < 1 || month > 12 {
		return MonthStatistic{}, shared.FieldError("month", "must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return MonthStatistic{}, shared.FieldError("year", "must be between 2000 and 2100")
	}
	var out MonthStatistic
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.buildMonth(ctx, year, month)
	}, "statistic", strconv.Itoa(year), strconv.Itoa(month))
	return out, err
}

func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func (s *Service) buildDashboard(ctx context.Context) (any, error) {
	var (
		d         Dashboard
		sales     Dashboard
		products  int
		lowStock  int
		customers int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.repo.CountProducts(ctx)
		return err
	})
	g.Go(func() (err error) {
		sales, err = s.repo.SalesTotals(ctx)
		return err
	})
	g.Go(func() (err error) {
		lowStock, err = s.repo.CountLowStock(ctx)
		return err
	})
	g.Go(func() (err error) {
		customers, err = s.repo.CountCustomers(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	d.TotalProducts = products
	d.TotalSales = sales.TotalSales
	d.TotalRevenue = sales.TotalRevenue
	d.LowStockItems = lowStock
	d.TotalCustomers = customers
	return d, nil
}

func (s *Service) buildMonth(ctx context.Context, year, month int) (MonthStatistic, error) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	out := MonthStatistic{Year: year, Month: month}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Products, err = s.repo.ProductStats(ctx, from, to)
		return err
	})
	g.Go(func() (err error) {
		out.Sales, err = s.repo.SalesStats(ctx, from, to)
		return err
	})
	g.Go(func() (err error) {
		out.Salary, err = s.repo.SalaryStats(ctx, from, to)
		return err
	})
	g.Go(func() (err error) {
		out.Borrow, err = s.repo.BorrowStats(ctx, from, to)
		return err
	})
	g.Go(func() (err error) {
		out.Expenses, err = s.repo.ExpenseStats(ctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return MonthStatistic{}, err
	}
	out.Sales.Credit = out.Sales.Total.Sub(out.Sales.Paid)
	out.Borrow.Remaining = out.Borrow.Total.Sub(out.Borrow.Paid)
	return out, nil
}
