package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/kassa/internal/auth"
	"github.com/odyssey-erp/kassa/internal/borrows"
	"github.com/odyssey-erp/kassa/internal/customers"
	"github.com/odyssey-erp/kassa/internal/employees"
	"github.com/odyssey-erp/kassa/internal/expenses"
	"github.com/odyssey-erp/kassa/internal/inventory"
	"github.com/odyssey-erp/kassa/internal/observability"
	"github.com/odyssey-erp/kassa/internal/payroll"
	"github.com/odyssey-erp/kassa/internal/platform/httpx"
	"github.com/odyssey-erp/kassa/internal/reports"
	"github.com/odyssey-erp/kassa/internal/sales"
	"github.com/odyssey-erp/kassa/internal/users"
	"github.com/odyssey-erp/kassa/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	AuthMiddleware *auth.Middleware

	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	CustomersHandler *customers.Handler
	EmployeesHandler *employees.Handler
	PayrollHandler   *payroll.Handler
	BorrowsHandler   *borrows.Handler
	ExpensesHandler  *expenses.Handler
	ReportsHandler   *reports.Handler
	JobHandler       *jobs.Handler

	Database Pinger
	Metrics  *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Database.Ping(ctx); err != nil {
				params.Logger.Warn("health check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", params.AuthHandler.MountRoutes)

		api.Group(func(p chi.Router) {
			p.Use(params.AuthMiddleware.Require)

			if params.UsersHandler != nil {
				p.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.InventoryHandler != nil {
				params.InventoryHandler.MountRoutes(p)
			}
			if params.SalesHandler != nil {
				p.Route("/sales", params.SalesHandler.MountRoutes)
			}
			if params.CustomersHandler != nil {
				p.Route("/customers", params.CustomersHandler.MountRoutes)
			}
			if params.EmployeesHandler != nil {
				p.Route("/employees", params.EmployeesHandler.MountRoutes)
			}
			if params.PayrollHandler != nil {
				p.Route("/salaries", params.PayrollHandler.MountRoutes)
			}
			if params.BorrowsHandler != nil {
				p.Route("/borrow", params.BorrowsHandler.MountRoutes)
			}
			if params.ExpensesHandler != nil {
				p.Route("/expend", params.ExpensesHandler.MountRoutes)
			}
			if params.ReportsHandler != nil {
				p.Route("/stats", params.ReportsHandler.MountStats)
				p.Route("/statistic", params.ReportsHandler.MountStatistic)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.Method+" "+r.URL.Path)
	})
	return r
}
