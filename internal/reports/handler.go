package reports

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kassa/internal/platform/httpx"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// ServicePort is the handler's view of Service.
type ServicePort interface {
	Dashboard(ctx context.Context) (Dashboard, error)
	SalesByMonth(ctx context.Context, year int) ([]MonthlySales, error)
	TopProducts(ctx context.Context) ([]TopProduct, error)
	MonthStatistic(ctx context.Context, year, month int) (MonthStatistic, error)
}

// Handler exposes the report endpoints.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountStats registers the dashboard routes.
func (h *Handler) MountStats(r chi.Router) {
	r.Get("/", h.dashboard)
	r.Get("/sales-by-month", h.salesByMonth)
	r.Get("/top-products", h.topProducts)
}

// MountStatistic registers the month close-out route.
func (h *Handler) MountStatistic(r chi.Router) {
	r.Get("/{year}/{month}", h.monthStatistic)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) salesByMonth(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, shared.FieldError("year", "must be a number"))
			return
		}
		year = v
	}
	rows, err := h.service.SalesByMonth(r.Context(), year)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) topProducts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.TopProducts(r.Context())
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) monthStatistic(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.RespondError(w, shared.FieldError("year", "must be a number"))
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		httpx.RespondError(w, shared.FieldError("month", "must be a number"))
		return
	}
	stat, err := h.service.MonthStatistic(r.Context(), year, month)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stat)
}
