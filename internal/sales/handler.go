package sales

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kassa/internal/platform/httpx"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// IdempotencyHeader carries the client key that de-duplicates payment retries.
const IdempotencyHeader = "Idempotency-Key"

// ServicePort is the part of Service the handler depends on.
type ServicePort interface {
	Get(ctx context.Context, id int64) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	Recent(ctx context.Context) ([]Sale, error)
	CustomerPayments(ctx context.Context, customerID int64, from, to *time.Time) ([]CustomerPayment, error)
	Summary(ctx context.Context) (Summary, error)
	Create(ctx context.Context, req CreateSaleRequest, seller shared.Actor) (Sale, error)
	AddPayment(ctx context.Context, saleID int64, req PaymentRequest, actor shared.Actor, idempotencyKey string) (PaymentResult, error)
	Cancel(ctx context.Context, saleID int64, actor shared.Actor, password string) (Sale, error)
	Refund(ctx context.Context, saleID int64, actor shared.Actor, password string) (Sale, error)
}

// Handler manages sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/recent", h.recent)
	r.Get("/summary", h.summary)
	r.Get("/customer/{customerId}/payments", h.customerPayments)
	r.Get("/{id}", h.show)
	r.Put("/{id}/pay", h.pay)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/refund", h.refund)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Page: shared.PageFromRequest(r)}
	if raw := q.Get("customerId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.FieldError("customerId", "must be an integer"))
			return
		}
		filter.CustomerID = &id
	}
	if raw := q.Get("isCredit"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, shared.FieldError("isCredit", "must be true or false"))
			return
		}
		filter.IsCredit = &v
	}
	var err error
	if filter.From, err = parseDate(q.Get("startDate"), "startDate", false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = parseDate(q.Get("endDate"), "endDate", true); err != nil {
		httpx.RespondError(w, err)
		return
	}

	sales, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	if sales == nil {
		sales = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Sale]{
		Data:       sales,
		Pagination: shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total),
	})
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	sales, err := h.service.Recent(r.Context())
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	if sales == nil {
		sales = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"count": len(sales), "data": sales})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	seller, _ := shared.ActorFromContext(r.Context())
	sale, err := h.service.Create(r.Context(), req, seller)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.AddPayment(r.Context(), id, req, actor, r.Header.Get(IdempotencyHeader))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.service.Cancel)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.service.Refund)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, shared.Actor, string) (Sale, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var creds shared.Credentials
	if err := httpx.DecodeAndValidate(r, &creds); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	sale, err := op(r.Context(), id, actor, creds.Password)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) customerPayments(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.IDParam(r, "customerId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := parseDate(r.URL.Query().Get("startDate"), "startDate", false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("endDate"), "endDate", true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.CustomerPayments(r.Context(), customerID, from, to)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	if payments == nil {
		payments = []CustomerPayment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"count": len(payments), "data": payments})
}

// parseDate accepts RFC 3339 timestamps or YYYY-MM-DD dates. A bare end date covers
// the whole day.
func parseDate(raw, field string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, shared.FieldError(field, "must be a date (YYYY-MM-DD)")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
