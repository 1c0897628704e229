package payroll

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
	List(ctx context.Context, filter ListFilter) ([]Salary, error)
	ForPeriod(ctx context.Context, year, month int) ([]Salary, error)
	ForEmployee(ctx context.Context, employeeID int64) ([]Salary, error)
	Create(ctx context.Context, in SalaryInput, actor shared.Actor) (Salary, error)
	Update(ctx context.Context, id int64, in SalaryInput, actor shared.Actor) (Salary, error)
	Delete(ctx context.Context, id int64, actor shared.Actor, password string) error
}

// Handler exposes salary endpoints.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers salary routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/employee/{employeeId}", h.forEmployee)
	r.Get("/{year}/{month}", h.forPeriod)
	r.Put("/{id}", h.update)
	r.Post("/{id}/delete", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	var err error
	if filter.Year, err = optionalInt(q.Get("year"), "year"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Month, err = optionalInt(q.Get("month"), "month"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.PaymentMonth, err = optionalInt(q.Get("paymentMonth"), "paymentMonth"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.List(r.Context(), filter)
	h.respondList(w, r, items, err)
}

func (h *Handler) forPeriod(w http.ResponseWriter, r *http.Request) {
	year, err := httpx.IDParam(r, "year")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	month, err := httpx.IDParam(r, "month")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ForPeriod(r.Context(), int(year), int(month))
	h.respondList(w, r, items, err)
}

func (h *Handler) forEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "employeeId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ForEmployee(r.Context(), id)
	h.respondList(w, r, items, err)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in SalaryInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	s, err := h.service.Create(r.Context(), in, actor)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, s)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in SalaryInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	s, err := h.service.Update(r.Context(), id, in, actor)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.Delete(r.Context(), id, actor, creds.Password); err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "salary record deleted"})
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, items []Salary, err error) {
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []Salary{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func optionalInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, shared.FieldError(field, "must be a non-negative integer")
	}
	return v, nil
}
