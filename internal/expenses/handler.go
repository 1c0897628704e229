package expenses

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kassa/internal/platform/httpx"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// ServicePort is the handler's view of Service.
type ServicePort interface {
	List(ctx context.Context, filter ListFilter) ([]Expenditure, error)
	Get(ctx context.Context, id int64) (Expenditure, error)
	Create(ctx context.Context, in Input, actor shared.Actor) (Expenditure, error)
	Update(ctx context.Context, id int64, in Input, actor shared.Actor) (Expenditure, error)
	Delete(ctx context.Context, id int64, actor shared.Actor) error
}

// Handler exposes expenditure endpoints.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers expenditure routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Category: q.Get("category")}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, shared.FieldError(p.key, "must be YYYY-MM-DD"))
			return
		}
		if p.key == "to" {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		*p.dst = &t
	}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []Expenditure{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	e, err := h.service.Create(r.Context(), in, actor)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Input
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	e, err := h.service.Update(r.Context(), id, in, actor)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id, actor); err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "expenditure deleted"})
}
