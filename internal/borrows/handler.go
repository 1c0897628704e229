package borrows

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kassa/internal/platform/httpx"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// ServicePort is the handler's view of Service.
type ServicePort interface {
	List(ctx context.Context) ([]Borrow, error)
	Get(ctx context.Context, id int64) (Borrow, error)
	Create(ctx context.Context, in BorrowInput, actor shared.Actor) (Borrow, error)
	Update(ctx context.Context, id int64, in BorrowInput, actor shared.Actor) (Borrow, error)
	MarkReturned(ctx context.Context, id int64, actor shared.Actor) (Borrow, error)
	AddPayment(ctx context.Context, id int64, in PaymentInput, actor shared.Actor) (Borrow, error)
	Delete(ctx context.Context, id int64, actor shared.Actor) error
}

// Handler exposes borrow endpoints.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers borrow routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Patch("/{id}/return", h.markReturned)
	r.Patch("/{id}/partial-payment", h.addPayment)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []Borrow{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	h.respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in BorrowInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	b, err := h.service.Create(r.Context(), in, actor)
	h.respond(w, r, http.StatusCreated, b, err)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in BorrowInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	b, err := h.service.Update(r.Context(), id, in, actor)
	h.respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) markReturned(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	b, err := h.service.MarkReturned(r.Context(), id, actor)
	h.respond(w, r, http.StatusOK, b, err)
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in PaymentInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	b, err := h.service.AddPayment(r.Context(), id, in, actor)
	h.respond(w, r, http.StatusOK, b, err)
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
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "borrow record deleted"})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, b Borrow, err error) {
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, status, b)
}
