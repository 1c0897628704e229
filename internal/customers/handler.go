package customers

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
	List(ctx context.Context, search string, page shared.PageRequest) ([]Customer, int, error)
	Detail(ctx context.Context, id int64) (Detail, error)
	Create(ctx context.Context, req CreateCustomerRequest, actor shared.Actor) (Customer, error)
	Update(ctx context.Context, id int64, req UpdateCustomerRequest, actor shared.Actor) (Customer, error)
	Delete(ctx context.Context, id int64, actor shared.Actor, password string) error
}

// Handler exposes customer endpoints.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers customer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Post("/{id}/delete", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.PageFromRequest(r)
	items, total, err := h.service.List(r.Context(), r.URL.Query().Get("search"), page)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Customer]{Data: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	c, err := h.service.Create(r.Context(), req, actor)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateCustomerRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	c, err := h.service.Update(r.Context(), id, req, actor)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
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
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "customer deleted"})
}
