package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kassa/internal/platform/httpx"
	"github.com/odyssey-erp/kassa/internal/shared"
	"github.com/odyssey-erp/kassa/internal/users"
)

// ServicePort is the handler's view of Service.
type ServicePort interface {
	Register(ctx context.Context, req RegisterRequest, actor *shared.Actor, meta ClientMeta) (Session, error)
	Login(ctx context.Context, req LoginRequest, meta ClientMeta) (Session, error)
	Me(ctx context.Context, id int64) (users.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    ServicePort
	middleware *Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service ServicePort, middleware *Middleware) *Handler {
	return &Handler{logger: logger, service: service, middleware: middleware}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.middleware.Optional).Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.middleware.Require)
		r.Get("/me", h.handleMe)
		r.Post("/logout", h.handleLogout)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actor *shared.Actor
	if a, ok := shared.ActorFromContext(r.Context()); ok {
		actor = &a
	}
	session, err := h.service.Register(r.Context(), req, actor, clientMeta(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	session, err := h.service.Login(r.Context(), req, clientMeta(r))
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	user, err := h.service.Me(r.Context(), actor.ID)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), SessionIDFromContext(r.Context())); err != nil {
		h.logger.Warn("remove session", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientMeta(r *http.Request) ClientMeta {
	return ClientMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
