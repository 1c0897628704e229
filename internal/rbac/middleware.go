// Package rbac gates routes by the role carried on the authenticated actor.
package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/kassa/internal/platform/httpx"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// Middleware wires role authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAuthenticated rejects requests without an actor in context.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.ActorFromContext(r.Context()); !ok {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current actor holds at least one of the roles.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	normalized := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if len(normalized) == 0 || hasAnyRole(actor.Role, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.Int64("user_id", actor.ID),
					slog.String("role", actor.Role),
					slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}

// RequireAdmin is RequireAny(shared.RoleAdmin).
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return m.RequireAny(shared.RoleAdmin)
}

func normalizeRoles(roles []string) []string {
	unique := make(map[string]struct{}, len(roles))
	normalized := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" {
			continue
		}
		if _, dup := unique[r]; dup {
			continue
		}
		unique[r] = struct{}{}
		normalized = append(normalized, r)
	}
	return normalized
}

func hasAnyRole(granted string, required []string) bool {
	granted = strings.ToLower(granted)
	for _, r := range required {
		if r == granted {
			return true
		}
	}
	return false
}
