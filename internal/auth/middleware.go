package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/kassa/internal/platform/httpx"
	"github.com/odyssey-erp/kassa/internal/shared"
	"github.com/odyssey-erp/kassa/internal/users"
)

type sessionKey struct{}

// TokenResolver is the part of Service the middleware needs.
type TokenResolver interface {
	ResolveToken(ctx context.Context, raw string) (users.User, Claims, error)
}

// Middleware authenticates bearer tokens.
type Middleware struct {
	resolver TokenResolver
	logger   *slog.Logger
}

// NewMiddleware constructs Middleware.
func NewMiddleware(resolver TokenResolver, logger *slog.Logger) *Middleware {
	return &Middleware{resolver: resolver, logger: logger}
}

// Require rejects requests without a valid bearer token and stores the actor otherwise.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, ErrInvalidToken)
			return
		}
		ctx, err := m.authenticate(r.Context(), raw)
		if err != nil {
			if m.logger != nil {
				m.logger.Debug("bearer token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.RespondErrorLogged(w, r, m.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional stores the actor when a valid token is present and passes anonymous
// requests through unchanged.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := bearerToken(r); ok {
			if ctx, err := m.authenticate(r.Context(), raw); err == nil {
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) authenticate(ctx context.Context, raw string) (context.Context, error) {
	user, claims, err := m.resolver.ResolveToken(ctx, raw)
	if err != nil {
		return ctx, err
	}
	ctx = shared.ContextWithActor(ctx, user.Actor())
	return context.WithValue(ctx, sessionKey{}, claims.ID), nil
}

// SessionIDFromContext returns the token id of the authenticated request.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
