package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kassa/internal/auth"
	"github.com/odyssey-erp/kassa/internal/expenses"
	"github.com/odyssey-erp/kassa/internal/observability"
	"github.com/odyssey-erp/kassa/internal/shared"
	"github.com/odyssey-erp/kassa/internal/users"
	_ "github.com/odyssey-erp/kassa/testing"
)

type tokenResolver struct{}

func (tokenResolver) ResolveToken(ctx context.Context, raw string) (users.User, auth.Claims, error) {
	if raw != "valid" {
		return users.User{}, auth.Claims{}, auth.ErrInvalidToken
	}
	return users.User{ID: 1, Name: "Ana", Role: shared.RoleAdmin, IsActive: true}, auth.Claims{}, nil
}

type noopAuthService struct{}

func (noopAuthService) Register(ctx context.Context, req auth.RegisterRequest, actor *shared.Actor, meta auth.ClientMeta) (auth.Session, error) {
	return auth.Session{}, nil
}

func (noopAuthService) Login(ctx context.Context, req auth.LoginRequest, meta auth.ClientMeta) (auth.Session, error) {
	return auth.Session{}, shared.ErrInvalidCredentials
}

func (noopAuthService) Me(ctx context.Context, id int64) (users.User, error) {
	return users.User{ID: id}, nil
}

func (noopAuthService) Logout(ctx context.Context, sessionID string) error { return nil }

type emptyExpenses struct{}

func (emptyExpenses) List(ctx context.Context, filter expenses.ListFilter) ([]expenses.Expenditure, error) {
	return nil, nil
}

func (emptyExpenses) Get(ctx context.Context, id int64) (expenses.Expenditure, error) {
	return expenses.Expenditure{}, expenses.ErrNotFound
}

func (emptyExpenses) Create(ctx context.Context, in expenses.Input, actor shared.Actor) (expenses.Expenditure, error) {
	return expenses.Expenditure{}, nil
}

func (emptyExpenses) Update(ctx context.Context, id int64, in expenses.Input, actor shared.Actor) (expenses.Expenditure, error) {
	return expenses.Expenditure{}, nil
}

func (emptyExpenses) Delete(ctx context.Context, id int64, actor shared.Actor) error { return nil }

type failingPinger struct{ err error }

func (p failingPinger) Ping(ctx context.Context) error { return p.err }

func newTestRouter(t *testing.T, db Pinger) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := auth.NewMiddleware(tokenResolver{}, logger)
	return NewRouter(RouterParams{
		Logger:          logger,
		Config:          &Config{AppEnv: "test", RateLimitPerMinute: 1000, CORSOrigins: []string{"http://shop.local"}},
		AuthMiddleware:  mw,
		AuthHandler:     auth.NewHandler(logger, noopAuthService{}, mw),
		ExpensesHandler: expenses.NewHandler(logger, emptyExpenses{}),
		Database:        db,
		Metrics:         observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	newTestRouter(t, failingPinger{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/expend/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/expend/", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Empty(t, items)
}

func TestLoginIsPublic(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(`{"email":"a@b.co","password":"secret1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/expend/", nil)
	req.Header.Set("Origin", "http://shop.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rec, req)
	assert.Equal(t, "http://shop.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteIsProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
