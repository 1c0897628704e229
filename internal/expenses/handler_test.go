package expenses

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kassa/internal/shared"
)

type memoryRepo struct {
	rows   map[int64]Expenditure
	nextID int64
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Expenditure, error) {
	var out []Expenditure
	for id := int64(1); id <= m.nextID; id++ {
		e, ok := m.rows[id]
		if !ok {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.From != nil && e.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Date.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Expenditure, error) {
	e, ok := m.rows[id]
	if !ok {
		return Expenditure{}, ErrNotFound
	}
	return e, nil
}

func (m *memoryRepo) Create(ctx context.Context, e Expenditure) (Expenditure, error) {
	m.nextID++
	e.ID = m.nextID
	m.rows[e.ID] = e
	return e, nil
}

func (m *memoryRepo) Update(ctx context.Context, e Expenditure) (Expenditure, error) {
	if _, ok := m.rows[e.ID]; !ok {
		return Expenditure{}, ErrNotFound
	}
	m.rows[e.ID] = e
	return e, nil
}

func (m *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.rows[id]; !ok {
		return ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

var fixedNow = time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)

func newTestRouter() (http.Handler, *memoryRepo) {
	repo := &memoryRepo{rows: map[int64]Expenditure{}}
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return fixedNow }
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithActor(req.Context(), shared.Actor{ID: 1, Role: shared.RoleAdmin})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api/expend", h.MountRoutes)
	return r, repo
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateDefaultsDate(t *testing.T) {
	r, repo := newTestRouter()

	rec := do(r, http.MethodPost, "/api/expend", `{"name":" Tea ","price":"12.345","category":"kitchen"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var got Expenditure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Tea", got.Name)
	assert.Equal(t, "12.35", got.Price.String())
	assert.Equal(t, fixedNow, repo.rows[got.ID].Date)
}

func TestCreateValidation(t *testing.T) {
	r, _ := newTestRouter()

	rec := do(r, http.MethodPost, "/api/expend", `{"name":"","price":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	errs, _ := problem["errors"].(map[string]any)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "price")
	assert.Contains(t, errs, "category")
}

func TestListFiltersAndUpdate(t *testing.T) {
	r, _ := newTestRouter()
	do(r, http.MethodPost, "/api/expend", `{"name":"Tea","price":5,"category":"kitchen","date":"2024-08-01T10:00:00Z"}`)
	do(r, http.MethodPost, "/api/expend", `{"name":"Fuel","price":40,"category":"transport","date":"2024-08-05T10:00:00Z"}`)

	rec := do(r, http.MethodGet, "/api/expend?category=kitchen", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Expenditure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Tea", list[0].Name)

	rec = do(r, http.MethodGet, "/api/expend?from=2024-08-02&to=2024-08-05", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Fuel", list[0].Name)

	rec = do(r, http.MethodGet, "/api/expend?from=08/02/2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPut, "/api/expend/2", `{"name":"Diesel","price":45,"category":"transport"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Expenditure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Diesel", updated.Name)
	assert.Equal(t, time.Date(2024, 8, 5, 10, 0, 0, 0, time.UTC), updated.Date)
}

func TestDeleteAndNotFound(t *testing.T) {
	r, _ := newTestRouter()
	do(r, http.MethodPost, "/api/expend", `{"name":"Tea","price":5,"category":"kitchen"}`)

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/expend/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/expend/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/expend/1", "").Code)
}
