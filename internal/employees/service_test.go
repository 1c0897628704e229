package employees

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kassa/internal/shared"
)

type memoryRepo struct {
	rows   map[int64]Employee
	nextID int64
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Employee, error) {
	var out []Employee
	for _, e := range r.rows {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Employee, error) {
	e, ok := r.rows[id]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, nil
}

func (r *memoryRepo) Create(ctx context.Context, e Employee) (Employee, error) {
	for _, existing := range r.rows {
		if existing.Email == e.Email {
			return Employee{}, ErrDuplicateEmail
		}
	}
	r.nextID++
	e.ID = r.nextID
	r.rows[e.ID] = e
	return e, nil
}

func (r *memoryRepo) Update(ctx context.Context, e Employee) (Employee, error) {
	if _, ok := r.rows[e.ID]; !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	r.rows[e.ID] = e
	return e, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.rows[id]; !ok {
		return ErrEmployeeNotFound
	}
	delete(r.rows, id)
	return nil
}

type stubVerifier struct{}

func (stubVerifier) VerifyActor(ctx context.Context, actorID int64, secret string) error {
	if secret != "pa55word" {
		return shared.ErrInvalidCredentials
	}
	return nil
}

var actor = shared.Actor{ID: 1, Role: shared.RoleAdmin}

func newService() (*Service, *memoryRepo) {
	repo := &memoryRepo{rows: map[int64]Employee{}}
	svc := NewService(repo, stubVerifier{}, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 20, 13, 45, 0, 0, time.UTC) }
	return svc, repo
}

func input(email string) EmployeeInput {
	return EmployeeInput{
		FirstName:  " Aziz ",
		LastName:   "Karimov",
		Position:   "Cashier",
		Department: "Store",
		Phone:      "+998901234567",
		Email:      email,
		Salary:     decimal.RequireFromString("3500000.456"),
	}
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newService()

	e, err := svc.Create(context.Background(), input("Aziz@Kassa.Local"), actor)
	require.NoError(t, err)
	assert.Equal(t, "Aziz", e.FirstName)
	assert.Equal(t, "aziz@kassa.local", e.Email)
	assert.Equal(t, StatusActive, e.Status)
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), e.HireDate)
	assert.True(t, e.Salary.Equal(decimal.RequireFromString("3500000.46")))
	assert.Equal(t, "Aziz Karimov", e.FullName())
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), input("a@kassa.local"), actor)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), input("a@kassa.local"), actor)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateKeepsHireDateAndStatus(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	hired := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)
	in := input("a@kassa.local")
	in.HireDate = &hired
	in.Status = StatusOnLeave
	e, err := svc.Create(ctx, in, actor)
	require.NoError(t, err)

	upd := input("a@kassa.local")
	upd.Position = "Manager"
	got, err := svc.Update(ctx, e.ID, upd, actor)
	require.NoError(t, err)
	assert.Equal(t, "Manager", got.Position)
	assert.Equal(t, hired, got.HireDate)
	assert.Equal(t, StatusOnLeave, got.Status)

	_, err = svc.Update(ctx, 404, upd, actor)
	require.ErrorIs(t, err, ErrEmployeeNotFound)
}

func TestDeleteRequiresPassword(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()
	e, err := svc.Create(ctx, input("a@kassa.local"), actor)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, e.ID, actor, "wrong"), shared.ErrUnauthorized)
	assert.Len(t, repo.rows, 1)

	require.NoError(t, svc.Delete(ctx, e.ID, actor, "pa55word"))
	assert.Empty(t, repo.rows)
	require.ErrorIs(t, svc.Delete(ctx, e.ID, actor, "pa55word"), shared.ErrNotFound)
}
