package payroll

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kassa/internal/employees"
	"github.com/odyssey-erp/kassa/internal/shared"
)

type memoryRepo struct {
	rows       map[int64]Salary
	nextID     int64
	lastFilter ListFilter
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Salary, error) {
	r.lastFilter = filter
	var out []Salary
	for _, s := range r.rows {
		switch {
		case filter.Year != 0 && s.Year != filter.Year:
			continue
		case filter.Month != 0 && s.Month != filter.Month:
			continue
		case filter.EmployeeID != nil && (s.Employee.ID == nil || *s.Employee.ID != *filter.EmployeeID):
			continue
		case filter.PaidFrom != nil && s.PaymentDate.Before(*filter.PaidFrom):
			continue
		case filter.PaidTo != nil && !s.PaymentDate.Before(*filter.PaidTo):
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Salary, error) {
	s, ok := r.rows[id]
	if !ok {
		return Salary{}, ErrSalaryNotFound
	}
	return s, nil
}

func (r *memoryRepo) Create(ctx context.Context, s Salary) (Salary, error) {
	r.nextID++
	s.ID = r.nextID
	r.rows[s.ID] = s
	return s, nil
}

func (r *memoryRepo) Update(ctx context.Context, s Salary) (Salary, error) {
	if _, ok := r.rows[s.ID]; !ok {
		return Salary{}, ErrSalaryNotFound
	}
	r.rows[s.ID] = s
	return s, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.rows[id]; !ok {
		return ErrSalaryNotFound
	}
	delete(r.rows, id)
	return nil
}

type stubEmployees map[int64]employees.Employee

func (s stubEmployees) Get(ctx context.Context, id int64) (employees.Employee, error) {
	e, ok := s[id]
	if !ok {
		return employees.Employee{}, employees.ErrEmployeeNotFound
	}
	return e, nil
}

type stubVerifier struct{}

func (stubVerifier) VerifyActor(ctx context.Context, actorID int64, secret string) error {
	if secret != "pa55word" {
		return shared.ErrInvalidCredentials
	}
	return nil
}

var (
	actor = shared.Actor{ID: 3, Role: shared.RoleAdmin}
	today = time.Date(2024, 6, 28, 10, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService() (*Service, *memoryRepo) {
	repo := &memoryRepo{rows: map[int64]Salary{}}
	staff := stubEmployees{1: {ID: 1, FirstName: "Dilnoza", Position: "Accountant"}}
	svc := NewService(repo, staff, stubVerifier{}, nil)
	svc.now = func() time.Time { return today }
	return svc, repo
}

func TestNetSalary(t *testing.T) {
	cases := []struct {
		amount, bonus, deductions, want string
	}{
		{"1000", "0", "0", "1000"},
		{"1000", "250.5", "100", "1150.5"},
		{"500", "0", "700", "-200"},
		{"0.105", "0.1", "0", "0.21"},
	}
	for _, tc := range cases {
		got := NetSalary(dec(tc.amount), dec(tc.bonus), dec(tc.deductions))
		assert.True(t, got.Equal(dec(tc.want)), "%s+%s-%s = %s", tc.amount, tc.bonus, tc.deductions, got)
	}
}

func TestCreateSnapshotsEmployee(t *testing.T) {
	svc, _ := newService()
	id := int64(1)

	s, err := svc.Create(context.Background(), SalaryInput{
		EmployeeID: &id, Month: 6, Year: 2024,
		Amount: dec("4000000"), Bonus: dec("500000"), Deductions: dec("120000"),
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, "Dilnoza", s.Employee.FirstName)
	assert.Equal(t, "Accountant", s.Employee.Position)
	assert.True(t, s.NetSalary.Equal(dec("4380000")))
	assert.Equal(t, today, s.PaymentDate)
	assert.Equal(t, actor.ID, s.CreatedBy)
}

func TestCreateRequiresEmployee(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, SalaryInput{Month: 1, Year: 2024, Amount: dec("1")}, actor)
	require.ErrorIs(t, err, shared.ErrValidation)

	missing := int64(99)
	_, err = svc.Create(ctx, SalaryInput{EmployeeID: &missing, Month: 1, Year: 2024}, actor)
	require.ErrorIs(t, err, employees.ErrEmployeeNotFound)

	s, err := svc.Create(ctx, SalaryInput{FirstName: "Temp", Position: "Loader", Month: 1, Year: 2024, Amount: dec("10")}, actor)
	require.NoError(t, err)
	assert.Nil(t, s.Employee.ID)
}

func TestUpdateRecomputesNet(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	paid := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	s, err := svc.Create(ctx, SalaryInput{FirstName: "A", Position: "B", Month: 6, Year: 2024, Amount: dec("100"), PaymentDate: &paid}, actor)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, s.ID, SalaryInput{FirstName: "A", Position: "B", Month: 6, Year: 2024, Amount: dec("100"), Deductions: dec("30")}, actor)
	require.NoError(t, err)
	assert.True(t, updated.NetSalary.Equal(dec("70")))
	assert.Equal(t, paid, updated.PaymentDate)
}

func TestListByPaymentMonthDefaultsToCurrentYear(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()
	for _, d := range []time.Time{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC),
	} {
		_, err := svc.Create(ctx, SalaryInput{FirstName: "A", Position: "B", Month: 3, Year: d.Year(), Amount: dec("1"), PaymentDate: &d}, actor)
		require.NoError(t, err)
	}

	got, err := svc.List(ctx, ListFilter{PaymentMonth: 3})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NotNil(t, repo.lastFilter.PaidFrom)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *repo.lastFilter.PaidFrom)

	_, err = svc.List(ctx, ListFilter{PaymentMonth: 13})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestForPeriodAndEmployee(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	id := int64(1)
	_, err := svc.Create(ctx, SalaryInput{EmployeeID: &id, Month: 5, Year: 2024, Amount: dec("1")}, actor)
	require.NoError(t, err)
	_, err = svc.Create(ctx, SalaryInput{FirstName: "X", Position: "Y", Month: 6, Year: 2024, Amount: dec("1")}, actor)
	require.NoError(t, err)

	may, err := svc.ForPeriod(ctx, 2024, 5)
	require.NoError(t, err)
	assert.Len(t, may, 1)

	hist, err := svc.ForEmployee(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	_, err = svc.ForPeriod(ctx, 2024, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteRequiresPassword(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()
	s, err := svc.Create(ctx, SalaryInput{FirstName: "A", Position: "B", Month: 6, Year: 2024, Amount: dec("1")}, actor)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, s.ID, actor, "nope"), shared.ErrUnauthorized)
	require.NoError(t, svc.Delete(ctx, s.ID, actor, "pa55word"))
	assert.Empty(t, repo.rows)
}
