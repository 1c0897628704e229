package customers

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kassa/internal/shared"
)

type memoryRepo struct {
	rows   map[int64]Customer
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]Customer)}
}

func (r *memoryRepo) List(ctx context.Context, search string, page shared.PageRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range r.rows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Customer, error) {
	c, ok := r.rows[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (r *memoryRepo) Create(ctx context.Context, c Customer) (Customer, error) {
	for _, existing := range r.rows {
		if existing.Phone == c.Phone {
			return Customer{}, ErrDuplicatePhone
		}
	}
	r.nextID++
	c.ID = r.nextID
	r.rows[c.ID] = c
	return c, nil
}

func (r *memoryRepo) Update(ctx context.Context, c Customer) (Customer, error) {
	if _, ok := r.rows[c.ID]; !ok {
		return Customer{}, ErrCustomerNotFound
	}
	r.rows[c.ID] = c
	return c, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.rows[id]; !ok {
		return ErrCustomerNotFound
	}
	delete(r.rows, id)
	return nil
}

type stubSales struct {
	credit map[int64][]CreditSale
	counts map[int64]int
}

func (s stubSales) CreditSalesForCustomer(ctx context.Context, id int64) ([]CreditSale, error) {
	return s.credit[id], nil
}

func (s stubSales) CountSalesForCustomer(ctx context.Context, id int64) (int, error) {
	return s.counts[id], nil
}

type stubVerifier struct{}

func (stubVerifier) VerifyActor(ctx context.Context, actorID int64, secret string) error {
	if secret != "pa55word" {
		return shared.ErrInvalidCredentials
	}
	return nil
}

var (
	admin  = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	seller = shared.Actor{ID: 2, Role: shared.RoleSeller}
)

func newTestService(sales stubSales) (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, sales, stubVerifier{}, nil), repo
}

func TestValidPhone(t *testing.T) {
	for _, phone := range []string{"+998901234567", "901234567", "123456789012345"} {
		assert.True(t, ValidPhone(phone), phone)
	}
	for _, phone := range []string{"12345678", "+99890-123-45-67", "1234567890123456", "phone"} {
		assert.False(t, ValidPhone(phone), phone)
	}
}

func TestCreateCustomerValidates(t *testing.T) {
	svc, _ := newTestService(stubSales{})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCustomerRequest{Name: "Ali", Phone: "12"}, seller)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "phone")

	c, err := svc.Create(ctx, CreateCustomerRequest{Name: " Ali ", Phone: "+998901234567", CreditLimit: decimal.NewFromInt(500)}, seller)
	require.NoError(t, err)
	assert.Equal(t, "Ali", c.Name)
	assert.Equal(t, seller.ID, c.CreatedBy)

	_, err = svc.Create(ctx, CreateCustomerRequest{Name: "Vali", Phone: "+998901234567"}, seller)
	require.ErrorIs(t, err, ErrDuplicatePhone)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestOnlyAdminChangesCreditLimit(t *testing.T) {
	svc, _ := newTestService(stubSales{})
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateCustomerRequest{Name: "Ali", Phone: "901234567", CreditLimit: decimal.NewFromInt(100)}, seller)
	require.NoError(t, err)

	limit := decimal.NewFromInt(900)
	_, err = svc.Update(ctx, c.ID, UpdateCustomerRequest{CreditLimit: &limit}, seller)
	require.ErrorIs(t, err, ErrCreditLimitAdminOnly)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	same := decimal.NewFromInt(100)
	name := "Ali Valiyev"
	updated, err := svc.Update(ctx, c.ID, UpdateCustomerRequest{Name: &name, CreditLimit: &same}, seller)
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	updated, err = svc.Update(ctx, c.ID, UpdateCustomerRequest{CreditLimit: &limit}, admin)
	require.NoError(t, err)
	assert.True(t, updated.CreditLimit.Equal(limit))
}

func TestDetailSumsRemainingDebt(t *testing.T) {
	svc, _ := newTestService(stubSales{credit: map[int64][]CreditSale{1: {
		{SaleID: 10, RemainingAmount: decimal.RequireFromString("40.50")},
		{SaleID: 11, RemainingAmount: decimal.RequireFromString("9.50")},
	}}})
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateCustomerRequest{Name: "Ali", Phone: "901234567"}, seller)
	require.NoError(t, err)

	detail, err := svc.Detail(ctx, 1)
	require.NoError(t, err)
	assert.True(t, detail.TotalDebt.Equal(decimal.NewFromInt(50)))
	assert.Len(t, detail.CreditSales, 2)

	raw, err := json.Marshal(detail)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "Ali", body["name"])
	assert.Equal(t, "50", body["totalDebt"])
	assert.Len(t, body["creditSales"], 2)
}

func TestAvailableCreditNeverNegative(t *testing.T) {
	c := Customer{CreditLimit: decimal.NewFromInt(100), CurrentDebt: decimal.NewFromInt(150)}
	assert.True(t, c.AvailableCredit().IsZero())
	c.CurrentDebt = decimal.NewFromInt(30)
	assert.True(t, c.AvailableCredit().Equal(decimal.NewFromInt(70)))
}

func TestDeleteCustomer(t *testing.T) {
	svc, repo := newTestService(stubSales{counts: map[int64]int{1: 2}})
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateCustomerRequest{Name: "Ali", Phone: "901234567"}, seller)
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateCustomerRequest{Name: "Vali", Phone: "901234568"}, seller)
	require.NoError(t, err)

	err = svc.Delete(ctx, 2, admin, "wrong")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	err = svc.Delete(ctx, 1, admin, "pa55word")
	require.ErrorIs(t, err, ErrHasSales)

	err = svc.Delete(ctx, 99, admin, "pa55word")
	require.ErrorIs(t, err, ErrCustomerNotFound)

	require.NoError(t, svc.Delete(ctx, 2, admin, "pa55word"))
	assert.Len(t, repo.rows, 1)
}
