package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kassa/internal/customers"
	"github.com/odyssey-erp/kassa/internal/inventory"
	"github.com/odyssey-erp/kassa/internal/platform/db"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// ============================================================================
// MEMORY STORE
// ============================================================================

type memoryStore struct {
	mu          sync.Mutex
	products    map[int64]inventory.Product
	sales       map[int64]Sale
	movements   []inventory.Movement
	keys        map[string]bool
	nextSaleID  int64
	nextPayID   int64
	invoiceSeq  int64
	commitErr   error
	insertCalls int
}

type memoryTx struct {
	store *memoryStore
}

func newMemoryStore(products ...inventory.Product) *memoryStore {
	s := &memoryStore{
		products: make(map[int64]inventory.Product),
		sales:    make(map[int64]Sale),
		keys:     make(map[string]bool),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func cloneSale(s Sale) Sale {
	s.Items = append([]LineItem(nil), s.Items...)
	s.Payments = append([]PaymentRecord(nil), s.Payments...)
	return s
}

// WithTx holds the store lock for the whole callback, which mirrors row locks taken
// with FOR UPDATE, and rolls back every change when fn fails.
func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := make(map[int64]inventory.Product, len(m.products))
	for id, p := range m.products {
		products[id] = p
	}
	sales := make(map[int64]Sale, len(m.sales))
	for id, s := range m.sales {
		sales[id] = cloneSale(s)
	}
	keys := make(map[string]bool, len(m.keys))
	for k, v := range m.keys {
		keys[k] = v
	}
	movements := len(m.movements)

	if err := fn(ctx, &memoryTx{store: m}); err != nil {
		m.products, m.sales, m.keys = products, sales, keys
		m.movements = m.movements[:movements]
		return err
	}
	if m.commitErr != nil {
		return fmt.Errorf("%w: %w", db.ErrCommitUnknown, m.commitErr)
	}
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return cloneSale(s), nil
}

func (m *memoryStore) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sale
	for _, s := range m.sales {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, cloneSale(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memoryStore) Recent(ctx context.Context, limit int) ([]Sale, error) {
	all, _, err := m.List(ctx, ListFilter{})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, err
}

func (m *memoryStore) CustomerPayments(ctx context.Context, customerID int64, from, to *time.Time) ([]CustomerPayment, error) {
	return nil, nil
}

func (m *memoryStore) Summary(ctx context.Context) (Summary, error) {
	return Summary{}, nil
}

func (m *memoryStore) quantity(id int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Quantity
}

func (tx *memoryTx) LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.Product, error) {
	out := make(map[int64]inventory.Product)
	for _, id := range ids {
		if p, ok := tx.store.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (tx *memoryTx) SetQuantities(ctx context.Context, quantities map[int64]int64) error {
	for id, qty := range quantities {
		p := tx.store.products[id]
		p.Quantity = qty
		tx.store.products[id] = p
	}
	return nil
}

func (tx *memoryTx) InsertMovements(ctx context.Context, movements []inventory.Movement) error {
	tx.store.movements = append(tx.store.movements, movements...)
	return nil
}

func (tx *memoryTx) NextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	tx.store.invoiceSeq++
	return FormatInvoiceNumber(at, tx.store.invoiceSeq), nil
}

func (tx *memoryTx) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	tx.store.insertCalls++
	tx.store.nextSaleID++
	sale.ID = tx.store.nextSaleID
	for i := range sale.Payments {
		tx.store.nextPayID++
		sale.Payments[i].ID = tx.store.nextPayID
	}
	tx.store.sales[sale.ID] = cloneSale(sale)
	return sale, nil
}

func (tx *memoryTx) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	s, ok := tx.store.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return cloneSale(s), nil
}

func (tx *memoryTx) AppendPayment(ctx context.Context, saleID int64, rec PaymentRecord, paidAmount decimal.Decimal, isCredit bool) (PaymentRecord, error) {
	s, ok := tx.store.sales[saleID]
	if !ok {
		return PaymentRecord{}, ErrSaleNotFound
	}
	if paidAmount.GreaterThan(s.GrandTotal) {
		return PaymentRecord{}, ErrOverPayment
	}
	tx.store.nextPayID++
	rec.ID = tx.store.nextPayID
	s.Payments = append(s.Payments, rec)
	s.PaidAmount = paidAmount
	s.IsCredit = isCredit
	tx.store.sales[saleID] = s
	return rec, nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, saleID int64, status Status) error {
	s, ok := tx.store.sales[saleID]
	if !ok {
		return ErrSaleNotFound
	}
	s.Status = status
	tx.store.sales[saleID] = s
	return nil
}

func (tx *memoryTx) ClaimIdempotencyKey(ctx context.Context, saleID int64, key string) error {
	scoped := fmt.Sprintf("%d:%s", saleID, key)
	if tx.store.keys[scoped] {
		return shared.ErrIdempotencyConflict
	}
	tx.store.keys[scoped] = true
	return nil
}

// ============================================================================
// STUBS
// ============================================================================

type stubVerifier struct {
	password string
}

func (v stubVerifier) VerifyActor(ctx context.Context, actorID int64, secret string) error {
	if secret != v.password {
		return shared.ErrInvalidCredentials
	}
	return nil
}

type stubCustomers map[int64]customers.Customer

func (s stubCustomers) GetCustomer(ctx context.Context, id int64) (customers.Customer, error) {
	c, ok := s[id]
	if !ok {
		return customers.Customer{}, customers.ErrCustomerNotFound
	}
	return c, nil
}

type recordingQueue struct {
	mu     sync.Mutex
	saleID []int64
}

func (q *recordingQueue) EnqueueReconcile(ctx context.Context, saleID int64, invoiceNumber string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.saleID = append(q.saleID, saleID)
	return nil
}

type countingEvents struct {
	mu       sync.Mutex
	events   map[string]int
	partials int
}

func (e *countingEvents) RecordSaleEvent(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.events == nil {
		e.events = map[string]int{}
	}
	e.events[event]++
}

func (e *countingEvents) RecordPartialCommit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.partials++
}

type countingCache struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

const testPassword = "secret123"

var (
	seller = shared.Actor{ID: 7, Name: "Dilnoza", Role: shared.RoleSeller}
	fixed  = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	store  *memoryStore
	svc    *Service
	queue  *recordingQueue
	events *countingEvents
	cache  *countingCache
}

func newFixture(products ...inventory.Product) fixture {
	store := newMemoryStore(products...)
	f := fixture{store: store, queue: &recordingQueue{}, events: &countingEvents{}, cache: &countingCache{}}
	f.svc = NewService(store, Dependencies{
		Customers: stubCustomers{1: {ID: 1, Name: "Akmal"}},
		Verifier:  stubVerifier{password: testPassword},
		Queue:     f.queue,
		Cache:     f.cache,
		Events:    f.events,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return fixed },
	})
	return f
}

func product(id int64, name string, price int64, qty int64) inventory.Product {
	return inventory.Product{ID: id, Name: name, SKU: name, Price: decimal.NewFromInt(price), Quantity: qty}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func creditSale(productID, qty int64, paid string) CreateSaleRequest {
	return CreateSaleRequest{
		Items:      []SaleItemRequest{{ProductID: productID, Quantity: qty}},
		IsCredit:   true,
		PaidAmount: dec(paid),
	}
}

// ============================================================================
// TOTALS
// ============================================================================

func TestComputeTotals(t *testing.T) {
	items := []LineItem{
		{ProductID: 1, Quantity: 3, Price: dec("10.50")},
		{ProductID: 2, Quantity: 1, Price: dec("4.25")},
	}
	totals, err := ComputeTotals(items, dec("5"), dec("2.10"))
	require.NoError(t, err)
	assert.True(t, totals.Subtotal.Equal(dec("35.75")))
	assert.True(t, totals.Total.Equal(dec("30.75")))
	assert.True(t, totals.GrandTotal.Equal(dec("32.85")))

	_, err = ComputeTotals(items, dec("40"), decimal.Zero)
	require.ErrorIs(t, err, ErrDiscountExceedsSubtotal)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDerivedValuesAreStable(t *testing.T) {
	sale := Sale{IsCredit: true, GrandTotal: dec("100"), PaidAmount: dec("40")}
	for i := 0; i < 3; i++ {
		assert.True(t, RemainingAmount(sale).Equal(dec("60")))
		assert.Equal(t, PaymentStatusPartial, PaymentStatusOf(sale))
	}

	assert.Equal(t, PaymentStatusUnpaid, PaymentStatusOf(Sale{IsCredit: true, GrandTotal: dec("10")}))
	assert.Equal(t, PaymentStatusPaid, PaymentStatusOf(Sale{IsCredit: true, GrandTotal: dec("10"), PaidAmount: dec("10")}))
	cash := Sale{GrandTotal: dec("10"), PaidAmount: dec("10")}
	assert.Equal(t, PaymentStatusPaid, PaymentStatusOf(cash))
	assert.True(t, RemainingAmount(cash).IsZero())
}

func TestSaleJSONIncludesDerivedFields(t *testing.T) {
	sale := Sale{ID: 1, IsCredit: true, GrandTotal: dec("90"), PaidAmount: dec("30"), Status: StatusCompleted}
	raw, err := json.Marshal(sale)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "60", body["remainingAmount"])
	assert.Equal(t, "partial", body["paymentStatus"])
	assert.Equal(t, []any{}, body["items"])
	assert.Equal(t, []any{}, body["paymentHistory"])
}

func TestFormatInvoiceNumber(t *testing.T) {
	assert.Equal(t, "INV-2403-000042", FormatInvoiceNumber(fixed, 42))
}

// ============================================================================
// CREATE
// ============================================================================

func TestCreateCreditSaleScenario(t *testing.T) {
	f := newFixture(product(1, "P", 50, 5))
	ctx := context.Background()

	sale, err := f.svc.Create(ctx, creditSale(1, 3, "0"), seller)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.store.quantity(1))
	assert.True(t, sale.GrandTotal.Equal(dec("150")))
	assert.Equal(t, PaymentStatusUnpaid, PaymentStatusOf(sale))
	assert.True(t, RemainingAmount(sale).Equal(dec("150")))
	assert.Equal(t, "INV-2403-000001", sale.InvoiceNumber)
	assert.Empty(t, sale.Payments)
	assert.Equal(t, "P", sale.Items[0].ProductName)
	assert.True(t, sale.Items[0].Price.Equal(dec("50")))

	res, err := f.svc.AddPayment(ctx, sale.ID, PaymentRequest{Amount: sale.GrandTotal}, seller, "")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, PaymentStatusOf(res.Sale))
	assert.False(t, res.Sale.IsCredit)
	assert.True(t, res.RemainingDebt.IsZero())

	stored, err := f.store.Get(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCredit)
	assert.True(t, stored.PaidAmount.Equal(dec("150")))
}

func TestCreateInsufficientStockLeavesNothingBehind(t *testing.T) {
	f := newFixture(product(1, "P", 50, 5))

	_, err := f.svc.Create(context.Background(), creditSale(1, 10, "0"), seller)
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(5), short.Available)
	assert.Equal(t, int64(10), short.Requested)
	assert.ErrorIs(t, err, shared.ErrConflict)

	assert.Equal(t, int64(5), f.store.quantity(1))
	assert.Empty(t, f.store.sales)
	assert.Empty(t, f.store.movements)
	assert.Zero(t, f.store.insertCalls)
}

func TestCreateShortSecondLineRollsBackFirst(t *testing.T) {
	f := newFixture(product(1, "A", 10, 5), product(2, "B", 10, 1))
	req := CreateSaleRequest{Items: []SaleItemRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 3}}}

	_, err := f.svc.Create(context.Background(), req, seller)
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(2), short.ProductID)
	assert.Equal(t, int64(5), f.store.quantity(1))
	assert.Equal(t, int64(1), f.store.quantity(2))
}

func TestCreateCashSaleForcesFullPayment(t *testing.T) {
	f := newFixture(product(1, "P", 20, 10))
	req := CreateSaleRequest{
		Items:         []SaleItemRequest{{ProductID: 1, Quantity: 2}},
		Discount:      dec("5"),
		Tax:           dec("1.5"),
		PaymentMethod: PaymentCard,
		PaidAmount:    dec("3"),
	}

	sale, err := f.svc.Create(context.Background(), req, seller)
	require.NoError(t, err)
	assert.True(t, sale.GrandTotal.Equal(dec("36.5")))
	assert.True(t, sale.PaidAmount.Equal(sale.GrandTotal))
	require.Len(t, sale.Payments, 1)
	assert.Equal(t, PaymentCard, sale.Payments[0].Method)
	assert.Equal(t, "Initial payment", sale.Payments[0].Notes)
	assert.Equal(t, seller.ID, sale.Payments[0].ReceivedBy)
	assert.Equal(t, 1, f.events.events["created"])
	assert.Equal(t, 1, f.cache.calls)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(product(1, "P", 20, 10))
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateSaleRequest{}, seller)
	require.ErrorIs(t, err, ErrEmptyOrder)

	_, err = f.svc.Create(ctx, creditSale(1, 1, "25"), seller)
	require.ErrorIs(t, err, ErrOverPayment)
	assert.ErrorIs(t, err, shared.ErrBusinessRule)

	req := creditSale(1, 1, "0")
	req.Discount = dec("21")
	_, err = f.svc.Create(ctx, req, seller)
	require.ErrorIs(t, err, ErrDiscountExceedsSubtotal)

	_, err = f.svc.Create(ctx, CreateSaleRequest{Items: []SaleItemRequest{{ProductID: 99, Quantity: 1}}}, seller)
	require.ErrorIs(t, err, inventory.ErrProductNotFound)

	req = creditSale(1, 1, "0")
	missing := int64(404)
	req.CustomerID = &missing
	_, err = f.svc.Create(ctx, req, seller)
	require.ErrorIs(t, err, customers.ErrCustomerNotFound)

	assert.Equal(t, int64(10), f.store.quantity(1))
	assert.Empty(t, f.store.sales)
}

func TestCreateUsesSuppliedPriceAndCustomer(t *testing.T) {
	f := newFixture(product(1, "P", 20, 10))
	price := dec("17.999")
	customerID := int64(1)
	req := CreateSaleRequest{
		CustomerID: &customerID,
		Items:      []SaleItemRequest{{ProductID: 1, Quantity: 2, Price: &price}},
		IsCredit:   true,
		PaidAmount: dec("10.004"),
	}

	sale, err := f.svc.Create(context.Background(), req, seller)
	require.NoError(t, err)
	assert.True(t, sale.Items[0].Price.Equal(dec("18")))
	assert.True(t, sale.GrandTotal.Equal(dec("36")))
	assert.True(t, sale.PaidAmount.Equal(dec("10")))
	assert.Equal(t, "Akmal", sale.CustomerName)
	assert.Equal(t, PaymentStatusPartial, PaymentStatusOf(sale))
}

func TestCreateCommitUnknownReportsPartialCommit(t *testing.T) {
	f := newFixture(product(1, "P", 20, 10))
	f.store.commitErr = errors.New("connection reset")

	_, err := f.svc.Create(context.Background(), creditSale(1, 2, "0"), seller)
	var partial *PartialCommitError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(1), partial.SaleID)
	assert.Equal(t, "INV-2403-000001", partial.InvoiceNumber)
	assert.ErrorIs(t, err, db.ErrCommitUnknown)
	assert.Equal(t, PartialCommitTypeURI, partial.ProblemType())

	assert.Equal(t, []int64{1}, f.queue.saleID)
	assert.Equal(t, 1, f.events.partials)
	assert.Zero(t, f.events.events["created"])
}

// ============================================================================
// PAYMENTS
// ============================================================================

func TestAddPaymentClampsToOpenBalance(t *testing.T) {
	f := newFixture(product(1, "P", 100, 5))
	ctx := context.Background()
	sale, err := f.svc.Create(ctx, creditSale(1, 1, "30"), seller)
	require.NoError(t, err)

	res, err := f.svc.AddPayment(ctx, sale.ID, PaymentRequest{Amount: dec("500"), Method: PaymentTransfer, Reference: "TX-1"}, seller, "")
	require.NoError(t, err)
	require.NotNil(t, res.Payment)
	assert.True(t, res.Payment.Amount.Equal(dec("70")))
	assert.Equal(t, "TX-1", res.Payment.Reference)
	assert.True(t, res.Sale.PaidAmount.Equal(res.Sale.GrandTotal))
	assert.Len(t, res.Sale.Payments, 2)

	_, err = f.svc.AddPayment(ctx, sale.ID, PaymentRequest{Amount: dec("1")}, seller, "")
	require.ErrorIs(t, err, ErrNotCredit)
}

func TestAddPaymentRejections(t *testing.T) {
	f := newFixture(product(1, "P", 100, 5))
	ctx := context.Background()
	cash, err := f.svc.Create(ctx, CreateSaleRequest{Items: []SaleItemRequest{{ProductID: 1, Quantity: 1}}}, seller)
	require.NoError(t, err)
	credit, err := f.svc.Create(ctx, creditSale(1, 1, "100"), seller)
	require.NoError(t, err)
	open, err := f.svc.Create(ctx, creditSale(1, 1, "0"), seller)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, open.ID, seller, testPassword)
	require.NoError(t, err)

	cases := []struct {
		name   string
		saleID int64
		amount string
		want   error
	}{
		{"zero amount", credit.ID, "0", ErrInvalidAmount},
		{"negative amount", credit.ID, "-5", ErrInvalidAmount},
		{"unknown sale", 999, "5", ErrSaleNotFound},
		{"cash sale", cash.ID, "5", ErrNotCredit},
		{"settled credit sale", credit.ID, "5", ErrAlreadySettled},
		{"cancelled sale", open.ID, "5", ErrSaleClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddPayment(ctx, tc.saleID, PaymentRequest{Amount: dec(tc.amount)}, seller, "")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture(product(1, "P", 100, 5))
	ctx := context.Background()
	sale, err := f.svc.Create(ctx, creditSale(1, 1, "0"), seller)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, amount := range []string{"70", "60", "45"} {
		wg.Add(1)
		go func(amount string) {
			defer wg.Done()
			_, _ = f.svc.AddPayment(ctx, sale.ID, PaymentRequest{Amount: dec(amount)}, seller, "")
		}(amount)
	}
	wg.Wait()

	stored, err := f.store.Get(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, stored.PaidAmount.Equal(stored.GrandTotal))
	sum := decimal.Zero
	for _, p := range stored.Payments {
		sum = sum.Add(p.Amount)
	}
	assert.True(t, sum.Equal(dec("100")))
}

func TestAddPaymentIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(product(1, "P", 100, 5))
	ctx := context.Background()
	sale, err := f.svc.Create(ctx, creditSale(1, 1, "0"), seller)
	require.NoError(t, err)

	first, err := f.svc.AddPayment(ctx, sale.ID, PaymentRequest{Amount: dec("25")}, seller, "key-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := f.svc.AddPayment(ctx, sale.ID, PaymentRequest{Amount: dec("25")}, seller, "key-1")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Nil(t, again.Payment)
	assert.True(t, again.Sale.PaidAmount.Equal(dec("25")))
	assert.True(t, again.RemainingDebt.Equal(dec("75")))
	assert.Equal(t, 1, f.events.events["paid"])
}

func TestAddPaymentIdempotencyKeyIsScopedToSale(t *testing.T) {
	f := newFixture(product(1, "P", 100, 5))
	ctx := context.Background()
	a, err := f.svc.Create(ctx, creditSale(1, 1, "0"), seller)
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, creditSale(1, 1, "0"), seller)
	require.NoError(t, err)

	_, err = f.svc.AddPayment(ctx, a.ID, PaymentRequest{Amount: dec("40")}, seller, "key-1")
	require.NoError(t, err)

	res, err := f.svc.AddPayment(ctx, b.ID, PaymentRequest{Amount: dec("60")}, seller, "key-1")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	require.NotNil(t, res.Payment)
	assert.True(t, res.Sale.PaidAmount.Equal(dec("60")))
	assert.True(t, f.store.sales[a.ID].PaidAmount.Equal(dec("40")))
	assert.Equal(t, 2, f.events.events["paid"])
}

func TestPaidAmountNeverExceedsGrandTotal(t *testing.T) {
	f := newFixture(product(1, "P", 33, 50))
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		sale, err := f.svc.Create(ctx, creditSale(1, i, "0"), seller)
		require.NoError(t, err)
		for _, amount := range []string{"10", "0.01", "1000"} {
			res, err := f.svc.AddPayment(ctx, sale.ID, PaymentRequest{Amount: dec(amount)}, seller, "")
			if err != nil {
				require.ErrorIs(t, err, shared.ErrBusinessRule)
				continue
			}
			assert.True(t, res.Sale.PaidAmount.LessThanOrEqual(res.Sale.GrandTotal))
		}
	}
}

// ============================================================================
// CANCEL / REFUND
// ============================================================================

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture(product(1, "A", 10, 5), product(2, "B", 10, 8))
	ctx := context.Background()
	req := CreateSaleRequest{
		Items:    []SaleItemRequest{{ProductID: 1, Quantity: 3}, {ProductID: 2, Quantity: 2}, {ProductID: 1, Quantity: 1}},
		IsCredit: true,
	}
	sale, err := f.svc.Create(ctx, req, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.store.quantity(1))
	assert.Equal(t, int64(6), f.store.quantity(2))

	cancelled, err := f.svc.Cancel(ctx, sale.ID, seller, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, int64(5), f.store.quantity(1))
	assert.Equal(t, int64(8), f.store.quantity(2))

	again, err := f.svc.Cancel(ctx, sale.ID, seller, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, again.Status)
	assert.Equal(t, int64(5), f.store.quantity(1))
	assert.Equal(t, 1, f.events.events["cancelled"])

	reasons := map[inventory.MovementReason]int{}
	for _, m := range f.store.movements {
		reasons[m.Reason]++
	}
	assert.Equal(t, 2, reasons[inventory.MovementSale])
	assert.Equal(t, 2, reasons[inventory.MovementCancel])
}

func TestCancelRules(t *testing.T) {
	f := newFixture(product(1, "P", 10, 10))
	ctx := context.Background()
	paid, err := f.svc.Create(ctx, CreateSaleRequest{Items: []SaleItemRequest{{ProductID: 1, Quantity: 1}}}, seller)
	require.NoError(t, err)
	open, err := f.svc.Create(ctx, creditSale(1, 1, "0"), seller)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, open.ID, seller, "wrong")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.Cancel(ctx, 999, seller, testPassword)
	require.ErrorIs(t, err, ErrSaleNotFound)

	_, err = f.svc.Cancel(ctx, paid.ID, seller, testPassword)
	require.ErrorIs(t, err, ErrSettledSale)

	_, err = f.svc.Refund(ctx, open.ID, seller, testPassword)
	require.ErrorIs(t, err, ErrNotSettled)

	assert.Equal(t, int64(8), f.store.quantity(1))
}

func TestCancelZeroTotalCreditSale(t *testing.T) {
	f := newFixture(product(1, "Free", 0, 5))
	ctx := context.Background()
	sale, err := f.svc.Create(ctx, creditSale(1, 2, "0"), seller)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusUnpaid, PaymentStatusOf(sale))
	assert.Equal(t, int64(3), f.store.quantity(1))

	_, err = f.svc.Refund(ctx, sale.ID, seller, testPassword)
	require.ErrorIs(t, err, ErrNotSettled)

	cancelled, err := f.svc.Cancel(ctx, sale.ID, seller, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, int64(5), f.store.quantity(1))
}

func TestRefundRestoresStockForPaidSale(t *testing.T) {
	f := newFixture(product(1, "P", 10, 10))
	ctx := context.Background()
	sale, err := f.svc.Create(ctx, CreateSaleRequest{Items: []SaleItemRequest{{ProductID: 1, Quantity: 4}}}, seller)
	require.NoError(t, err)

	refunded, err := f.svc.Refund(ctx, sale.ID, seller, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)
	assert.Equal(t, int64(10), f.store.quantity(1))

	_, err = f.svc.Refund(ctx, sale.ID, seller, testPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.store.quantity(1))

	_, err = f.svc.Cancel(ctx, sale.ID, seller, testPassword)
	require.ErrorIs(t, err, ErrSaleClosed)
}

func TestConcurrentSalesCannotOversell(t *testing.T) {
	f := newFixture(product(1, "P", 10, 3))
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, creditSale(1, 2, "0"), seller)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fail++
				return
			}
			ok++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, fail)
	assert.Equal(t, int64(1), f.store.quantity(1))
}
