package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/kassa/internal/inventory"
	jobmetrics "github.com/odyssey-erp/kassa/internal/jobs"
	"github.com/odyssey-erp/kassa/internal/sales"
)

type stubSales struct {
	sale sales.Sale
	err  error
}

func (s stubSales) Get(ctx context.Context, id int64) (sales.Sale, error) {
	return s.sale, s.err
}

type stubMovements struct {
	rows []inventory.Movement
}

func (s stubMovements) MovementsForRef(ctx context.Context, refID int64, reason inventory.MovementReason) ([]inventory.Movement, error) {
	return s.rows, nil
}

type recordingMail struct {
	sent []SendEmailPayload
}

func (r *recordingMail) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	r.sent = append(r.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func reconcileTask(t *testing.T, saleID int64) *asynq.Task {
	t.Helper()
	task, err := NewReconcileTask(ReconcilePayload{SaleID: saleID, InvoiceNumber: "INV-2403-000009"})
	require.NoError(t, err)
	return task
}

func TestReconcileConfirmsMatchingJournal(t *testing.T) {
	job := &ReconcileJob{
		Sales: stubSales{sale: sales.Sale{ID: 9, Items: []sales.LineItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		}}},
		Movements: stubMovements{rows: []inventory.Movement{
			{ProductID: 1, Delta: -2},
			{ProductID: 2, Delta: -1},
		}},
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	require.NoError(t, job.Handle(context.Background(), reconcileTask(t, 9)))
}

func TestReconcileTreatsMissingSaleWithoutMovementsAsRolledBack(t *testing.T) {
	job := &ReconcileJob{
		Sales:     stubSales{err: sales.ErrSaleNotFound},
		Movements: stubMovements{},
	}
	outcome, diffs, err := job.check(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRolledBack, outcome)
	assert.Empty(t, diffs)
}

func TestReconcileMismatchAlertsAndSkipsRetry(t *testing.T) {
	mail := &recordingMail{}
	job := &ReconcileJob{
		Sales: stubSales{sale: sales.Sale{ID: 9, Items: []sales.LineItem{{ProductID: 1, Quantity: 3}}}},
		Movements: stubMovements{rows: []inventory.Movement{
			{ProductID: 1, Delta: -2},
		}},
		Mail:       mail,
		AlertEmail: "owner@example.com",
	}
	err := job.Handle(context.Background(), reconcileTask(t, 9))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "owner@example.com", mail.sent[0].To)
	assert.Contains(t, mail.sent[0].Body, "product 1: sold 3, journal 2")
}

func TestReconcilePropagatesLookupErrors(t *testing.T) {
	boom := errors.New("db down")
	job := &ReconcileJob{Sales: stubSales{err: boom}, Movements: stubMovements{}}
	err := job.Handle(context.Background(), reconcileTask(t, 9))
	require.ErrorIs(t, err, boom)
}

func TestReconcileRejectsBadPayload(t *testing.T) {
	job := &ReconcileJob{Sales: stubSales{}, Movements: stubMovements{}}
	err := job.Handle(context.Background(), asynq.NewTask(TaskSaleReconcile, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type stubLowStock struct {
	products []inventory.Product
}

func (s stubLowStock) LowStock(ctx context.Context) ([]inventory.Product, error) {
	return s.products, nil
}

func (s stubLowStock) Threshold() int64 { return 10 }

func TestLowStockScanMailsFormattedList(t *testing.T) {
	mail := &recordingMail{}
	job := &LowStockScanJob{
		Inventory: stubLowStock{products: []inventory.Product{
			{Name: "Gula", SKU: "GL-1", Quantity: 1200, MinQuantity: 1500},
		}},
		Mail:      mail,
		Recipient: "owner@example.com",
		Language:  language.Indonesian,
		clock:     func() time.Time { return time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC) },
	}
	task, err := NewLowStockScanTask(LowStockScanPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, mail.sent, 1)
	body := mail.sent[0].Body
	assert.True(t, strings.HasPrefix(body, "Stock report for 2024-03-05"))
	assert.Contains(t, body, "Gula [GL-1]: 1.200 on hand, reorder at 1.500")
}

func TestLowStockScanSkipsMailWhenNothingIsLow(t *testing.T) {
	mail := &recordingMail{}
	job := &LowStockScanJob{Inventory: stubLowStock{}, Mail: mail, Recipient: "owner@example.com"}
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, nil)))
	assert.Empty(t, mail.sent)
}

type stubCleaner struct {
	retention time.Duration
	err       error
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return 3, s.err
}

type stubPurger struct{ called bool }

func (s *stubPurger) PurgeExpired(ctx context.Context) (int64, error) {
	s.called = true
	return 1, nil
}

func TestCleanupDefaultsRetentionAndRunsBoth(t *testing.T) {
	cleaner := &stubCleaner{}
	purger := &stubPurger{}
	job := &CleanupJob{Idempotency: cleaner, Sessions: purger}
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskMaintenanceCleanup, nil)))
	assert.Equal(t, DefaultIdempotencyRetention, cleaner.retention)
	assert.True(t, purger.called)
}

func TestCleanupKeepsGoingAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	cleaner := &stubCleaner{err: boom}
	purger := &stubPurger{}
	job := &CleanupJob{Idempotency: cleaner, Sessions: purger}
	payload, err := json.Marshal(CleanupPayload{IdempotencyRetention: time.Hour})
	require.NoError(t, err)

	err = job.Handle(context.Background(), asynq.NewTask(TaskMaintenanceCleanup, payload))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, time.Hour, cleaner.retention)
	assert.True(t, purger.called)
}

type recordingMailer struct {
	got []SendEmailPayload
}

func (m *recordingMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	m.got = append(m.got, msg)
	return nil
}

func TestSendEmailHandler(t *testing.T) {
	mailer := &recordingMailer{}
	handler := SendEmailHandler(mailer)

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "hi", Body: "x"})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, mailer.got, 1)

	err = handler(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte(`{"subject":"no recipient"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
