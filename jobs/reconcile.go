package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/kassa/internal/inventory"
	jobmetrics "github.com/odyssey-erp/kassa/internal/jobs"
	"github.com/odyssey-erp/kassa/internal/sales"
)

// Reconcile verdicts.
const (
	OutcomeConfirmed  = "confirmed"
	OutcomeRolledBack = "rolled_back"
	OutcomeMismatch   = "mismatch"
)

// SaleReader loads a committed sale.
type SaleReader interface {
	Get(ctx context.Context, id int64) (sales.Sale, error)
}

// MovementReader lists the stock card lines written for a reference.
type MovementReader interface {
	MovementsForRef(ctx context.Context, refID int64, reason inventory.MovementReason) ([]inventory.Movement, error)
}

// ReconcileJob checks that a sale and its stock decrements either both committed
// or both rolled back.
type ReconcileJob struct {
	Sales      SaleReader
	Movements  MovementReader
	Mail       EmailEnqueuer
	AlertEmail string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// EmailEnqueuer queues an outgoing message.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// Handle processes sales:reconcile tasks.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sales == nil || j.Movements == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.SaleID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskSaleReconcile)
	logger := j.logger().With(
		slog.Int64("sale_id", payload.SaleID),
		slog.String("invoice_number", payload.InvoiceNumber),
	)

	outcome, diffs, err := j.check(ctx, payload.SaleID)
	if err != nil {
		logger.Error("reconcile check failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddReconciled(outcome)

	switch outcome {
	case OutcomeMismatch:
		logger.Error("sale and stock journal disagree", slog.Any("differences", diffs))
		j.alert(ctx, logger, payload, diffs)
		return tracker.End(fmt.Errorf("reconcile: sale %d stock mismatch: %w", payload.SaleID, asynq.SkipRetry))
	case OutcomeRolledBack:
		logger.Info("sale was rolled back; nothing to repair")
	default:
		logger.Info("sale commit confirmed")
	}
	return tracker.End(nil)
}

// check compares per-product sold quantities with the SALE movements for the sale.
func (j *ReconcileJob) check(ctx context.Context, saleID int64) (string, []string, error) {
	movements, err := j.Movements.MovementsForRef(ctx, saleID, inventory.MovementSale)
	if err != nil {
		return "", nil, err
	}
	journal := make(map[int64]int64, len(movements))
	for _, m := range movements {
		journal[m.ProductID] += -m.Delta
	}

	sale, err := j.Sales.Get(ctx, saleID)
	if errors.Is(err, sales.ErrSaleNotFound) {
		if len(journal) == 0 {
			return OutcomeRolledBack, nil, nil
		}
		return OutcomeMismatch, describeDiff(nil, journal), nil
	}
	if err != nil {
		return "", nil, err
	}

	expected := make(map[int64]int64, len(sale.Items))
	for _, item := range sale.Items {
		expected[item.ProductID] += item.Quantity
	}
	if diffs := describeDiff(expected, journal); len(diffs) > 0 {
		return OutcomeMismatch, diffs, nil
	}
	return OutcomeConfirmed, nil, nil
}

func describeDiff(expected, journal map[int64]int64) []string {
	ids := make(map[int64]struct{}, len(expected)+len(journal))
	for id := range expected {
		ids[id] = struct{}{}
	}
	for id := range journal {
		ids[id] = struct{}{}
	}
	sorted := make([]int64, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })

	var diffs []string
	for _, id := range sorted {
		if expected[id] != journal[id] {
			diffs = append(diffs, fmt.Sprintf("product %d: sold %d, journal %d", id, expected[id], journal[id]))
		}
	}
	return diffs
}

func (j *ReconcileJob) alert(ctx context.Context, logger *slog.Logger, payload ReconcilePayload, diffs []string) {
	if j.Mail == nil || j.AlertEmail == "" {
		return
	}
	msg := SendEmailPayload{
		To:      j.AlertEmail,
		Subject: fmt.Sprintf("Stock mismatch on sale %s", payload.InvoiceNumber),
		Body: fmt.Sprintf("Sale %d (%s) does not match its stock journal as of %s:\n\n%s\n",
			payload.SaleID, payload.InvoiceNumber, time.Now().UTC().Format(time.RFC3339), strings.Join(diffs, "\n")),
	}
	if _, err := j.Mail.EnqueueSendEmail(ctx, msg); err != nil {
		logger.Warn("enqueue mismatch alert", slog.Any("error", err))
	}
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSaleReconcile))
	}
	return slog.Default().With(slog.String("job", TaskSaleReconcile))
}
