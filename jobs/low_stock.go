package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/kassa/internal/inventory"
	jobmetrics "github.com/odyssey-erp/kassa/internal/jobs"
)

// LowStockSource lists products under the reorder threshold.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]inventory.Product, error)
	Threshold() int64
}

// LowStockScanJob mails the reorder list to the shop owner.
type LowStockScanJob struct {
	Inventory LowStockSource
	Mail      EmailEnqueuer
	Recipient string
	Language  language.Tag
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// Handle processes inventory:low_stock_scan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	recipient := payload.Recipient
	if recipient == "" {
		recipient = j.Recipient
	}

	tracker := j.Metrics.Track(TaskLowStockScan)
	logger := j.logger()

	products, err := j.Inventory.LowStock(ctx)
	if err != nil {
		logger.Error("low stock query failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.SetLowStock(len(products))
	logger.Info("low stock scan complete", slog.Int("products", len(products)))

	if len(products) == 0 || recipient == "" || j.Mail == nil {
		return tracker.End(nil)
	}
	msg := SendEmailPayload{
		To:      recipient,
		Subject: j.subject(len(products)),
		Body:    j.Body(products),
	}
	if _, err := j.Mail.EnqueueSendEmail(ctx, msg); err != nil {
		return tracker.End(err)
	}
	return tracker.End(nil)
}

func (j *LowStockScanJob) printer() *message.Printer {
	tag := j.Language
	if tag == language.Und {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

func (j *LowStockScanJob) subject(count int) string {
	return j.printer().Sprintf("%d products need reordering", count)
}

// Body renders the reorder list with locale-aware number formatting.
func (j *LowStockScanJob) Body(products []inventory.Product) string {
	p := j.printer()
	var b strings.Builder
	b.WriteString(p.Sprintf("Stock report for %s (threshold %d)\n\n", j.now().Format(time.DateOnly), j.Inventory.Threshold()))
	for _, prod := range products {
		b.WriteString(p.Sprintf("- %s [%s]: %d on hand, reorder at %d\n", prod.Name, prod.SKU, prod.Quantity, prod.MinQuantity))
	}
	return b.String()
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}
