package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries sale reconciliation ahead of routine work.
	QueueCritical = "critical"

	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskSaleReconcile verifies a sale whose commit outcome was unknown.
	TaskSaleReconcile = "sales:reconcile"
	// TaskLowStockScan mails the reorder list.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskMaintenanceCleanup purges expired idempotency keys and sessions.
	TaskMaintenanceCleanup = "maintenance:cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// ReconcilePayload identifies the sale to verify.
type ReconcilePayload struct {
	SaleID        int64  `json:"sale_id"`
	InvoiceNumber string `json:"invoice_number"`
}

// NewReconcileTask constructs a reconcile task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSaleReconcile, data), nil
}

// LowStockScanPayload overrides the recipient of the reorder mail.
type LowStockScanPayload struct {
	Recipient string `json:"recipient,omitempty"`
}

// NewLowStockScanTask constructs a low stock scan task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// CleanupPayload sets how long idempotency keys are retained.
type CleanupPayload struct {
	IdempotencyRetention time.Duration `json:"idempotency_retention"`
}

// NewCleanupTask constructs a maintenance cleanup task.
func NewCleanupTask(payload CleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaintenanceCleanup, data), nil
}

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// LogMailer writes messages to the log instead of an SMTP relay.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs the message envelope.
func (m LogMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail queued for delivery",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.Body)))
	return nil
}

// SendEmailHandler returns the mail:send handler bound to mailer.
func SendEmailHandler(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.To == "" {
			return asynq.SkipRetry
		}
		return mailer.Send(ctx, payload)
	}
}
