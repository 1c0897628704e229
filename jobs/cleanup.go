package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/kassa/internal/jobs"
)

// DefaultIdempotencyRetention keeps replay keys for a week.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

// IdempotencyCleaner drops idempotency keys older than a retention window.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SessionPurger drops expired login sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupJob runs the nightly housekeeping.
type CleanupJob struct {
	Idempotency IdempotencyCleaner
	Sessions    SessionPurger
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// Handle processes maintenance:cleanup tasks.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("cleanup: handler not configured")
	}
	var payload CleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.IdempotencyRetention <= 0 {
		payload.IdempotencyRetention = DefaultIdempotencyRetention
	}

	tracker := j.Metrics.Track(TaskMaintenanceCleanup)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskMaintenanceCleanup))

	var errs []error
	if j.Idempotency != nil {
		n, err := j.Idempotency.Cleanup(ctx, payload.IdempotencyRetention)
		if err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("idempotency keys purged", slog.Int64("rows", n))
		}
	}
	if j.Sessions != nil {
		n, err := j.Sessions.PurgeExpired(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("expired sessions purged", slog.Int64("rows", n))
		}
	}
	return tracker.End(errors.Join(errs...))
}
