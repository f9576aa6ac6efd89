package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/cashbank/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup prunes processed idempotency keys.
	TaskIdempotencyCleanup = "cashbank:idempotency-cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IdempotencyCleanupPayload configures the retention of idempotency keys.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupHandler processes TaskIdempotencyCleanup tasks.
func IdempotencyCleanupHandler(cleaner KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return func(ctx context.Context, t *asynq.Task) error {
		if cleaner == nil {
			return errors.New("idempotency cleanup: store not configured")
		}
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RetentionHours <= 0 {
			payload.RetentionHours = 72
		}
		tracker := metrics.Track(TaskIdempotencyCleanup)
		err := cleaner.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
		if err != nil && logger != nil {
			logger.Error("idempotency cleanup", slog.Any("error", err))
		}
		return tracker.End(err)
	}
}
