package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

const defaultIdempotencyRetentionDays = 30

// CleanupIdempotencyJob prunes idempotency keys past their retention window.
// Keys older than the window can be discarded because field devices do not
// replay invoices that far back.
type CleanupIdempotencyJob struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewCleanupIdempotencyJob constructs the job handler.
func NewCleanupIdempotencyJob(store *shared.IdempotencyStore, logger *slog.Logger) *CleanupIdempotencyJob {
	return &CleanupIdempotencyJob{store: store, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *CleanupIdempotencyJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload CleanupIdempotencyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.RetentionDays
	if days <= 0 {
		days = defaultIdempotencyRetentionDays
	}
	if err := j.store.Cleanup(ctx, time.Duration(days)*24*time.Hour); err != nil {
		if j.logger != nil {
			j.logger.Error("idempotency cleanup", slog.Int("retention_days", days), slog.Any("error", err))
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("idempotency cleanup done", slog.Int("retention_days", days))
	}
	return nil
}
