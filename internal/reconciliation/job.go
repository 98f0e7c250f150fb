package reconciliation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-sfa/meridian-sfa/internal/jobs"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
	"github.com/meridian-sfa/meridian-sfa/jobs"
)

// OpenPeriodsJob opens pending settlement records on schedule.
type OpenPeriodsJob struct {
	service *Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewOpenPeriodsJob constructs a job handler.
func NewOpenPeriodsJob(service *Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *OpenPeriodsJob {
	return &OpenPeriodsJob{service: service, logger: logger, metrics: metrics}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *OpenPeriodsJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.OpenPeriodsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	period := shared.CurrentPeriod(time.Now())
	if payload.Period != "" {
		parsed, err := shared.ParsePeriod(payload.Period)
		if err != nil {
			return asynq.SkipRetry
		}
		period = parsed
	}
	opened, err := j.service.OpenPeriod(ctx, period)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("open settlement period", slog.String("period", period.Key()), slog.Any("error", err))
		}
		return err
	}
	j.metrics.AddCyclesOpened(opened)
	if j.logger != nil {
		j.logger.Info("settlement period job done", slog.String("period", period.Key()), slog.Int("opened", opened))
	}
	return nil
}
