package kpi

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
	"github.com/meridian-sfa/meridian-sfa/jobs"
)

// WarmupJob precomputes KPI snapshots into the cache.
type WarmupJob struct {
	service *Service
	logger  *slog.Logger
}

// NewWarmupJob constructs a job handler.
func NewWarmupJob(service *Service, logger *slog.Logger) *WarmupJob {
	return &WarmupJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *WarmupJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.KPIWarmupPayload
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
	warmed, err := j.service.Warmup(ctx, payload.AgentIDs, period)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("kpi warmup", slog.Any("error", err))
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("kpi warmup done", slog.String("period", period.Key()), slog.Int("warmed", warmed))
	}
	return nil
}
