// Package jobs defines the background task types shared between the API
// server (enqueuing) and the worker (handling).
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOpenPeriods opens pending reconciliation records for a period.
	TaskTypeOpenPeriods = "recon:open_periods"
	// TaskTypeKPIWarmup precomputes dashboard KPI snapshots into the cache.
	TaskTypeKPIWarmup = "kpi:warmup"
	// TaskTypeCleanupIdempotency prunes expired idempotency keys.
	TaskTypeCleanupIdempotency = "sync:cleanup_idempotency"
)

// OpenPeriodsPayload selects the settlement period to open. Empty Period means
// the current month.
type OpenPeriodsPayload struct {
	Period string `json:"period,omitempty"`
}

// NewOpenPeriodsTask constructs an Asynq task.
func NewOpenPeriodsTask(payload OpenPeriodsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOpenPeriods, data), nil
}

// KPIWarmupPayload selects the agents to warm. Empty means all active agents.
type KPIWarmupPayload struct {
	AgentIDs []int64 `json:"agent_ids,omitempty"`
	Period   string  `json:"period,omitempty"`
}

// NewKPIWarmupTask constructs an Asynq task.
func NewKPIWarmupTask(payload KPIWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeKPIWarmup, data), nil
}

// CleanupIdempotencyPayload bounds the retention window in days.
type CleanupIdempotencyPayload struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// NewCleanupIdempotencyTask constructs an Asynq task.
func NewCleanupIdempotencyTask(payload CleanupIdempotencyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCleanupIdempotency, data), nil
}
