package kpi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// SourcePort fetches raw KPI inputs.
type SourcePort interface {
	FetchInputs(ctx context.Context, agentID int64, from, to time.Time) (Inputs, error)
	ActiveAgentIDs(ctx context.Context) ([]int64, error)
}

// Service computes and caches KPI snapshots.
type Service struct {
	source SourcePort
	rdb    *redis.Client
	policy TargetPolicy
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs the KPI service. rdb may be nil, which disables the
// cache.
func NewService(source SourcePort, rdb *redis.Client, policy TargetPolicy, ttl time.Duration, logger *slog.Logger) *Service {
	if policy == (TargetPolicy{}) {
		policy = DefaultTargetPolicy()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{source: source, rdb: rdb, policy: policy, ttl: ttl, logger: logger}
}

func cacheKey(agentID int64, period string) string {
	return fmt.Sprintf("kpi:%d:%s", agentID, period)
}

// Snapshot returns the agent's KPI set for a period, from cache when fresh.
// Concurrent misses for the same key compute once.
func (s *Service) Snapshot(ctx context.Context, agentID int64, period shared.Period) (Snapshot, error) {
	if agentID == 0 {
		return Snapshot{}, fmt.Errorf("%w: agent required", shared.ErrValidation)
	}
	key := cacheKey(agentID, period.Key())
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}
	result, err, _ := s.group.Do(key, func() (any, error) {
		if cached, ok := s.fromCache(ctx, key); ok {
			return cached, nil
		}
		snap, err := s.compute(ctx, agentID, period)
		if err != nil {
			return Snapshot{}, err
		}
		s.toCache(ctx, key, snap)
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return result.(Snapshot), nil
}

// Dashboard computes snapshots for several agents concurrently.
func (s *Service) Dashboard(ctx context.Context, agentIDs []int64, period shared.Period) ([]Snapshot, error) {
	snapshots := make([]Snapshot, len(agentIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, agentID := range agentIDs {
		g.Go(func() error {
			snap, err := s.Snapshot(ctx, agentID, period)
			if err != nil {
				return err
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

// Warmup recomputes and caches snapshots for the given agents. Empty means all
// active agents.
func (s *Service) Warmup(ctx context.Context, agentIDs []int64, period shared.Period) (int, error) {
	if len(agentIDs) == 0 {
		var err error
		agentIDs, err = s.source.ActiveAgentIDs(ctx)
		if err != nil {
			return 0, err
		}
	}
	warmed := 0
	for _, agentID := range agentIDs {
		snap, err := s.compute(ctx, agentID, period)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("kpi warmup", slog.Int64("agent_id", agentID), slog.Any("error", err))
			}
			continue
		}
		s.toCache(ctx, cacheKey(agentID, period.Key()), snap)
		warmed++
	}
	return warmed, nil
}

// Invalidate drops the cached snapshot for an agent and period.
func (s *Service) Invalidate(ctx context.Context, agentID int64, period shared.Period) {
	if s.rdb == nil {
		return
	}
	_ = s.rdb.Del(ctx, cacheKey(agentID, period.Key())).Err()
}

func (s *Service) compute(ctx context.Context, agentID int64, period shared.Period) (Snapshot, error) {
	from, to := period.Bounds()
	inputs, err := s.source.FetchInputs(ctx, agentID, from, to)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		AgentID:    agentID,
		Period:     period.Key(),
		Inputs:     inputs,
		Metrics:    Compute(inputs, s.policy),
		ComputedAt: time.Now().UTC(),
	}, nil
}

func (s *Service) fromCache(ctx context.Context, key string) (Snapshot, bool) {
	if s.rdb == nil {
		return Snapshot{}, false
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Service) toCache(ctx context.Context, key string, snap Snapshot) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("kpi cache write", slog.Any("error", err))
	}
}
