package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

func TestComputeMatchesFieldExamples(t *testing.T) {
	// 10 visits, 6 successful, 4 invoices worth 4000 total.
	in := Inputs{Visits: 10, SuccessfulVisits: 6, InvoiceCount: 4, SalesValue: 4000, ValueTarget: 5000}
	m := Compute(in, DefaultTargetPolicy())

	require.InDelta(t, 0.4, m.Productivity, 1e-9)
	require.InDelta(t, 60, m.StrikeRate, 1e-9)
	require.InDelta(t, 1000, m.DropSize, 1e-9)
	require.InDelta(t, 80, m.TargetPercent, 1e-9)
	require.InDelta(t, 50, m.CartonTarget, 1e-9)
	require.InDelta(t, 25, m.TonnageTarget, 1e-9)
}

func TestTargetPercentAchievement(t *testing.T) {
	require.InDelta(t, 90, TargetPercent(450, 500), 1e-9)
	require.Zero(t, TargetPercent(450, 0))
}

func TestZeroDenominators(t *testing.T) {
	m := Compute(Inputs{}, DefaultTargetPolicy())
	require.Zero(t, m.Productivity)
	require.Zero(t, m.StrikeRate)
	require.Zero(t, m.DropSize)
	require.Zero(t, m.TargetPercent)
}

type countingSource struct {
	inputs Inputs
	agents []int64
	calls  int
}

func (s *countingSource) FetchInputs(ctx context.Context, agentID int64, from, to time.Time) (Inputs, error) {
	s.calls++
	return s.inputs, nil
}

func (s *countingSource) ActiveAgentIDs(ctx context.Context) ([]int64, error) {
	return s.agents, nil
}

func testPeriod() shared.Period {
	return shared.Period{Year: 2026, Month: time.August}
}

func TestSnapshotServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	source := &countingSource{inputs: Inputs{Visits: 10, SuccessfulVisits: 6, InvoiceCount: 4, SalesValue: 4000}}
	svc := NewService(source, rdb, TargetPolicy{}, time.Minute, nil)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx, 5, testPeriod())
	require.NoError(t, err)
	require.InDelta(t, 60, first.Metrics.StrikeRate, 1e-9)
	require.Equal(t, 1, source.calls)

	second, err := svc.Snapshot(ctx, 5, testPeriod())
	require.NoError(t, err)
	require.Equal(t, first.Metrics, second.Metrics)
	require.Equal(t, 1, source.calls)

	// Expiry forces a recompute.
	mr.FastForward(2 * time.Minute)
	_, err = svc.Snapshot(ctx, 5, testPeriod())
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}

func TestWarmupFillsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	source := &countingSource{inputs: Inputs{Visits: 2, InvoiceCount: 1, SalesValue: 100}, agents: []int64{1, 2, 3}}
	svc := NewService(source, rdb, TargetPolicy{}, time.Minute, nil)
	ctx := context.Background()

	warmed, err := svc.Warmup(ctx, nil, testPeriod())
	require.NoError(t, err)
	require.Equal(t, 3, warmed)
	require.Equal(t, 3, source.calls)

	// Dashboard reads come straight from the warmed cache.
	snaps, err := svc.Dashboard(ctx, []int64{1, 2, 3}, testPeriod())
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	require.Equal(t, 3, source.calls)
}

func TestInvalidateDropsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	source := &countingSource{inputs: Inputs{Visits: 1}}
	svc := NewService(source, rdb, TargetPolicy{}, time.Minute, nil)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx, 5, testPeriod())
	require.NoError(t, err)
	svc.Invalidate(ctx, 5, testPeriod())

	_, err = svc.Snapshot(ctx, 5, testPeriod())
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}
