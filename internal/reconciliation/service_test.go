package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/meridian-sfa/meridian-sfa/internal/ledger"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

type memoryRepo struct {
	records map[int64]*Reconciliation
	agents  []int64
	nextID  int64
}

func newMemoryRepo(agents ...int64) *memoryRepo {
	return &memoryRepo{records: make(map[int64]*Reconciliation), agents: agents}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Reconciliation, error) {
	rec, ok := r.records[id]
	if !ok {
		return Reconciliation{}, shared.ErrNotFound
	}
	return *rec, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Reconciliation, error) {
	var out []Reconciliation
	for _, rec := range r.records {
		if filter.AgentID != 0 && rec.AgentID != filter.AgentID {
			continue
		}
		if filter.Period != "" && rec.Period != filter.Period {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r *memoryRepo) ActiveAgentIDs(ctx context.Context) ([]int64, error) {
	return r.agents, nil
}

func (r *memoryRepo) CreatePending(ctx context.Context, agentID int64, period string, cycle int) (int64, error) {
	for _, rec := range r.records {
		if rec.AgentID == agentID && rec.Period == period && (rec.Status == StatusPending || rec.Status == StatusSubmitted) {
			return 0, ErrOpenCycleExists
		}
	}
	r.nextID++
	r.records[r.nextID] = &Reconciliation{
		ID: r.nextID, AgentID: agentID, Period: period, Cycle: cycle,
		Status: StatusPending, CreatedAt: time.Now().UTC(),
	}
	return r.nextID, nil
}

func (r *memoryRepo) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	rec, ok := r.records[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	return true, nil
}

func (r *memoryRepo) SetSubmission(ctx context.Context, id int64, snap Snapshot, cashCollected, variance float64, submittedBy int64, submittedAt time.Time) error {
	rec := r.records[id]
	rec.TotalLoaded = snap.TotalLoaded
	rec.TotalSold = snap.TotalSold
	rec.TotalReturned = snap.TotalReturned
	rec.ExpectedCash = snap.ExpectedCash
	rec.CashCollected = cashCollected
	rec.Variance = variance
	rec.SubmittedBy = submittedBy
	rec.SubmittedAt = submittedAt
	return nil
}

func (r *memoryRepo) SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error {
	r.records[id].ApprovedBy = approvedBy
	r.records[id].ApprovedAt = approvedAt
	return nil
}

func (r *memoryRepo) SetDispute(ctx context.Context, id int64, disputedBy int64, disputedAt time.Time, notes string) error {
	r.records[id].DisputedBy = disputedBy
	r.records[id].DisputedAt = disputedAt
	r.records[id].Notes = notes
	return nil
}

func (r *memoryRepo) MaxCycle(ctx context.Context, agentID int64, period string) (int, error) {
	max := 0
	for _, rec := range r.records {
		if rec.AgentID == agentID && rec.Period == period && rec.Cycle > max {
			max = rec.Cycle
		}
	}
	return max, nil
}

type fixedLedger struct {
	summary ledger.Summary
}

func (f fixedLedger) SummarizePeriod(ctx context.Context, agentID int64, period shared.Period) (ledger.Summary, error) {
	s := f.summary
	s.AgentID = agentID
	return s, nil
}

func period() shared.Period {
	return shared.Period{Year: 2026, Month: time.August}
}

func agentActor(agentID int64) *shared.Actor {
	return &shared.Actor{UserID: 42, AgentID: agentID, Roles: []string{"agent"}}
}

func TestOpenPeriodCreatesPendingPerAgent(t *testing.T) {
	repo := newMemoryRepo(1, 2, 3)
	svc := NewService(repo, fixedLedger{}, nil, nil, nil)

	opened, err := svc.OpenPeriod(context.Background(), period())
	require.NoError(t, err)
	require.Equal(t, 3, opened)

	// Re-running never duplicates open cycles.
	opened, err = svc.OpenPeriod(context.Background(), period())
	require.NoError(t, err)
	require.Equal(t, 0, opened)
	require.Len(t, repo.records, 3)
}

func TestSubmitComputesVarianceAtSubmission(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo, fixedLedger{summary: ledger.Summary{
		TotalLoaded: 100, TotalSold: 900, TotalReturned: 5, ExpectedCash: 850,
	}}, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.OpenPeriod(ctx, period())
	require.NoError(t, err)

	rec, err := svc.Submit(ctx, 1, agentActor(1), 800)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, rec.Status)
	require.InDelta(t, 850, rec.ExpectedCash, 1e-9)
	require.InDelta(t, -50, rec.Variance, 1e-9)
	require.Equal(t, int64(42), rec.SubmittedBy)
}

func TestDoubleSubmitConflicts(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo, fixedLedger{}, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.OpenPeriod(ctx, period())
	require.NoError(t, err)

	_, err = svc.Submit(ctx, 1, agentActor(1), 100)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, 1, agentActor(1), 100)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSubmitRejectsForeignAgent(t *testing.T) {
	repo := newMemoryRepo(7)
	svc := NewService(repo, fixedLedger{summary: ledger.Summary{ExpectedCash: 100}}, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.OpenPeriod(ctx, period())
	require.NoError(t, err)

	// Another agent's credentials must not move agent 7's record.
	outsider := &shared.Actor{UserID: 999, AgentID: 2, Roles: []string{"agent"}}
	_, err = svc.Submit(ctx, 1, outsider, 80)
	require.ErrorIs(t, err, shared.ErrAuthorization)

	rec, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPending, rec.Status)
	require.Zero(t, rec.SubmittedBy)

	// A supervisor without an agent identity is refused as well.
	supervisor := &shared.Actor{UserID: 9, Roles: []string{"supervisor"}}
	_, err = svc.Submit(ctx, 1, supervisor, 80)
	require.ErrorIs(t, err, shared.ErrAuthorization)

	owner := &shared.Actor{UserID: 70, AgentID: 7, Roles: []string{"agent"}}
	submitted, err := svc.Submit(ctx, 1, owner, 80)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
	require.Equal(t, int64(70), submitted.SubmittedBy)
}

func TestApproveRequiresSubmitted(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo, fixedLedger{}, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.OpenPeriod(ctx, period())
	require.NoError(t, err)

	require.ErrorIs(t, svc.Approve(ctx, 1, 9), shared.ErrState)

	_, err = svc.Submit(ctx, 1, agentActor(1), 100)
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, 1, 9))

	// Approved records are immutable.
	require.ErrorIs(t, svc.Approve(ctx, 1, 9), shared.ErrState)
	_, err = svc.Dispute(ctx, 1, 9, "late cash")
	require.ErrorIs(t, err, shared.ErrState)
}

func TestDisputeOpensFreshCycle(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo, fixedLedger{summary: ledger.Summary{ExpectedCash: 500}}, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.OpenPeriod(ctx, period())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, 1, agentActor(1), 300)
	require.NoError(t, err)

	_, err = svc.Dispute(ctx, 1, 9, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	next, err := svc.Dispute(ctx, 1, 9, "missing deposit slip")
	require.NoError(t, err)
	require.Equal(t, StatusPending, next.Status)
	require.Equal(t, 2, next.Cycle)

	disputed, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StatusDisputed, disputed.Status)
	// The disputed snapshot stays on record.
	require.InDelta(t, 500, disputed.ExpectedCash, 1e-9)
	require.Equal(t, "missing deposit slip", disputed.Notes)

	// The fresh cycle can be submitted again.
	_, err = svc.Submit(ctx, next.ID, agentActor(1), 500)
	require.NoError(t, err)
}

func TestStatementRendering(t *testing.T) {
	r := NewStatementRenderer(language.English, "IDR")
	out := r.Render(Reconciliation{
		AgentID: 5, Period: "2026-08", Cycle: 1, Status: StatusSubmitted,
		TotalLoaded: 1000, TotalSold: 1250000, TotalReturned: 10,
		ExpectedCash: 1200000, CashCollected: 1150000, Variance: -50000,
	})
	require.Contains(t, out, "2026-08")
	require.Contains(t, out, "1,250,000.00")
	require.Contains(t, out, "-50,000.00")
}
