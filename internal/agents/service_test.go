package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

type memoryRepo struct {
	agents map[int64]*Agent
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{agents: make(map[int64]*Agent)}
}

func (r *memoryRepo) Create(ctx context.Context, agent Agent) (int64, error) {
	r.nextID++
	agent.ID = r.nextID
	r.agents[agent.ID] = &agent
	return agent.ID, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Agent, error) {
	agent, ok := r.agents[id]
	if !ok {
		return Agent{}, shared.ErrNotFound
	}
	return *agent, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Agent, error) {
	var out []Agent
	for _, a := range r.agents {
		if filter.Region != "" && a.Region != filter.Region {
			continue
		}
		if filter.ActiveOnly && !a.Active {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, id int64) (bool, error) {
	agent, ok := r.agents[id]
	if !ok || !agent.Active {
		return false, nil
	}
	agent.Active = false
	return true, nil
}

func (r *memoryRepo) UpdateTargets(ctx context.Context, id int64, targetValue float64) error {
	agent, ok := r.agents[id]
	if !ok {
		return shared.ErrNotFound
	}
	agent.TargetValue = targetValue
	return nil
}

func (r *memoryRepo) UpdateCapabilities(ctx context.Context, id int64, caps Capabilities) error {
	agent, ok := r.agents[id]
	if !ok {
		return shared.ErrNotFound
	}
	agent.Capabilities = caps
	return nil
}

func (r *memoryRepo) SetLastLocation(ctx context.Context, agentID int64, lat, lng float64, at time.Time) error {
	agent, ok := r.agents[agentID]
	if !ok {
		return shared.ErrNotFound
	}
	agent.LastLat = &lat
	agent.LastLng = &lng
	agent.LastSeenAt = &at
	return nil
}

func seedAgent(t *testing.T, svc *Service) Agent {
	t.Helper()
	agent, err := svc.Create(context.Background(), 1, CreateInput{
		UserID: 42, Name: "Budi Santoso", Region: "jakarta-selatan", TargetValue: 5000,
	})
	require.NoError(t, err)
	return agent
}

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, CreateInput{UserID: 42, Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, 1, CreateInput{Name: "Budi"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, 1, CreateInput{UserID: 42, Name: "Budi", TargetValue: -1})
	require.ErrorIs(t, err, shared.ErrValidation)

	agent, err := svc.Create(ctx, 1, CreateInput{UserID: 42, Name: "  Budi  "})
	require.NoError(t, err)
	require.Equal(t, "Budi", agent.Name)
	require.True(t, agent.Active)
}

func TestDeactivateIsIdempotentConflict(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	agent := seedAgent(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Deactivate(ctx, agent.ID, 1))

	err := svc.Deactivate(ctx, agent.ID, 1)
	require.ErrorIs(t, err, shared.ErrState)

	err = svc.Deactivate(ctx, 999, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// The row survives deactivation.
	got, err := svc.Get(ctx, agent.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestUpdateTargetsRejectsNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	agent := seedAgent(t, svc)
	ctx := context.Background()

	require.ErrorIs(t, svc.UpdateTargets(ctx, agent.ID, 1, -10), shared.ErrValidation)
	require.NoError(t, svc.UpdateTargets(ctx, agent.ID, 1, 7500))

	got, err := svc.Get(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, 7500.0, got.TargetValue)
}

func TestSetLastLocationPersists(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	agent := seedAgent(t, svc)

	at := time.Date(2026, 8, 3, 10, 15, 0, 0, time.UTC)
	require.NoError(t, svc.SetLastLocation(context.Background(), agent.ID, -6.2, 106.8, at))

	got, err := svc.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSeenAt)
	require.Equal(t, at, *got.LastSeenAt)
	require.Equal(t, -6.2, *got.LastLat)
}
