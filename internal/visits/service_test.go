package visits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

type memoryRepo struct {
	visits   map[int64]*Visit
	plans    map[int64]*JourneyPlan
	nextID   int64
	nextPlan int64
	nextStop int64
	// plansByAnyDay makes GetPlanForDate ignore the date, exposing the
	// service's own date check.
	plansByAnyDay bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{visits: make(map[int64]*Visit), plans: make(map[int64]*JourneyPlan)}
}

func (r *memoryRepo) CreateVisit(ctx context.Context, visit Visit) (int64, error) {
	r.nextID++
	visit.ID = r.nextID
	r.visits[visit.ID] = &visit
	return visit.ID, nil
}

func (r *memoryRepo) ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, error) {
	var out []Visit
	for _, v := range r.visits {
		if filter.AgentID != 0 && v.AgentID != filter.AgentID {
			continue
		}
		if filter.Implausible && !v.Implausible {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (r *memoryRepo) CreatePlan(ctx context.Context, plan JourneyPlan) (JourneyPlan, error) {
	r.nextPlan++
	plan.ID = r.nextPlan
	for i := range plan.Stops {
		r.nextStop++
		plan.Stops[i].ID = r.nextStop
		plan.Stops[i].PlanID = plan.ID
	}
	r.plans[plan.ID] = &plan
	return plan, nil
}

func (r *memoryRepo) GetPlanForDate(ctx context.Context, agentID int64, date time.Time) (JourneyPlan, error) {
	for _, plan := range r.plans {
		if plan.AgentID == agentID && (r.plansByAnyDay || sameDay(plan.PlanDate, date)) {
			return *plan, nil
		}
	}
	return JourneyPlan{}, shared.ErrNotFound
}

func (r *memoryRepo) GetStop(ctx context.Context, stopID int64) (JourneyStop, JourneyPlan, error) {
	for _, plan := range r.plans {
		for _, stop := range plan.Stops {
			if stop.ID == stopID {
				return stop, *plan, nil
			}
		}
	}
	return JourneyStop{}, JourneyPlan{}, shared.ErrNotFound
}

func (r *memoryRepo) SetCheckIn(ctx context.Context, stopID int64, at time.Time) error {
	return r.setStamp(stopID, func(stop *JourneyStop) { stop.CheckInAt = &at })
}

func (r *memoryRepo) SetCheckOut(ctx context.Context, stopID int64, at time.Time) error {
	return r.setStamp(stopID, func(stop *JourneyStop) { stop.CheckOutAt = &at })
}

func (r *memoryRepo) setStamp(stopID int64, set func(*JourneyStop)) error {
	for _, plan := range r.plans {
		for i := range plan.Stops {
			if plan.Stops[i].ID == stopID {
				set(&plan.Stops[i])
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func agentActor(agentID int64) *shared.Actor {
	return &shared.Actor{UserID: 100 + agentID, AgentID: agentID, Roles: []string{"agent"}}
}

func planDay() time.Time {
	return time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
}

// Jakarta city block scale: ~0.001 deg latitude is about 111 m.
const (
	stopLat = -6.2000
	stopLng = 106.8160
)

func seedPlan(t *testing.T, svc *Service) JourneyPlan {
	t.Helper()
	plan, err := svc.CreatePlan(context.Background(), PlanInput{
		AgentID:  5,
		PlanDate: planDay(),
		Stops:    []StopInput{{CustomerID: 11, Lat: stopLat, Lng: stopLng}},
	})
	require.NoError(t, err)
	return plan
}

func TestRecordVisitAgentOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, Config{})
	ctx := context.Background()

	_, err := svc.RecordVisit(ctx, &shared.Actor{UserID: 1, Roles: []string{"supervisor"}}, RecordVisitInput{
		CustomerID: 11, Outcome: OutcomeSuccessful,
	})
	require.ErrorIs(t, err, shared.ErrAuthorization)

	_, err = svc.RecordVisit(ctx, agentActor(5), RecordVisitInput{AgentID: 6, CustomerID: 11, Outcome: OutcomeSuccessful})
	require.ErrorIs(t, err, shared.ErrAuthorization)

	visit, err := svc.RecordVisit(ctx, agentActor(5), RecordVisitInput{CustomerID: 11, Outcome: OutcomeStoreClosed})
	require.NoError(t, err)
	require.Equal(t, int64(5), visit.AgentID)
	require.False(t, visit.Implausible)
}

func TestRecordVisitRejectsUnknownOutcome(t *testing.T) {
	svc := NewService(newMemoryRepo(), Config{})
	_, err := svc.RecordVisit(context.Background(), agentActor(5), RecordVisitInput{CustomerID: 11, Outcome: "MAYBE"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVisitNearPlannedStopIsPlausible(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, Config{PlausibleRadiusMeters: 500})
	seedPlan(t, svc)

	visit, err := svc.RecordVisit(context.Background(), agentActor(5), RecordVisitInput{
		CustomerID: 11, Outcome: OutcomeSuccessful,
		Lat: stopLat + 0.001, Lng: stopLng,
		VisitedAt: planDay().Add(10 * time.Hour),
	})
	require.NoError(t, err)
	require.False(t, visit.Implausible)
}

func TestVisitFarFromPlannedStopIsFlaggedNotRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, Config{PlausibleRadiusMeters: 500})
	seedPlan(t, svc)

	// ~11 km north of the planned stop.
	visit, err := svc.RecordVisit(context.Background(), agentActor(5), RecordVisitInput{
		CustomerID: 11, Outcome: OutcomeSuccessful,
		Lat: stopLat + 0.1, Lng: stopLng,
		VisitedAt: planDay().Add(10 * time.Hour),
	})
	require.NoError(t, err)
	require.True(t, visit.Implausible)

	flagged, err := svc.ListVisits(context.Background(), VisitFilter{AgentID: 5, Implausible: true})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
}

func TestVisitOutsidePlanDateIsFlagged(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, Config{})
	seedPlan(t, svc)

	// Shift the plan a day back and disable the fake's own date matching so
	// the service's date check is what trips.
	for _, plan := range repo.plans {
		plan.PlanDate = planDay().AddDate(0, 0, -1)
	}
	repo.plansByAnyDay = true

	visit, err := svc.RecordVisit(context.Background(), agentActor(5), RecordVisitInput{
		CustomerID: 11, Outcome: OutcomeSuccessful,
		Lat: stopLat, Lng: stopLng,
		VisitedAt: planDay().Add(10 * time.Hour),
	})
	require.NoError(t, err)
	require.True(t, visit.Implausible)
}

func TestCheckInCheckOutLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, Config{})
	plan := seedPlan(t, svc)
	ctx := context.Background()
	stopID := plan.Stops[0].ID

	require.ErrorIs(t, svc.CheckOut(ctx, agentActor(5), stopID, time.Time{}), shared.ErrState)
	require.ErrorIs(t, svc.CheckIn(ctx, agentActor(6), stopID, time.Time{}), shared.ErrAuthorization)

	require.NoError(t, svc.CheckIn(ctx, agentActor(5), stopID, planDay().Add(9*time.Hour)))
	require.ErrorIs(t, svc.CheckIn(ctx, agentActor(5), stopID, planDay().Add(9*time.Hour)), shared.ErrState)

	err := svc.CheckOut(ctx, agentActor(5), stopID, planDay().Add(8*time.Hour))
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.CheckOut(ctx, agentActor(5), stopID, planDay().Add(10*time.Hour)))
	require.ErrorIs(t, svc.CheckOut(ctx, agentActor(5), stopID, planDay().Add(11*time.Hour)), shared.ErrState)
}
