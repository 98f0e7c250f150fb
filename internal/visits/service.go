package visits

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	CreateVisit(ctx context.Context, visit Visit) (int64, error)
	ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, error)
	CreatePlan(ctx context.Context, plan JourneyPlan) (JourneyPlan, error)
	GetPlanForDate(ctx context.Context, agentID int64, date time.Time) (JourneyPlan, error)
	GetStop(ctx context.Context, stopID int64) (JourneyStop, JourneyPlan, error)
	SetCheckIn(ctx context.Context, stopID int64, at time.Time) error
	SetCheckOut(ctx context.Context, stopID int64, at time.Time) error
}

// Config tunes the plausibility correlation.
type Config struct {
	// PlausibleRadiusMeters bounds how far a reported position may sit from
	// the planned stop before the visit is flagged.
	PlausibleRadiusMeters float64
}

// Service records visits and journey progress.
type Service struct {
	repo   RepositoryPort
	radius float64
}

// NewService constructs the visits service.
func NewService(repo RepositoryPort, cfg Config) *Service {
	radius := cfg.PlausibleRadiusMeters
	if radius <= 0 {
		radius = 500
	}
	return &Service{repo: repo, radius: radius}
}

// RecordVisitInput captures one visit report.
type RecordVisitInput struct {
	AgentID    int64
	CustomerID int64
	Outcome    Outcome
	InvoiceID  *int64
	Notes      string
	Lat        float64
	Lng        float64
	VisitedAt  time.Time
}

// RecordVisit stores a visit. Only the visiting agent writes its own visits.
// A visit that does not line up with the day's journey plan is stored anyway
// and flagged; the correlation is loose evidence, not proof of absence.
func (s *Service) RecordVisit(ctx context.Context, actor *shared.Actor, input RecordVisitInput) (Visit, error) {
	if actor == nil || actor.AgentID == 0 {
		return Visit{}, fmt.Errorf("%w: only agents record visits", shared.ErrAuthorization)
	}
	if input.AgentID != 0 && input.AgentID != actor.AgentID {
		return Visit{}, fmt.Errorf("%w: agents record only their own visits", shared.ErrAuthorization)
	}
	if input.CustomerID == 0 {
		return Visit{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	if !input.Outcome.valid() {
		return Visit{}, fmt.Errorf("%w: unknown outcome %q", shared.ErrValidation, input.Outcome)
	}
	if input.VisitedAt.IsZero() {
		input.VisitedAt = time.Now().UTC()
	}

	visit := Visit{
		AgentID:    actor.AgentID,
		CustomerID: input.CustomerID,
		Outcome:    input.Outcome,
		InvoiceID:  input.InvoiceID,
		Notes:      input.Notes,
		Lat:        input.Lat,
		Lng:        input.Lng,
		VisitedAt:  input.VisitedAt.UTC(),
	}
	visit.Implausible = s.implausible(ctx, visit)

	id, err := s.repo.CreateVisit(ctx, visit)
	if err != nil {
		return Visit{}, err
	}
	visit.ID = id
	return visit, nil
}

// implausible correlates the visit against the day's journey plan. No plan or
// no matching stop means nothing to contradict, so the visit passes.
func (s *Service) implausible(ctx context.Context, visit Visit) bool {
	plan, err := s.repo.GetPlanForDate(ctx, visit.AgentID, visit.VisitedAt)
	if err != nil {
		return false
	}
	for _, stop := range plan.Stops {
		if stop.CustomerID != visit.CustomerID {
			continue
		}
		if !sameDay(plan.PlanDate, visit.VisitedAt) {
			return true
		}
		if visit.Lat == 0 && visit.Lng == 0 {
			return false
		}
		return haversineMeters(visit.Lat, visit.Lng, stop.Lat, stop.Lng) > s.radius
	}
	return false
}

// ListVisits returns visits matching the filter.
func (s *Service) ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, error) {
	return s.repo.ListVisits(ctx, filter)
}

// PlanInput describes a new journey plan.
type PlanInput struct {
	AgentID  int64
	PlanDate time.Time
	Stops    []StopInput
}

// StopInput is one planned customer call.
type StopInput struct {
	CustomerID int64
	Lat        float64
	Lng        float64
}

// CreatePlan stores a journey plan with its ordered stops.
func (s *Service) CreatePlan(ctx context.Context, input PlanInput) (JourneyPlan, error) {
	if input.AgentID == 0 {
		return JourneyPlan{}, fmt.Errorf("%w: agent required", shared.ErrValidation)
	}
	if input.PlanDate.IsZero() {
		return JourneyPlan{}, fmt.Errorf("%w: plan date required", shared.ErrValidation)
	}
	if len(input.Stops) == 0 {
		return JourneyPlan{}, fmt.Errorf("%w: minimal 1 stop", shared.ErrValidation)
	}
	plan := JourneyPlan{AgentID: input.AgentID, PlanDate: dateOnly(input.PlanDate)}
	for i, stop := range input.Stops {
		if stop.CustomerID == 0 {
			return JourneyPlan{}, fmt.Errorf("%w: stop %d customer required", shared.ErrValidation, i+1)
		}
		plan.Stops = append(plan.Stops, JourneyStop{Seq: i + 1, CustomerID: stop.CustomerID, Lat: stop.Lat, Lng: stop.Lng})
	}
	return s.repo.CreatePlan(ctx, plan)
}

// PlanForDate returns the agent's plan for a date.
func (s *Service) PlanForDate(ctx context.Context, agentID int64, date time.Time) (JourneyPlan, error) {
	return s.repo.GetPlanForDate(ctx, agentID, date)
}

// CheckIn stamps arrival at a stop. Checking in twice is a state error.
func (s *Service) CheckIn(ctx context.Context, actor *shared.Actor, stopID int64, at time.Time) error {
	stop, _, err := s.stopForActor(ctx, actor, stopID)
	if err != nil {
		return err
	}
	if stop.CheckInAt != nil {
		return fmt.Errorf("%w: stop %d already checked in", shared.ErrState, stopID)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.repo.SetCheckIn(ctx, stopID, at.UTC())
}

// CheckOut stamps departure. Requires a prior check-in.
func (s *Service) CheckOut(ctx context.Context, actor *shared.Actor, stopID int64, at time.Time) error {
	stop, _, err := s.stopForActor(ctx, actor, stopID)
	if err != nil {
		return err
	}
	if stop.CheckInAt == nil {
		return fmt.Errorf("%w: stop %d is not checked in", shared.ErrState, stopID)
	}
	if stop.CheckOutAt != nil {
		return fmt.Errorf("%w: stop %d already checked out", shared.ErrState, stopID)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if at.Before(*stop.CheckInAt) {
		return fmt.Errorf("%w: check-out precedes check-in", shared.ErrValidation)
	}
	return s.repo.SetCheckOut(ctx, stopID, at.UTC())
}

func (s *Service) stopForActor(ctx context.Context, actor *shared.Actor, stopID int64) (JourneyStop, JourneyPlan, error) {
	if actor == nil || actor.AgentID == 0 {
		return JourneyStop{}, JourneyPlan{}, fmt.Errorf("%w: only agents work journey stops", shared.ErrAuthorization)
	}
	stop, plan, err := s.repo.GetStop(ctx, stopID)
	if err != nil {
		return JourneyStop{}, JourneyPlan{}, err
	}
	if plan.AgentID != actor.AgentID {
		return JourneyStop{}, JourneyPlan{}, fmt.Errorf("%w: stop belongs to another agent", shared.ErrAuthorization)
	}
	return stop, plan, nil
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
