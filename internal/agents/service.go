package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, agent Agent) (int64, error)
	Get(ctx context.Context, id int64) (Agent, error)
	List(ctx context.Context, filter ListFilter) ([]Agent, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
	UpdateTargets(ctx context.Context, id int64, targetValue float64) error
	UpdateCapabilities(ctx context.Context, id int64, caps Capabilities) error
	SetLastLocation(ctx context.Context, agentID int64, lat, lng float64, at time.Time) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages agent master data.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the agents service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes a new agent.
type CreateInput struct {
	UserID       int64
	Name         string
	Phone        string
	Region       string
	Capabilities Capabilities
	TargetValue  float64
}

// Create registers an agent.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (Agent, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Agent{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if input.UserID == 0 {
		return Agent{}, fmt.Errorf("%w: linked user required", shared.ErrValidation)
	}
	if input.TargetValue < 0 {
		return Agent{}, fmt.Errorf("%w: target cannot be negative", shared.ErrValidation)
	}
	agent := Agent{
		UserID:       input.UserID,
		Name:         input.Name,
		Phone:        strings.TrimSpace(input.Phone),
		Region:       strings.TrimSpace(input.Region),
		Capabilities: input.Capabilities,
		TargetValue:  input.TargetValue,
		Active:       true,
	}
	id, err := s.repo.Create(ctx, agent)
	if err != nil {
		return Agent{}, err
	}
	agent.ID = id
	s.recordAudit(ctx, actorID, "AGENT_CREATE", id, map[string]any{"name": agent.Name})
	return agent, nil
}

// Get fetches one agent.
func (s *Service) Get(ctx context.Context, id int64) (Agent, error) {
	return s.repo.Get(ctx, id)
}

// List returns agents matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Agent, error) {
	return s.repo.List(ctx, filter)
}

// Deactivate retires an agent. Already-inactive agents yield ErrState; the row
// itself is never removed.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) error {
	done, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	if !done {
		if _, getErr := s.repo.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: agent %d already inactive", shared.ErrState, id)
	}
	s.recordAudit(ctx, actorID, "AGENT_DEACTIVATE", id, nil)
	return nil
}

// UpdateTargets sets the agent's period value target.
func (s *Service) UpdateTargets(ctx context.Context, id, actorID int64, targetValue float64) error {
	if targetValue < 0 {
		return fmt.Errorf("%w: target cannot be negative", shared.ErrValidation)
	}
	if err := s.repo.UpdateTargets(ctx, id, targetValue); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "AGENT_TARGET_UPDATE", id, map[string]any{"target_value": targetValue})
	return nil
}

// UpdateCapabilities replaces the capability flags.
func (s *Service) UpdateCapabilities(ctx context.Context, id, actorID int64, caps Capabilities) error {
	if err := s.repo.UpdateCapabilities(ctx, id, caps); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "AGENT_CAPABILITIES_UPDATE", id, map[string]any{
		"can_give_discounts":  caps.CanGiveDiscounts,
		"can_add_clients":     caps.CanAddClients,
		"can_process_returns": caps.CanProcessReturns,
	})
	return nil
}

// SetLastLocation forwards a location update. Satisfies sync.LocationPersister.
func (s *Service) SetLastLocation(ctx context.Context, agentID int64, lat, lng float64, at time.Time) error {
	return s.repo.SetLastLocation(ctx, agentID, lat, lng, at)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "agent", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
