package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-sfa/meridian-sfa/internal/agents"
	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListReturns(ctx context.Context, filter ListFilter) ([]Return, error)
	ListDamages(ctx context.Context, filter ListFilter) ([]Damage, error)
}

// AgentPort resolves the capability flags of the agent whose stock moves.
type AgentPort interface {
	Get(ctx context.Context, id int64) (agents.Agent, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records returns and damage write-offs.
type Service struct {
	repo   RepositoryPort
	agents AgentPort
	audit  AuditPort
}

// NewService constructs the returns service.
func NewService(repo RepositoryPort, agentDir AgentPort, audit AuditPort) *Service {
	return &Service{repo: repo, agents: agentDir, audit: audit}
}

// ReturnInput describes stock handed back to a warehouse.
type ReturnInput struct {
	AgentID     int64
	ProductID   int64
	WarehouseID int64
	Qty         float64
	Value       float64
}

// DamageInput describes a field write-off.
type DamageInput struct {
	AgentID   int64
	ProductID int64
	Qty       float64
	Note      string
}

// RecordReturn debits the agent's held stock and credits the warehouse in one
// transaction with the return row. The agent must carry the returns
// capability; a return exceeding the agent's balance fails with
// ErrInsufficientStock rather than flagging a shortfall, because physical
// goods are being counted back in.
func (s *Service) RecordReturn(ctx context.Context, actorID int64, input ReturnInput) (Return, error) {
	if actorID == 0 {
		return Return{}, fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	if input.AgentID == 0 || input.ProductID == 0 || input.WarehouseID == 0 {
		return Return{}, fmt.Errorf("%w: agent, product and warehouse required", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return Return{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if input.Value < 0 {
		return Return{}, fmt.Errorf("%w: value cannot be negative", shared.ErrValidation)
	}
	if err := s.requireReturnsCapability(ctx, input.AgentID); err != nil {
		return Return{}, err
	}

	now := time.Now().UTC()
	ret := Return{
		AgentID:     input.AgentID,
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Qty:         input.Qty,
		Value:       input.Value,
		RecordedBy:  actorID,
		CreatedAt:   now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = id
		stock := tx.Stock()
		ref := shared.WorkflowRef("RETURN", id).String()
		if _, err := inventory.Apply(ctx, stock, inventory.MovementInput{
			Code:      fmt.Sprintf("RET-%d-%d-OUT", id, input.ProductID),
			Type:      inventory.MovementReturn,
			OwnerKind: inventory.OwnerAgent,
			OwnerID:   input.AgentID,
			ProductID: input.ProductID,
			QtyChange: -input.Qty,
			RefModule: "RETURNS",
			RefID:     ref,
			Note:      fmt.Sprintf("return to warehouse %d", input.WarehouseID),
			ActorID:   actorID,
		}); err != nil {
			return err
		}
		_, err = inventory.Apply(ctx, stock, inventory.MovementInput{
			Code:      fmt.Sprintf("RET-%d-%d-IN", id, input.ProductID),
			Type:      inventory.MovementReturn,
			OwnerKind: inventory.OwnerWarehouse,
			OwnerID:   input.WarehouseID,
			ProductID: input.ProductID,
			QtyChange: input.Qty,
			RefModule: "RETURNS",
			RefID:     ref,
			Note:      fmt.Sprintf("return from agent %d", input.AgentID),
			ActorID:   actorID,
		})
		return err
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, actorID, "RETURN_RECORD", "return", ret.ID, map[string]any{
		"agent_id": ret.AgentID, "product_id": ret.ProductID, "qty": ret.Qty, "value": ret.Value,
	})
	return ret, nil
}

// RecordDamage writes off stock from the agent's balance. No warehouse side:
// the goods are gone. The same returns capability gates it because both
// movements shrink the stock the agent must answer for at settlement.
func (s *Service) RecordDamage(ctx context.Context, actorID int64, input DamageInput) (Damage, error) {
	if actorID == 0 {
		return Damage{}, fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	if input.AgentID == 0 || input.ProductID == 0 {
		return Damage{}, fmt.Errorf("%w: agent and product required", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return Damage{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if err := s.requireReturnsCapability(ctx, input.AgentID); err != nil {
		return Damage{}, err
	}

	now := time.Now().UTC()
	damage := Damage{
		AgentID:    input.AgentID,
		ProductID:  input.ProductID,
		Qty:        input.Qty,
		Note:       input.Note,
		RecordedBy: actorID,
		CreatedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDamage(ctx, damage)
		if err != nil {
			return err
		}
		damage.ID = id
		_, err = inventory.Apply(ctx, tx.Stock(), inventory.MovementInput{
			Code:      fmt.Sprintf("DMG-%d-%d", id, input.ProductID),
			Type:      inventory.MovementDamage,
			OwnerKind: inventory.OwnerAgent,
			OwnerID:   input.AgentID,
			ProductID: input.ProductID,
			QtyChange: -input.Qty,
			RefModule: "RETURNS",
			RefID:     shared.WorkflowRef("DAMAGE", id).String(),
			Note:      input.Note,
			ActorID:   actorID,
		})
		return err
	})
	if err != nil {
		return Damage{}, err
	}
	s.recordAudit(ctx, actorID, "DAMAGE_RECORD", "damage", damage.ID, map[string]any{
		"agent_id": damage.AgentID, "product_id": damage.ProductID, "qty": damage.Qty,
	})
	return damage, nil
}

// ListReturns returns recorded returns matching the filter.
func (s *Service) ListReturns(ctx context.Context, filter ListFilter) ([]Return, error) {
	return s.repo.ListReturns(ctx, filter)
}

// ListDamages returns recorded damages matching the filter.
func (s *Service) ListDamages(ctx context.Context, filter ListFilter) ([]Damage, error) {
	return s.repo.ListDamages(ctx, filter)
}

func (s *Service) requireReturnsCapability(ctx context.Context, agentID int64) error {
	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if !agent.Capabilities.CanProcessReturns {
		return fmt.Errorf("%w: agent %d cannot process returns", shared.ErrAuthorization, agentID)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
