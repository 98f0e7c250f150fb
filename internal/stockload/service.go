package stockload

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLoad(ctx context.Context, id int64) (StockLoad, []Item, error)
	ListLoads(ctx context.Context, filter ListFilter) ([]StockLoad, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the request/approve/release lifecycle.
type Service struct {
	repo      RepositoryPort
	approvals *shared.ApprovalRecorder
	audit     AuditPort
}

// NewService constructs the stock load service.
func NewService(repo RepositoryPort, approvals *shared.ApprovalRecorder, audit AuditPort) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit}
}

// RequestInput describes a new loading request.
type RequestInput struct {
	AgentID     int64
	WarehouseID int64
	RequestedBy int64
	Note        string
	Lines       []LineInput
}

// Request creates a stock load in REQUESTED state.
func (s *Service) Request(ctx context.Context, input RequestInput) (StockLoad, error) {
	if input.AgentID == 0 || input.WarehouseID == 0 {
		return StockLoad{}, fmt.Errorf("%w: agent and warehouse required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return StockLoad{}, fmt.Errorf("%w: minimal 1 line", shared.ErrValidation)
	}
	now := time.Now().UTC()
	load := StockLoad{
		Number:      generateNumber("SL"),
		AgentID:     input.AgentID,
		WarehouseID: input.WarehouseID,
		Status:      StatusRequested,
		Note:        input.Note,
		RequestedBy: input.RequestedBy,
		RequestedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateLoad(ctx, load)
		if err != nil {
			return err
		}
		load.ID = id
		for _, line := range input.Lines {
			if line.ProductID == 0 || line.Qty <= 0 {
				return fmt.Errorf("%w: line product and positive quantity required", shared.ErrValidation)
			}
			if err := tx.InsertItem(ctx, Item{LoadID: id, ProductID: line.ProductID, RequestedQty: line.Qty}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return StockLoad{}, err
	}
	s.recordAudit(ctx, input.RequestedBy, "STOCKLOAD_REQUEST", load.ID, map[string]any{"number": load.Number, "agent_id": load.AgentID})
	return load, nil
}

// Approve transitions REQUESTED -> APPROVED and fixes approved quantities.
// The status update is a compare-and-set: a concurrent second approver loses
// and receives ErrState.
func (s *Service) Approve(ctx context.Context, loadID, approverID int64, decisions []QuantityDecision) error {
	if approverID == 0 {
		return fmt.Errorf("%w: approver required", shared.ErrValidation)
	}
	load, items, err := s.repo.GetLoad(ctx, loadID)
	if err != nil {
		return err
	}
	approved, err := resolveQuantities(items, decisions, requestedOf)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.TransitionStatus(ctx, loadID, StatusRequested, StatusApproved)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: load %s is not awaiting approval", shared.ErrState, load.Number)
		}
		for _, item := range items {
			qty := approved[item.ProductID]
			if err := tx.SetItemApprovedQty(ctx, item.ID, qty); err != nil {
				return err
			}
		}
		return tx.SetApproval(ctx, loadID, approverID, now)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, loadID, approverID, shared.ApprovalApprove, fmt.Sprintf("stock load %s approved", load.Number))
	s.recordAudit(ctx, approverID, "STOCKLOAD_APPROVE", loadID, map[string]any{"number": load.Number})
	return nil
}

// Release transitions APPROVED -> RELEASED, decrements warehouse stock and
// credits the agent's held stock in the same transaction. Any line that would
// overdraw the warehouse aborts the whole release with ErrInsufficientStock.
func (s *Service) Release(ctx context.Context, loadID, releaserID int64, decisions []QuantityDecision) error {
	if releaserID == 0 {
		return fmt.Errorf("%w: releaser required", shared.ErrValidation)
	}
	load, items, err := s.repo.GetLoad(ctx, loadID)
	if err != nil {
		return err
	}
	released, err := resolveQuantities(items, decisions, approvedOf)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.TransitionStatus(ctx, loadID, StatusApproved, StatusReleased)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: load %s is not approved for release", shared.ErrState, load.Number)
		}
		stock := tx.Stock()
		for _, item := range items {
			qty := released[item.ProductID]
			if err := tx.SetItemReleasedQty(ctx, item.ID, qty); err != nil {
				return err
			}
			if qty == 0 {
				continue
			}
			ref := shared.WorkflowRef("STOCKLOAD", loadID).String()
			if _, err := inventory.Apply(ctx, stock, inventory.MovementInput{
				Code:      fmt.Sprintf("SL-%s-%d-OUT", load.Number, item.ProductID),
				Type:      inventory.MovementLoad,
				OwnerKind: inventory.OwnerWarehouse,
				OwnerID:   load.WarehouseID,
				ProductID: item.ProductID,
				QtyChange: -qty,
				RefModule: "STOCKLOAD",
				RefID:     ref,
				Note:      fmt.Sprintf("release %s to agent %d", load.Number, load.AgentID),
				ActorID:   releaserID,
			}); err != nil {
				return err
			}
			if _, err := inventory.Apply(ctx, stock, inventory.MovementInput{
				Code:      fmt.Sprintf("SL-%s-%d-IN", load.Number, item.ProductID),
				Type:      inventory.MovementLoad,
				OwnerKind: inventory.OwnerAgent,
				OwnerID:   load.AgentID,
				ProductID: item.ProductID,
				QtyChange: qty,
				RefModule: "STOCKLOAD",
				RefID:     ref,
				Note:      fmt.Sprintf("load %s from warehouse %d", load.Number, load.WarehouseID),
				ActorID:   releaserID,
			}); err != nil {
				return err
			}
		}
		return tx.SetRelease(ctx, loadID, releaserID, now)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, loadID, releaserID, shared.ApprovalRelease, fmt.Sprintf("stock load %s released", load.Number))
	s.recordAudit(ctx, releaserID, "STOCKLOAD_RELEASE", loadID, map[string]any{"number": load.Number})
	return nil
}

// Reject transitions REQUESTED -> REJECTED. A reason is mandatory and no stock
// side effects occur.
func (s *Service) Reject(ctx context.Context, loadID, actorID int64, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: rejection reason required", shared.ErrValidation)
	}
	load, _, err := s.repo.GetLoad(ctx, loadID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.TransitionStatus(ctx, loadID, StatusRequested, StatusRejected)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: load %s cannot be rejected", shared.ErrState, load.Number)
		}
		return tx.SetRejection(ctx, loadID, actorID, now, reason)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, loadID, actorID, shared.ApprovalReject, reason)
	s.recordAudit(ctx, actorID, "STOCKLOAD_REJECT", loadID, map[string]any{"number": load.Number, "reason": reason})
	return nil
}

// Get returns a stock load with its items.
func (s *Service) Get(ctx context.Context, id int64) (StockLoad, []Item, error) {
	return s.repo.GetLoad(ctx, id)
}

// List returns stock loads matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]StockLoad, error) {
	return s.repo.ListLoads(ctx, filter)
}

func requestedOf(item Item) (float64, bool) {
	return item.RequestedQty, true
}

func approvedOf(item Item) (float64, bool) {
	if item.ApprovedQty == nil {
		return 0, false
	}
	return *item.ApprovedQty, true
}

// resolveQuantities merges explicit decisions over each line's ceiling. A
// decision above the ceiling, below zero, or for an unknown product fails
// validation; lines without a decision carry the ceiling forward.
func resolveQuantities(items []Item, decisions []QuantityDecision, ceiling func(Item) (float64, bool)) (map[int64]float64, error) {
	byProduct := make(map[int64]Item, len(items))
	for _, item := range items {
		byProduct[item.ProductID] = item
	}
	resolved := make(map[int64]float64, len(items))
	for _, item := range items {
		max, ok := ceiling(item)
		if !ok {
			return nil, fmt.Errorf("%w: product %d has no decided quantity from the previous stage", shared.ErrValidation, item.ProductID)
		}
		resolved[item.ProductID] = max
	}
	for _, d := range decisions {
		item, ok := byProduct[d.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d is not part of this load", shared.ErrValidation, d.ProductID)
		}
		max, _ := ceiling(item)
		if d.Qty < 0 || d.Qty > max {
			return nil, fmt.Errorf("%w: product %d quantity %.2f exceeds bound %.2f", shared.ErrValidation, d.ProductID, d.Qty, max)
		}
		resolved[d.ProductID] = d.Qty
	}
	return resolved, nil
}

func (s *Service) recordApproval(ctx context.Context, loadID, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "STOCKLOAD",
		RefID:   shared.WorkflowRef("STOCKLOAD", loadID),
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "stock_load", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
