package inventory

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// TxPort exposes the balance and movement operations needed inside a
// transaction. Other modules obtain one from their own TxRepository so stock
// side effects commit atomically with their workflow transition.
type TxPort interface {
	GetBalanceForUpdate(ctx context.Context, kind OwnerKind, ownerID, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxPort) error) error
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock movements outside workflow transactions.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// Apply posts a movement through the given transactional port. Sufficiency is
// checked against the current balance unless the input allows a shortfall.
func Apply(ctx context.Context, port TxPort, input MovementInput) (Movement, error) {
	if input.OwnerID == 0 || input.ProductID == 0 {
		return Movement{}, fmt.Errorf("%w: inventory owner and product required", shared.ErrValidation)
	}
	if input.QtyChange == 0 {
		return Movement{}, fmt.Errorf("%w: inventory quantity must be non zero", shared.ErrValidation)
	}
	if input.OwnerKind != OwnerWarehouse && input.OwnerKind != OwnerAgent {
		return Movement{}, fmt.Errorf("%w: unknown owner kind %q", shared.ErrValidation, input.OwnerKind)
	}
	now := time.Now().UTC()
	code := input.Code
	if code == "" {
		code = fmt.Sprintf("MOV-%d", now.UnixNano())
	}

	balance, err := port.GetBalanceForUpdate(ctx, input.OwnerKind, input.OwnerID, input.ProductID)
	if err != nil {
		return Movement{}, err
	}
	newQty := balance.Qty + input.QtyChange
	shortfall := false
	if newQty < -1e-9 {
		if !input.AllowShortfall {
			return Movement{}, fmt.Errorf("%w: %s %d product %d has %.2f, change %.2f",
				shared.ErrInsufficientStock, input.OwnerKind, input.OwnerID, input.ProductID, balance.Qty, input.QtyChange)
		}
		shortfall = true
	}
	if math.Abs(newQty) < 1e-9 {
		newQty = 0
	}

	movement := Movement{
		Code:      code,
		Type:      input.Type,
		OwnerKind: input.OwnerKind,
		OwnerID:   input.OwnerID,
		ProductID: input.ProductID,
		QtyChange: input.QtyChange,
		Balance:   newQty,
		RefModule: input.RefModule,
		RefID:     input.RefID,
		Note:      input.Note,
		Shortfall: shortfall,
		PostedAt:  now,
		CreatedBy: input.ActorID,
	}
	id, err := port.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id

	balance.OwnerKind = input.OwnerKind
	balance.OwnerID = input.OwnerID
	balance.ProductID = input.ProductID
	balance.Qty = newQty
	if err := port.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// PostAdjustment posts a manual warehouse adjustment in its own transaction,
// guarded by an idempotency key derived from the movement code.
func (s *Service) PostAdjustment(ctx context.Context, input MovementInput) (Movement, error) {
	input.Type = MovementAdjust
	input.OwnerKind = OwnerWarehouse
	if input.Code == "" {
		return Movement{}, fmt.Errorf("%w: adjustment code required", shared.ErrValidation)
	}
	key := fmt.Sprintf("ADJ:%s", input.Code)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Movement{}, err
		}
		inserted = true
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxPort) error {
		var applyErr error
		movement, applyErr = Apply(ctx, tx, input)
		return applyErr
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}
	s.recordAudit(ctx, input.ActorID, "STOCK_ADJUST", movement)
	return movement, nil
}

// ListBalances lists balances for an owner.
func (s *Service) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	if filter.OwnerKind == "" {
		return nil, fmt.Errorf("%w: owner kind required", shared.ErrValidation)
	}
	return s.repo.ListBalances(ctx, filter)
}

// ListMovements lists movements for an owner within a range.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.OwnerKind == "" {
		return nil, fmt.Errorf("%w: owner kind required", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, movement Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: movement.Code,
		Meta: map[string]any{
			"owner_kind": movement.OwnerKind,
			"owner_id":   movement.OwnerID,
			"product_id": movement.ProductID,
			"qty":        movement.QtyChange,
		},
	})
}
