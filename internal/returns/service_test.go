package returns

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-sfa/meridian-sfa/internal/agents"
	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

type memoryRepo struct {
	returns    map[int64]Return
	damages    map[int64]Damage
	balances   map[string]inventory.Balance
	movements  []inventory.Movement
	nextReturn int64
	nextDamage int64
	nextMove   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		returns:  make(map[int64]Return),
		damages:  make(map[int64]Damage),
		balances: make(map[string]inventory.Balance),
	}
}

func stockKey(kind inventory.OwnerKind, ownerID, productID int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, ownerID, productID)
}

func (r *memoryRepo) snapshot() *memoryRepo {
	clone := newMemoryRepo()
	clone.nextReturn, clone.nextDamage, clone.nextMove = r.nextReturn, r.nextDamage, r.nextMove
	for id, ret := range r.returns {
		clone.returns[id] = ret
	}
	for id, damage := range r.damages {
		clone.damages[id] = damage
	}
	for k, b := range r.balances {
		clone.balances[k] = b
	}
	clone.movements = append(clone.movements, r.movements...)
	return clone
}

func (r *memoryRepo) restore(from *memoryRepo) {
	r.returns, r.damages, r.balances, r.movements = from.returns, from.damages, from.balances, from.movements
	r.nextReturn, r.nextDamage, r.nextMove = from.nextReturn, from.nextDamage, from.nextMove
}

// WithTx emulates transactional semantics by restoring a snapshot on error.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.restore(before)
		return err
	}
	return nil
}

func (r *memoryRepo) ListReturns(ctx context.Context, filter ListFilter) ([]Return, error) {
	var out []Return
	for _, ret := range r.returns {
		if filter.AgentID != 0 && ret.AgentID != filter.AgentID {
			continue
		}
		out = append(out, ret)
	}
	return out, nil
}

func (r *memoryRepo) ListDamages(ctx context.Context, filter ListFilter) ([]Damage, error) {
	var out []Damage
	for _, damage := range r.damages {
		if filter.AgentID != 0 && damage.AgentID != filter.AgentID {
			continue
		}
		out = append(out, damage)
	}
	return out, nil
}

func (r *memoryRepo) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	r.nextReturn++
	ret.ID = r.nextReturn
	r.returns[ret.ID] = ret
	return ret.ID, nil
}

func (r *memoryRepo) InsertDamage(ctx context.Context, damage Damage) (int64, error) {
	r.nextDamage++
	damage.ID = r.nextDamage
	r.damages[damage.ID] = damage
	return damage.ID, nil
}

func (r *memoryRepo) Stock() inventory.TxPort { return r }

func (r *memoryRepo) GetBalanceForUpdate(ctx context.Context, kind inventory.OwnerKind, ownerID, productID int64) (inventory.Balance, error) {
	if bal, ok := r.balances[stockKey(kind, ownerID, productID)]; ok {
		return bal, nil
	}
	return inventory.Balance{OwnerKind: kind, OwnerID: ownerID, ProductID: productID}, nil
}

func (r *memoryRepo) UpsertBalance(ctx context.Context, balance inventory.Balance) error {
	r.balances[stockKey(balance.OwnerKind, balance.OwnerID, balance.ProductID)] = balance
	return nil
}

func (r *memoryRepo) InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error) {
	r.nextMove++
	movement.ID = r.nextMove
	r.movements = append(r.movements, movement)
	return r.nextMove, nil
}

func (r *memoryRepo) seedAgent(agentID, productID int64, qty float64) {
	r.balances[stockKey(inventory.OwnerAgent, agentID, productID)] = inventory.Balance{
		OwnerKind: inventory.OwnerAgent, OwnerID: agentID, ProductID: productID, Qty: qty,
	}
}

func (r *memoryRepo) agentQty(agentID, productID int64) float64 {
	return r.balances[stockKey(inventory.OwnerAgent, agentID, productID)].Qty
}

func (r *memoryRepo) warehouseQty(warehouseID, productID int64) float64 {
	return r.balances[stockKey(inventory.OwnerWarehouse, warehouseID, productID)].Qty
}

type memoryAgents map[int64]agents.Agent

func (m memoryAgents) Get(ctx context.Context, id int64) (agents.Agent, error) {
	agent, ok := m[id]
	if !ok {
		return agents.Agent{}, shared.ErrNotFound
	}
	return agent, nil
}

func returnsAgent(id int64, can bool) memoryAgents {
	return memoryAgents{id: {ID: id, Active: true, Capabilities: agents.Capabilities{CanProcessReturns: can}}}
}

func TestRecordReturnMovesStockBackToWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAgent(5, 7, 50)
	svc := NewService(repo, returnsAgent(5, true), nil)

	ret, err := svc.RecordReturn(context.Background(), 9, ReturnInput{
		AgentID: 5, ProductID: 7, WarehouseID: 1, Qty: 20, Value: 240000,
	})
	require.NoError(t, err)
	require.NotZero(t, ret.ID)
	require.InDelta(t, 30, repo.agentQty(5, 7), 1e-9)
	require.InDelta(t, 20, repo.warehouseQty(1, 7), 1e-9)

	require.Len(t, repo.movements, 2)
	for _, movement := range repo.movements {
		require.Equal(t, inventory.MovementReturn, movement.Type)
	}
	require.Len(t, repo.returns, 1)
	require.InDelta(t, 240000, repo.returns[ret.ID].Value, 1e-9)
}

func TestRecordReturnRequiresCapability(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAgent(5, 7, 50)
	svc := NewService(repo, returnsAgent(5, false), nil)

	_, err := svc.RecordReturn(context.Background(), 9, ReturnInput{
		AgentID: 5, ProductID: 7, WarehouseID: 1, Qty: 20,
	})
	require.ErrorIs(t, err, shared.ErrAuthorization)
	require.Empty(t, repo.returns)
	require.InDelta(t, 50, repo.agentQty(5, 7), 1e-9)
}

func TestRecordReturnExceedingHeldStockFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAgent(5, 7, 5)
	svc := NewService(repo, returnsAgent(5, true), nil)

	_, err := svc.RecordReturn(context.Background(), 9, ReturnInput{
		AgentID: 5, ProductID: 7, WarehouseID: 1, Qty: 10,
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Nothing partially applied: no return row, balances untouched.
	require.Empty(t, repo.returns)
	require.Empty(t, repo.movements)
	require.InDelta(t, 5, repo.agentQty(5, 7), 1e-9)
	require.InDelta(t, 0, repo.warehouseQty(1, 7), 1e-9)
}

func TestRecordDamageWritesOffAgentStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAgent(5, 7, 50)
	svc := NewService(repo, returnsAgent(5, true), nil)

	damage, err := svc.RecordDamage(context.Background(), 9, DamageInput{
		AgentID: 5, ProductID: 7, Qty: 10, Note: "crushed in transit",
	})
	require.NoError(t, err)
	require.NotZero(t, damage.ID)

	// The stock leaves the agent and credits nobody.
	require.InDelta(t, 40, repo.agentQty(5, 7), 1e-9)
	require.Len(t, repo.movements, 1)
	require.Equal(t, inventory.MovementDamage, repo.movements[0].Type)
	require.Len(t, repo.damages, 1)
}

func TestRecordDamageRequiresCapability(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAgent(5, 7, 50)
	svc := NewService(repo, returnsAgent(5, false), nil)

	_, err := svc.RecordDamage(context.Background(), 9, DamageInput{AgentID: 5, ProductID: 7, Qty: 10})
	require.ErrorIs(t, err, shared.ErrAuthorization)
	require.Empty(t, repo.damages)
}

func TestRecordReturnValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), returnsAgent(5, true), nil)
	ctx := context.Background()

	_, err := svc.RecordReturn(ctx, 0, ReturnInput{AgentID: 5, ProductID: 7, WarehouseID: 1, Qty: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordReturn(ctx, 9, ReturnInput{AgentID: 5, ProductID: 7, WarehouseID: 1, Qty: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordReturn(ctx, 9, ReturnInput{AgentID: 5, ProductID: 7, Qty: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordReturn(ctx, 9, ReturnInput{AgentID: 5, ProductID: 7, WarehouseID: 1, Qty: 1, Value: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
}
