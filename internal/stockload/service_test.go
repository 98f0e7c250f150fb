package stockload

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

type memoryRepo struct {
	loads     map[int64]*StockLoad
	items     map[int64][]*Item
	balances  map[string]inventory.Balance
	movements []inventory.Movement
	nextLoad  int64
	nextItem  int64
	nextMove  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		loads:    make(map[int64]*StockLoad),
		items:    make(map[int64][]*Item),
		balances: make(map[string]inventory.Balance),
	}
}

func stockKey(kind inventory.OwnerKind, ownerID, productID int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, ownerID, productID)
}

func (r *memoryRepo) snapshot() *memoryRepo {
	clone := newMemoryRepo()
	clone.nextLoad, clone.nextItem, clone.nextMove = r.nextLoad, r.nextItem, r.nextMove
	for id, load := range r.loads {
		l := *load
		clone.loads[id] = &l
	}
	for id, items := range r.items {
		for _, item := range items {
			i := *item
			clone.items[id] = append(clone.items[id], &i)
		}
	}
	for k, b := range r.balances {
		clone.balances[k] = b
	}
	clone.movements = append(clone.movements, r.movements...)
	return clone
}

func (r *memoryRepo) restore(from *memoryRepo) {
	r.loads, r.items, r.balances, r.movements = from.loads, from.items, from.balances, from.movements
	r.nextLoad, r.nextItem, r.nextMove = from.nextLoad, from.nextItem, from.nextMove
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

func (r *memoryRepo) GetLoad(ctx context.Context, id int64) (StockLoad, []Item, error) {
	load, ok := r.loads[id]
	if !ok {
		return StockLoad{}, nil, shared.ErrNotFound
	}
	var items []Item
	for _, item := range r.items[id] {
		items = append(items, *item)
	}
	return *load, items, nil
}

func (r *memoryRepo) ListLoads(ctx context.Context, filter ListFilter) ([]StockLoad, error) {
	var out []StockLoad
	for _, load := range r.loads {
		if filter.AgentID != 0 && load.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && load.Status != filter.Status {
			continue
		}
		out = append(out, *load)
	}
	return out, nil
}

func (r *memoryRepo) CreateLoad(ctx context.Context, load StockLoad) (int64, error) {
	r.nextLoad++
	load.ID = r.nextLoad
	r.loads[load.ID] = &load
	return load.ID, nil
}

func (r *memoryRepo) InsertItem(ctx context.Context, item Item) error {
	r.nextItem++
	item.ID = r.nextItem
	r.items[item.LoadID] = append(r.items[item.LoadID], &item)
	return nil
}

func (r *memoryRepo) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	load, ok := r.loads[id]
	if !ok || load.Status != from {
		return false, nil
	}
	load.Status = to
	return true, nil
}

func (r *memoryRepo) SetItemApprovedQty(ctx context.Context, itemID int64, qty float64) error {
	return r.setItemQty(itemID, func(item *Item) { item.ApprovedQty = &qty })
}

func (r *memoryRepo) SetItemReleasedQty(ctx context.Context, itemID int64, qty float64) error {
	return r.setItemQty(itemID, func(item *Item) { item.ReleasedQty = &qty })
}

func (r *memoryRepo) setItemQty(itemID int64, set func(*Item)) error {
	for _, items := range r.items {
		for _, item := range items {
			if item.ID == itemID {
				set(item)
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (r *memoryRepo) SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error {
	r.loads[id].ApprovedBy = approvedBy
	r.loads[id].ApprovedAt = approvedAt
	return nil
}

func (r *memoryRepo) SetRelease(ctx context.Context, id int64, releasedBy int64, releasedAt time.Time) error {
	r.loads[id].ReleasedBy = releasedBy
	r.loads[id].ReleasedAt = releasedAt
	return nil
}

func (r *memoryRepo) SetRejection(ctx context.Context, id int64, rejectedBy int64, rejectedAt time.Time, reason string) error {
	r.loads[id].RejectedBy = rejectedBy
	r.loads[id].RejectedAt = rejectedAt
	r.loads[id].RejectReason = reason
	return nil
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

func (r *memoryRepo) seedWarehouse(warehouseID, productID int64, qty float64) {
	r.balances[stockKey(inventory.OwnerWarehouse, warehouseID, productID)] = inventory.Balance{
		OwnerKind: inventory.OwnerWarehouse, OwnerID: warehouseID, ProductID: productID, Qty: qty,
	}
}

func (r *memoryRepo) agentQty(agentID, productID int64) float64 {
	return r.balances[stockKey(inventory.OwnerAgent, agentID, productID)].Qty
}

func (r *memoryRepo) warehouseQty(warehouseID, productID int64) float64 {
	return r.balances[stockKey(inventory.OwnerWarehouse, warehouseID, productID)].Qty
}

func request(t *testing.T, svc *Service, repo *memoryRepo, qty float64) StockLoad {
	t.Helper()
	load, err := svc.Request(context.Background(), RequestInput{
		AgentID: 5, WarehouseID: 1, RequestedBy: 5,
		Lines: []LineInput{{ProductID: 7, Qty: qty}},
	})
	require.NoError(t, err)
	return load
}

func TestRequestApproveReleaseFlow(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedWarehouse(1, 7, 500)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	load := request(t, svc, repo, 100)
	require.NoError(t, svc.Approve(ctx, load.ID, 9, []QuantityDecision{{ProductID: 7, Qty: 80}}))
	require.NoError(t, svc.Release(ctx, load.ID, 9, nil))

	got, items, err := svc.Get(ctx, load.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, got.Status)
	require.Len(t, items, 1)
	require.InDelta(t, 100, items[0].RequestedQty, 1e-9)
	require.InDelta(t, 80, *items[0].ApprovedQty, 1e-9)
	require.InDelta(t, 80, *items[0].ReleasedQty, 1e-9)

	// The agent holds the released 80, never the requested 100.
	require.InDelta(t, 80, repo.agentQty(5, 7), 1e-9)
	require.InDelta(t, 420, repo.warehouseQty(1, 7), 1e-9)
}

func TestApproveAboveRequestedFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	load := request(t, svc, repo, 50)

	err := svc.Approve(context.Background(), load.ID, 9, []QuantityDecision{{ProductID: 7, Qty: 51}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApproveWrongStateFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedWarehouse(1, 7, 100)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	load := request(t, svc, repo, 10)
	require.NoError(t, svc.Approve(ctx, load.ID, 9, nil))

	// Second approval hits the compare-and-set and loses.
	require.ErrorIs(t, svc.Approve(ctx, load.ID, 10, nil), shared.ErrState)
}

func TestReleaseWrongStateFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	load := request(t, svc, repo, 10)

	require.ErrorIs(t, svc.Release(context.Background(), load.ID, 9, nil), shared.ErrState)
}

func TestReleaseInsufficientWarehouseStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedWarehouse(1, 7, 30)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	load := request(t, svc, repo, 80)
	require.NoError(t, svc.Approve(ctx, load.ID, 9, nil))

	err := svc.Release(ctx, load.ID, 9, nil)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Nothing partially applied: status still APPROVED, balances untouched.
	got, items, err := svc.Get(ctx, load.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Nil(t, items[0].ReleasedQty)
	require.InDelta(t, 30, repo.warehouseQty(1, 7), 1e-9)
	require.InDelta(t, 0, repo.agentQty(5, 7), 1e-9)
}

func TestRejectNeedsReasonAndRequestedState(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedWarehouse(1, 7, 100)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	load := request(t, svc, repo, 10)
	require.ErrorIs(t, svc.Reject(ctx, load.ID, 9, ""), shared.ErrValidation)
	require.NoError(t, svc.Reject(ctx, load.ID, 9, "over quota"))

	require.ErrorIs(t, svc.Approve(ctx, load.ID, 9, nil), shared.ErrState)

	got, _, err := svc.Get(ctx, load.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	require.Equal(t, "over quota", got.RejectReason)
}
