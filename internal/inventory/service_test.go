package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

type memoryRepo struct {
	balances  map[string]Balance
	movements []Movement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[string]Balance)}
}

func balanceKey(kind OwnerKind, ownerID, productID int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, ownerID, productID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxPort) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	var out []Balance
	for _, b := range r.balances {
		if b.OwnerKind == filter.OwnerKind && (filter.OwnerID == 0 || b.OwnerID == filter.OwnerID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	result := make([]Movement, len(r.movements))
	copy(result, r.movements)
	return result, nil
}

func (r *memoryRepo) GetBalanceForUpdate(ctx context.Context, kind OwnerKind, ownerID, productID int64) (Balance, error) {
	if bal, ok := r.balances[balanceKey(kind, ownerID, productID)]; ok {
		return bal, nil
	}
	return Balance{OwnerKind: kind, OwnerID: ownerID, ProductID: productID}, nil
}

func (r *memoryRepo) UpsertBalance(ctx context.Context, balance Balance) error {
	r.balances[balanceKey(balance.OwnerKind, balance.OwnerID, balance.ProductID)] = balance
	return nil
}

func (r *memoryRepo) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	r.nextID++
	movement.ID = r.nextID
	r.movements = append(r.movements, movement)
	return r.nextID, nil
}

func TestApplyTracksBalance(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	m, err := Apply(ctx, repo, MovementInput{Type: MovementAdjust, OwnerKind: OwnerWarehouse, OwnerID: 1, ProductID: 7, QtyChange: 100})
	require.NoError(t, err)
	require.InDelta(t, 100, m.Balance, 1e-9)

	m, err = Apply(ctx, repo, MovementInput{Type: MovementLoad, OwnerKind: OwnerWarehouse, OwnerID: 1, ProductID: 7, QtyChange: -80})
	require.NoError(t, err)
	require.InDelta(t, 20, m.Balance, 1e-9)
	require.False(t, m.Shortfall)
}

func TestApplyRejectsOverdraw(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	_, err := Apply(ctx, repo, MovementInput{Type: MovementLoad, OwnerKind: OwnerWarehouse, OwnerID: 1, ProductID: 7, QtyChange: -5})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestApplyShortfallFlagged(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	_, err := Apply(ctx, repo, MovementInput{Type: MovementLoad, OwnerKind: OwnerAgent, OwnerID: 3, ProductID: 7, QtyChange: 2})
	require.NoError(t, err)

	m, err := Apply(ctx, repo, MovementInput{Type: MovementSale, OwnerKind: OwnerAgent, OwnerID: 3, ProductID: 7, QtyChange: -6, AllowShortfall: true})
	require.NoError(t, err)
	require.True(t, m.Shortfall)
	require.InDelta(t, -4, m.Balance, 1e-9)
}

func TestAdjustmentRequiresCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.PostAdjustment(context.Background(), MovementInput{OwnerID: 1, ProductID: 7, QtyChange: 10})
	require.ErrorIs(t, err, shared.ErrValidation)
}
