package invoices

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

type memoryRepo struct {
	invoices map[int64]*Invoice
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[int64]*Invoice)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	return *inv, nil
}

func (r *memoryRepo) GetItems(ctx context.Context, invoiceID int64) ([]Item, error) {
	return nil, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if filter.AgentID != 0 && inv.AgentID != filter.AgentID {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (r *memoryRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	id := int64(len(r.invoices) + 1)
	inv.ID = id
	r.invoices[id] = &inv
	return id, nil
}

func (r *memoryRepo) InsertItem(ctx context.Context, item Item) error { return nil }

func (r *memoryRepo) SetNeedsReview(ctx context.Context, invoiceID int64) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return shared.ErrNotFound
	}
	inv.NeedsReview = true
	return nil
}

func (r *memoryRepo) UpdatePayment(ctx context.Context, invoiceID int64, paid float64, status PaymentStatus) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return shared.ErrNotFound
	}
	inv.AmountPaid = paid
	inv.PaymentStatus = status
	return nil
}

func (r *memoryRepo) Stock() inventory.TxPort { return nil }

func seedInvoice(t *testing.T, repo *memoryRepo, total float64) int64 {
	t.Helper()
	id, err := repo.InsertInvoice(context.Background(), Invoice{
		Number: "INV-TEST", AgentID: 5, Total: total, PaymentStatus: PaymentPending, PaymentMethod: MethodCredit,
	})
	require.NoError(t, err)
	return id
}

func TestRegisterPaymentPartialThenPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	id := seedInvoice(t, repo, 1000)

	inv, err := svc.RegisterPayment(ctx, id, 400)
	require.NoError(t, err)
	require.Equal(t, PaymentPartial, inv.PaymentStatus)
	require.Equal(t, 400.0, inv.AmountPaid)

	inv, err = svc.RegisterPayment(ctx, id, 600)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, inv.PaymentStatus)
	require.Equal(t, 1000.0, inv.AmountPaid)
}

func TestRegisterPaymentRejectsOverpayment(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	id := seedInvoice(t, repo, 1000)

	_, err := svc.RegisterPayment(ctx, id, 1001)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RegisterPayment(ctx, id, 0)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RegisterPayment(ctx, id, -5)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRegisterPaymentSettledInvoiceConflicts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	id := seedInvoice(t, repo, 500)

	_, err := svc.RegisterPayment(ctx, id, 500)
	require.NoError(t, err)

	_, err = svc.RegisterPayment(ctx, id, 1)
	require.ErrorIs(t, err, shared.ErrState)
}

func TestRegisterPaymentUnknownInvoice(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.RegisterPayment(context.Background(), 42, 10)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegisterPaymentFloatBoundary(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	id := seedInvoice(t, repo, 0.3)

	inv, err := svc.RegisterPayment(ctx, id, 0.1)
	require.NoError(t, err)
	require.Equal(t, PaymentPartial, inv.PaymentStatus)

	inv, err = svc.RegisterPayment(ctx, id, 0.2)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, inv.PaymentStatus)
	require.Equal(t, 0.3, inv.AmountPaid)
}
