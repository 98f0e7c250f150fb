package invoices

import (
	"context"
	"fmt"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	GetItems(ctx context.Context, invoiceID int64) ([]Item, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
}

// Service exposes read accessors and payment updates. Invoice creation happens
// exclusively through the sync coordinator.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the invoice service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns one invoice with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, []Item, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	items, err := s.repo.GetItems(ctx, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	return inv, items, nil
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	return s.repo.List(ctx, filter)
}

// RegisterPayment records a payment amount and rolls the payment status
// forward. Overpayment is rejected.
func (s *Service) RegisterPayment(ctx context.Context, invoiceID int64, amount float64) (Invoice, error) {
	if amount <= 0 {
		return Invoice{}, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.PaymentStatus == PaymentPaid {
		return Invoice{}, fmt.Errorf("%w: invoice %s already settled", shared.ErrState, inv.Number)
	}
	paid := inv.AmountPaid + amount
	if paid > inv.Total+1e-9 {
		return Invoice{}, fmt.Errorf("%w: payment %.2f exceeds outstanding balance", shared.ErrValidation, amount)
	}
	status := PaymentPartial
	if paid >= inv.Total-1e-9 {
		status = PaymentPaid
		paid = inv.Total
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePayment(ctx, invoiceID, paid, status)
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.AmountPaid = paid
	inv.PaymentStatus = status
	return inv, nil
}
