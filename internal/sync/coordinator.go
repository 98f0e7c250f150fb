// Package sync merges records created on disconnected field devices into the
// authoritative store exactly once, regardless of retries or delivery order.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-sfa/meridian-sfa/internal/agents"
	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/invoices"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// InvoiceStorePort describes the invoice persistence used by the coordinator.
type InvoiceStorePort interface {
	WithTx(ctx context.Context, fn func(context.Context, invoices.TxRepository) error) error
	GetByClientRef(ctx context.Context, ref uuid.UUID) (invoices.Invoice, error)
}

// AgentDirectoryPort resolves the posting agent's capability flags.
type AgentDirectoryPort interface {
	Get(ctx context.Context, id int64) (agents.Agent, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Coordinator ingests agent-originated invoices and location pings.
type Coordinator struct {
	store     InvoiceStorePort
	pings     *PingStore
	agents    AgentDirectoryPort
	audit     AuditPort
	logger    *slog.Logger
	attempts  int
	baseDelay time.Duration
	sleep     func(context.Context, time.Duration) error
}

// Config tunes the retry behaviour for transient store failures.
type Config struct {
	Attempts  int
	BaseDelay time.Duration
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(store InvoiceStorePort, pings *PingStore, directory AgentDirectoryPort, audit AuditPort, logger *slog.Logger, cfg Config) *Coordinator {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	return &Coordinator{
		store:     store,
		pings:     pings,
		agents:    directory,
		audit:     audit,
		logger:    logger,
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
		sleep:     sleepContext,
	}
}

// sleepContext waits out the delay unless the caller gives up first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// InvoiceLine is one product line of an offline invoice payload.
type InvoiceLine struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// InvoiceSyncInput is the payload delivered by a device for one invoice.
type InvoiceSyncInput struct {
	ClientRef      uuid.UUID
	AgentID        int64
	CustomerID     int64
	Number         string
	Subtotal       float64
	Discount       float64
	VAT            float64
	Total          float64
	PaymentStatus  invoices.PaymentStatus
	PaymentMethod  invoices.PaymentMethod
	AmountPaid     float64
	OfflineCreated bool
	CreatedAt      time.Time
	Lines          []InvoiceLine
}

// InvoiceSyncResult reports the outcome of one ingestion. Err is set only on
// batch entries whose ingestion failed terminally; the invoice then carries
// just the client reference the device sent.
type InvoiceSyncResult struct {
	Invoice       invoices.Invoice
	AlreadySynced bool
	NeedsReview   bool
	Err           error
}

// SyncInvoice upserts an invoice keyed by its client reference. A redelivery
// of an already-ingested invoice is a no-op that still reports success. The
// first successful ingestion debits the agent's held stock; a shortfall is
// flagged for reconciliation review instead of rejecting the sale.
func (c *Coordinator) SyncInvoice(ctx context.Context, input InvoiceSyncInput) (InvoiceSyncResult, error) {
	if err := validateInvoiceInput(input); err != nil {
		return InvoiceSyncResult{}, err
	}
	var result InvoiceSyncResult
	err := c.withRetry(ctx, func() error {
		var attemptErr error
		result, attemptErr = c.ingest(ctx, input)
		return attemptErr
	})
	if err != nil {
		return InvoiceSyncResult{}, err
	}
	if !result.AlreadySynced {
		c.recordAudit(ctx, input.AgentID, result)
	}
	return result, nil
}

// SyncBatch ingests a device's queued invoices in creation-time order. Each
// item succeeds or fails independently; transient failures abort the batch so
// the device retries the remainder later. A terminally failed item stays in
// the result list with Err set so the device can show the operator what was
// refused.
func (c *Coordinator) SyncBatch(ctx context.Context, inputs []InvoiceSyncInput) ([]InvoiceSyncResult, error) {
	sorted := make([]InvoiceSyncInput, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	results := make([]InvoiceSyncResult, 0, len(sorted))
	for _, input := range sorted {
		res, err := c.SyncInvoice(ctx, input)
		if err != nil {
			if errors.Is(err, shared.ErrTransientStore) {
				return results, err
			}
			if c.logger != nil {
				c.logger.Warn("refuse invoice in batch", slog.String("client_ref", input.ClientRef.String()), slog.Any("error", err))
			}
			results = append(results, InvoiceSyncResult{
				Invoice: invoices.Invoice{ClientRef: input.ClientRef},
				Err:     err,
			})
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Coordinator) ingest(ctx context.Context, input InvoiceSyncInput) (InvoiceSyncResult, error) {
	existing, err := c.store.GetByClientRef(ctx, input.ClientRef)
	if err == nil {
		return InvoiceSyncResult{Invoice: existing, AlreadySynced: true, NeedsReview: existing.NeedsReview}, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return InvoiceSyncResult{}, err
	}

	var needsReview bool
	// A discount from an agent without the capability is ingested anyway but
	// lands in the review queue, like a stock shortfall.
	if input.Discount > 0 && c.agents != nil {
		agent, err := c.agents.Get(ctx, input.AgentID)
		if err != nil {
			return InvoiceSyncResult{}, err
		}
		if !agent.Capabilities.CanGiveDiscounts {
			needsReview = true
		}
	}

	now := time.Now().UTC()
	inv := invoices.Invoice{
		Number:         input.Number,
		ClientRef:      input.ClientRef,
		AgentID:        input.AgentID,
		CustomerID:     input.CustomerID,
		Subtotal:       input.Subtotal,
		Discount:       input.Discount,
		VAT:            input.VAT,
		Total:          input.Total,
		PaymentStatus:  input.PaymentStatus,
		PaymentMethod:  input.PaymentMethod,
		AmountPaid:     input.AmountPaid,
		OfflineCreated: input.OfflineCreated,
		IsSynced:       true,
		SyncedAt:       &now,
		CreatedAt:      input.CreatedAt,
	}
	if inv.Number == "" {
		inv.Number = fmt.Sprintf("INV-%s", input.ClientRef.String()[:8])
	}
	if inv.PaymentStatus == "" {
		inv.PaymentStatus = invoices.PaymentPending
	}

	err = c.store.WithTx(ctx, func(ctx context.Context, tx invoices.TxRepository) error {
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		stock := tx.Stock()
		for _, line := range input.Lines {
			if err := tx.InsertItem(ctx, invoices.Item{
				InvoiceID: id,
				ProductID: line.ProductID,
				Qty:       line.Qty,
				UnitPrice: line.UnitPrice,
				LineTotal: line.Qty * line.UnitPrice,
			}); err != nil {
				return err
			}
			movement, err := inventory.Apply(ctx, stock, inventory.MovementInput{
				Code:           fmt.Sprintf("INV-%s-%d", input.ClientRef, line.ProductID),
				Type:           inventory.MovementSale,
				OwnerKind:      inventory.OwnerAgent,
				OwnerID:        input.AgentID,
				ProductID:      line.ProductID,
				QtyChange:      -line.Qty,
				RefModule:      "SYNC",
				RefID:          input.ClientRef.String(),
				Note:           fmt.Sprintf("sale %s", inv.Number),
				ActorID:        input.AgentID,
				AllowShortfall: true,
			})
			if err != nil {
				return err
			}
			if movement.Shortfall {
				needsReview = true
			}
		}
		if needsReview {
			return tx.SetNeedsReview(ctx, id)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, invoices.ErrDuplicateRef) {
			// Lost a race against a concurrent delivery of the same invoice.
			stored, getErr := c.store.GetByClientRef(ctx, input.ClientRef)
			if getErr != nil {
				return InvoiceSyncResult{}, getErr
			}
			return InvoiceSyncResult{Invoice: stored, AlreadySynced: true, NeedsReview: stored.NeedsReview}, nil
		}
		return InvoiceSyncResult{}, err
	}
	inv.NeedsReview = needsReview
	return InvoiceSyncResult{Invoice: inv, NeedsReview: needsReview}, nil
}

func validateInvoiceInput(input InvoiceSyncInput) error {
	if input.ClientRef == uuid.Nil {
		return fmt.Errorf("%w: client ref required", shared.ErrValidation)
	}
	if input.AgentID == 0 {
		return fmt.Errorf("%w: agent required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: minimal 1 line", shared.ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty <= 0 || line.UnitPrice < 0 {
			return fmt.Errorf("%w: invalid invoice line", shared.ErrValidation)
		}
	}
	if input.Total < 0 || input.Discount < 0 {
		return fmt.Errorf("%w: negative amounts", shared.ErrValidation)
	}
	if input.CreatedAt.IsZero() {
		return fmt.Errorf("%w: client creation time required", shared.ErrValidation)
	}
	return nil
}

// withRetry retries fn with capped exponential backoff while the failure is
// transient. Other error kinds are terminal for the attempt.
func (c *Coordinator) withRetry(ctx context.Context, fn func() error) error {
	delay := c.baseDelay
	var err error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, shared.ErrTransientStore) {
			return err
		}
		if c.logger != nil {
			c.logger.Warn("transient store failure, retrying", slog.Int("attempt", attempt+1), slog.Any("error", err))
		}
	}
	return err
}

func (c *Coordinator) recordAudit(ctx context.Context, agentID int64, result InvoiceSyncResult) {
	if c.audit == nil {
		return
	}
	_ = c.audit.Record(ctx, shared.AuditLog{
		ActorID:  agentID,
		Action:   "INVOICE_SYNC",
		Entity:   "invoice",
		EntityID: result.Invoice.ClientRef.String(),
		Meta: map[string]any{
			"total":        result.Invoice.Total,
			"needs_review": result.NeedsReview,
		},
	})
}
