package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/meridian-sfa/meridian-sfa/internal/ledger"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Reconciliation, error)
	List(ctx context.Context, filter ListFilter) ([]Reconciliation, error)
	ActiveAgentIDs(ctx context.Context) ([]int64, error)
}

// LedgerPort derives the snapshot taken at submission.
type LedgerPort interface {
	SummarizePeriod(ctx context.Context, agentID int64, period shared.Period) (ledger.Summary, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the settlement lifecycle.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	approvals *shared.ApprovalRecorder
	audit     AuditPort
	logger    *slog.Logger
}

// NewService constructs the reconciliation service.
func NewService(repo RepositoryPort, ledgerSvc LedgerPort, approvals *shared.ApprovalRecorder, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, approvals: approvals, audit: audit, logger: logger}
}

// OpenPeriod creates a PENDING record for every active agent that does not
// already hold one for the period. Safe to re-run; existing cycles are left
// alone.
func (s *Service) OpenPeriod(ctx context.Context, period shared.Period) (int, error) {
	agentIDs, err := s.repo.ActiveAgentIDs(ctx)
	if err != nil {
		return 0, err
	}
	opened := 0
	for _, agentID := range agentIDs {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			cycle, err := tx.MaxCycle(ctx, agentID, period.Key())
			if err != nil {
				return err
			}
			if cycle > 0 {
				return nil
			}
			_, err = tx.CreatePending(ctx, agentID, period.Key(), 1)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrOpenCycleExists) {
				continue
			}
			return opened, err
		}
		opened++
	}
	if s.logger != nil {
		s.logger.Info("settlement period opened", slog.String("period", period.Key()), slog.Int("records", opened))
	}
	return opened, nil
}

// Submit freezes the ledger snapshot and the agent's declared cash on a
// PENDING record. Only the agent the record belongs to may submit it. Variance
// is computed here, once, as declared minus expected. A second submission
// loses the compare-and-set and gets ErrConflict.
func (s *Service) Submit(ctx context.Context, id int64, actor *shared.Actor, cashCollected float64) (Reconciliation, error) {
	if actor == nil || actor.UserID == 0 {
		return Reconciliation{}, fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	if cashCollected < 0 {
		return Reconciliation{}, fmt.Errorf("%w: declared cash cannot be negative", shared.ErrValidation)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Reconciliation{}, err
	}
	if actor.AgentID == 0 || actor.AgentID != rec.AgentID {
		return Reconciliation{}, fmt.Errorf("%w: reconciliation %d belongs to agent %d", shared.ErrAuthorization, id, rec.AgentID)
	}
	period, err := rec.SettlementPeriod()
	if err != nil {
		return Reconciliation{}, err
	}
	summary, err := s.ledger.SummarizePeriod(ctx, rec.AgentID, period)
	if err != nil {
		return Reconciliation{}, err
	}
	snap := Snapshot{
		TotalLoaded:   summary.TotalLoaded,
		TotalSold:     summary.TotalSold,
		TotalReturned: summary.TotalReturned,
		ExpectedCash:  summary.ExpectedCash,
	}
	variance := round2(cashCollected - snap.ExpectedCash)
	now := time.Now().UTC()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.TransitionStatus(ctx, id, StatusPending, StatusSubmitted)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: reconciliation %d already submitted", shared.ErrConflict, id)
		}
		return tx.SetSubmission(ctx, id, snap, cashCollected, variance, actor.UserID, now)
	})
	if err != nil {
		return Reconciliation{}, err
	}

	rec.Status = StatusSubmitted
	rec.TotalLoaded = snap.TotalLoaded
	rec.TotalSold = snap.TotalSold
	rec.TotalReturned = snap.TotalReturned
	rec.ExpectedCash = snap.ExpectedCash
	rec.CashCollected = cashCollected
	rec.Variance = variance
	rec.SubmittedBy = actor.UserID
	rec.SubmittedAt = now

	s.recordApproval(ctx, id, actor.UserID, shared.ApprovalSubmit, fmt.Sprintf("period %s cash %.2f variance %.2f", rec.Period, cashCollected, variance))
	s.recordAudit(ctx, actor.UserID, "RECON_SUBMIT", id, map[string]any{"period": rec.Period, "variance": variance})
	return rec, nil
}

// Approve transitions SUBMITTED -> APPROVED. Approved records never change
// again.
func (s *Service) Approve(ctx context.Context, id, actorID int64) error {
	if actorID == 0 {
		return fmt.Errorf("%w: approver required", shared.ErrValidation)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.TransitionStatus(ctx, id, StatusSubmitted, StatusApproved)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: reconciliation %d is not awaiting approval", shared.ErrState, id)
		}
		return tx.SetApproval(ctx, id, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalApprove, fmt.Sprintf("period %s settled", rec.Period))
	s.recordAudit(ctx, actorID, "RECON_APPROVE", id, map[string]any{"period": rec.Period})
	return nil
}

// Dispute transitions SUBMITTED -> DISPUTED and opens a fresh PENDING cycle so
// the agent can resubmit. Notes are mandatory; the disputed snapshot stays on
// record.
func (s *Service) Dispute(ctx context.Context, id, actorID int64, notes string) (Reconciliation, error) {
	if notes == "" {
		return Reconciliation{}, fmt.Errorf("%w: dispute notes required", shared.ErrValidation)
	}
	if actorID == 0 {
		return Reconciliation{}, fmt.Errorf("%w: actor required", shared.ErrValidation)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Reconciliation{}, err
	}
	now := time.Now().UTC()
	var next Reconciliation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moved, err := tx.TransitionStatus(ctx, id, StatusSubmitted, StatusDisputed)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: reconciliation %d cannot be disputed", shared.ErrState, id)
		}
		if err := tx.SetDispute(ctx, id, actorID, now, notes); err != nil {
			return err
		}
		cycle, err := tx.MaxCycle(ctx, rec.AgentID, rec.Period)
		if err != nil {
			return err
		}
		nextID, err := tx.CreatePending(ctx, rec.AgentID, rec.Period, cycle+1)
		if err != nil {
			return err
		}
		next = Reconciliation{ID: nextID, AgentID: rec.AgentID, Period: rec.Period, Cycle: cycle + 1, Status: StatusPending, CreatedAt: now}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalDispute, notes)
	s.recordAudit(ctx, actorID, "RECON_DISPUTE", id, map[string]any{"period": rec.Period, "next_cycle": next.Cycle})
	return next, nil
}

// Get returns one reconciliation record.
func (s *Service) Get(ctx context.Context, id int64) (Reconciliation, error) {
	return s.repo.Get(ctx, id)
}

// List returns records matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Reconciliation, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordApproval(ctx context.Context, id, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "RECON",
		RefID:   shared.WorkflowRef("RECON", id),
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "reconciliation", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
