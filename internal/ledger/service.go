package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// SourcePort fetches derivation inputs.
type SourcePort interface {
	FetchSourceRows(ctx context.Context, agentID int64, from, to time.Time) (SourceRows, error)
}

// Service exposes ledger derivations to handlers and the reconciliation
// workflow.
type Service struct {
	source SourcePort
}

// NewService constructs the ledger service.
func NewService(source SourcePort) *Service {
	return &Service{source: source}
}

// Summarize derives the agent's position over [from, to).
func (s *Service) Summarize(ctx context.Context, agentID int64, from, to time.Time) (Summary, error) {
	if agentID == 0 {
		return Summary{}, fmt.Errorf("%w: agent required", shared.ErrValidation)
	}
	if !from.Before(to) {
		return Summary{}, fmt.Errorf("%w: window must be non-empty", shared.ErrValidation)
	}
	rows, err := s.source.FetchSourceRows(ctx, agentID, from, to)
	if err != nil {
		return Summary{}, err
	}
	return Derive(agentID, from, to, rows), nil
}

// SummarizePeriod derives the agent's position over a settlement period.
func (s *Service) SummarizePeriod(ctx context.Context, agentID int64, period shared.Period) (Summary, error) {
	from, to := period.Bounds()
	return s.Summarize(ctx, agentID, from, to)
}
