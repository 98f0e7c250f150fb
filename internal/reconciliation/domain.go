// Package reconciliation settles an agent's period: what was loaded, what was
// sold, and whether the cash handed in matches what the ledger expects.
package reconciliation

import (
	"time"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Status enumerates reconciliation lifecycle states.
type Status string

const (
	// StatusPending is an open record awaiting the agent's submission.
	StatusPending Status = "PENDING"
	// StatusSubmitted holds the agent's declared cash and the ledger snapshot.
	StatusSubmitted Status = "SUBMITTED"
	// StatusApproved records are immutable.
	StatusApproved Status = "APPROVED"
	// StatusDisputed records keep their snapshot; a fresh PENDING cycle takes
	// over.
	StatusDisputed Status = "DISPUTED"
)

// Reconciliation is one settlement record for an agent and period. A disputed
// period accumulates multiple records, one per cycle.
type Reconciliation struct {
	ID            int64
	AgentID       int64
	Period        string
	Cycle         int
	Status        Status
	TotalLoaded   float64
	TotalSold     float64
	TotalReturned float64
	CashCollected float64
	ExpectedCash  float64
	Variance      float64
	SubmittedBy   int64
	SubmittedAt   time.Time
	ApprovedBy    int64
	ApprovedAt    time.Time
	DisputedBy    int64
	DisputedAt    time.Time
	Notes         string
	CreatedAt     time.Time
}

// SettlementPeriod parses the record's period key.
func (r Reconciliation) SettlementPeriod() (shared.Period, error) {
	return shared.ParsePeriod(r.Period)
}

// Snapshot carries the ledger figures frozen at submission time.
type Snapshot struct {
	TotalLoaded   float64
	TotalSold     float64
	TotalReturned float64
	ExpectedCash  float64
}

// ListFilter narrows reconciliation listings.
type ListFilter struct {
	AgentID int64
	Period  string
	Status  Status
	Limit   int
	Offset  int
}
