package stockload

import (
	"time"
)

// Status enumerates the stock load lifecycle. APPROVED, RELEASED and REJECTED
// are terminal for further approval; a new request must be created for more
// stock.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusReleased  Status = "RELEASED"
	StatusRejected  Status = "REJECTED"
)

// StockLoad models one loading event for an agent.
type StockLoad struct {
	ID           int64
	Number       string
	AgentID      int64
	WarehouseID  int64
	Status       Status
	Note         string
	RequestedBy  int64
	RequestedAt  time.Time
	ApprovedBy   int64
	ApprovedAt   time.Time
	ReleasedBy   int64
	ReleasedAt   time.Time
	RejectedBy   int64
	RejectedAt   time.Time
	RejectReason string
}

// Item is a per-product line under a stock load. Approved and released
// quantities stay nil until the corresponding transition decides them, and are
// monotonically non-increasing: released <= approved <= requested.
type Item struct {
	ID           int64
	LoadID       int64
	ProductID    int64
	RequestedQty float64
	ApprovedQty  *float64
	ReleasedQty  *float64
}

// LineInput describes a requested product line.
type LineInput struct {
	ProductID int64
	Qty       float64
}

// QuantityDecision overrides the default quantity for one product during
// approval or release. Products without a decision carry the previous stage's
// quantity forward.
type QuantityDecision struct {
	ProductID int64
	Qty       float64
}

// ListFilter narrows stock load listings.
type ListFilter struct {
	AgentID int64
	Status  Status
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}
