package inventory

import (
	"time"
)

// OwnerKind distinguishes who holds a stock balance.
type OwnerKind string

const (
	// OwnerWarehouse marks stock held in a warehouse.
	OwnerWarehouse OwnerKind = "WAREHOUSE"
	// OwnerAgent marks stock carried by a field agent.
	OwnerAgent OwnerKind = "AGENT"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementLoad moves stock from a warehouse onto an agent.
	MovementLoad MovementType = "LOAD"
	// MovementSale consumes agent-held stock against an invoice.
	MovementSale MovementType = "SALE"
	// MovementReturn moves unsold stock from an agent back to a warehouse.
	MovementReturn MovementType = "RETURN"
	// MovementDamage writes agent-held stock off as damaged.
	MovementDamage MovementType = "DAMAGE"
	// MovementAdjust indicates manual warehouse adjustments.
	MovementAdjust MovementType = "ADJUST"
)

// Balance summarises stock per owner per product.
type Balance struct {
	OwnerKind OwnerKind
	OwnerID   int64
	ProductID int64
	Qty       float64
	UpdatedAt time.Time
}

// Movement models one signed stock change against an owner.
type Movement struct {
	ID        int64
	Code      string
	Type      MovementType
	OwnerKind OwnerKind
	OwnerID   int64
	ProductID int64
	QtyChange float64
	Balance   float64
	RefModule string
	RefID     string
	Note      string
	Shortfall bool
	PostedAt  time.Time
	CreatedBy int64
}

// MovementInput describes a stock change to apply.
type MovementInput struct {
	Code      string
	Type      MovementType
	OwnerKind OwnerKind
	OwnerID   int64
	ProductID int64
	QtyChange float64
	RefModule string
	RefID     string
	Note      string
	ActorID   int64
	// AllowShortfall applies the movement even when it drives the balance
	// negative, marking the result instead of rejecting it. Used for offline
	// sales that already happened physically.
	AllowShortfall bool
}

// BalanceFilter narrows balance listings.
type BalanceFilter struct {
	OwnerKind OwnerKind
	OwnerID   int64
	ProductID int64
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	OwnerKind OwnerKind
	OwnerID   int64
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}
