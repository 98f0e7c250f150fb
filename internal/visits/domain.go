// Package visits records field activity: customer visits and the journey
// plans they are expected to follow.
package visits

import "time"

// Outcome enumerates visit results.
type Outcome string

const (
	OutcomeSuccessful   Outcome = "SUCCESSFUL"
	OutcomeUnsuccessful Outcome = "UNSUCCESSFUL"
	OutcomeStoreClosed  Outcome = "STORE_CLOSED"
	OutcomeNoStock      Outcome = "NO_STOCK"
)

func (o Outcome) valid() bool {
	switch o {
	case OutcomeSuccessful, OutcomeUnsuccessful, OutcomeStoreClosed, OutcomeNoStock:
		return true
	}
	return false
}

// Visit is one customer call by an agent. Implausible marks visits whose
// reported position or time does not line up with the journey plan; the visit
// still counts.
type Visit struct {
	ID          int64
	AgentID     int64
	CustomerID  int64
	Outcome     Outcome
	InvoiceID   *int64
	Notes       string
	Lat         float64
	Lng         float64
	VisitedAt   time.Time
	Implausible bool
	CreatedAt   time.Time
}

// JourneyPlan is the ordered route an agent should work on one date.
type JourneyPlan struct {
	ID       int64
	AgentID  int64
	PlanDate time.Time
	Stops    []JourneyStop
}

// JourneyStop is one planned customer call.
type JourneyStop struct {
	ID         int64
	PlanID     int64
	Seq        int
	CustomerID int64
	Lat        float64
	Lng        float64
	CheckInAt  *time.Time
	CheckOutAt *time.Time
}

// VisitFilter narrows visit listings.
type VisitFilter struct {
	AgentID     int64
	CustomerID  int64
	Outcome     Outcome
	Implausible bool
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}
