// Package returns registers stock an agent hands back to a warehouse and
// write-offs for goods damaged in the field. Both feed the agent's settlement
// ledger: returns credit the expected cash, damages only reduce held stock.
package returns

import "time"

// Return is one product an agent handed back. Value is the credit applied
// against the agent's expected cash for the period.
type Return struct {
	ID          int64     `json:"id"`
	AgentID     int64     `json:"agent_id"`
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Qty         float64   `json:"qty"`
	Value       float64   `json:"value"`
	RecordedBy  int64     `json:"recorded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Damage is one written-off product. The stock leaves the agent's balance and
// goes nowhere.
type Damage struct {
	ID         int64     `json:"id"`
	AgentID    int64     `json:"agent_id"`
	ProductID  int64     `json:"product_id"`
	Qty        float64   `json:"qty"`
	Note       string    `json:"note"`
	RecordedBy int64     `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListFilter narrows return and damage listings.
type ListFilter struct {
	AgentID int64
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}
