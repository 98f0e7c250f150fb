// Package ledger derives an agent's stock and cash position from recorded
// movements and synced sales. Nothing here is stored; every figure is a sum
// over source rows, so the result is independent of the order in which the
// rows arrived.
package ledger

import "time"

// LoadRow is one released stock-load quantity credited to the agent.
type LoadRow struct {
	ProductID int64
	Qty       float64
}

// SaleRow is one synced invoice line sold by the agent.
type SaleRow struct {
	ProductID int64
	Qty       float64
	Value     float64
	Discount  float64
}

// ReturnRow is product handed back by a customer.
type ReturnRow struct {
	ProductID int64
	Qty       float64
	Value     float64
}

// DamageRow is product written off while held by the agent.
type DamageRow struct {
	ProductID int64
	Qty       float64
}

// SourceRows bundles everything the derivation consumes for one agent and
// window.
type SourceRows struct {
	Loads   []LoadRow
	Sales   []SaleRow
	Returns []ReturnRow
	Damages []DamageRow
}

// ProductLine is the per-product stock position inside a summary.
type ProductLine struct {
	ProductID   int64   `json:"product_id"`
	Loaded      float64 `json:"loaded"`
	Sold        float64 `json:"sold"`
	Returned    float64 `json:"returned"`
	Damaged     float64 `json:"damaged"`
	StockOnHand float64 `json:"stock_on_hand"`
}

// Summary is the derived position for one agent over [From, To).
type Summary struct {
	AgentID       int64         `json:"agent_id"`
	From          time.Time     `json:"from"`
	To            time.Time     `json:"to"`
	TotalLoaded   float64       `json:"total_loaded"`
	TotalSoldQty  float64       `json:"total_sold_qty"`
	TotalSold     float64       `json:"total_sold"`
	TotalDiscount float64       `json:"total_discount"`
	TotalReturned float64       `json:"total_returned"`
	ReturnedValue float64       `json:"returned_value"`
	TotalDamaged  float64       `json:"total_damaged"`
	StockOnHand   float64       `json:"stock_on_hand"`
	ExpectedCash  float64       `json:"expected_cash"`
	Lines         []ProductLine `json:"lines"`
}
