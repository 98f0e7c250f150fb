// Package kpi computes the dashboard indicators for field agents. The math is
// in pure functions; a redis cache in front keeps the dashboard cheap.
package kpi

import "time"

// Inputs are the raw counts a snapshot is computed from.
type Inputs struct {
	Visits           int     `json:"visits"`
	SuccessfulVisits int     `json:"successful_visits"`
	InvoiceCount     int     `json:"invoice_count"`
	SalesValue       float64 `json:"sales_value"`
	ValueTarget      float64 `json:"value_target"`
}

// Metrics are the derived indicators.
type Metrics struct {
	Productivity  float64 `json:"productivity"`
	StrikeRate    float64 `json:"strike_rate"`
	DropSize      float64 `json:"drop_size"`
	TargetPercent float64 `json:"target_percent"`
	CartonTarget  float64 `json:"carton_target"`
	TonnageTarget float64 `json:"tonnage_target"`
}

// Snapshot is one agent's computed KPI set for a period.
type Snapshot struct {
	AgentID    int64     `json:"agent_id"`
	Period     string    `json:"period"`
	Inputs     Inputs    `json:"inputs"`
	Metrics    Metrics   `json:"metrics"`
	ComputedAt time.Time `json:"computed_at"`
}

// TargetPolicy derives volume and weight targets from the value target. The
// divisor and carton weight are tenant configuration, not business constants.
type TargetPolicy struct {
	ValuePerCarton float64
	TonsPerCarton  float64
}

// DefaultTargetPolicy mirrors the historical heuristic: one carton per 100
// value units, half a ton per carton.
func DefaultTargetPolicy() TargetPolicy {
	return TargetPolicy{ValuePerCarton: 100, TonsPerCarton: 0.5}
}

// CartonTarget converts a value target into cartons.
func (p TargetPolicy) CartonTarget(valueTarget float64) float64 {
	if p.ValuePerCarton <= 0 {
		return 0
	}
	return valueTarget / p.ValuePerCarton
}

// TonnageTarget converts a value target into tons.
func (p TargetPolicy) TonnageTarget(valueTarget float64) float64 {
	return p.CartonTarget(valueTarget) * p.TonsPerCarton
}
