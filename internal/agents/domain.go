// Package agents holds the field agent master data.
package agents

import "time"

// Capabilities are the per-agent permissions toggled by supervisors.
type Capabilities struct {
	CanGiveDiscounts  bool `json:"can_give_discounts"`
	CanAddClients     bool `json:"can_add_clients"`
	CanProcessReturns bool `json:"can_process_returns"`
}

// Agent is one field seller. Agents are deactivated, never deleted, because
// ledger history references them.
type Agent struct {
	ID           int64        `json:"id"`
	UserID       int64        `json:"user_id"`
	Name         string       `json:"name"`
	Phone        string       `json:"phone"`
	Region       string       `json:"region"`
	Capabilities Capabilities `json:"capabilities"`
	TargetValue  float64      `json:"target_value"`
	Active       bool         `json:"active"`
	LastLat      *float64     `json:"last_lat,omitempty"`
	LastLng      *float64     `json:"last_lng,omitempty"`
	LastSeenAt   *time.Time   `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ListFilter narrows agent listings.
type ListFilter struct {
	Region     string
	ActiveOnly bool
	Limit      int
	Offset     int
}
