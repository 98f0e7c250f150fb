// Package rbac guards routes by the roles carried on the authenticated actor.
package rbac

import "time"

// Role represents a high-level capability grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// Well-known role names. Stored lowercase in the roles table.
const (
	RoleCompanyOwner = "company_owner"
	RoleITAdmin      = "it_admin"
	RoleSupervisor   = "supervisor"
	RoleWarehouse    = "warehouse_manager"
	RoleAgent        = "agent"
)
