package models

import (
	"time"

	"github.com/google/uuid"
)

// System role names seeded for every tenant.
const (
	SystemRoleOwner  = "Owner"
	SystemRoleAdmin  = "Admin"
	SystemRoleMember = "Member"
)

// Role belongs to exactly one tenant. Names are unique per tenant. System
// roles (Owner, Admin, Member) are created automatically on tenant creation.
type Role struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleWithPermissions is a role with its attached permission codes, sorted
// ascending, as returned by the roles endpoints.
type RoleWithPermissions struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	IsSystem        bool      `json:"is_system"`
	CreatedAt       time.Time `json:"created_at"`
	PermissionCodes []string  `json:"permission_codes"`
}
