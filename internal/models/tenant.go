package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated customer workspace. Creating a tenant seeds its
// system roles in the same transaction.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleRef is a minimal role reference embedded in other payloads.
type RoleRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// TenantWithRole is a tenant paired with the caller's role in it, as returned
// by GET /tenants and login responses.
type TenantWithRole struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
	Role RoleRef   `json:"role"`
}
