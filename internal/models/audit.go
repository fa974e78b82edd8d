package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit action tags. Fixed dotted vocabulary; new actions get a constant here.
const (
	AuditTenantCreated   = "tenant.created"
	AuditRoleCreated     = "role.created"
	AuditRoleUpdated     = "role.updated"
	AuditRoleDeleted     = "role.deleted"
	AuditMemberCreated   = "member.created"
	AuditMemberUpdated   = "member.updated"
	AuditMemberRemoved   = "member.removed"
	AuditExportRequested = "audit.exported"
)

// AuditLogEntry is an immutable record of a privileged mutation, written in
// the same transaction as the mutation itself. Never updated or deleted by
// application code.
type AuditLogEntry struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	ActorUserID uuid.UUID       `json:"actor_user_id"`
	ActorEmail  string          `json:"actor_email,omitempty"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    *uuid.UUID      `json:"entity_id,omitempty"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
