// Package provisioning runs the multi-step tenant creation flows: tenant row,
// system role seeding, owner account, owner membership and the audit entry,
// all against one transaction so a failed step never leaves a partial tenant.
package provisioning

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/audit"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/database"
)

// Workflow orchestrates provisioning. Methods take the caller's transaction;
// they never commit or roll back themselves.
type Workflow struct {
	recorder *audit.Recorder
}

// NewWorkflow creates a provisioning workflow.
func NewWorkflow(recorder *audit.Recorder) *Workflow {
	return &Workflow{recorder: recorder}
}

// BootstrapParams describes the first tenant and its owner account.
type BootstrapParams struct {
	TenantName   string
	TenantSlug   string
	Email        string
	PasswordHash string
}

// BootstrapResult reports what Bootstrap created or reused.
type BootstrapResult struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// Bootstrap creates a tenant with its seeded system roles, upserts the owner
// account by email, and grants it the Owner membership. Safe to retry: every
// step is an upsert except the tenant insert, whose slug collision surfaces
// as a unique violation for the caller to map.
func (w *Workflow) Bootstrap(ctx context.Context, tx database.Querier, p BootstrapParams) (*BootstrapResult, error) {
	tenantID, err := createTenant(ctx, tx, p.TenantName, p.TenantSlug)
	if err != nil {
		return nil, err
	}
	if err := SeedSystemRoles(ctx, tx, tenantID); err != nil {
		return nil, err
	}
	userID, err := upsertUser(ctx, tx, p.Email, p.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("upsert owner: %w", err)
	}
	if err := grantOwner(ctx, tx, tenantID, userID); err != nil {
		return nil, err
	}
	// The new owner is the actor of the provisioning entry. Bind after the
	// membership insert so the recorder's membership probe sees it in-tx.
	bound := reqctx.WithTenant(reqctx.WithUser(ctx, userID), tenantID)
	if err := w.recordCreated(bound, tx, tenantID, userID, p.TenantName, p.TenantSlug); err != nil {
		return nil, err
	}
	return &BootstrapResult{TenantID: tenantID, UserID: userID}, nil
}

// ProvisionTenant creates an additional tenant owned by an existing user.
func (w *Workflow) ProvisionTenant(ctx context.Context, tx database.Querier, name, slug string, ownerID uuid.UUID) (uuid.UUID, error) {
	tenantID, err := createTenant(ctx, tx, name, slug)
	if err != nil {
		return uuid.Nil, err
	}
	if err := SeedSystemRoles(ctx, tx, tenantID); err != nil {
		return uuid.Nil, err
	}
	if err := grantOwner(ctx, tx, tenantID, ownerID); err != nil {
		return uuid.Nil, err
	}
	bound := reqctx.WithTenant(ctx, tenantID)
	if err := w.recordCreated(bound, tx, tenantID, ownerID, name, slug); err != nil {
		return uuid.Nil, err
	}
	return tenantID, nil
}

func (w *Workflow) recordCreated(ctx context.Context, tx database.Querier, tenantID, actorID uuid.UUID, name, slug string) error {
	id := tenantID
	return w.recorder.Record(ctx, tx, audit.Entry{
		TenantID:    tenantID,
		ActorUserID: actorID,
		Action:      models.AuditTenantCreated,
		EntityType:  "tenant",
		EntityID:    &id,
		After:       map[string]string{"name": name, "slug": slug},
	})
}

// upsertUser inserts the owner account or reuses the existing one matching
// the email. A stored password hash is never overwritten.
func upsertUser(ctx context.Context, q database.Querier, email, passwordHash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx,
		`INSERT INTO users (email, password_hash)
		 VALUES ($1, $2)
		 ON CONFLICT ((LOWER(email))) DO NOTHING
		 RETURNING id`,
		email, passwordHash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !database.IsNoRows(err) {
		return uuid.Nil, err
	}
	err = q.QueryRow(ctx, `SELECT id FROM users WHERE LOWER(email) = LOWER($1)`, email).Scan(&id)
	return id, err
}

func createTenant(ctx context.Context, q database.Querier, name, slug string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx,
		`INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING id`,
		name, slug).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// systemRoleNames fixes seeding order so retries replay identically.
var systemRoleNames = []string{models.SystemRoleOwner, models.SystemRoleAdmin, models.SystemRoleMember}

// SystemRoleGrants returns the permission codes seeded onto each system role.
// Owner and Admin get a snapshot of the full catalog; Member gets the minimal
// read set. Codes added to the catalog later are not granted retroactively.
func SystemRoleGrants() map[string][]string {
	catalog := models.PermissionCatalog()
	full := make([]string, len(catalog))
	for i, p := range catalog {
		full[i] = p.Code
	}
	return map[string][]string{
		models.SystemRoleOwner:  full,
		models.SystemRoleAdmin:  full,
		models.SystemRoleMember: models.MemberRolePermissions(),
	}
}

// SeedSystemRoles creates the Owner/Admin/Member roles for a tenant and
// attaches their permission grants. Idempotent: reruns leave existing rows
// untouched.
func SeedSystemRoles(ctx context.Context, q database.Querier, tenantID uuid.UUID) error {
	grants := SystemRoleGrants()
	for _, name := range systemRoleNames {
		_, err := q.Exec(ctx,
			`INSERT INTO roles (tenant_id, name, is_system) VALUES ($1, $2, TRUE)
			 ON CONFLICT (tenant_id, name) DO NOTHING`,
			tenantID, name)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
		var roleID uuid.UUID
		err = q.QueryRow(ctx,
			`SELECT id FROM roles WHERE tenant_id = $1 AND name = $2`,
			tenantID, name).Scan(&roleID)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
		for _, code := range grants[name] {
			_, err := q.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_code, tenant_id)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				roleID, code, tenantID)
			if err != nil {
				return fmt.Errorf("grant %s to %s: %w", code, name, err)
			}
		}
	}
	return nil
}

func grantOwner(ctx context.Context, q database.Querier, tenantID, userID uuid.UUID) error {
	var roleID uuid.UUID
	err := q.QueryRow(ctx,
		`SELECT id FROM roles WHERE tenant_id = $1 AND name = $2`,
		tenantID, models.SystemRoleOwner).Scan(&roleID)
	if err != nil {
		return fmt.Errorf("owner role missing after seeding: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO memberships (tenant_id, user_id, role_id) VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		tenantID, userID, roleID)
	if err != nil {
		return fmt.Errorf("grant owner membership: %w", err)
	}
	return nil
}
