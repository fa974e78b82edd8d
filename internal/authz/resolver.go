// Package authz answers "does user U belong to tenant T" and "may U perform
// permission P inside T". It is the application-layer half of the dual
// enforcement contract; the isolation engine is the data-layer half.
package authz

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/pkg/database"
)

var (
	// ErrNotAMember means the user has no membership in the tenant.
	ErrNotAMember = errors.New("not a member of this tenant")
	// ErrPermissionDenied means the membership's role lacks the permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// MembershipResolver resolves tenant membership. Callers must pass only the
// authenticated subject's user id; identity verification happens upstream in
// the token service.
type MembershipResolver struct {
	db database.Querier
}

// NewMembershipResolver creates a membership resolver.
func NewMembershipResolver(db database.Querier) *MembershipResolver {
	return &MembershipResolver{db: db}
}

// Resolve returns the role the user's membership carries in the tenant, or
// ErrNotAMember.
func (r *MembershipResolver) Resolve(ctx context.Context, tenantID, userID uuid.UUID) (*models.Role, error) {
	const q = `SELECT ro.id, ro.tenant_id, ro.name, ro.is_system, ro.created_at, ro.updated_at
		FROM memberships m
		JOIN roles ro ON ro.id = m.role_id
		WHERE m.tenant_id = $1 AND m.user_id = $2`
	var role models.Role
	err := r.db.QueryRow(ctx, q, tenantID, userID).
		Scan(&role.ID, &role.TenantID, &role.Name, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if database.IsNoRows(err) {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// PermissionResolver gates operations on flat permission grants. No role
// hierarchy: allowed iff the membership's role carries the code.
type PermissionResolver struct {
	db database.Querier
}

// NewPermissionResolver creates a permission resolver.
func NewPermissionResolver(db database.Querier) *PermissionResolver {
	return &PermissionResolver{db: db}
}

// Authorize returns nil when the user's role in the tenant carries the
// permission code, ErrPermissionDenied otherwise.
func (r *PermissionResolver) Authorize(ctx context.Context, tenantID, userID uuid.UUID, code string) error {
	const q = `SELECT 1
		FROM memberships m
		JOIN role_permissions rp ON rp.role_id = m.role_id
		WHERE m.tenant_id = $1 AND m.user_id = $2 AND rp.permission_code = $3
		LIMIT 1`
	var one int
	err := r.db.QueryRow(ctx, q, tenantID, userID, code).Scan(&one)
	if database.IsNoRows(err) {
		return ErrPermissionDenied
	}
	return err
}
