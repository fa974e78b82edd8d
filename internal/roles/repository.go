package roles

import (
	"context"

	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/pkg/database"
)

// Repository handles role persistence including permission attachments.
// role_permissions rows never take a client-supplied tenant id; the tenant is
// always derived from the parent role inside the statement.
type Repository struct {
	db     database.Querier
	engine *isolation.Engine
}

// NewRepository creates a roles repository.
func NewRepository(db database.Querier, engine *isolation.Engine) *Repository {
	return &Repository{db: db, engine: engine}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Repository) WithTx(tx database.Querier) *Repository {
	return &Repository{db: tx, engine: r.engine}
}

const roleWithPermsSelect = `SELECT r.id, r.name, r.is_system, r.created_at,
	COALESCE(array_agg(rp.permission_code ORDER BY rp.permission_code)
		FILTER (WHERE rp.permission_code IS NOT NULL), '{}')
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id`

// List returns the tenant's roles with their permission codes sorted
// ascending.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]models.RoleWithPermissions, error) {
	cond, condArgs := r.engine.RoleRead(ctx, "r", 2)
	q := roleWithPermsSelect + `
		WHERE r.tenant_id = $1 AND ` + cond + `
		GROUP BY r.id
		ORDER BY r.name ASC`
	args := append([]any{tenantID}, condArgs...)
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoleWithPermissions
	for rows.Next() {
		var role models.RoleWithPermissions
		if err := rows.Scan(&role.ID, &role.Name, &role.IsSystem, &role.CreatedAt, &role.PermissionCodes); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// Get returns one role with its permission codes, pinned to the tenant.
func (r *Repository) Get(ctx context.Context, id, tenantID uuid.UUID) (*models.RoleWithPermissions, error) {
	cond, condArgs := r.engine.RoleRead(ctx, "r", 3)
	q := roleWithPermsSelect + `
		WHERE r.id = $1 AND r.tenant_id = $2 AND ` + cond + `
		GROUP BY r.id`
	args := append([]any{id, tenantID}, condArgs...)
	var role models.RoleWithPermissions
	err := r.db.QueryRow(ctx, q, args...).Scan(&role.ID, &role.Name, &role.IsSystem, &role.CreatedAt, &role.PermissionCodes)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// Create inserts a custom role under the write guard. A duplicate name in
// the tenant surfaces as a unique violation.
func (r *Repository) Create(ctx context.Context, tenantID uuid.UUID, name string) (uuid.UUID, error) {
	cond, condArgs := r.engine.RoleWrite(ctx, "$1", 3)
	q := `INSERT INTO roles (tenant_id, name, is_system)
		SELECT $1, $2, FALSE WHERE ` + cond + `
		RETURNING id`
	args := append([]any{tenantID, name}, condArgs...)
	var id uuid.UUID
	err := r.db.QueryRow(ctx, q, args...).Scan(&id)
	if database.IsNoRows(err) {
		return uuid.Nil, isolation.ErrDenied
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Rename changes a role's name.
func (r *Repository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	cond, condArgs := r.engine.RoleWrite(ctx, "r.tenant_id", 3)
	q := `UPDATE roles AS r SET name = $2, updated_at = NOW()
		WHERE r.id = $1 AND ` + cond
	args := append([]any{id, name}, condArgs...)
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return isolation.ErrDenied
	}
	return nil
}

// SetPermissions replaces a role's permission attachments with codes. The
// tenant id on each attachment comes from the parent role row, not from the
// caller.
func (r *Repository) SetPermissions(ctx context.Context, roleID uuid.UUID, codes []string) error {
	delCond, delArgs := r.engine.RolePermissionWrite(ctx, "rp.tenant_id", 2)
	delQ := `DELETE FROM role_permissions AS rp WHERE rp.role_id = $1 AND ` + delCond
	if _, err := r.db.Exec(ctx, delQ, append([]any{roleID}, delArgs...)...); err != nil {
		return err
	}
	for _, code := range codes {
		insCond, insArgs := r.engine.RoleWrite(ctx, "r.tenant_id", 3)
		q := `INSERT INTO role_permissions (role_id, permission_code, tenant_id)
			SELECT r.id, $2, r.tenant_id FROM roles r
			WHERE r.id = $1 AND ` + insCond + `
			ON CONFLICT DO NOTHING`
		tag, err := r.db.Exec(ctx, q, append([]any{roleID, code}, insArgs...)...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return isolation.ErrDenied
		}
	}
	return nil
}

// Delete removes a role. A role still referenced by memberships surfaces as
// a foreign-key violation.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	cond, condArgs := r.engine.RoleWrite(ctx, "r.tenant_id", 2)
	q := `DELETE FROM roles AS r WHERE r.id = $1 AND ` + cond
	args := append([]any{id}, condArgs...)
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return isolation.ErrDenied
	}
	return nil
}
