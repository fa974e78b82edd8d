package members

import (
	"context"

	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/pkg/database"
)

// Repository handles membership persistence for one tenant at a time. Reads
// carry the membership visibility predicate; writes run under the tenant
// write guard, so a zero-row result means the guard rejected the statement.
type Repository struct {
	db     database.Querier
	engine *isolation.Engine
}

// NewRepository creates a members repository.
func NewRepository(db database.Querier, engine *isolation.Engine) *Repository {
	return &Repository{db: db, engine: engine}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Repository) WithTx(tx database.Querier) *Repository {
	return &Repository{db: tx, engine: r.engine}
}

// List returns the tenant's members with user and role details.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]models.Member, error) {
	cond, condArgs := r.engine.MembershipRead(ctx, "m", 2)
	q := `SELECT m.id, m.user_id, u.email, m.role_id, ro.name, m.created_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		JOIN roles ro ON ro.id = m.role_id
		WHERE m.tenant_id = $1 AND ` + cond + `
		ORDER BY u.email ASC`
	args := append([]any{tenantID}, condArgs...)
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.RoleID, &m.RoleName, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get returns one member row by membership id, pinned to the tenant. The
// visibility predicate alone would also show the bound user's own
// memberships in other tenants; the explicit tenant match keeps those out.
func (r *Repository) Get(ctx context.Context, id, tenantID uuid.UUID) (*models.Member, error) {
	cond, condArgs := r.engine.MembershipRead(ctx, "m", 3)
	q := `SELECT m.id, m.user_id, u.email, m.role_id, ro.name, m.created_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		JOIN roles ro ON ro.id = m.role_id
		WHERE m.id = $1 AND m.tenant_id = $2 AND ` + cond
	args := append([]any{id, tenantID}, condArgs...)
	var m models.Member
	err := r.db.QueryRow(ctx, q, args...).Scan(&m.ID, &m.UserID, &m.Email, &m.RoleID, &m.RoleName, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RoleInTenant reports whether the role exists in the tenant and is visible
// to the bound user.
func (r *Repository) RoleInTenant(ctx context.Context, roleID, tenantID uuid.UUID) (bool, error) {
	cond, condArgs := r.engine.RoleRead(ctx, "r", 3)
	q := `SELECT 1 FROM roles r WHERE r.id = $1 AND r.tenant_id = $2 AND ` + cond
	args := append([]any{roleID, tenantID}, condArgs...)
	var one int
	err := r.db.QueryRow(ctx, q, args...).Scan(&one)
	if database.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create inserts a membership under the write guard. Returns
// isolation.ErrDenied when the guard rejects the insert; a duplicate
// membership surfaces as a unique violation.
func (r *Repository) Create(ctx context.Context, tenantID, userID, roleID uuid.UUID) (uuid.UUID, error) {
	cond, condArgs := r.engine.MembershipWrite(ctx, "$1", 4)
	q := `INSERT INTO memberships (tenant_id, user_id, role_id)
		SELECT $1, $2, $3 WHERE ` + cond + `
		RETURNING id`
	args := append([]any{tenantID, userID, roleID}, condArgs...)
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

// UpdateRole changes the role a membership carries.
func (r *Repository) UpdateRole(ctx context.Context, id, roleID uuid.UUID) error {
	cond, condArgs := r.engine.MembershipWrite(ctx, "m.tenant_id", 3)
	q := `UPDATE memberships AS m SET role_id = $2, updated_at = NOW()
		WHERE m.id = $1 AND ` + cond
	args := append([]any{id, roleID}, condArgs...)
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return isolation.ErrDenied
	}
	return nil
}

// Delete removes a membership.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	cond, condArgs := r.engine.MembershipWrite(ctx, "m.tenant_id", 2)
	q := `DELETE FROM memberships AS m WHERE m.id = $1 AND ` + cond
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
