package tenants

import (
	"context"

	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/pkg/database"
)

// Repository handles tenant persistence.
type Repository struct {
	db     database.Querier
	engine *isolation.Engine
}

// NewRepository creates a tenants repository.
func NewRepository(db database.Querier, engine *isolation.Engine) *Repository {
	return &Repository{db: db, engine: engine}
}

// ListForUser returns every tenant the user belongs to with the role that
// membership carries. Runs before a tenant is bound, so it scopes by the
// membership join rather than the isolation predicate.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.TenantWithRole, error) {
	const q = `SELECT t.id, t.name, t.slug, ro.id, ro.name
		FROM tenants t
		JOIN memberships m ON m.tenant_id = t.id
		JOIN roles ro ON ro.id = m.role_id
		WHERE m.user_id = $1
		ORDER BY t.name ASC, t.id ASC`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TenantWithRole
	for rows.Next() {
		var t models.TenantWithRole
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Role.ID, &t.Role.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get returns one tenant, visible only to its members.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	cond, condArgs := r.engine.TenantRead(ctx, "t", 2)
	q := `SELECT t.id, t.name, t.slug, t.created_at, t.updated_at
		FROM tenants t WHERE t.id = $1 AND ` + cond
	args := append([]any{id}, condArgs...)
	var t models.Tenant
	err := r.db.QueryRow(ctx, q, args...).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
