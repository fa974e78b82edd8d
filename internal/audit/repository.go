package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/pkg/database"
)

// Repository reads the audit trail. Every query carries the engine's
// tenant-scope predicate, so a foreign or absent binding yields no rows.
type Repository struct {
	db     database.Querier
	engine *isolation.Engine
}

// NewRepository creates an audit repository.
func NewRepository(db database.Querier, engine *isolation.Engine) *Repository {
	return &Repository{db: db, engine: engine}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Repository) WithTx(tx database.Querier) *Repository {
	return &Repository{db: tx, engine: r.engine}
}

// ListOptions filter and paginate the audit listing.
type ListOptions struct {
	Query      string
	EntityType string
	Limit      int
	Cursor     *Cursor
}

const listColumns = `a.id, a.tenant_id, a.actor_user_id, COALESCE(u.email, ''), a.action,
		a.entity_type, a.entity_id, a.before, a.after, a.created_at`

// List returns up to opts.Limit entries ordered by (created_at DESC, id DESC),
// continuing strictly after opts.Cursor when set.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]models.AuditLogEntry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if opts.EntityType != "" {
		where = append(where, "a.entity_type = "+arg(opts.EntityType))
	}
	if opts.Query != "" {
		p := arg("%" + opts.Query + "%")
		where = append(where, fmt.Sprintf("(a.action ILIKE %s OR a.entity_type ILIKE %s OR u.email ILIKE %s)", p, p, p))
	}
	if opts.Cursor != nil {
		where = append(where, fmt.Sprintf("(a.created_at, a.id) < (%s, %s)",
			arg(opts.Cursor.CreatedAt), arg(opts.Cursor.ID)))
	}

	cond, condArgs := r.engine.AuditRead(ctx, "a", len(args)+1)
	where = append(where, cond)
	args = append(args, condArgs...)

	q := fmt.Sprintf(`SELECT %s
		FROM audit_log a
		LEFT JOIN users u ON u.id = a.actor_user_id
		WHERE %s
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT %s`, listColumns, strings.Join(where, " AND "), arg(opts.Limit))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorUserID, &e.ActorEmail, &e.Action,
			&e.EntityType, &e.EntityID, &e.Before, &e.After, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ForEach streams every entry of the bound tenant in (created_at, id)
// ascending order, for export archives.
func (r *Repository) ForEach(ctx context.Context, tenantID uuid.UUID, fn func(models.AuditLogEntry) error) error {
	cond, condArgs := r.engine.AuditRead(ctx, "a", 2)
	q := fmt.Sprintf(`SELECT %s
		FROM audit_log a
		LEFT JOIN users u ON u.id = a.actor_user_id
		WHERE a.tenant_id = $1 AND %s
		ORDER BY a.created_at ASC, a.id ASC`, listColumns, cond)
	args := append([]any{tenantID}, condArgs...)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorUserID, &e.ActorEmail, &e.Action,
			&e.EntityType, &e.EntityID, &e.Before, &e.After, &e.CreatedAt); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}
