package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/pkg/database"
)

// Repository handles user persistence. Login and upsert lookups run before
// any identity is bound, so they are deliberately unfiltered; everything else
// goes through the isolation engine's self-scope predicate.
type Repository struct {
	db     database.Querier
	engine *isolation.Engine
}

// NewRepository creates an auth repository.
func NewRepository(db database.Querier, engine *isolation.Engine) *Repository {
	return &Repository{db: db, engine: engine}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Repository) WithTx(tx database.Querier) *Repository {
	return &Repository{db: tx, engine: r.engine}
}

// GetForLogin returns the account matching email (case-insensitive), for
// credential verification only. Runs pre-authentication, outside isolation.
func (r *Repository) GetForLogin(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, email, password_hash, is_active, created_at, updated_at
		FROM users WHERE LOWER(email) = LOWER($1)`
	var u models.User
	err := r.db.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetSelf returns the bound user's own record. The self-scope predicate means
// any other id yields no rows.
func (r *Repository) GetSelf(ctx context.Context, id uuid.UUID) (*models.User, error) {
	cond, condArgs := r.engine.UserRead(ctx, "u", 2)
	q := `SELECT u.id, u.email, u.password_hash, u.is_active, u.created_at, u.updated_at
		FROM users u WHERE u.id = $1 AND ` + cond
	args := append([]any{id}, condArgs...)
	var u models.User
	err := r.db.QueryRow(ctx, q, args...).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Exists reports whether a user row with the given id exists and is active.
// Used by the bearer middleware before any binding is trusted.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, bool, error) {
	const q = `SELECT is_active FROM users WHERE id = $1`
	var active bool
	err := r.db.QueryRow(ctx, q, id).Scan(&active)
	if database.IsNoRows(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, active, nil
}

// Count returns the total number of accounts. Gates first-user bootstrap.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// UpsertByEmail inserts a user or, when the email already exists, returns the
// existing id. Idempotent: the stored password hash is never overwritten.
func (r *Repository) UpsertByEmail(ctx context.Context, email, passwordHash string) (uuid.UUID, error) {
	const ins = `INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		ON CONFLICT ((LOWER(email))) DO NOTHING
		RETURNING id`
	var id uuid.UUID
	err := r.db.QueryRow(ctx, ins, email, passwordHash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !database.IsNoRows(err) {
		return uuid.Nil, err
	}
	err = r.db.QueryRow(ctx, `SELECT id FROM users WHERE LOWER(email) = LOWER($1)`, email).Scan(&id)
	return id, err
}

// UpdatePassword replaces the stored hash. The self-scope write guard means
// a zero-row update is a denial, not a missing row.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	cond, condArgs := r.engine.UserWrite(ctx, "u", 3)
	q := `UPDATE users AS u SET password_hash = $2, updated_at = NOW()
		WHERE u.id = $1 AND ` + cond
	args := append([]any{id, passwordHash}, condArgs...)
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return isolation.ErrDenied
	}
	return nil
}
