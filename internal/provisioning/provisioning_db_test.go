//go:build integration

package provisioning_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitcrm/backend/internal/audit"
	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/provisioning"
	"github.com/orbitcrm/backend/internal/testdb"
	"github.com/orbitcrm/backend/pkg/database"
)

func newWorkflow() *provisioning.Workflow {
	return provisioning.NewWorkflow(audit.NewRecorder(isolation.NewEngine()))
}

func runBootstrap(t *testing.T, pool *pgxpool.Pool, w *provisioning.Workflow, name, slug, email string) *provisioning.BootstrapResult {
	t.Helper()
	var res *provisioning.BootstrapResult
	err := database.InTx(context.Background(), pool, func(tx pgx.Tx) error {
		var txErr error
		res, txErr = w.Bootstrap(context.Background(), tx, provisioning.BootstrapParams{
			TenantName:   name,
			TenantSlug:   slug,
			Email:        email,
			PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceh",
		})
		return txErr
	})
	require.NoError(t, err)
	return res
}

func countRows(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), sql, args...).Scan(&n))
	return n
}

func TestBootstrapReusesAccountByEmail(t *testing.T) {
	pool, cleanup := testdb.Setup(t)
	defer cleanup()
	w := newWorkflow()

	first := runBootstrap(t, pool, w, "Acme", "acme", "owner@acme.test")
	second := runBootstrap(t, pool, w, "Beta", "beta", "owner@acme.test")

	assert.Equal(t, first.UserID, second.UserID, "same email must resolve to one account")
	assert.NotEqual(t, first.TenantID, second.TenantID)

	assert.Equal(t, 1, countRows(t, pool,
		`SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER($1)`, "owner@acme.test"))
	for _, tenantID := range []uuid.UUID{first.TenantID, second.TenantID} {
		assert.Equal(t, 1, countRows(t, pool,
			`SELECT COUNT(*) FROM memberships WHERE tenant_id = $1 AND user_id = $2`,
			tenantID, first.UserID))
	}
}

func TestSeedSystemRolesIsIdempotent(t *testing.T) {
	pool, cleanup := testdb.Setup(t)
	defer cleanup()
	w := newWorkflow()

	res := runBootstrap(t, pool, w, "Acme", "acme", "owner@acme.test")

	rolesBefore := countRows(t, pool,
		`SELECT COUNT(*) FROM roles WHERE tenant_id = $1`, res.TenantID)
	grantsBefore := countRows(t, pool,
		`SELECT COUNT(*) FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id WHERE r.tenant_id = $1`, res.TenantID)
	require.Equal(t, 3, rolesBefore)
	require.Positive(t, grantsBefore)

	err := database.InTx(context.Background(), pool, func(tx pgx.Tx) error {
		return provisioning.SeedSystemRoles(context.Background(), tx, res.TenantID)
	})
	require.NoError(t, err)

	assert.Equal(t, rolesBefore, countRows(t, pool,
		`SELECT COUNT(*) FROM roles WHERE tenant_id = $1`, res.TenantID))
	assert.Equal(t, grantsBefore, countRows(t, pool,
		`SELECT COUNT(*) FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id WHERE r.tenant_id = $1`, res.TenantID))
}

func TestBootstrapSlugConflictLeavesNoPartialRows(t *testing.T) {
	pool, cleanup := testdb.Setup(t)
	defer cleanup()
	w := newWorkflow()

	runBootstrap(t, pool, w, "Acme", "acme", "owner@acme.test")
	users := countRows(t, pool, `SELECT COUNT(*) FROM users`)
	tenants := countRows(t, pool, `SELECT COUNT(*) FROM tenants`)
	auditRows := countRows(t, pool, `SELECT COUNT(*) FROM audit_log`)

	err := database.InTx(context.Background(), pool, func(tx pgx.Tx) error {
		_, txErr := w.Bootstrap(context.Background(), tx, provisioning.BootstrapParams{
			TenantName:   "Acme Again",
			TenantSlug:   "acme",
			Email:        "second@acme.test",
			PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceh",
		})
		return txErr
	})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	assert.Equal(t, users, countRows(t, pool, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, tenants, countRows(t, pool, `SELECT COUNT(*) FROM tenants`))
	assert.Equal(t, auditRows, countRows(t, pool, `SELECT COUNT(*) FROM audit_log`))
}
