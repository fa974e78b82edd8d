//go:build integration

package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitcrm/backend/internal/audit"
	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/provisioning"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/internal/testdb"
	"github.com/orbitcrm/backend/pkg/database"
)

// seedTenant bootstraps one tenant with an owner so the recorder's
// membership guard has something to match.
func seedTenant(t *testing.T, pool *pgxpool.Pool) *provisioning.BootstrapResult {
	t.Helper()
	w := provisioning.NewWorkflow(audit.NewRecorder(isolation.NewEngine()))
	var res *provisioning.BootstrapResult
	err := database.InTx(context.Background(), pool, func(tx pgx.Tx) error {
		var txErr error
		res, txErr = w.Bootstrap(context.Background(), tx, provisioning.BootstrapParams{
			TenantName:   "Acme",
			TenantSlug:   "acme",
			Email:        "owner@acme.test",
			PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceh",
		})
		return txErr
	})
	require.NoError(t, err)
	return res
}

func actionCount(t *testing.T, pool *pgxpool.Pool, action string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM audit_log WHERE action = $1`, action).Scan(&n))
	return n
}

func TestRecordRollsBackWithTheMutation(t *testing.T) {
	pool, cleanup := testdb.Setup(t)
	defer cleanup()
	seeded := seedTenant(t, pool)

	recorder := audit.NewRecorder(isolation.NewEngine())
	ctx := reqctx.WithTenant(reqctx.WithUser(context.Background(), seeded.UserID), seeded.TenantID)

	errDownstream := errors.New("downstream failure")
	err := database.InTx(ctx, pool, func(tx pgx.Tx) error {
		if _, txErr := tx.Exec(ctx,
			`UPDATE tenants SET name = 'Renamed' WHERE id = $1`, seeded.TenantID); txErr != nil {
			return txErr
		}
		if txErr := recorder.Record(ctx, tx, audit.Entry{
			TenantID:    seeded.TenantID,
			ActorUserID: seeded.UserID,
			Action:      models.AuditRoleUpdated,
			EntityType:  "tenant",
			After:       map[string]string{"name": "Renamed"},
		}); txErr != nil {
			return txErr
		}
		return errDownstream
	})
	require.ErrorIs(t, err, errDownstream)

	assert.Equal(t, 0, actionCount(t, pool, models.AuditRoleUpdated),
		"rolled-back mutation must leave no audit row")
	var name string
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT name FROM tenants WHERE id = $1`, seeded.TenantID).Scan(&name))
	assert.Equal(t, "Acme", name)
}

func TestRecordCommitsWithTheMutation(t *testing.T) {
	pool, cleanup := testdb.Setup(t)
	defer cleanup()
	seeded := seedTenant(t, pool)

	recorder := audit.NewRecorder(isolation.NewEngine())
	ctx := reqctx.WithTenant(reqctx.WithUser(context.Background(), seeded.UserID), seeded.TenantID)

	err := database.InTx(ctx, pool, func(tx pgx.Tx) error {
		if _, txErr := tx.Exec(ctx,
			`UPDATE tenants SET name = 'Renamed' WHERE id = $1`, seeded.TenantID); txErr != nil {
			return txErr
		}
		return recorder.Record(ctx, tx, audit.Entry{
			TenantID:    seeded.TenantID,
			ActorUserID: seeded.UserID,
			Action:      models.AuditRoleUpdated,
			EntityType:  "tenant",
			After:       map[string]string{"name": "Renamed"},
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, actionCount(t, pool, models.AuditRoleUpdated))
}

func TestRecordDeniesUnboundContext(t *testing.T) {
	pool, cleanup := testdb.Setup(t)
	defer cleanup()
	seeded := seedTenant(t, pool)

	recorder := audit.NewRecorder(isolation.NewEngine())
	err := recorder.Record(context.Background(), pool, audit.Entry{
		TenantID:    seeded.TenantID,
		ActorUserID: seeded.UserID,
		Action:      models.AuditMemberCreated,
		EntityType:  "member",
	})
	require.ErrorIs(t, err, isolation.ErrDenied)
	assert.Equal(t, 0, actionCount(t, pool, models.AuditMemberCreated))
}
