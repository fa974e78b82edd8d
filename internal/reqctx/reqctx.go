// Package reqctx carries the per-request acting identity: the verified user
// and, for tenant-scoped routes, the selected tenant. The binding lives on
// the request's context.Context only, so concurrent requests can never
// observe each other's identity. The isolation engine and the resolvers read
// it from there; an absent binding means "no tenant", never "all tenants".
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	userKey ctxKey = iota
	tenantKey
)

// WithUser binds the acting user id. Rebinding overwrites the prior value.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// WithTenant binds the acting tenant id. Rebinding overwrites the prior value.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// UserID returns the bound user id, if any.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userKey).(uuid.UUID)
	return id, ok
}

// TenantID returns the bound tenant id, if any.
func TenantID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantKey).(uuid.UUID)
	return id, ok
}
