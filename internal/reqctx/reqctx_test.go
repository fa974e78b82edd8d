package reqctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUnboundContext(t *testing.T) {
	ctx := context.Background()

	_, ok := UserID(ctx)
	assert.False(t, ok)
	_, ok = TenantID(ctx)
	assert.False(t, ok)
}

func TestBindUserWithoutTenant(t *testing.T) {
	uid := uuid.New()
	ctx := WithUser(context.Background(), uid)

	got, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, uid, got)

	_, ok = TenantID(ctx)
	assert.False(t, ok, "binding a user must not imply a tenant")
}

func TestRebindOverwrites(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	ctx := WithTenant(WithUser(context.Background(), uuid.New()), first)
	ctx = WithTenant(ctx, second)

	got, ok := TenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, second, got)
}

func TestBindingsAreRequestLocal(t *testing.T) {
	base := context.Background()
	a := WithUser(base, uuid.New())

	// Deriving a from base must leave base untouched.
	_, ok := UserID(base)
	assert.False(t, ok)
	_, ok = UserID(a)
	assert.True(t, ok)
}
