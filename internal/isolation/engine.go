// Package isolation is the data-layer row filter for tenant-scoped tables.
// Every repository read appends a table predicate rendered from the bound
// request context, and every repository write runs under a guard condition,
// independently of the application-layer permission gate. A logic bug above
// this layer can therefore still not reach another tenant's rows.
//
// Predicates are plain SQL boolean fragments with positional arguments
// numbered from a caller-supplied offset, so they compose with hand-written
// repository queries. An unbound context renders the constant FALSE: absence
// of context means "no tenant", never "all tenants".
package isolation

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbitcrm/backend/internal/reqctx"
)

// ErrDenied is returned by repositories when a write guard rejected the
// statement (zero rows affected on a row that exists outside the allowed set,
// or an insert whose guard condition evaluated to false).
var ErrDenied = errors.New("isolation: operation denied for bound context")

// DenyAll is the predicate rendered when the bound context cannot possibly
// match any row.
const DenyAll = "FALSE"

// Engine renders per-table predicates from the request context. It is
// stateless; one instance is shared by all repositories.
type Engine struct{}

// NewEngine creates the isolation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// memberExists renders an EXISTS probe for membership of userArg in the
// tenant given by tenantExpr (a column reference or a placeholder).
func memberExists(tenantExpr, userArg string) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM memberships ms WHERE ms.tenant_id = %s AND ms.user_id = %s)",
		tenantExpr, userArg,
	)
}

// TenantRead restricts rows of the tenants table (aliased) to tenants the
// bound user is a member of.
func (e *Engine) TenantRead(ctx context.Context, alias string, argn int) (string, []any) {
	uid, ok := reqctx.UserID(ctx)
	if !ok {
		return DenyAll, nil
	}
	return memberExists(alias+".id", fmt.Sprintf("$%d", argn)), []any{uid}
}

// UserRead restricts rows of the users table to the bound user's own record.
func (e *Engine) UserRead(ctx context.Context, alias string, argn int) (string, []any) {
	uid, ok := reqctx.UserID(ctx)
	if !ok {
		return DenyAll, nil
	}
	return fmt.Sprintf("%s.id = $%d", alias, argn), []any{uid}
}

// UserWrite allows updates to the bound user's own record only.
func (e *Engine) UserWrite(ctx context.Context, alias string, argn int) (string, []any) {
	return e.UserRead(ctx, alias, argn)
}

// RoleRead makes a tenant's roles visible to that tenant's members.
func (e *Engine) RoleRead(ctx context.Context, alias string, argn int) (string, []any) {
	uid, ok := reqctx.UserID(ctx)
	if !ok {
		return DenyAll, nil
	}
	return memberExists(alias+".tenant_id", fmt.Sprintf("$%d", argn)), []any{uid}
}

// RoleWrite guards role inserts, updates and deletes: the row's tenant (given
// by tenantExpr, either a column reference or an existing placeholder) must
// equal the bound tenant, and the bound user must be a member of it.
func (e *Engine) RoleWrite(ctx context.Context, tenantExpr string, argn int) (string, []any) {
	return e.tenantWrite(ctx, tenantExpr, argn)
}

// RolePermissionRead applies the tenant-scoped rule to role_permissions rows.
func (e *Engine) RolePermissionRead(ctx context.Context, alias string, argn int) (string, []any) {
	return e.tenantScoped(ctx, alias+".tenant_id", argn)
}

// RolePermissionWrite guards role_permissions writes.
func (e *Engine) RolePermissionWrite(ctx context.Context, tenantExpr string, argn int) (string, []any) {
	return e.tenantWrite(ctx, tenantExpr, argn)
}

// MembershipRead makes a membership row visible when it is the bound user's
// own, or when it belongs to the bound tenant and the bound user is a member
// of that tenant.
func (e *Engine) MembershipRead(ctx context.Context, alias string, argn int) (string, []any) {
	uid, ok := reqctx.UserID(ctx)
	if !ok {
		return DenyAll, nil
	}
	self := fmt.Sprintf("%s.user_id = $%d", alias, argn)
	args := []any{uid}

	tid, ok := reqctx.TenantID(ctx)
	if !ok {
		return "(" + self + ")", args
	}
	scoped := fmt.Sprintf("%s.tenant_id = $%d AND %s",
		alias, argn+1, memberExists(fmt.Sprintf("$%d", argn+1), fmt.Sprintf("$%d", argn)))
	return fmt.Sprintf("(%s OR (%s))", self, scoped), append(args, tid)
}

// MembershipWrite guards membership inserts, updates and deletes.
func (e *Engine) MembershipWrite(ctx context.Context, tenantExpr string, argn int) (string, []any) {
	return e.tenantWrite(ctx, tenantExpr, argn)
}

// AuditRead applies the tenant-scoped rule to audit_log rows.
func (e *Engine) AuditRead(ctx context.Context, alias string, argn int) (string, []any) {
	return e.tenantScoped(ctx, alias+".tenant_id", argn)
}

// AuditWrite guards audit_log inserts.
func (e *Engine) AuditWrite(ctx context.Context, tenantExpr string, argn int) (string, []any) {
	return e.tenantWrite(ctx, tenantExpr, argn)
}

// tenantScoped renders: row tenant == bound tenant AND bound user is a
// member of the bound tenant. Both bindings are required.
func (e *Engine) tenantScoped(ctx context.Context, tenantCol string, argn int) (string, []any) {
	return e.tenantWrite(ctx, tenantCol, argn)
}

// tenantWrite is tenantScoped with the row tenant supplied as an arbitrary
// SQL expression (column reference for UPDATE/DELETE, placeholder for
// INSERT ... SELECT).
func (e *Engine) tenantWrite(ctx context.Context, tenantExpr string, argn int) (string, []any) {
	uid, okU := reqctx.UserID(ctx)
	tid, okT := reqctx.TenantID(ctx)
	if !okU || !okT {
		return DenyAll, nil
	}
	cond := fmt.Sprintf("%s = $%d AND %s",
		tenantExpr, argn, memberExists(fmt.Sprintf("$%d", argn), fmt.Sprintf("$%d", argn+1)))
	return cond, []any{tid, uid}
}
