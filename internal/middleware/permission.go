package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/authz"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/response"
)

// PermissionAuthorizer decides whether a user may perform a permission code
// inside a tenant. Satisfied by *authz.PermissionResolver.
type PermissionAuthorizer interface {
	Authorize(ctx context.Context, tenantID, userID uuid.UUID, code string) error
}

// RequirePermission returns a middleware gating the route on one permission
// code. Must run after Bearer and Tenant; an unbound context is a server bug
// and is rejected, never waved through.
func RequirePermission(perms PermissionAuthorizer, code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID, okUser := reqctx.UserID(ctx)
		tenantID, okTenant := reqctx.TenantID(ctx)
		if !okUser || !okTenant {
			response.Forbidden(c, "no tenant bound")
			c.Abort()
			return
		}
		err := perms.Authorize(ctx, tenantID, userID, code)
		if errors.Is(err, authz.ErrPermissionDenied) {
			response.Forbidden(c, "missing permission: "+code)
			c.Abort()
			return
		}
		if err != nil {
			response.Internal(c, "permission check failed")
			c.Abort()
			return
		}
		c.Next()
	}
}
