package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/authz"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/response"
)

// TenantHeader selects the acting tenant on tenant-scoped routes.
const TenantHeader = "X-Tenant-ID"

// MembershipChecker verifies that a user belongs to a tenant and returns the
// role the membership carries. Satisfied by *authz.MembershipResolver.
type MembershipChecker interface {
	Resolve(ctx context.Context, tenantID, userID uuid.UUID) (*models.Role, error)
}

// Tenant returns a middleware that reads the tenant selection header,
// verifies the authenticated user's membership, and binds the tenant onto
// the request context. Must run after Bearer.
func Tenant(memberships MembershipChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantHeader)
		if raw == "" {
			response.Validation(c, TenantHeader+" header is required")
			c.Abort()
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			response.Validation(c, TenantHeader+" header must be a UUID")
			c.Abort()
			return
		}
		userID, ok := reqctx.UserID(c.Request.Context())
		if !ok {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		role, err := memberships.Resolve(c.Request.Context(), tenantID, userID)
		if errors.Is(err, authz.ErrNotAMember) {
			response.Forbidden(c, "not a member of this tenant")
			c.Abort()
			return
		}
		if err != nil {
			response.Internal(c, "membership check failed")
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(reqctx.WithTenant(c.Request.Context(), tenantID))
		c.Set(ContextTenantID, tenantID)
		c.Set(ContextRoleName, role.Name)
		c.Next()
	}
}
