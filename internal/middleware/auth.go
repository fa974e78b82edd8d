package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/response"
)

const (
	// ContextUserID is the key for the user id in gin context.
	ContextUserID = "user_id"
	// ContextTenantID is the key for the tenant id in gin context.
	ContextTenantID = "tenant_id"
	// ContextRoleName is the key for the caller's role name in gin context.
	ContextRoleName = "role_name"
)

// TokenVerifier validates a bearer token and returns its subject.
// Satisfied by *auth.TokenService.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// AccountChecker confirms the token's subject still maps to a live account.
// Satisfied by *auth.Repository.
type AccountChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (found bool, active bool, err error)
}

// Bearer returns a middleware that validates the Authorization header and
// binds the verified user onto the request context. Tokens are stateless, so
// the account is re-checked against the database on every request: a deleted
// or deactivated user is rejected even while its token is still unexpired.
func Bearer(tokens TokenVerifier, users AccountChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		userID, err := tokens.Verify(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		found, active, err := users.Exists(c.Request.Context(), userID)
		if err != nil {
			response.Internal(c, "authentication failed")
			c.Abort()
			return
		}
		if !found || !active {
			response.Unauthorized(c, "account no longer active")
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(reqctx.WithUser(c.Request.Context(), userID))
		c.Set(ContextUserID, userID)
		c.Next()
	}
}
