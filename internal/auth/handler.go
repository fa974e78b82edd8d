package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/provisioning"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/database"
	"github.com/orbitcrm/backend/pkg/response"
	"github.com/orbitcrm/backend/pkg/utils"
)

const bootstrapTokenHeader = "X-Bootstrap-Token"

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,62}[a-z0-9])?$`)

// TenantLister returns the tenants a user belongs to, with the role each
// membership carries. Satisfied by the tenants repository.
type TenantLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.TenantWithRole, error)
}

// Bootstrapper runs the first-tenant provisioning flow inside the handler's
// transaction. Satisfied by *provisioning.Workflow.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, tx database.Querier, p provisioning.BootstrapParams) (*provisioning.BootstrapResult, error)
}

// Handler handles authentication endpoints.
type Handler struct {
	repo           *Repository
	tokens         *TokenService
	tenants        TenantLister
	bootstrapper   Bootstrapper
	pool           *pgxpool.Pool
	bootstrapToken string
	logger         *zap.Logger
}

// NewHandler creates an auth handler. bootstrapToken may be empty, in which
// case POST /auth/bootstrap is gated to the very first account instead.
func NewHandler(repo *Repository, tokens *TokenService, tenants TenantLister, bootstrapper Bootstrapper, pool *pgxpool.Pool, bootstrapToken string, logger *zap.Logger) *Handler {
	return &Handler{
		repo:           repo,
		tokens:         tokens,
		tenants:        tenants,
		bootstrapper:   bootstrapper,
		pool:           pool,
		bootstrapToken: bootstrapToken,
		logger:         logger,
	}
}

// BootstrapRequest provisions the first tenant and its owner account.
type BootstrapRequest struct {
	TenantName string `json:"tenant_name"`
	TenantSlug string `json:"tenant_slug"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// BootstrapResponse reports the created tenant and owner, with a ready token.
type BootstrapResponse struct {
	AccessToken string    `json:"access_token"`
	TenantID    uuid.UUID `json:"tenant_id"`
	UserID      uuid.UUID `json:"user_id"`
}

// Bootstrap handles POST /auth/bootstrap. With a configured bootstrap token
// the caller must present it; without one, only the very first account may
// be provisioned this way.
func (h *Handler) Bootstrap(c *gin.Context) {
	ctx := c.Request.Context()

	if h.bootstrapToken != "" {
		if c.GetHeader(bootstrapTokenHeader) != h.bootstrapToken {
			response.Forbidden(c, "invalid bootstrap token")
			return
		}
	} else {
		n, err := h.repo.Count(ctx)
		if err != nil {
			h.logger.Error("count users", zap.Error(err))
			response.Internal(c, "bootstrap failed")
			return
		}
		if n > 0 {
			response.Forbidden(c, "bootstrap is only available before the first account exists")
			return
		}
	}

	var req BootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Validation(c, "invalid request body")
		return
	}
	if details := validateBootstrap(&req); len(details) > 0 {
		response.Validation(c, "invalid bootstrap request", details...)
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		response.Internal(c, "bootstrap failed")
		return
	}

	var res *provisioning.BootstrapResult
	err = database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		var txErr error
		res, txErr = h.bootstrapper.Bootstrap(ctx, tx, provisioning.BootstrapParams{
			TenantName:   req.TenantName,
			TenantSlug:   req.TenantSlug,
			Email:        req.Email,
			PasswordHash: hash,
		})
		return txErr
	})
	if database.IsUniqueViolation(err) {
		response.Conflict(c, "tenant slug already in use")
		return
	}
	if err != nil {
		h.logger.Error("bootstrap", zap.Error(err))
		response.Internal(c, "bootstrap failed")
		return
	}

	token, err := h.tokens.Issue(res.UserID)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		response.Internal(c, "bootstrap failed")
		return
	}
	response.Created(c, BootstrapResponse{AccessToken: token, TenantID: res.TenantID, UserID: res.UserID})
}

func validateBootstrap(req *BootstrapRequest) []string {
	var details []string
	req.TenantName = strings.TrimSpace(req.TenantName)
	req.TenantSlug = strings.TrimSpace(req.TenantSlug)
	req.Email = strings.TrimSpace(req.Email)
	if req.TenantName == "" {
		details = append(details, "tenant_name is required")
	}
	if !slugPattern.MatchString(req.TenantSlug) {
		details = append(details, "tenant_slug must be lowercase letters, digits and hyphens")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		details = append(details, "email is not a valid address")
	}
	if len(req.Password) < 8 {
		details = append(details, "password must be at least 8 characters")
	}
	return details
}

// LoginRequest carries credentials for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token plus the account and its tenants.
type LoginResponse struct {
	AccessToken string                  `json:"access_token"`
	User        models.UserPublic       `json:"user"`
	Tenants     []models.TenantWithRole `json:"tenants"`
}

// Login handles POST /auth/login. Unknown email and wrong password are
// indistinguishable to the caller.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		response.Validation(c, "email and password are required")
		return
	}

	user, err := h.repo.GetForLogin(ctx, req.Email)
	if database.IsNoRows(err) {
		response.Unauthorized(c, "invalid credentials")
		return
	}
	if err != nil {
		h.logger.Error("login lookup", zap.Error(err))
		response.Internal(c, "login failed")
		return
	}
	if !utils.VerifyPassword(req.Password, user.PasswordHash) {
		response.Unauthorized(c, "invalid credentials")
		return
	}
	if !user.IsActive {
		response.Forbidden(c, "account is deactivated")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		response.Internal(c, "login failed")
		return
	}
	tenants, err := h.tenants.ListForUser(ctx, user.ID)
	if err != nil {
		h.logger.Error("list tenants for login", zap.Error(err))
		response.Internal(c, "login failed")
		return
	}
	if tenants == nil {
		tenants = []models.TenantWithRole{}
	}
	response.OK(c, LoginResponse{AccessToken: token, User: user.ToPublic(), Tenants: tenants})
}

// MeResponse is the authenticated account with its tenant memberships.
type MeResponse struct {
	User    models.UserPublic       `json:"user"`
	Tenants []models.TenantWithRole `json:"tenants"`
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := reqctx.UserID(ctx)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	user, err := h.repo.GetSelf(ctx, userID)
	if database.IsNoRows(err) {
		response.Unauthorized(c, "account no longer exists")
		return
	}
	if err != nil {
		h.logger.Error("load self", zap.Error(err))
		response.Internal(c, "failed to load account")
		return
	}
	tenants, err := h.tenants.ListForUser(ctx, userID)
	if err != nil {
		h.logger.Error("list tenants", zap.Error(err))
		response.Internal(c, "failed to load account")
		return
	}
	if tenants == nil {
		tenants = []models.TenantWithRole{}
	}
	response.OK(c, MeResponse{User: user.ToPublic(), Tenants: tenants})
}

// ChangePasswordRequest carries the payload for PATCH /auth/me.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles PATCH /auth/me: replace the caller's own password.
// The current password is re-verified so a leaked token alone cannot rotate
// the credential.
func (h *Handler) ChangePassword(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := reqctx.UserID(ctx)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Validation(c, "invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		response.Validation(c, "new_password must be at least 8 characters")
		return
	}

	user, err := h.repo.GetSelf(ctx, userID)
	if database.IsNoRows(err) {
		response.Unauthorized(c, "account no longer exists")
		return
	}
	if err != nil {
		h.logger.Error("load self", zap.Error(err))
		response.Internal(c, "failed to change password")
		return
	}
	if !utils.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		response.Unauthorized(c, "current password is incorrect")
		return
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		response.Internal(c, "failed to change password")
		return
	}
	if err := h.repo.UpdatePassword(ctx, userID, hash); err != nil {
		h.logger.Error("update password", zap.Error(err))
		response.Internal(c, "failed to change password")
		return
	}
	response.NoContent(c)
}
