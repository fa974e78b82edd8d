package tenants

import (
	"context"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/database"
	"github.com/orbitcrm/backend/pkg/response"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,62}[a-z0-9])?$`)

// Provisioner creates a tenant with its seeded roles and owner membership
// inside the handler's transaction. Satisfied by *provisioning.Workflow.
type Provisioner interface {
	ProvisionTenant(ctx context.Context, tx database.Querier, name, slug string, ownerID uuid.UUID) (uuid.UUID, error)
}

// Directory is the query surface the handler needs; satisfied by *Repository.
type Directory interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.TenantWithRole, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Handler handles tenant endpoints.
type Handler struct {
	repo        Directory
	provisioner Provisioner
	pool        *pgxpool.Pool
	logger      *zap.Logger
}

// NewHandler creates a tenants handler.
func NewHandler(repo Directory, provisioner Provisioner, pool *pgxpool.Pool, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, provisioner: provisioner, pool: pool, logger: logger}
}

// List handles GET /tenants: every tenant the caller belongs to.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := reqctx.UserID(ctx)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	tenants, err := h.repo.ListForUser(ctx, userID)
	if err != nil {
		h.logger.Error("list tenants", zap.Error(err))
		response.Internal(c, "failed to list tenants")
		return
	}
	if tenants == nil {
		tenants = []models.TenantWithRole{}
	}
	response.OK(c, gin.H{"items": tenants})
}

// Get handles GET /tenants/:id. The member-visibility predicate makes a
// foreign tenant indistinguishable from a missing one.
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	if _, ok := reqctx.UserID(ctx); !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Validation(c, "invalid tenant id")
		return
	}

	tenant, err := h.repo.Get(ctx, id)
	if database.IsNoRows(err) {
		response.NotFound(c, "tenant not found")
		return
	}
	if err != nil {
		h.logger.Error("get tenant", zap.Error(err))
		response.Internal(c, "failed to load tenant")
		return
	}
	response.OK(c, tenant)
}

// CreateRequest carries the payload for POST /tenants.
type CreateRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Create handles POST /tenants: provisions a tenant owned by the caller.
func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := reqctx.UserID(ctx)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Validation(c, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.TrimSpace(req.Slug)
	var details []string
	if req.Name == "" {
		details = append(details, "name is required")
	}
	if !slugPattern.MatchString(req.Slug) {
		details = append(details, "slug must be lowercase letters, digits and hyphens")
	}
	if len(details) > 0 {
		response.Validation(c, "invalid tenant", details...)
		return
	}

	var tenantID uuid.UUID
	err := database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		var txErr error
		tenantID, txErr = h.provisioner.ProvisionTenant(ctx, tx, req.Name, req.Slug, userID)
		return txErr
	})
	if database.IsUniqueViolation(err) {
		response.Conflict(c, "tenant slug already in use")
		return
	}
	if err != nil {
		h.logger.Error("create tenant", zap.Error(err))
		response.Internal(c, "failed to create tenant")
		return
	}

	response.Created(c, gin.H{"id": tenantID, "name": req.Name, "slug": req.Slug})
}
