package roles

import (
	"errors"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/audit"
	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/database"
	"github.com/orbitcrm/backend/pkg/response"
)

var errRoleNotFound = errors.New("role not found")

// Handler handles role and permission-catalog endpoints.
type Handler struct {
	repo     *Repository
	recorder *audit.Recorder
	pool     *pgxpool.Pool
	logger   *zap.Logger
}

// NewHandler creates a roles handler.
func NewHandler(repo *Repository, recorder *audit.Recorder, pool *pgxpool.Pool, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, recorder: recorder, pool: pool, logger: logger}
}

// Catalog handles GET /permissions: the fixed process-wide catalog.
func (h *Handler) Catalog(c *gin.Context) {
	response.OK(c, gin.H{"items": models.PermissionCatalog()})
}

// List handles GET /roles.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, _ := reqctx.TenantID(ctx)

	out, err := h.repo.List(ctx, tenantID)
	if err != nil {
		h.logger.Error("list roles", zap.Error(err))
		response.Internal(c, "failed to list roles")
		return
	}
	if out == nil {
		out = []models.RoleWithPermissions{}
	}
	response.OK(c, gin.H{"items": out})
}

// CreateRequest carries the payload for POST /roles.
type CreateRequest struct {
	Name            string   `json:"name"`
	PermissionCodes []string `json:"permission_codes"`
}

// Create handles POST /roles.
func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, _ := reqctx.TenantID(ctx)
	actorID, _ := reqctx.UserID(ctx)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Validation(c, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		response.Validation(c, "name is required")
		return
	}
	codes, details := normalizeCodes(req.PermissionCodes)
	if len(details) > 0 {
		response.Validation(c, "invalid role", details...)
		return
	}

	var created *models.RoleWithPermissions
	err := database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		repo := h.repo.WithTx(tx)
		id, err := repo.Create(ctx, tenantID, req.Name)
		if err != nil {
			return err
		}
		if err := repo.SetPermissions(ctx, id, codes); err != nil {
			return err
		}
		created, err = repo.Get(ctx, id, tenantID)
		if err != nil {
			return err
		}
		return h.recorder.Record(ctx, tx, audit.Entry{
			TenantID:    tenantID,
			ActorUserID: actorID,
			Action:      models.AuditRoleCreated,
			EntityType:  "role",
			EntityID:    &id,
			After:       created,
		})
	})
	switch {
	case database.IsUniqueViolation(err):
		response.Conflict(c, "a role with this name already exists")
	case errors.Is(err, isolation.ErrDenied):
		response.Forbidden(c, "operation not allowed for this tenant")
	case err != nil:
		h.logger.Error("create role", zap.Error(err))
		response.Internal(c, "failed to create role")
	default:
		response.Created(c, created)
	}
}

// UpdateRequest carries the payload for PATCH /roles/:id. Nil fields are
// left unchanged.
type UpdateRequest struct {
	Name            *string   `json:"name"`
	PermissionCodes *[]string `json:"permission_codes"`
}

// Update handles PATCH /roles/:id.
func (h *Handler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, _ := reqctx.TenantID(ctx)
	actorID, _ := reqctx.UserID(ctx)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Validation(c, "invalid role id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Validation(c, "invalid request body")
		return
	}
	if req.Name == nil && req.PermissionCodes == nil {
		response.Validation(c, "nothing to update")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		response.Validation(c, "name must not be empty")
		return
	}
	var codes []string
	if req.PermissionCodes != nil {
		var details []string
		codes, details = normalizeCodes(*req.PermissionCodes)
		if len(details) > 0 {
			response.Validation(c, "invalid role", details...)
			return
		}
	}

	var updated *models.RoleWithPermissions
	err = database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		repo := h.repo.WithTx(tx)
		before, err := repo.Get(ctx, id, tenantID)
		if database.IsNoRows(err) {
			return errRoleNotFound
		}
		if err != nil {
			return err
		}
		if req.Name != nil {
			if err := repo.Rename(ctx, id, strings.TrimSpace(*req.Name)); err != nil {
				return err
			}
		}
		if req.PermissionCodes != nil {
			if err := repo.SetPermissions(ctx, id, codes); err != nil {
				return err
			}
		}
		updated, err = repo.Get(ctx, id, tenantID)
		if err != nil {
			return err
		}
		return h.recorder.Record(ctx, tx, audit.Entry{
			TenantID:    tenantID,
			ActorUserID: actorID,
			Action:      models.AuditRoleUpdated,
			EntityType:  "role",
			EntityID:    &id,
			Before:      before,
			After:       updated,
		})
	})
	switch {
	case errors.Is(err, errRoleNotFound):
		response.NotFound(c, "role not found")
	case database.IsUniqueViolation(err):
		response.Conflict(c, "a role with this name already exists")
	case errors.Is(err, isolation.ErrDenied):
		response.Forbidden(c, "operation not allowed for this tenant")
	case err != nil:
		h.logger.Error("update role", zap.Error(err))
		response.Internal(c, "failed to update role")
	default:
		response.OK(c, updated)
	}
}

// Delete handles DELETE /roles/:id.
func (h *Handler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, _ := reqctx.TenantID(ctx)
	actorID, _ := reqctx.UserID(ctx)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Validation(c, "invalid role id")
		return
	}

	err = database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		repo := h.repo.WithTx(tx)
		before, err := repo.Get(ctx, id, tenantID)
		if database.IsNoRows(err) {
			return errRoleNotFound
		}
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return h.recorder.Record(ctx, tx, audit.Entry{
			TenantID:    tenantID,
			ActorUserID: actorID,
			Action:      models.AuditRoleDeleted,
			EntityType:  "role",
			EntityID:    &id,
			Before:      before,
		})
	})
	switch {
	case errors.Is(err, errRoleNotFound):
		response.NotFound(c, "role not found")
	case database.IsForeignKeyViolation(err):
		response.Conflict(c, "role is still assigned to members")
	case errors.Is(err, isolation.ErrDenied):
		response.Forbidden(c, "operation not allowed for this tenant")
	case err != nil:
		h.logger.Error("delete role", zap.Error(err))
		response.Internal(c, "failed to delete role")
	default:
		response.NoContent(c)
	}
}

// normalizeCodes dedupes and sorts the requested codes and rejects any code
// outside the catalog.
func normalizeCodes(in []string) ([]string, []string) {
	known := make(map[string]bool, len(models.PermissionCatalog()))
	for _, p := range models.PermissionCatalog() {
		known[p.Code] = true
	}
	seen := make(map[string]bool, len(in))
	var codes, details []string
	for _, code := range in {
		code = strings.TrimSpace(code)
		if !known[code] {
			details = append(details, "unknown permission code: "+code)
			continue
		}
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, details
}
