package members

import (
	"context"
	"errors"
	"net/mail"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/audit"
	"github.com/orbitcrm/backend/internal/auth"
	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/database"
	"github.com/orbitcrm/backend/pkg/response"
	"github.com/orbitcrm/backend/pkg/utils"
)

var (
	errMemberNotFound = errors.New("member not found")
	errUnknownRole    = errors.New("role does not belong to this tenant")
)

// Handler handles member endpoints. Every mutation and its audit entry
// commit in one transaction.
type Handler struct {
	repo     *Repository
	users    *auth.Repository
	recorder *audit.Recorder
	pool     *pgxpool.Pool
	logger   *zap.Logger
}

// NewHandler creates a members handler.
func NewHandler(repo *Repository, users *auth.Repository, recorder *audit.Recorder, pool *pgxpool.Pool, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, users: users, recorder: recorder, pool: pool, logger: logger}
}

// List handles GET /members.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, _ := reqctx.TenantID(ctx)

	out, err := h.repo.List(ctx, tenantID)
	if err != nil {
		h.logger.Error("list members", zap.Error(err))
		response.Internal(c, "failed to list members")
		return
	}
	if out == nil {
		out = []models.Member{}
	}
	response.OK(c, gin.H{"items": out})
}

// CreateRequest adds a member by email. For an unknown email an account is
// created; for an existing one the stored password is left untouched.
type CreateRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	RoleID   uuid.UUID `json:"role_id"`
}

// Create handles POST /members.
func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, _ := reqctx.TenantID(ctx)
	actorID, _ := reqctx.UserID(ctx)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Validation(c, "invalid request body")
		return
	}
	var details []string
	if _, err := mail.ParseAddress(req.Email); err != nil {
		details = append(details, "email is not a valid address")
	}
	if len(req.Password) < 8 {
		details = append(details, "password must be at least 8 characters")
	}
	if req.RoleID == uuid.Nil {
		details = append(details, "role_id is required")
	}
	if len(details) > 0 {
		response.Validation(c, "invalid member", details...)
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		response.Internal(c, "failed to create member")
		return
	}

	var created *models.Member
	err = database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		repo := h.repo.WithTx(tx)
		ok, err := repo.RoleInTenant(ctx, req.RoleID, tenantID)
		if err != nil {
			return err
		}
		if !ok {
			return errUnknownRole
		}
		userID, err := h.users.WithTx(tx).UpsertByEmail(ctx, req.Email, hash)
		if err != nil {
			return err
		}
		id, err := repo.Create(ctx, tenantID, userID, req.RoleID)
		if err != nil {
			return err
		}
		created, err = repo.Get(ctx, id, tenantID)
		if err != nil {
			return err
		}
		return h.recorder.Record(ctx, tx, audit.Entry{
			TenantID:    tenantID,
			ActorUserID: actorID,
			Action:      models.AuditMemberCreated,
			EntityType:  "membership",
			EntityID:    &id,
			After:       created,
		})
	})
	switch {
	case errors.Is(err, errUnknownRole):
		response.Validation(c, errUnknownRole.Error())
	case database.IsUniqueViolation(err):
		response.Conflict(c, "user is already a member of this tenant")
	case errors.Is(err, isolation.ErrDenied):
		response.Forbidden(c, "operation not allowed for this tenant")
	case err != nil:
		h.logger.Error("create member", zap.Error(err))
		response.Internal(c, "failed to create member")
	default:
		response.Created(c, created)
	}
}

// UpdateRequest changes the role a membership carries.
type UpdateRequest struct {
	RoleID uuid.UUID `json:"role_id"`
}

// Update handles PATCH /members/:id.
func (h *Handler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, _ := reqctx.TenantID(ctx)
	actorID, _ := reqctx.UserID(ctx)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Validation(c, "invalid member id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoleID == uuid.Nil {
		response.Validation(c, "role_id is required")
		return
	}

	var updated *models.Member
	err = database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		repo := h.repo.WithTx(tx)
		before, err := h.getInTenant(ctx, repo, id, tenantID)
		if err != nil {
			return err
		}
		ok, err := repo.RoleInTenant(ctx, req.RoleID, tenantID)
		if err != nil {
			return err
		}
		if !ok {
			return errUnknownRole
		}
		if err := repo.UpdateRole(ctx, id, req.RoleID); err != nil {
			return err
		}
		updated, err = repo.Get(ctx, id, tenantID)
		if err != nil {
			return err
		}
		return h.recorder.Record(ctx, tx, audit.Entry{
			TenantID:    tenantID,
			ActorUserID: actorID,
			Action:      models.AuditMemberUpdated,
			EntityType:  "membership",
			EntityID:    &id,
			Before:      before,
			After:       updated,
		})
	})
	switch {
	case errors.Is(err, errMemberNotFound):
		response.NotFound(c, "member not found")
	case errors.Is(err, errUnknownRole):
		response.Validation(c, errUnknownRole.Error())
	case errors.Is(err, isolation.ErrDenied):
		response.Forbidden(c, "operation not allowed for this tenant")
	case err != nil:
		h.logger.Error("update member", zap.Error(err))
		response.Internal(c, "failed to update member")
	default:
		response.OK(c, updated)
	}
}

// Delete handles DELETE /members/:id.
func (h *Handler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, _ := reqctx.TenantID(ctx)
	actorID, _ := reqctx.UserID(ctx)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Validation(c, "invalid member id")
		return
	}

	err = database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		repo := h.repo.WithTx(tx)
		before, err := h.getInTenant(ctx, repo, id, tenantID)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return h.recorder.Record(ctx, tx, audit.Entry{
			TenantID:    tenantID,
			ActorUserID: actorID,
			Action:      models.AuditMemberRemoved,
			EntityType:  "membership",
			EntityID:    &id,
			Before:      before,
		})
	})
	switch {
	case errors.Is(err, errMemberNotFound):
		response.NotFound(c, "member not found")
	case errors.Is(err, isolation.ErrDenied):
		response.Forbidden(c, "operation not allowed for this tenant")
	case err != nil:
		h.logger.Error("remove member", zap.Error(err))
		response.Internal(c, "failed to remove member")
	default:
		response.NoContent(c)
	}
}

// getInTenant loads one member and hides rows of other tenants behind a
// not-found.
func (h *Handler) getInTenant(ctx context.Context, repo *Repository, id, tenantID uuid.UUID) (*models.Member, error) {
	m, err := repo.Get(ctx, id, tenantID)
	if database.IsNoRows(err) {
		return nil, errMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
