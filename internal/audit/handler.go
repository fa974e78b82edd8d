package audit

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/database"
	"github.com/orbitcrm/backend/pkg/queue"
	"github.com/orbitcrm/backend/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Lister is the query surface the handler needs; satisfied by *Repository.
type Lister interface {
	List(ctx context.Context, opts ListOptions) ([]models.AuditLogEntry, error)
}

// Exporter enqueues export jobs; satisfied by *queue.Queue.
type Exporter interface {
	EnqueueAuditExport(ctx context.Context, payload queue.AuditExportPayload) error
}

// Handler handles audit HTTP endpoints.
type Handler struct {
	lister   Lister
	exporter Exporter
	recorder *Recorder
	pool     *pgxpool.Pool
	logger   *zap.Logger
}

// NewHandler creates an audit handler.
func NewHandler(lister Lister, exporter Exporter, recorder *Recorder, pool *pgxpool.Pool, logger *zap.Logger) *Handler {
	return &Handler{lister: lister, exporter: exporter, recorder: recorder, pool: pool, logger: logger}
}

// record appends one entry in its own transaction.
func (h *Handler) record(ctx context.Context, e Entry) error {
	return database.InTx(ctx, h.pool, func(tx pgx.Tx) error {
		return h.recorder.Record(ctx, tx, e)
	})
}

// ListResponse is the paginated audit listing payload.
type ListResponse struct {
	Items      []models.AuditLogEntry `json:"items"`
	NextCursor *string                `json:"next_cursor"`
}

// List handles GET /audit.
func (h *Handler) List(c *gin.Context) {
	opts := ListOptions{
		Query:      c.Query("q"),
		EntityType: c.Query("entity_type"),
		Limit:      defaultPageSize,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			response.Validation(c, "limit must be between 1 and 200")
			return
		}
		opts.Limit = n
	}
	if raw := c.Query("cursor"); raw != "" {
		cur, err := DecodeCursor(raw)
		if err != nil {
			response.Validation(c, "invalid cursor")
			return
		}
		opts.Cursor = cur
	}

	entries, err := h.lister.List(c.Request.Context(), opts)
	if err != nil {
		h.logger.Error("list audit", zap.Error(err))
		response.Internal(c, "failed to list audit log")
		return
	}

	resp := ListResponse{Items: entries}
	if resp.Items == nil {
		resp.Items = []models.AuditLogEntry{}
	}
	// A full page means there may be more; a short page never carries a
	// cursor. Concurrent inserts can still make a "last" page look full.
	if len(entries) == opts.Limit {
		last := entries[len(entries)-1]
		cur := EncodeCursor(last.CreatedAt, last.ID)
		resp.NextCursor = &cur
	}
	response.OK(c, resp)
}

// ExportResponse acknowledges an accepted export request.
type ExportResponse struct {
	ExportID uuid.UUID `json:"export_id"`
}

// Export handles POST /audit/export: enqueue an archive job for the bound
// tenant and record the request itself in the audit trail.
func (h *Handler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _ := reqctx.UserID(ctx)
	tenantID, _ := reqctx.TenantID(ctx)

	exportID := uuid.New()
	err := h.record(ctx, Entry{
		TenantID:    tenantID,
		ActorUserID: userID,
		Action:      models.AuditExportRequested,
		EntityType:  "audit_export",
		EntityID:    &exportID,
		After:       map[string]string{"export_id": exportID.String()},
	})
	if err != nil {
		h.logger.Error("record audit export", zap.Error(err))
		response.Internal(c, "failed to request export")
		return
	}

	if err := h.exporter.EnqueueAuditExport(ctx, queue.AuditExportPayload{
		ExportID:    exportID,
		TenantID:    tenantID,
		RequestedBy: userID,
	}); err != nil {
		h.logger.Error("enqueue audit export", zap.Error(err))
		response.Internal(c, "failed to request export")
		return
	}

	response.OK(c, ExportResponse{ExportID: exportID})
}
