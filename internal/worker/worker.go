package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/audit"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/reqctx"
	"github.com/orbitcrm/backend/pkg/queue"
	"github.com/orbitcrm/backend/pkg/storage"
)

// ExportProcessor processes audit export jobs: read the tenant's audit trail
// as the requesting user, render JSON lines, upload to S3. The trail is read
// under the requester's binding, so a request whose membership has since been
// revoked exports nothing rather than the whole trail.
type ExportProcessor struct {
	trail  *audit.Repository
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewExportProcessor creates an audit export processor.
func NewExportProcessor(trail *audit.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{trail: trail, s3: s3, queue: q, logger: logger}
}

// Process executes one audit export job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAuditExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AuditExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	// Act as the user who requested the export.
	bound := reqctx.WithTenant(reqctx.WithUser(ctx, payload.RequestedBy), payload.TenantID)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	rows := 0
	err := p.trail.ForEach(bound, payload.TenantID, func(e models.AuditLogEntry) error {
		rows++
		return enc.Encode(e)
	})
	if err != nil {
		return fmt.Errorf("read audit trail: %w", err)
	}

	key := storage.ExportKey(payload.TenantID.String(), payload.ExportID.String())
	if _, err := p.s3.UploadExport(ctx, key, &buf); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("audit export completed",
		zap.String("export_id", payload.ExportID.String()),
		zap.String("tenant_id", payload.TenantID.String()),
		zap.Int("rows", rows),
		zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
