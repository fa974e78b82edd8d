// Package audit appends and lists the tamper-evident trail of privileged
// mutations. Entries are written in the same transaction as the mutation
// they document and are never updated or deleted by application code.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/pkg/database"
)

// Entry is one audit record to append. Before/After are opaque snapshots;
// omit them rather than guess.
type Entry struct {
	TenantID    uuid.UUID
	ActorUserID uuid.UUID
	Action      string
	EntityType  string
	EntityID    *uuid.UUID
	Before      any
	After       any
}

// Recorder appends audit entries under the isolation write guard.
type Recorder struct {
	engine *isolation.Engine
}

// NewRecorder creates an audit recorder.
func NewRecorder(engine *isolation.Engine) *Recorder {
	return &Recorder{engine: engine}
}

// Record appends one entry using q, which must be the same transaction as
// the mutation being documented; a rolled-back mutation then leaves no trace.
func (r *Recorder) Record(ctx context.Context, q database.Querier, e Entry) error {
	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}

	cond, condArgs := r.engine.AuditWrite(ctx, "$1", 8)
	sql := `INSERT INTO audit_log (tenant_id, actor_user_id, action, entity_type, entity_id, before, after)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE ` + cond
	args := append([]any{e.TenantID, e.ActorUserID, e.Action, e.EntityType, e.EntityID, before, after}, condArgs...)

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return isolation.ErrDenied
	}
	return nil
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
