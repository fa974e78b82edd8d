package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	payload := AuditExportPayload{
		ExportID:    uuid.New(),
		TenantID:    uuid.New(),
		RequestedBy: uuid.New(),
	}
	require.NoError(t, q.EnqueueAuditExport(ctx, payload))

	job, key, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, QueueAuditExports, key)
	require.Equal(t, JobTypeAuditExport, job.Type)
	require.Equal(t, 0, job.Attempt)

	var got AuditExportPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	require.Equal(t, payload, got)
}

func TestRetryReenqueuesUntilDLQ(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueAuditExport(ctx, AuditExportPayload{ExportID: uuid.New()}))
	job, _, err := q.Dequeue(ctx)
	require.NoError(t, err)

	for i := 1; i < MaxRetries; i++ {
		require.NoError(t, q.Retry(ctx, job))
		job, _, err = q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, i, job.Attempt)
	}

	// Final retry crosses MaxRetries and lands in the DLQ.
	require.NoError(t, q.Retry(ctx, job))
	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	require.Len(t, dlq, 1)

	main, err := mr.List(QueueAuditExports)
	require.Error(t, err, "main queue should no longer exist")
	require.Empty(t, main)
}
