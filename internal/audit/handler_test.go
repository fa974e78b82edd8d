package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/models"
)

type fakeLister struct {
	entries  []models.AuditLogEntry
	lastOpts ListOptions
}

func (f *fakeLister) List(_ context.Context, opts ListOptions) ([]models.AuditLogEntry, error) {
	f.lastOpts = opts
	out := f.entries
	if opts.Cursor != nil {
		// Keyset continuation: strictly below the cursor position.
		var filtered []models.AuditLogEntry
		for _, e := range out {
			if e.CreatedAt.Before(opts.Cursor.CreatedAt) ||
				(e.CreatedAt.Equal(opts.Cursor.CreatedAt) && e.ID.String() < opts.Cursor.ID.String()) {
				filtered = append(filtered, e)
			}
		}
		out = filtered
	}
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func newListRouter(lister Lister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &Handler{lister: lister, logger: zap.NewNop()}
	r := gin.New()
	r.GET("/audit", h.List)
	return r
}

func listEntries(n int) []models.AuditLogEntry {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]models.AuditLogEntry, n)
	for i := range entries {
		entries[i] = models.AuditLogEntry{
			ID:        uuid.New(),
			TenantID:  uuid.New(),
			Action:    models.AuditRoleUpdated,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return entries
}

func doList(t *testing.T, r *gin.Engine, url string) (int, ListResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	r.ServeHTTP(w, req)
	var resp ListResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestListFullPageCarriesNextCursor(t *testing.T) {
	r := newListRouter(&fakeLister{entries: listEntries(5)})

	code, resp := doList(t, r, "/audit?limit=5")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Items, 5)
	require.NotNil(t, resp.NextCursor)

	cur, err := DecodeCursor(*resp.NextCursor)
	require.NoError(t, err)
	last := resp.Items[len(resp.Items)-1]
	assert.Equal(t, last.ID, cur.ID)
}

func TestListShortPageHasNoCursor(t *testing.T) {
	r := newListRouter(&fakeLister{entries: listEntries(3)})

	code, resp := doList(t, r, "/audit?limit=10")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Items, 3)
	assert.Nil(t, resp.NextCursor)
}

func TestListFollowingCursorsVisitsEveryRowOnce(t *testing.T) {
	entries := listEntries(7)
	r := newListRouter(&fakeLister{entries: entries})

	seen := map[uuid.UUID]int{}
	url := "/audit?limit=3"
	for i := 0; i < 10; i++ {
		code, resp := doList(t, r, url)
		require.Equal(t, http.StatusOK, code)
		for _, e := range resp.Items {
			seen[e.ID]++
		}
		if resp.NextCursor == nil {
			break
		}
		url = "/audit?limit=3&cursor=" + *resp.NextCursor
	}

	assert.Len(t, seen, len(entries))
	for id, n := range seen {
		assert.Equal(t, 1, n, "row %s visited more than once", id)
	}
}

func TestListRejectsBadCursorAndLimit(t *testing.T) {
	r := newListRouter(&fakeLister{})

	code, _ := doList(t, r, "/audit?cursor=%21%21%21")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doList(t, r, "/audit?limit=0")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doList(t, r, "/audit?limit=500")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListDefaultsLimit(t *testing.T) {
	f := &fakeLister{}
	r := newListRouter(f)

	code, _ := doList(t, r, "/audit")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, defaultPageSize, f.lastOpts.Limit)
}
