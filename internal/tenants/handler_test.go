package tenants

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/reqctx"
)

type stubDirectory struct {
	tenants []models.TenantWithRole
	tenant  *models.Tenant
}

func (s stubDirectory) ListForUser(context.Context, uuid.UUID) ([]models.TenantWithRole, error) {
	return s.tenants, nil
}

func (s stubDirectory) Get(context.Context, uuid.UUID) (*models.Tenant, error) {
	if s.tenant == nil {
		return nil, pgx.ErrNoRows
	}
	return s.tenant, nil
}

func newTenantRouter(dir Directory, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &Handler{repo: dir, logger: zap.NewNop()}
	r := gin.New()
	bind := func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Request = c.Request.WithContext(reqctx.WithUser(c.Request.Context(), userID))
		}
		c.Next()
	}
	r.GET("/tenants", bind, h.List)
	r.GET("/tenants/:id", bind, h.Get)
	return r
}

func TestGetReturnsVisibleTenant(t *testing.T) {
	want := &models.Tenant{
		ID:        uuid.New(),
		Name:      "Acme",
		Slug:      "acme",
		CreatedAt: time.Now().UTC(),
	}
	r := newTenantRouter(stubDirectory{tenant: want}, uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/"+want.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Tenant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, "acme", got.Slug)
}

func TestGetHidesInvisibleTenantsBehindNotFound(t *testing.T) {
	r := newTenantRouter(stubDirectory{}, uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRejectsMalformedID(t *testing.T) {
	r := newTenantRouter(stubDirectory{}, uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRequiresAuthentication(t *testing.T) {
	r := newTenantRouter(stubDirectory{}, uuid.Nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListReturnsCallerTenants(t *testing.T) {
	items := []models.TenantWithRole{{
		ID:   uuid.New(),
		Name: "Acme",
		Slug: "acme",
		Role: models.RoleRef{ID: uuid.New(), Name: models.SystemRoleOwner},
	}}
	r := newTenantRouter(stubDirectory{tenants: items}, uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []models.TenantWithRole `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, models.SystemRoleOwner, resp.Items[0].Role.Name)
}
