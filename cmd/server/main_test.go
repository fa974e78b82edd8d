//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/config"
	"github.com/orbitcrm/backend/internal/middleware"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/testdb"
	"github.com/orbitcrm/backend/pkg/redis"
	"github.com/orbitcrm/backend/pkg/response"
)

const bootstrapToken = "it-bootstrap-token"

func newTestServer(t *testing.T) (*gin.Engine, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, cleanup := testdb.Setup(t)

	mr := miniredis.RunT(t)
	rdb, err := redis.NewClient(context.Background(), mr.Addr(), "", 0, zap.NewNop())
	require.NoError(t, err)

	cfg := &config.Config{
		Environment: "local",
		Server:      config.ServerConfig{CORSAllowedOrigins: "*"},
		JWT:         config.JWTConfig{Secret: "integration-test-secret", TTLSeconds: 3600},
		Bootstrap:   config.BootstrapConfig{Token: bootstrapToken},
	}
	router := buildRouter(cfg, pool, rdb, zap.NewNop())

	return router, func() {
		rdb.Close()
		cleanup()
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestBootstrapLoginAndTenantScopedFlow(t *testing.T) {
	router, cleanup := newTestServer(t)
	defer cleanup()

	// Provision the first tenant with the shared-secret gate.
	w := doJSON(t, router, http.MethodPost, "/auth/bootstrap", gin.H{
		"tenant_name": "Acme",
		"tenant_slug": "acme",
		"email":       "owner@acme.test",
		"password":    "owner-password",
	}, map[string]string{"X-Bootstrap-Token": bootstrapToken})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var boot struct {
		AccessToken string `json:"access_token"`
		TenantID    string `json:"tenant_id"`
		UserID      string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &boot))
	require.NotEmpty(t, boot.AccessToken)
	require.NotEmpty(t, boot.TenantID)

	// Wrong password is rejected without revealing which part was wrong.
	w = doJSON(t, router, http.MethodPost, "/auth/login", gin.H{
		"email":    "owner@acme.test",
		"password": "not-the-password",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.CodeUnauthorized, decodeError(t, w).Code)

	// Correct password returns a token plus the tenant list.
	w = doJSON(t, router, http.MethodPost, "/auth/login", gin.H{
		"email":    "owner@acme.test",
		"password": "owner-password",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		AccessToken string                  `json:"access_token"`
		Tenants     []models.TenantWithRole `json:"tenants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.AccessToken)
	require.Len(t, login.Tenants, 1)
	assert.Equal(t, models.SystemRoleOwner, login.Tenants[0].Role.Name)

	authed := map[string]string{"Authorization": "Bearer " + login.AccessToken}

	// Tenant-scoped routes refuse to run without the tenant header.
	w = doJSON(t, router, http.MethodGet, "/members", nil, authed)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeValidationError, decodeError(t, w).Code)

	scoped := map[string]string{
		"Authorization":         "Bearer " + login.AccessToken,
		middleware.TenantHeader: boot.TenantID,
	}

	// Owner can mint a custom role and read it back.
	w = doJSON(t, router, http.MethodPost, "/roles", gin.H{
		"name":             "Support",
		"permission_codes": []string{models.PermMembersRead, models.PermAuditRead},
	}, scoped)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.RoleWithPermissions
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Support", created.Name)
	assert.False(t, created.IsSystem)

	w = doJSON(t, router, http.MethodGet, "/roles", nil, scoped)
	require.Equal(t, http.StatusOK, w.Code)
	var roleList struct {
		Items []models.RoleWithPermissions `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roleList))
	names := make([]string, 0, len(roleList.Items))
	for _, r := range roleList.Items {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "Support")
	assert.Contains(t, names, models.SystemRoleOwner)
}

func TestChangePasswordRotatesCredentials(t *testing.T) {
	router, cleanup := newTestServer(t)
	defer cleanup()

	w := doJSON(t, router, http.MethodPost, "/auth/bootstrap", gin.H{
		"tenant_name": "Acme",
		"tenant_slug": "acme",
		"email":       "owner@acme.test",
		"password":    "owner-password",
	}, map[string]string{"X-Bootstrap-Token": bootstrapToken})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var boot struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &boot))
	authed := map[string]string{"Authorization": "Bearer " + boot.AccessToken}

	w = doJSON(t, router, http.MethodPatch, "/auth/me", gin.H{
		"current_password": "owner-password",
		"new_password":     "rotated-password",
	}, authed)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/auth/login", gin.H{
		"email":    "owner@acme.test",
		"password": "owner-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/auth/login", gin.H{
		"email":    "owner@acme.test",
		"password": "rotated-password",
	}, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
