package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitcrm/backend/internal/models"
)

func TestSystemRoleGrantsOwnerAndAdminGetFullCatalog(t *testing.T) {
	grants := SystemRoleGrants()

	var catalog []string
	for _, p := range models.PermissionCatalog() {
		catalog = append(catalog, p.Code)
	}
	require.NotEmpty(t, catalog)

	assert.ElementsMatch(t, catalog, grants[models.SystemRoleOwner])
	assert.ElementsMatch(t, catalog, grants[models.SystemRoleAdmin])
}

func TestSystemRoleGrantsMemberIsMinimal(t *testing.T) {
	grants := SystemRoleGrants()

	assert.Equal(t, []string{models.PermTenantsRead}, grants[models.SystemRoleMember])
}

func TestSystemRoleGrantsCoversExactlyTheSeededRoles(t *testing.T) {
	grants := SystemRoleGrants()

	assert.Len(t, grants, len(systemRoleNames))
	for _, name := range systemRoleNames {
		assert.Contains(t, grants, name)
	}
}
