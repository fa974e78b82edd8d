package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orbitcrm/backend/internal/models"
)

func TestNormalizeCodesDedupesAndSorts(t *testing.T) {
	codes, details := normalizeCodes([]string{
		models.PermRolesWrite,
		models.PermAuditRead,
		models.PermRolesWrite,
		" " + models.PermMembersRead + " ",
	})

	assert.Empty(t, details)
	assert.Equal(t, []string{models.PermAuditRead, models.PermMembersRead, models.PermRolesWrite}, codes)
}

func TestNormalizeCodesRejectsUnknown(t *testing.T) {
	codes, details := normalizeCodes([]string{models.PermTenantsRead, "billing:write"})

	assert.Equal(t, []string{models.PermTenantsRead}, codes)
	assert.Equal(t, []string{"unknown permission code: billing:write"}, details)
}

func TestNormalizeCodesEmptyInput(t *testing.T) {
	codes, details := normalizeCodes(nil)

	assert.Empty(t, codes)
	assert.Empty(t, details)
}
