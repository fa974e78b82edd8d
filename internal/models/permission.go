package models

// Permission codes. The catalog is process-wide and fixed; codes are stable
// strings referenced by role_permissions rows.
const (
	PermTenantsRead  = "tenants:read"
	PermMembersRead  = "members:read"
	PermMembersWrite = "members:write"
	PermRolesRead    = "roles:read"
	PermRolesWrite   = "roles:write"
	PermAuditRead    = "audit:read"
)

// Permission is one entry of the fixed capability catalog.
type Permission struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// PermissionCatalog lists every known permission in code order. Seeding
// snapshots this catalog onto Owner/Admin roles at tenant-creation time;
// codes added later are not retroactively granted.
func PermissionCatalog() []Permission {
	return []Permission{
		{Code: PermAuditRead, Description: "Read audit log"},
		{Code: PermMembersRead, Description: "Read tenant members"},
		{Code: PermMembersWrite, Description: "Create/update tenant members"},
		{Code: PermRolesRead, Description: "Read tenant roles"},
		{Code: PermRolesWrite, Description: "Create/update tenant roles"},
		{Code: PermTenantsRead, Description: "List tenants where the user is a member"},
	}
}

// MemberRolePermissions is the fixed subset granted to the Member system role.
func MemberRolePermissions() []string {
	return []string{PermTenantsRead}
}
