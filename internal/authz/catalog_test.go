package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseguard/courseguard/internal/authz"
)

func TestCatalog_TokenShape(t *testing.T) {
	entries := authz.Catalog()
	require.NotEmpty(t, entries)

	for _, e := range entries {
		assert.Regexp(t, `^[a-z]+(_[a-z]+)*$`, e.Name)
		assert.NotEmpty(t, e.ReadableName)
		assert.NotEmpty(t, e.Description)
	}
}

func TestCatalog_ByName(t *testing.T) {
	e, ok := authz.CatalogEntryByName(authz.PermViewGradebook)
	require.True(t, ok)
	assert.Equal(t, "View Gradebook", e.ReadableName)

	_, ok = authz.CatalogEntryByName("no_such_permission")
	assert.False(t, ok)
}

func TestKnownPermission(t *testing.T) {
	assert.True(t, authz.KnownPermission(authz.PermManageContent))
	assert.False(t, authz.KnownPermission("permission_from_the_future"))
}

func TestBuiltinRoles_OnlyCatalogTokens(t *testing.T) {
	for _, role := range authz.BuiltinRoles() {
		require.NotEmpty(t, role.Permissions, "role %s", role.Name)
		for _, token := range role.Permissions {
			assert.True(t, authz.KnownPermission(token), "role %s grants unknown token %s", role.Name, token)
		}
	}
}

func TestRegistry(t *testing.T) {
	reg := authz.NewRegistry(authz.BuiltinRoles())

	perms := reg.PermissionsOf(authz.RoleDataResearcher)
	assert.True(t, perms.Has(authz.PermAccessDataDownloads))
	assert.False(t, perms.Has(authz.PermManageContent))

	assert.Empty(t, reg.PermissionsOf("no_such_role").Tokens())

	names := reg.RolesWith(authz.PermManageContent)
	assert.Equal(t, []string{authz.RoleInstructor, authz.RoleStaff}, names)
}

func TestScopeKind(t *testing.T) {
	assert.Equal(t, authz.ScopeInstance, authz.InstanceScope().Kind())
	assert.Equal(t, authz.ScopeOrg, authz.OrgScope("X").Kind())
}
