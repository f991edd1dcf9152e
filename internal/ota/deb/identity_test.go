package deb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestClassify checks the package-prefix classification and its derived names.
func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		packageName string
		role        Role
		name        string
		unit        string
	}{
		{packageName: "luffy-gateway", role: RoleGateway, name: "gateway", unit: "luffy-gateway"},
		{packageName: "luffy-gateway-core", role: RoleGateway, name: "gateway", unit: "luffy-gateway"},
		{packageName: "luffy-media", role: RoleMedia, name: "media", unit: "luffy-media"},
		{packageName: "luffy-launcher", role: RoleLauncher, name: "launcher", unit: "luffy-launcher"},
		{packageName: "gateway", role: RoleOther, name: "gateway", unit: "gateway"},
		{packageName: "some-tool", role: RoleOther, name: "some-tool", unit: "some-tool"},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.packageName, func(t *testing.T) {
			t.Parallel()

			identity := Classify(tc.packageName)
			require.Equal(t, tc.role, identity.Role())
			require.Equal(t, tc.name, identity.Name())
			require.Equal(t, tc.unit, identity.UnitName())
		})
	}
}

// TestClassifyGroupsSubpackages ensures sub-packages of one service share a
// grouping key, while distinct other packages do not.
func TestClassifyGroupsSubpackages(t *testing.T) {
	t.Parallel()

	require.Equal(t, Classify("luffy-gateway-core"), Classify("luffy-gateway-utils"))
	require.NotEqual(t, Classify("tool-a"), Classify("tool-b"))
}

// TestFleetIdentities checks the seed set used by the health registry.
func TestFleetIdentities(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, 3)
	for _, identity := range FleetIdentities() {
		names = append(names, identity.Name())
	}

	require.ElementsMatch(t, []string{"gateway", "media", "launcher"}, names)
}

// TestIdentityByName resolves configuration names back to identities.
func TestIdentityByName(t *testing.T) {
	t.Parallel()

	identity, ok := IdentityByName("media")
	require.True(t, ok)
	require.Equal(t, RoleMedia, identity.Role())

	_, ok = IdentityByName("thermostat")
	require.False(t, ok)
}
