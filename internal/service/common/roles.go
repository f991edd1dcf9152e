//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"

	"github.com/luffy-robotics/luffy/internal/logger"
	"github.com/luffy-robotics/luffy/internal/ota/deb"
)

// DisabledRoles maps the ota.disabled short names from configuration onto
// service roles for the release resolver. Unknown names are skipped with a
// warning rather than failing startup: a typo in the disabled list must not
// take the whole updater down.
func DisabledRoles(ctx context.Context, names []string) []deb.Role {
	roles := make([]deb.Role, 0, len(names))

	for _, name := range names {
		identity, ok := deb.IdentityByName(name)
		if !ok {
			logger.WarnKV(ctx, "Ignoring unknown service in ota.disabled", "service", name)
			continue
		}

		roles = append(roles, identity.Role())
	}

	return roles
}
