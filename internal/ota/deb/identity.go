package deb

import "strings"

// Role enumerates the known service roles of the fleet.
type Role int

const (
	// RoleOther is any package outside the known fleet services.
	RoleOther Role = iota
	// RoleGateway is the vehicle gateway service.
	RoleGateway
	// RoleMedia is the camera/media bridge service.
	RoleMedia
	// RoleLauncher is the supervising launcher service.
	RoleLauncher
)

// ServiceIdentity names the service owning a package. Identities derived
// from the known luffy package prefixes collapse onto their role, so every
// gateway sub-package lands in the same update group; unknown packages keep
// their raw name. The zero value is an unnamed RoleOther identity.
type ServiceIdentity struct {
	role Role
	name string // raw package name, set only for RoleOther
}

// Classify derives the owning service from a package name prefix.
func Classify(packageName string) ServiceIdentity {
	switch {
	case strings.HasPrefix(packageName, "luffy-gateway"):
		return ServiceIdentity{role: RoleGateway}
	case strings.HasPrefix(packageName, "luffy-media"):
		return ServiceIdentity{role: RoleMedia}
	case strings.HasPrefix(packageName, "luffy-launcher"):
		return ServiceIdentity{role: RoleLauncher}
	default:
		return ServiceIdentity{role: RoleOther, name: packageName}
	}
}

// FleetIdentities returns the identities of the known fleet services,
// used to seed the health registry at construction.
func FleetIdentities() []ServiceIdentity {
	return []ServiceIdentity{
		{role: RoleGateway},
		{role: RoleMedia},
		{role: RoleLauncher},
	}
}

// IdentityByName resolves a short service name ("gateway", "media",
// "launcher") back to its identity. Configuration files name services this
// way when disabling their updates.
func IdentityByName(name string) (ServiceIdentity, bool) {
	for _, identity := range FleetIdentities() {
		if identity.Name() == name {
			return identity, true
		}
	}

	return ServiceIdentity{}, false
}

// Role returns the identity's role.
func (s ServiceIdentity) Role() Role {
	return s.role
}

// Name returns the short service name used on the bus and in the registry:
// "gateway", "media", "launcher", or the raw package name for other packages.
func (s ServiceIdentity) Name() string {
	switch s.role {
	case RoleGateway:
		return "gateway"
	case RoleMedia:
		return "media"
	case RoleLauncher:
		return "launcher"
	default:
		return s.name
	}
}

// UnitName returns the service unit stopped and started around installs.
func (s ServiceIdentity) UnitName() string {
	switch s.role {
	case RoleGateway:
		return "luffy-gateway"
	case RoleMedia:
		return "luffy-media"
	case RoleLauncher:
		return "luffy-launcher"
	default:
		return s.name
	}
}

// String implements fmt.Stringer for logs.
func (s ServiceIdentity) String() string {
	return s.Name()
}
