package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version of the build. Release builds override it via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none" for local builds).
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
// Services publish this value in their health payloads, and the updater
// compares it against release tags when deciding whether a package is stale.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit, build time and Go runtime.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s, %s",
		Version, Commit, BuildTime, runtime.Version())
}
