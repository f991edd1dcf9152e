// Package version exposes build metadata for the fleet services.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags and default to sensible values for local builds. Short is the
// value services report over the bus; Full renders everything for CLI output.
package version
