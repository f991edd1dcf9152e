// Package registry holds the in-memory health and version table of the
// fleet services. Health reports and resolved release versions are merged in
// partially; staleness is evaluated lazily on read, so an unreported service
// degrades to unknown without a background sweeper.
package registry
