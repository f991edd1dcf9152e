// Package release resolves the fleet's latest release from the GitHub
// releases index. The client keeps only package assets of enabled services,
// so downstream grouping never sees artifacts the configuration excluded.
package release
