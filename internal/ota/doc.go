// Package ota orchestrates over-the-air updates for the vehicle's services.
//
// A VersionManager periodically resolves the latest release, compares each
// in-scope package against what dpkg reports installed, and applies the
// packages of one service as a single transaction: snapshot, download all,
// stop unit, install each, roll all back on failure, restart unit. The
// launcher is excluded from its own manager's scope and updated by the
// gateway's instead, so no process ever replaces its own running binary.
//
// Sub-packages hold the two leaves: deb (the installer primitive owning the
// artifact directory) and release (the release index client).
package ota
