// Package deb is the package-level installer primitive of the update engine.
//
// A Manager exclusively owns one work directory in which every artifact of a
// package passes through named states encoded as filename suffixes:
// downloaded (name_version_arch.deb), backed-up predecessor
// (name_version_backup.deb, written before a new download), and installed
// (name_version_arch_installed.deb, renamed after dpkg succeeds, at which
// point all other files of the package are purged). Rollback reinstalls the
// newest installed marker.
//
// ServiceIdentity classifies packages into the closed set of fleet roles so
// grouping, unit control and registry keys agree at every call site.
package deb
