// Package config defines the YAML configuration of the fleet binaries and
// provides helpers to load, validate and save it.
//
// Each binary has its own struct (Launcher, Gateway, Media) sharing the Base
// sections: vehicle identity, log level, bus connection and health reporting.
// Load applies defaults before validating, so a minimal file with just the
// ota repository is enough to run. Unknown update strategies are rejected at
// load time rather than at the first check.
package config
