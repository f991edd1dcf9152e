// Package common holds helpers shared by the fleet service wirings.
//
// It maps configuration values that name services onto the identities the
// update engine works with.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
