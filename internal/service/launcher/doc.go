// Package launcher defines the long-running vehicle launcher process.
//
// The launcher supervises the other fleet services, tracks their health over
// the bus, applies their package updates, and serves the local status page.
// Its own packages are deliberately out of its update scope; the gateway
// process applies those.
package launcher
