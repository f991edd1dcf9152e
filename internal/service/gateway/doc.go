// Package gateway defines the long-running vehicle gateway process.
//
// Beyond its transport duties the gateway carries the launcher's update
// path: it runs the update engine restricted to launcher packages and
// listens on the bus for remotely requested update cycles.
package gateway
