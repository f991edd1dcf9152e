// Package web is the launcher's local HTTP surface: a registry snapshot for
// dashboards, a manual update trigger, liveness, and Prometheus metrics.
// It binds to the loopback interface by default; fleet-wide access goes
// through whatever remote transport fronts the vehicle, not this server.
package web
