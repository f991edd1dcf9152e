// Package metrics defines the Prometheus collectors shared by the fleet
// services. Collectors are registered on an explicit prometheus.Registerer
// rather than the process-global default, so tests get a clean registry
// and processes that never serve /metrics still record cheaply.
package metrics
