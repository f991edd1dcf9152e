// Package health moves liveness information over the bus: every service
// runs a Reporter announcing its version on "luffy/<service>/health", and
// the launcher runs a Monitor folding those reports into the registry.
package health
