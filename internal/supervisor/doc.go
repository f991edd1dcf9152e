// Package supervisor runs the launcher's child services on hosts without
// an init system, recording exits in the service registry. It deliberately
// implements no restart policy and no health checking: systemd owns those
// in production, and health flows through the bus.
package supervisor
