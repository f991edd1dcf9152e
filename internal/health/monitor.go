package health

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luffy-robotics/luffy/internal/bus"
	"github.com/luffy-robotics/luffy/internal/logger"
	"github.com/luffy-robotics/luffy/internal/metrics"
	"github.com/luffy-robotics/luffy/internal/registry"
)

// subscriber is the slice of the bus client the monitor needs.
type subscriber interface {
	Subscribe(ctx context.Context, patterns ...string) (<-chan bus.Message, error)
}

// Monitor drains health reports from the bus into the service registry.
// It is the single writer of the registry's health path, so consumers
// never race each other over report ordering.
type Monitor struct {
	bus      subscriber
	registry *registry.Registry
	metrics  *metrics.Metrics
}

// NewMonitor returns a monitor feeding reg from the bus.
func NewMonitor(subscriber subscriber, reg *registry.Registry, m *metrics.Metrics) *Monitor {
	return &Monitor{
		bus:      subscriber,
		registry: reg,
		metrics:  m,
	}
}

// Run consumes health reports until ctx is cancelled. Malformed reports
// are logged and dropped; one broken publisher must not take down fleet
// monitoring.
func (m *Monitor) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "health")

	messages, err := m.bus.Subscribe(ctx, bus.HealthPattern())
	if err != nil {
		return fmt.Errorf("subscribe to health reports: %w", err)
	}

	for message := range messages {
		m.consume(ctx, message)
	}

	return ctx.Err()
}

func (m *Monitor) consume(ctx context.Context, message bus.Message) {
	service, ok := bus.ServiceFromHealthTopic(message.Topic)
	if !ok {
		logger.WarnKV(ctx, "Ignoring report on unexpected topic", "topic", message.Topic)

		return
	}

	var report Report
	if err := json.Unmarshal([]byte(message.Payload), &report); err != nil {
		logger.WarnKV(ctx, "Ignoring malformed health report",
			"topic", message.Topic, "error", err)

		return
	}

	m.registry.RecordHealth(service, report.Version)
	m.metrics.HealthReportReceived(service)

	logger.DebugKV(ctx, "Health report received",
		"service", service, "version", report.Version)
}
