package health

import (
	"context"
	"encoding/json"
	"time"

	"github.com/luffy-robotics/luffy/internal/bus"
	"github.com/luffy-robotics/luffy/internal/logger"
	"github.com/luffy-robotics/luffy/internal/version"
)

// Report is the payload of one health message on the bus.
type Report struct {
	// Version is the semantic version the reporting service runs.
	Version string `json:"version"`
}

// publisher is the slice of the bus client the reporter needs.
type publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Reporter periodically announces its own service on the bus so the
// launcher's registry sees it as running.
type Reporter struct {
	bus      publisher
	service  string
	interval time.Duration
	version  func() string
}

// ReporterOption customizes a Reporter.
type ReporterOption func(*Reporter)

// WithVersion overrides the reported version, used in tests.
func WithVersion(versionFunc func() string) ReporterOption {
	return func(r *Reporter) {
		r.version = versionFunc
	}
}

// NewReporter returns a reporter announcing service every interval.
func NewReporter(
	publisher publisher,
	service string,
	interval time.Duration,
	options ...ReporterOption,
) *Reporter {
	reporter := &Reporter{
		bus:      publisher,
		service:  service,
		interval: interval,
		version:  version.Short,
	}

	for _, option := range options {
		option(reporter)
	}

	return reporter
}

// Run reports immediately and then every interval until ctx is cancelled.
// Publish failures are logged and retried on the next tick; a vehicle with
// a hiccuping broker must not lose its updater over a missed heartbeat.
func (r *Reporter) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "health")

	// First report goes out immediately so the registry sees the service
	// before the first interval elapses.
	r.report(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	payload, err := json.Marshal(Report{Version: r.version()})
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode health report", "error", err)

		return
	}

	topic := bus.HealthTopic(r.service)

	if err := r.bus.Publish(ctx, topic, string(payload)); err != nil {
		logger.WarnKV(ctx, "Failed to publish health report",
			"topic", topic, "error", err)

		return
	}

	logger.DebugKV(ctx, "Published health report",
		"topic", topic, "version", r.version())
}
