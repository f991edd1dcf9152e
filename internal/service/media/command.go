package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/luffy-robotics/luffy/internal/bus"
	"github.com/luffy-robotics/luffy/internal/config"
	"github.com/luffy-robotics/luffy/internal/health"
	"github.com/luffy-robotics/luffy/internal/logger"
)

// serviceName is the media bridge's name on the bus and in the registry.
const serviceName = "media"

// Options controls the luffy-media process and configuration.
type Options struct {
	// ConfigPath specifies the path to the media settings YAML file.
	ConfigPath string
}

// Run starts the media bridge. The camera relay lives in a separate
// pipeline; this process only announces itself on the bus so the launcher
// tracks its health and version, and blocks until ctx is cancelled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, serviceName)

	cfg, err := config.LoadMedia(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.Setup(cfg.LogLevel)
	logger.InfoKV(ctx, "Starting media bridge", "vehicle_id", cfg.VehicleID)

	busClient := bus.New(serviceName, cfg.Bus.Address, cfg.Bus.Password)
	if err = busClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}

	defer func() {
		_ = busClient.Close()
	}()

	reporter := health.NewReporter(busClient, serviceName, cfg.HealthReportInterval)

	if err = reporter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(ctx, "Media bridge stopped")

	return nil
}
