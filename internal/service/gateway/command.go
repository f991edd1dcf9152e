package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/luffy-robotics/luffy/internal/bus"
	"github.com/luffy-robotics/luffy/internal/config"
	"github.com/luffy-robotics/luffy/internal/health"
	"github.com/luffy-robotics/luffy/internal/logger"
	"github.com/luffy-robotics/luffy/internal/metrics"
	"github.com/luffy-robotics/luffy/internal/ota"
	"github.com/luffy-robotics/luffy/internal/ota/deb"
	"github.com/luffy-robotics/luffy/internal/ota/release"
	"github.com/luffy-robotics/luffy/internal/registry"
	"github.com/luffy-robotics/luffy/internal/service/common"
)

// serviceName is the gateway's name on the bus and in the registry.
const serviceName = "gateway"

// Options controls the luffy-gateway process and configuration.
type Options struct {
	// ConfigPath specifies the path to the gateway settings YAML file.
	ConfigPath string
}

// subscriber is the bus surface the trigger listener consumes.
type subscriber interface {
	Subscribe(ctx context.Context, patterns ...string) (<-chan bus.Message, error)
}

// triggerer starts one immediate update cycle.
type triggerer interface {
	TriggerUpdate(ctx context.Context) error
}

// Run starts the vehicle gateway: it reports its own health and runs the
// update engine over the launcher's packages. The launcher cannot replace
// its own binary mid-flight, so launcher updates are applied from here.
// Remote operators reach the engine through ota/request messages on the bus.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, serviceName)

	cfg, err := config.LoadGateway(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.Setup(cfg.LogLevel)
	logger.InfoKV(ctx, "Starting gateway",
		"vehicle_id", cfg.VehicleID,
		"strategy", cfg.OTA.Strategy)

	busClient := bus.New(serviceName, cfg.Bus.Address, cfg.Bus.Password)
	if err = busClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}

	defer func() {
		_ = busClient.Close()
	}()

	resolver := release.NewClient(cfg.OTA.GithubRepo,
		release.WithDisabledRoles(common.DisabledRoles(ctx, cfg.OTA.Disabled)...))

	// The gateway serves no metrics endpoint, so the collectors live on a
	// private registry; cycle accounting still lands in the logs.
	manager := ota.NewVersionManager(
		cfg.OTA.Strategy,
		ota.ScopeLauncher,
		deb.NewManager(cfg.OTA.WorkDir),
		resolver,
		registry.New([]string{"launcher"}),
		metrics.New(prometheus.NewRegistry()),
		ota.WithCheckInterval(cfg.OTA.CheckInterval),
	)

	reporter := health.NewReporter(busClient, serviceName, cfg.HealthReportInterval)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return manager.Run(groupCtx) })
	group.Go(func() error { return reporter.Run(groupCtx) })
	group.Go(func() error { return runTriggerListener(groupCtx, busClient, manager, cfg.VehicleID) })

	if err = group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(ctx, "Gateway stopped")

	return nil
}

// runTriggerListener reacts to update requests addressed to this vehicle by
// starting one immediate cycle. Requests that cannot start a cycle right now
// are refused, never queued; the remote side retries on its own schedule.
func runTriggerListener(ctx context.Context, requests subscriber, manager triggerer, vehicleID string) error {
	messages, err := requests.Subscribe(ctx, bus.OTARequestTopic(vehicleID))
	if err != nil {
		return fmt.Errorf("subscribe update requests: %w", err)
	}

	for range messages {
		logger.Info(ctx, "Update requested over the bus")

		if err := manager.TriggerUpdate(ctx); err != nil {
			logger.WarnKV(ctx, "Update request refused", "error", err)
		}
	}

	return ctx.Err()
}
