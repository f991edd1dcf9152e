package launcher

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
	"github.com/luffy-robotics/luffy/internal/supervisor"
	"github.com/luffy-robotics/luffy/internal/web"
)

// serviceName is the launcher's name on the bus and in the registry.
const serviceName = "launcher"

// Options controls the luffy-launcher process and configuration.
type Options struct {
	// ConfigPath specifies the path to the launcher settings YAML file.
	ConfigPath string
}

// Run starts the vehicle launcher: it supervises the configured child
// services, drains fleet health reports into the registry, runs the update
// engine over every fleet service except the launcher itself, and serves the
// status page. It blocks until ctx is cancelled and the in-flight update
// cycle, if any, has finished.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, serviceName)

	cfg, err := config.LoadLauncher(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.Setup(cfg.LogLevel)
	logger.InfoKV(ctx, "Starting launcher",
		"vehicle_id", cfg.VehicleID,
		"strategy", cfg.OTA.Strategy,
		"web_address", cfg.Web.Address)

	promRegistry := prometheus.NewRegistry()
	engineMetrics := metrics.New(promRegistry)
	fleet := registry.New(fleetServiceNames())

	busClient := bus.New(serviceName, cfg.Bus.Address, cfg.Bus.Password)
	if err = busClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}

	defer func() {
		_ = busClient.Close()
	}()

	resolver := release.NewClient(cfg.OTA.GithubRepo,
		release.WithDisabledRoles(common.DisabledRoles(ctx, cfg.OTA.Disabled)...))

	manager := ota.NewVersionManager(
		cfg.OTA.Strategy,
		ota.ScopeFleet,
		deb.NewManager(cfg.OTA.WorkDir),
		resolver,
		fleet,
		engineMetrics,
		ota.WithCheckInterval(cfg.OTA.CheckInterval),
	)

	statusServer := web.New(cfg.Web.Address, fleet, manager, promRegistry)
	monitor := health.NewMonitor(busClient, fleet, engineMetrics)
	reporter := health.NewReporter(busClient, serviceName, cfg.HealthReportInterval)

	// Children are killed by the context on shutdown; Stop only waits for
	// them, so it must run before the bus client closes.
	children := supervisor.New(fleet, supervisedChildren(cfg.Services)...)
	children.Start(ctx)

	defer children.Stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return manager.Run(groupCtx) })
	group.Go(func() error { return statusServer.Run(groupCtx) })
	group.Go(func() error { return monitor.Run(groupCtx) })
	group.Go(func() error { return reporter.Run(groupCtx) })

	if err = group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(ctx, "Launcher stopped")

	return nil
}

// fleetServiceNames seeds the registry with every expected service, so the
// status page lists them all before the first health report arrives.
func fleetServiceNames() []string {
	identities := deb.FleetIdentities()
	names := make([]string, 0, len(identities))

	for _, identity := range identities {
		names = append(names, identity.Name())
	}

	return names
}

// supervisedChildren converts the enabled child entries into supervisor
// children. Entries without a command are left to systemd.
func supervisedChildren(services config.Services) []supervisor.Child {
	candidates := []struct {
		name  string
		child config.ChildService
	}{
		{"gateway", services.Gateway},
		{"media", services.Media},
	}

	children := make([]supervisor.Child, 0, len(candidates))

	for _, candidate := range candidates {
		if !candidate.child.Enabled || candidate.child.Command == "" {
			continue
		}

		children = append(children, supervisor.Child{
			Name:    candidate.name,
			Command: candidate.child.Command,
		})
	}

	return children
}
