package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luffy-robotics/luffy/internal/service/launcher"
	"github.com/luffy-robotics/luffy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for running the vehicle launcher.
	rootCmd = &cobra.Command{
		Use:   "luffy-launcher",
		Short: "Run the vehicle launcher: supervision, health tracking and fleet updates.",
		Long: `Starts the vehicle launcher that keeps the on-board fleet alive and current.

The launcher spawns the child services enabled in configuration, listens for
health reports on the local bus, periodically checks the release index and
applies package updates for the fleet, and serves the local status page with
the manual update trigger. The launcher's own packages are updated by the
gateway process, never by the launcher itself.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return launcher.Run(ctx, &launcher.Options{ConfigPath: configPath})
		},
	}
)

// Execute runs the luffy-launcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default /etc/luffy/launcher.yaml)")
}
