package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luffy-robotics/luffy/internal/service/gateway"
	"github.com/luffy-robotics/luffy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for running the vehicle gateway.
	rootCmd = &cobra.Command{
		Use:   "luffy-gateway",
		Short: "Run the vehicle gateway and the launcher's update path.",
		Long: `Starts the vehicle gateway process.

Besides reporting its own health on the local bus, the gateway owns the
launcher's update path: it periodically checks the release index for
launcher packages and listens on the bus for remotely requested update
cycles.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return gateway.Run(ctx, &gateway.Options{ConfigPath: configPath})
		},
	}
)

// Execute runs the luffy-gateway CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default /etc/luffy/gateway.yaml)")
}
