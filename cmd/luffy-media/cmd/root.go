package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luffy-robotics/luffy/internal/service/media"
	"github.com/luffy-robotics/luffy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for running the media bridge.
	rootCmd = &cobra.Command{
		Use:   "luffy-media",
		Short: "Run the media bridge health reporter.",
		Long: `Starts the media bridge process.

The process announces its health and version on the local bus so the
launcher can track its state and keep its packages current.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return media.Run(ctx, &media.Options{ConfigPath: configPath})
		},
	}
)

// Execute runs the luffy-media CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default /etc/luffy/media.yaml)")
}
