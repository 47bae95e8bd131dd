package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/service/status"
	"github.com/oshokin/drowsy-alarm/internal/version"
)

var (
	// options collects the command line flags.
	options = new(status.Options)

	// rootCmd represents the base command for printing the monitor status.
	rootCmd = &cobra.Command{
		Use:   "drowsy-status [control-address]",
		Short: "Print the status of a running monitor.",
		Long: `Prints the current snapshot of the running drowsy-monitor: status line,
eye aspect ratio, drowsy score, alarm, camera and calibration statistics.

With --watch the command keeps polling and prints a line every time the
displayed status changes.
The control address can be provided as argument to override the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use control address argument if provided, otherwise rely on config.
			if len(args) > 0 {
				options.ControlAddress = args[0]
			}

			return status.Run(ctx, options)
		},
	}
)

// Execute runs the drowsy-status CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().BoolVarP(&options.Watch, "watch", "w", false, "keep polling and print changes")
	rootCmd.Flags().DurationVarP(&options.PollInterval, "interval", "i", status.DefaultPollInterval, "polling interval in watch mode")
}
