package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/service/monitor"
	"github.com/oshokin/drowsy-alarm/internal/version"
)

var (
	// options collects the command line flags.
	options = new(monitor.Options)

	// rootCmd represents the base command for running the monitor.
	rootCmd = &cobra.Command{
		Use:   "drowsy-monitor [classifier-url]",
		Short: "Watch the camera and sound an alarm when the subject gets drowsy.",
		Long: `Starts the drowsiness monitor.

Every tick a frame is captured and sent to the remote classifier. The reported
eye aspect ratio and drowsy flag drive the status line, the calibration
statistics and the alarm, which repeats a tone burst until the subject recovers.

The current state is served over HTTP (status, calibration, episodes, metrics
and a WebSocket stream) and over the gRPC control API used by drowsy-status,
drowsy-calibrate and drowsy-engine.
The classifier URL can be provided as argument to override the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use classifier URL argument if provided, otherwise rely on config.
			if len(args) > 0 {
				options.ClassifierURL = args[0]
			}

			return monitor.Run(ctx, options)
		},
	}
)

// Execute runs the drowsy-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.Flags()
	flags.StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&options.ListenAddress, "listen", "l", "", "HTTP API listen address override")
	flags.StringVar(&options.ControlAddress, "control", "", "gRPC control API listen address override")
	flags.StringVar(&options.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.BoolVarP(&options.Mute, "mute", "m", false, "visual-only alarm, no sound")
	flags.BoolVar(&options.Calibrate, "calibrate", false, "start in calibration mode")
	flags.BoolVar(&options.Idle, "idle", false, "wait for a start request before acquiring the camera")
	flags.BoolVar(&options.Replace, "replace", false, "terminate an already running monitor")
	flags.BoolVarP(&options.Quiet, "quiet", "q", false, "do not print the status line")
}
