package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/service/client"
	"github.com/oshokin/drowsy-alarm/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// controlAddress overrides the monitor control address.
	controlAddress string

	// errInvalidCommand is returned for a command other than start or stop.
	errInvalidCommand = errors.New("command must be start or stop")

	// rootCmd represents the base command for starting and stopping sampling.
	rootCmd = &cobra.Command{
		Use:   "drowsy-engine start|stop",
		Short: "Start or stop sampling on a running monitor.",
		Long: `Starts or stops the sampling loop of the running drowsy-monitor.

Stopping releases the camera and silences the alarm; the monitor keeps serving
its APIs. Starting acquires the camera again. A denied camera is reported and
not retried.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var action client.Action

			switch args[0] {
			case "start":
				action = client.ActionEngineStart
			case "stop":
				action = client.ActionEngineStop
			default:
				return fmt.Errorf("%w: %q", errInvalidCommand, args[0])
			}

			return client.Run(ctx, &client.Options{
				ConfigPath:     cfgPath,
				ControlAddress: controlAddress,
				Action:         action,
			})
		},
	}
)

// Execute runs the drowsy-engine CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&controlAddress, "address", "a", "", "monitor control address override")
}
