package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avtools/ffmpeg-fetcher/internal/service/installer"
	"github.com/avtools/ffmpeg-fetcher/internal/version"
)

var (
	// configPath to the optional settings YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string
	// skipDocs disables README/LICENSE companion downloads.
	skipDocs bool
	// quiet suppresses the download progress bar.
	quiet bool

	// rootCmd represents the base command for running the installer.
	rootCmd = &cobra.Command{
		Use:   "ffmpeg-fetcher",
		Short: "Download and install ffmpeg and ffprobe for the current platform.",
		Long: `Downloads platform-matched ffmpeg and ffprobe builds and installs them
into the configured directory.

The target platform is detected from the running machine and can be overridden
through environment variables or the settings file. Downloads are cached, so
repeated runs only hit the network for payloads that were never fetched before.
If both binaries are already installed the command exits without touching the
network.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &installer.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				SkipDocs:   skipDocs,
				Quiet:      quiet,
			}

			return installer.Run(ctx, options)
		},
	}
)

// Execute runs the ffmpeg-fetcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to settings file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&skipDocs, "skip-docs", false, "skip README and LICENSE downloads")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable the progress bar")
	rootCmd.SilenceUsage = true
}
