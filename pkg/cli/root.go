// Package cli implements the geopkg command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"geopkg-maker/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "geopkg",
		Short:         "Borehole GeoPackage publisher",
		Long:          "Converts directories of MSCL borehole petrophysics CSV files into a GeoPackage and publishes the dataset archives to an object store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newMakeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig loads env config, applies CLI flag overrides, and builds the
// logger. Config warnings are logged once the logger exists.
func loadConfig(overrides func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if overrides != nil {
		overrides(cfg)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}
