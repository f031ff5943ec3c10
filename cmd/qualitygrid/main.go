// Command qualitygrid scores, deduplicates and ranks healthcare organizations
// from a certification snapshot.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qualitygrid/internal/config"
	"qualitygrid/internal/logger"
)

const (
	Version   = "0.3.0"
	BuildTime = "dev"
	appName   = "qualitygrid"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Healthcare certification scoring and ranking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(scoreCmd(), serveCmd(), migrateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

// setup loads the runtime config and builds the logger. A missing
// DATABASE_URL is only a warning here; commands that need it check.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrNoDatabase) {
		return cfg, nil, err
	}
	log, lerr := logger.New(cfg.LogLevel, cfg.LogFormat, appName)
	if lerr != nil {
		return cfg, nil, fmt.Errorf("logger: %w", lerr)
	}
	if err != nil {
		log.Debug("persistence disabled", zap.Error(err))
	}
	return cfg, log, nil
}
