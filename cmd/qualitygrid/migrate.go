package main

import (
	"errors"

	"github.com/spf13/cobra"

	pg "qualitygrid/internal/adapters/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required to migrate")
			}
			if err := pg.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}
