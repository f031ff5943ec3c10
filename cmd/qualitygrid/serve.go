package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpadapter "qualitygrid/internal/adapters/http"
	pg "qualitygrid/internal/adapters/postgres"
	"qualitygrid/internal/metrics"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest persisted run over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required to serve reports")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := pg.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           httpadapter.New(db, metrics.New(), log).Routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info("listening", zap.String("addr", cfg.ListenAddr))

			select {
			case <-ctx.Done():
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			}
		},
	}
}
