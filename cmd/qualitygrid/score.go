package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	pg "qualitygrid/internal/adapters/postgres"
	"qualitygrid/internal/adapters/snapshot"
	"qualitygrid/internal/cache"
	"qualitygrid/internal/config"
	"qualitygrid/internal/metrics"
	"qualitygrid/internal/ports"
	"qualitygrid/internal/services/pipeline"
	"qualitygrid/internal/services/registry"
	"qualitygrid/internal/taxonomy"
)

type scoreOptions struct {
	input             string
	output            string
	workers           int
	ttlClassification time.Duration
	ttlExternal       time.Duration
	dryRun            bool
	tables            string
	registry          string
	threshold         float64
	excludeGroupLevel bool
	referenceDate     string
}

func scoreCmd() *cobra.Command {
	var opts scoreOptions
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Run one batch: classify, dedupe, score and rank a snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if !cmd.Flags().Changed("workers") {
				opts.workers = cfg.ScoreWorkers
			}
			if opts.tables == "" {
				opts.tables = cfg.TablesPath
			}
			if opts.registry == "" {
				opts.registry = cfg.RegistryPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runScore(ctx, cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout(), log)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "-", "input snapshot path (- for stdin)")
	f.StringVarP(&opts.output, "output", "o", "-", "output snapshot path (- for stdout)")
	f.IntVar(&opts.workers, "workers", 4, "concurrent scoring workers (default from SCORE_WORKERS)")
	f.DurationVar(&opts.ttlClassification, "ttl-classification", 0, "override the classification cache TTL")
	f.DurationVar(&opts.ttlExternal, "ttl-external", 0, "override the external validation cache TTL")
	f.BoolVar(&opts.dryRun, "dry-run", false, "do not persist the run")
	f.StringVar(&opts.tables, "tables", "", "static tables YAML (default embedded, or TABLES_PATH)")
	f.StringVar(&opts.registry, "registry", "", "registry index JSON (or REGISTRY_PATH)")
	f.Float64Var(&opts.threshold, "threshold", 0, "override the dedupe Jaccard threshold (0,1]")
	f.BoolVar(&opts.excludeGroupLevel, "exclude-group-level", false, "leave group-level entries out of the ranking")
	f.StringVar(&opts.referenceDate, "reference-date", "", "date certifications are judged at, YYYY-MM-DD (default today)")
	return cmd
}

func runScore(ctx context.Context, cfg config.Config, opts scoreOptions, stdin io.Reader, stdout io.Writer, log *zap.Logger) error {
	tx, err := taxonomy.Load(opts.tables)
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}
	if opts.threshold != 0 && (opts.threshold < 0 || opts.threshold > 1) {
		return fmt.Errorf("threshold %v out of range (0,1]", opts.threshold)
	}
	tx = tx.WithTTLs(opts.ttlClassification, opts.ttlExternal).WithJaccardThreshold(opts.threshold)

	var ref time.Time
	if opts.referenceDate != "" {
		ref, err = time.Parse("2006-01-02", opts.referenceDate)
		if err != nil {
			return fmt.Errorf("reference date: %w", err)
		}
	}

	var lookup ports.RegistryLookup
	if opts.registry != "" {
		idx, err := registry.LoadIndex(opts.registry)
		if err != nil {
			return fmt.Errorf("load registry: %w", err)
		}
		lookup = idx
		log.Info("registry loaded", zap.String("path", opts.registry), zap.Int("organizations", idx.Len()))
	}

	in := stdin
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	batch, err := snapshot.Decode(in)
	if err != nil {
		return err
	}
	for _, e := range batch.Errors {
		log.Warn("input record problem",
			zap.Int("index", e.Index),
			zap.String("organization", e.Organization),
			zap.String("reason", e.Message))
	}

	m := metrics.New()
	ttls := cache.TTLsFrom(tx.TTLs())
	var c ports.Cache = cache.NewMemory(ttls, m)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
		defer client.Close()
		c = cache.NewRedis(client, ttls, log, m)
	}

	svc := pipeline.New(tx, c, lookup, m, log)
	report, err := svc.Run(ctx, batch.Organizations, batch.Errors, pipeline.Options{
		Workers:           opts.workers,
		ReferenceDate:     ref,
		ExcludeGroupLevel: opts.excludeGroupLevel,
		Positions:         batch.Positions,
	})
	if err != nil {
		return err
	}

	out := stdout
	if opts.output != "-" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := snapshot.Encode(out, snapshot.NewOutput(report, batch.Metadata)); err != nil {
		return err
	}

	if opts.dryRun || cfg.DatabaseURL == "" {
		return nil
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	var repo ports.RunRepository = db
	if err := repo.SaveRun(ctx, report); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	log.Info("run persisted", zap.String("run_id", report.ID))
	return nil
}
