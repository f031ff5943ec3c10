// Package pipeline runs one batch: classify, deduplicate, validate against
// the registry, score on a worker pool, then rank the whole population.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qualitygrid/internal/domain"
	"qualitygrid/internal/metrics"
	"qualitygrid/internal/ports"
	"qualitygrid/internal/services/classifier"
	"qualitygrid/internal/services/dedupe"
	"qualitygrid/internal/services/ranking"
	"qualitygrid/internal/services/registry"
	"qualitygrid/internal/services/scoring"
	"qualitygrid/internal/taxonomy"
	"qualitygrid/internal/workers/scorerunner"
)

// Record error stages.
const (
	StageIngest   = "ingest"
	StageRegistry = "registry"
	StageScore    = "score"
)

type Options struct {
	Workers           int
	ReferenceDate     time.Time
	ExcludeGroupLevel bool
	// Positions maps each record to its position in the caller's input, so
	// record errors point at the same place as ingestion diagnostics.
	// Defaults to the record's index.
	Positions []int
}

func (o Options) position(i int) int {
	if i < len(o.Positions) {
		return o.Positions[i]
	}
	return i
}

type Service struct {
	tx         *taxonomy.Taxonomy
	classifier *classifier.Cached
	merger     *dedupe.Merger
	validator  *registry.Validator
	engine     *scoring.Engine
	ranker     *ranking.Ranker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// New wires the batch services. cache and lookup may be nil: classification
// then recomputes every time and registry validation is skipped.
func New(tx *taxonomy.Taxonomy, cache ports.Cache, lookup ports.RegistryLookup, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tx:         tx,
		classifier: classifier.NewCached(classifier.New(tx), cache),
		merger:     dedupe.New(tx),
		validator:  registry.NewValidator(tx, lookup, cache, logger),
		engine:     scoring.New(tx),
		ranker:     ranking.New(tx),
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return StageScore
}

// Run processes records and returns the ranked report. prior carries
// diagnostics from the ingestion boundary; they are kept in the report. Run
// only fails when ctx is cancelled.
func (s *Service) Run(ctx context.Context, records []domain.Organization, prior []domain.RecordError, opts Options) (domain.RunReport, error) {
	started := s.now()
	ref := opts.ReferenceDate
	if ref.IsZero() {
		ref = started
	}
	report := domain.RunReport{
		ID:            uuid.NewString(),
		StartedAt:     started,
		ReferenceDate: ref,
		TablesVersion: s.tx.Version(),
		InputRecords:  len(records) + len(prior),
		Errors:        append([]domain.RecordError(nil), prior...),
	}

	valid := make([]domain.Organization, 0, len(records))
	validIdx := make([]int, 0, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Name) == "" {
			s.recordError(&report, domain.RecordError{Index: opts.position(i), Stage: StageIngest, Message: "missing organization name"})
			s.logger.Warn("skipping record without name", zap.Int("index", opts.position(i)))
			continue
		}
		valid = append(valid, s.classify(ctx, r))
		validIdx = append(validIdx, i)
	}

	deduped := s.merger.Dedupe(valid)
	uniqueIDs(deduped.Organizations)
	report.Merged = deduped.Merged
	s.metrics.DuplicatesMerged(deduped.Merged)
	s.logger.Info("deduplicated records",
		zap.Int("input", len(valid)),
		zap.Int("organizations", len(deduped.Organizations)),
		zap.Int("merged", deduped.Merged))

	processor := scorerunner.ProcessorFunc(func(ctx context.Context, org domain.Organization) (domain.Organization, error) {
		return s.score(ctx, org, ref)
	})
	results := scorerunner.Run(ctx, deduped.Organizations, processor, opts.Workers, s.logger)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	var scored, failed []domain.Organization
	for _, res := range results {
		if res.Err != nil {
			s.recordError(&report, domain.RecordError{
				Index:        opts.position(validIdx[deduped.Origins[res.Index]]),
				Organization: res.Org.Name,
				Stage:        stageOf(res.Err),
				Message:      res.Err.Error(),
			})
			failed = append(failed, res.Org)
			continue
		}
		s.metrics.OrganizationScored()
		scored = append(scored, res.Org)
	}

	s.rank(&report, scored, ref, opts.ExcludeGroupLevel)
	report.Organizations = append(report.Organizations, failed...)

	report.FinishedAt = s.now()
	report.ErrorCount = len(report.Errors)
	s.metrics.RunFinished(report.FinishedAt.Sub(started), len(report.Rankings))
	s.logger.Info("batch run finished",
		zap.String("run_id", report.ID),
		zap.Int("ranked", len(report.Rankings)),
		zap.Int("excluded", len(report.Excluded)),
		zap.Int("errors", report.ErrorCount),
		zap.Duration("duration", report.FinishedAt.Sub(started)))
	return report, nil
}

// uniqueIDs suffixes caller-supplied ids that collide after dedupe. A
// suffixed id never reuses an id already present in orgs.
func uniqueIDs(orgs []domain.Organization) {
	taken := make(map[string]bool, len(orgs))
	for _, o := range orgs {
		taken[o.ID] = true
	}
	seen := make(map[string]bool, len(orgs))
	for i := range orgs {
		id := orgs[i].ID
		if seen[id] {
			for n := i; taken[id]; n++ {
				id = fmt.Sprintf("%s-%d", orgs[i].ID, n)
			}
		}
		seen[id] = true
		taken[id] = true
		orgs[i].ID = id
	}
}

func (s *Service) recordError(report *domain.RunReport, e domain.RecordError) {
	report.Errors = append(report.Errors, e)
	s.metrics.RecordError(e.Stage)
}

func (s *Service) classify(ctx context.Context, org domain.Organization) domain.Organization {
	out := org
	out.Certifications = make([]domain.Certification, len(org.Certifications))
	for i, c := range org.Certifications {
		out.Certifications[i] = s.classifier.Certification(ctx, c)
		if out.Certifications[i].ClassifiedType == nil {
			s.logger.Debug("unclassified certification",
				zap.String("organization", org.Name),
				zap.String("certification", c.Name))
		}
	}
	return out
}

func (s *Service) score(ctx context.Context, org domain.Organization, ref time.Time) (domain.Organization, error) {
	org, _, err := s.validator.Filter(ctx, org)
	if err != nil {
		return org, &stageError{stage: StageRegistry, err: err}
	}
	b := s.engine.Score(org, ref)
	org.ScoreBreakdown = &b
	return org, nil
}

func (s *Service) rank(report *domain.RunReport, scored []domain.Organization, ref time.Time, excludeGroups bool) {
	entries := make([]domain.RankingEntry, len(scored))
	byID := make(map[string]domain.Organization, len(scored))
	for i, org := range scored {
		entries[i] = ranking.EntryFor(org, ref)
		byID[org.ID] = org
	}
	if excludeGroups {
		entries, report.Excluded = s.ranker.ExcludeGroupLevel(entries)
	}

	ranked := s.ranker.Rank(entries)
	if v := ranking.Validate(ranked); !v.OK() {
		s.logger.Error("ranking validation failed", zap.Error(v))
	}
	report.Rankings = ranked
	report.Statistics = s.ranker.Statistics(ranked)

	for _, e := range ranked {
		org := byID[e.OrganizationID]
		org.Rank = e.Rank
		org.Percentile = e.Percentile
		org.Grade = e.Grade
		report.Organizations = append(report.Organizations, org)
	}
	for _, e := range report.Excluded {
		org := byID[e.OrganizationID]
		org.Grade = s.tx.GradeFor(e.TotalScore)
		report.Organizations = append(report.Organizations, org)
	}
}
