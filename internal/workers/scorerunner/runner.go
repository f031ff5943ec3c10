package scorerunner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"qualitygrid/internal/domain"
	"qualitygrid/internal/ports"
)

// Processor performs the per-organization work for one job.
type Processor interface {
	Process(ctx context.Context, org domain.Organization) (domain.Organization, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, org domain.Organization) (domain.Organization, error)

func (f ProcessorFunc) Process(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	return f(ctx, org)
}

// Run fans orgs out to concurrency workers and collects the results back in
// input order. A failing or panicking job is isolated into its own result;
// it never stops the other workers. Jobs not started before ctx is done are
// reported with ctx's error.
func Run(ctx context.Context, orgs []domain.Organization, processor Processor, concurrency int, logger *zap.Logger) []ports.ScoreResult {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]ports.ScoreResult, len(orgs))
	for i, org := range orgs {
		results[i] = ports.ScoreResult{Index: i, Org: org}
	}
	jobsCh := make(chan ports.ScoreJob, concurrency)

	// dispatcher
	go func() {
		defer close(jobsCh)
		for i, org := range orgs {
			select {
			case <-ctx.Done():
				return
			case jobsCh <- ports.ScoreJob{Index: i, Org: org}:
			}
		}
	}()

	started := make([]bool, len(orgs))
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for job := range jobsCh {
				started[job.Index] = true
				out, err := ProcessInline(ctx, processor, job.Org)
				if err != nil {
					logger.Warn("job failed",
						zap.Int("worker", idx),
						zap.Int("index", job.Index),
						zap.String("organization", job.Org.Name),
						zap.Error(err))
					results[job.Index].Err = err
					continue
				}
				results[job.Index].Org = out
			}
		}(w)
	}
	wg.Wait()

	for i := range results {
		if !started[i] {
			results[i].Err = ctx.Err()
		}
	}
	return results
}

// ProcessInline runs processor for a single organization on the calling
// goroutine with the same panic isolation the workers use.
func ProcessInline(ctx context.Context, processor Processor, org domain.Organization) (out domain.Organization, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = org, fmt.Errorf("panic while processing %q: %v", org.Name, r)
		}
	}()
	return processor.Process(ctx, org)
}
