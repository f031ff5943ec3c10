package ports

import (
	"context"
	"time"

	"qualitygrid/internal/domain"
)

// RunSummary describes one persisted batch run.
type RunSummary struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	TablesVersion int       `json:"tables_version"`
	Organizations int       `json:"organizations"`
	ErrorCount    int       `json:"error_count"`
}

// RunRepository persists a finished, ranked run atomically.
type RunRepository interface {
	SaveRun(ctx context.Context, report domain.RunReport) error
}
