package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"qualitygrid/internal/domain"
)

var organizationColumns = []string{
	"run_id", "organization_id", "name", "country", "city",
	"total_score", "active_certifications", "rank", "percentile", "grade", "document",
}

var errorColumns = []string{"run_id", "record_index", "organization", "stage", "message"}

// SaveRun writes the run, every organization document and the record errors
// in one transaction. A failed run never leaves partial rows behind.
func (db *DB) SaveRun(ctx context.Context, report domain.RunReport) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows := make([][]any, 0, len(report.Organizations))
	for _, org := range report.Organizations {
		doc, merr := json.Marshal(org)
		if merr != nil {
			return fmt.Errorf("encode organization %s: %w", org.ID, merr)
		}
		var total float64
		if org.ScoreBreakdown != nil {
			total = org.ScoreBreakdown.TotalScore
		}
		rows = append(rows, []any{
			report.ID, org.ID, org.Name, org.Country, org.City,
			total, org.ActiveClassifiedCount(report.ReferenceDate),
			org.Rank, org.Percentile, org.Grade, doc,
		})
	}

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `
        INSERT INTO runs (id, started_at, finished_at, reference_date, tables_version, organizations, error_count)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, report.ID, report.StartedAt, report.FinishedAt, report.ReferenceDate,
		report.TablesVersion, len(report.Organizations), report.ErrorCount); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err = tx.CopyFrom(ctx, pgx.Identifier{"run_organizations"}, organizationColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy organizations: %w", err)
	}

	if len(report.Errors) == 0 {
		return nil
	}
	errRows := make([][]any, 0, len(report.Errors))
	for _, e := range report.Errors {
		errRows = append(errRows, []any{report.ID, e.Index, e.Organization, e.Stage, e.Message})
	}
	if _, err = tx.CopyFrom(ctx, pgx.Identifier{"run_errors"}, errorColumns, pgx.CopyFromRows(errRows)); err != nil {
		return fmt.Errorf("copy errors: %w", err)
	}
	return nil
}
