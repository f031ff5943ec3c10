package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"qualitygrid/internal/domain"
	"qualitygrid/internal/ports"
)

func (db *DB) latestRun(ctx context.Context) (ports.RunSummary, error) {
	var s ports.RunSummary
	err := db.Pool.QueryRow(ctx, `
        SELECT id::text, started_at, finished_at, tables_version, organizations, error_count
        FROM runs ORDER BY finished_at DESC LIMIT 1
    `).Scan(&s.ID, &s.StartedAt, &s.FinishedAt, &s.TablesVersion, &s.Organizations, &s.ErrorCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// LatestRankings returns the ranked organizations of the most recent run, in
// rank order. Unranked organizations are left out.
func (db *DB) LatestRankings(ctx context.Context, limit int) (ports.RunSummary, []domain.RankingEntry, error) {
	run, err := db.latestRun(ctx)
	if err != nil {
		return run, nil, err
	}
	if limit <= 0 {
		limit = run.Organizations
	}
	rows, err := db.Pool.Query(ctx, `
        SELECT organization_id, name, total_score, active_certifications, rank, percentile, grade
        FROM run_organizations
        WHERE run_id = $1 AND rank > 0
        ORDER BY rank
        LIMIT $2
    `, run.ID, limit)
	if err != nil {
		return run, nil, err
	}
	defer rows.Close()

	var out []domain.RankingEntry
	for rows.Next() {
		var e domain.RankingEntry
		if err := rows.Scan(&e.OrganizationID, &e.Name, &e.TotalScore, &e.ActiveCertificationCount,
			&e.Rank, &e.Percentile, &e.Grade); err != nil {
			return run, nil, err
		}
		out = append(out, e)
	}
	return run, out, rows.Err()
}

// Organization returns the document stored for id by the most recent run
// that contained it.
func (db *DB) Organization(ctx context.Context, id string) (domain.Organization, error) {
	var doc []byte
	err := db.Pool.QueryRow(ctx, `
        SELECT o.document
        FROM run_organizations o JOIN runs r ON r.id = o.run_id
        WHERE o.organization_id = $1
        ORDER BY r.finished_at DESC
        LIMIT 1
    `, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Organization{}, ErrNotFound
	}
	if err != nil {
		return domain.Organization{}, err
	}
	var org domain.Organization
	if err := json.Unmarshal(doc, &org); err != nil {
		return domain.Organization{}, fmt.Errorf("decode organization %s: %w", id, err)
	}
	return org, nil
}
