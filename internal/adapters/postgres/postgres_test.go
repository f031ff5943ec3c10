package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qualitygrid/internal/domain"
)

func newMock(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func sampleReport() domain.RunReport {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	jci := domain.Certification{Name: "JCI", Status: domain.StatusActive}.WithTag("JCI")
	return domain.RunReport{
		ID:            "5f0c3f0e-2b1a-4a55-9f55-6f1f2b0f3c11",
		StartedAt:     ref,
		FinishedAt:    ref.Add(time.Second),
		ReferenceDate: ref,
		TablesVersion: 1,
		Organizations: []domain.Organization{
			{ID: "o1", Name: "Alpha", Certifications: []domain.Certification{jci}, Rank: 1, Percentile: 100, Grade: "B",
				ScoreBreakdown: &domain.ScoreBreakdown{TotalScore: 36}},
			{ID: "o2", Name: "Beta"},
		},
		Errors:     []domain.RecordError{{Index: 2, Organization: "Beta", Stage: "registry", Message: "down"}},
		ErrorCount: 1,
	}
}

func TestSaveRun_CommitsEverything(t *testing.T) {
	db, mock := newMock(t)
	report := sampleReport()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WithArgs(report.ID, report.StartedAt, report.FinishedAt, report.ReferenceDate, 1, 2, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_organizations"}, organizationColumns).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"run_errors"}, errorColumns).WillReturnResult(1)
	mock.ExpectCommit()

	require.NoError(t, db.SaveRun(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_NoErrorsSkipsErrorCopy(t *testing.T) {
	db, mock := newMock(t)
	report := sampleReport()
	report.Errors = nil
	report.ErrorCount = 0

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_organizations"}, organizationColumns).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, db.SaveRun(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_RollsBackOnFailure(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_organizations"}, organizationColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := db.SaveRun(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy organizations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRankings(t *testing.T) {
	db, mock := newMock(t)
	finished := time.Date(2026, 6, 1, 0, 0, 1, 0, time.UTC)

	mock.ExpectQuery("FROM runs").WillReturnRows(
		pgxmock.NewRows([]string{"id", "started_at", "finished_at", "tables_version", "organizations", "error_count"}).
			AddRow("run-1", finished.Add(-time.Second), finished, 1, 3, 0))
	mock.ExpectQuery("FROM run_organizations").WithArgs("run-1", 2).WillReturnRows(
		pgxmock.NewRows([]string{"organization_id", "name", "total_score", "active_certifications", "rank", "percentile", "grade"}).
			AddRow("o1", "Alpha", 36.0, 3, 1, 100.0, "B").
			AddRow("o2", "Beta", 31.2, 1, 2, 66.67, "B"))

	run, entries, err := db.LatestRankings(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 3, run.Organizations)
	require.Len(t, entries, 2)
	assert.Equal(t, "Alpha", entries[0].Name)
	assert.Equal(t, 2, entries[1].Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRankings_DefaultLimitIsWholeRun(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery("FROM runs").WillReturnRows(
		pgxmock.NewRows([]string{"id", "started_at", "finished_at", "tables_version", "organizations", "error_count"}).
			AddRow("run-1", now, now, 1, 5, 0))
	mock.ExpectQuery("FROM run_organizations").WithArgs("run-1", 5).WillReturnRows(
		pgxmock.NewRows([]string{"organization_id", "name", "total_score", "active_certifications", "rank", "percentile", "grade"}))

	_, entries, err := db.LatestRankings(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRankings_NoRuns(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM runs").WillReturnError(pgx.ErrNoRows)

	_, _, err := db.LatestRankings(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrganization(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT o.document").WithArgs("o1").WillReturnRows(
		pgxmock.NewRows([]string{"document"}).AddRow([]byte(`{"id":"o1","name":"Alpha","certifications":[],"rank":1,"grade":"B"}`)))

	org, err := db.Organization(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", org.Name)
	assert.Equal(t, 1, org.Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganization_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT o.document").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := db.Organization(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
