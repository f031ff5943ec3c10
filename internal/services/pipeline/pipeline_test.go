package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qualitygrid/internal/cache"
	"qualitygrid/internal/domain"
	"qualitygrid/internal/metrics"
	"qualitygrid/internal/ports"
	"qualitygrid/internal/taxonomy"
)

var ref = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func activeCert(name string) domain.Certification {
	return domain.Certification{Name: name, Status: domain.StatusActive}
}

func sampleRecords() []domain.Organization {
	return []domain.Organization{
		{Name: "Apollo Hospitals Chennai", Certifications: []domain.Certification{activeCert("CAP Accreditation")}, Sources: []string{"cap"}},
		{Name: "apollo hospitals, chennai", Certifications: []domain.Certification{activeCert("ISO 9001:2015")}, Sources: []string{"iso"}},
		{Name: "  "},
		{Name: "Beta Hospital", Certifications: []domain.Certification{activeCert("JCI Accreditation")}},
		{Name: "Alpha Hospital", Certifications: []domain.Certification{activeCert("JCI Accreditation")}},
	}
}

func newService(t *testing.T, lookup ports.RegistryLookup) (*Service, *metrics.Metrics) {
	t.Helper()
	tx, err := taxonomy.Default()
	require.NoError(t, err)
	m := metrics.New()
	mem := cache.NewMemory(cache.TTLsFrom(tx.TTLs()), m)
	svc := New(tx, mem, lookup, m, zap.NewNop())
	svc.now = func() time.Time { return ref }
	return svc, m
}

func TestRun_EndToEnd(t *testing.T) {
	svc, m := newService(t, nil)
	prior := []domain.RecordError{{Index: 9, Stage: StageIngest, Message: "malformed"}}

	report, err := svc.Run(context.Background(), sampleRecords(), prior, Options{Workers: 2, ReferenceDate: ref})
	require.NoError(t, err)

	assert.Equal(t, 6, report.InputRecords)
	assert.Equal(t, 1, report.Merged)
	assert.Equal(t, 2, report.ErrorCount)
	assert.Equal(t, StageIngest, report.Errors[1].Stage)

	require.Len(t, report.Rankings, 3)
	names := []string{report.Rankings[0].Name, report.Rankings[1].Name, report.Rankings[2].Name}
	assert.Equal(t, []string{"Apollo Hospitals Chennai", "Alpha Hospital", "Beta Hospital"}, names)
	for i, e := range report.Rankings {
		assert.Equal(t, i+1, e.Rank)
		assert.InDelta(t, 36.0, e.TotalScore, 1e-9)
	}

	apollo := report.Organizations[0]
	assert.Equal(t, 1, apollo.Rank)
	assert.Equal(t, 100.0, apollo.Percentile)
	require.Len(t, apollo.Certifications, 2)
	assert.Equal(t, "CAP", apollo.Certifications[0].Tag())
	assert.Equal(t, "ISO_9001", apollo.Certifications[1].Tag())
	require.NotNil(t, apollo.ScoreBreakdown)
	assert.False(t, apollo.ScoreBreakdown.MandatoryCompliance["JCI"])

	assert.Equal(t, 3, report.Statistics.Count)
	assert.Equal(t, 3.0, counterValue(t, m, "qualitygrid_organizations_scored_total"))
	assert.Equal(t, 1.0, counterValue(t, m, "qualitygrid_duplicates_merged_total"))
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

type failingLookup struct{ name string }

func (f failingLookup) Listed(_ context.Context, org domain.Organization) (bool, error) {
	if org.Name == f.name {
		return false, errors.New("registry timeout")
	}
	return org.Name == "Alpha Hospital", nil
}

func TestRun_RegistryFailureIsIsolated(t *testing.T) {
	svc, _ := newService(t, failingLookup{name: "Beta Hospital"})

	report, err := svc.Run(context.Background(), sampleRecords(), nil, Options{Workers: 3, ReferenceDate: ref})
	require.NoError(t, err)

	require.Len(t, report.Rankings, 2)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, StageRegistry, report.Errors[1].Stage)
	assert.Equal(t, "Beta Hospital", report.Errors[1].Organization)
	assert.Equal(t, 3, report.Errors[1].Index, "index of the input record, not the deduplicated one")

	last := report.Organizations[len(report.Organizations)-1]
	assert.Equal(t, "Beta Hospital", last.Name)
	assert.Zero(t, last.Rank, "unranked organizations are still reported")
}

func TestRun_RegistryRejectionDropsCertification(t *testing.T) {
	svc, _ := newService(t, failingLookup{})

	report, err := svc.Run(context.Background(), sampleRecords(), nil, Options{Workers: 1, ReferenceDate: ref})
	require.NoError(t, err)
	require.Len(t, report.Rankings, 3)

	var beta domain.Organization
	for _, o := range report.Organizations {
		if o.Name == "Beta Hospital" {
			beta = o
		}
	}
	require.NotNil(t, beta.ScoreBreakdown)
	assert.Empty(t, beta.Certifications)
	assert.Equal(t, -40.0, beta.ScoreBreakdown.TotalScore)
	assert.Equal(t, "Beta Hospital", report.Rankings[2].Name)
}

func TestRun_ExcludeGroupLevel(t *testing.T) {
	svc, _ := newService(t, nil)
	records := append(sampleRecords(), domain.Organization{Name: "Apollo Hospitals Group"})

	report, err := svc.Run(context.Background(), records, nil, Options{ReferenceDate: ref, ExcludeGroupLevel: true})
	require.NoError(t, err)
	require.Len(t, report.Excluded, 1)
	assert.Equal(t, "Apollo Hospitals Group", report.Excluded[0].Name)
	assert.Len(t, report.Rankings, 3)
	assert.Len(t, report.Organizations, 4)
}

func TestRun_CancelledContext(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Run(ctx, sampleRecords(), nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUniqueIDs(t *testing.T) {
	orgs := []domain.Organization{{ID: "a"}, {ID: "a"}, {ID: "b"}}
	uniqueIDs(orgs)
	assert.Equal(t, "a", orgs[0].ID)
	assert.Equal(t, "a-1", orgs[1].ID)
	assert.Equal(t, "b", orgs[2].ID)

	orgs = []domain.Organization{{ID: "x-2"}, {ID: "x"}, {ID: "x"}}
	uniqueIDs(orgs)
	assert.Equal(t, []string{"x-2", "x", "x-3"}, []string{orgs[0].ID, orgs[1].ID, orgs[2].ID})

	orgs = []domain.Organization{{ID: "y"}, {ID: "y"}, {ID: "y-1"}}
	uniqueIDs(orgs)
	assert.Equal(t, []string{"y", "y-2", "y-1"}, []string{orgs[0].ID, orgs[1].ID, orgs[2].ID})
}

func TestRun_ErrorIndexesUseInputPositions(t *testing.T) {
	svc, _ := newService(t, failingLookup{name: "Beta Hospital"})
	opts := Options{Workers: 2, ReferenceDate: ref, Positions: []int{0, 2, 4, 5, 7}}

	report, err := svc.Run(context.Background(), sampleRecords(), nil, opts)
	require.NoError(t, err)

	require.Len(t, report.Errors, 2)
	assert.Equal(t, StageIngest, report.Errors[0].Stage)
	assert.Equal(t, 4, report.Errors[0].Index)
	assert.Equal(t, StageRegistry, report.Errors[1].Stage)
	assert.Equal(t, 5, report.Errors[1].Index)
}
