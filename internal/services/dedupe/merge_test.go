package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qualitygrid/internal/domain"
	"qualitygrid/internal/taxonomy"
)

func newMerger(t *testing.T) *Merger {
	t.Helper()
	tx, err := taxonomy.Default()
	require.NoError(t, err)
	return New(tx)
}

func cert(name, tag, issuer string) domain.Certification {
	return domain.Certification{Name: name, Status: domain.StatusActive, Issuer: issuer}.WithTag(tag)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "apollo hospitals chennai", NormalizeName("Apollo Hospitals, Chennai"))
	assert.Equal(t, "hopital saint louis", NormalizeName("  Hôpital Saint-Louis "))
	assert.Equal(t, "", NormalizeName("--"))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("a b", "b a"))
	assert.InDelta(t, 0.5, Jaccard("a b c", "a b d"), 1e-9)
	assert.Equal(t, 0.0, Jaccard("", ""))
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "apollohospitals.com", RegistrableDomain("https://www.apollohospitals.com/chennai"))
	assert.Equal(t, "nhs.uk", RegistrableDomain("nhs.uk"))
	assert.Equal(t, "example.co.uk", RegistrableDomain("portal.example.co.uk"))
	assert.Equal(t, "", RegistrableDomain(""))
}

func TestMatch(t *testing.T) {
	m := newMerger(t)
	tests := []struct {
		name string
		a, b domain.Organization
		want bool
	}{
		{"exact ignoring case", domain.Organization{Name: "Mayo Clinic"}, domain.Organization{Name: "MAYO CLINIC"}, true},
		{"punctuation only", domain.Organization{Name: "Apollo Hospitals Chennai"}, domain.Organization{Name: "apollo hospitals, chennai"}, true},
		{"word containment", domain.Organization{Name: "Fortis Hospital"}, domain.Organization{Name: "Fortis Hospital Mohali"}, true},
		{"plural containment", domain.Organization{Name: "Apollo Hospital"}, domain.Organization{Name: "Apollo Hospitals Chennai"}, true},
		{"partial word containment", domain.Organization{Name: "Max"}, domain.Organization{Name: "Maxwell Clinic"}, true},
		{"punctuation only name", domain.Organization{Name: "--"}, domain.Organization{Name: "Mayo Clinic"}, false},
		{"jaccard below threshold", domain.Organization{Name: "Saint Mary Medical Center Rochester Hospital"}, domain.Organization{Name: "Saint Mary Medical Center Rochester Clinic"}, false},
		{"jaccard at threshold", domain.Organization{Name: "a b c d e f g h i"}, domain.Organization{Name: "a b c d e f g h j"}, true},
		{"different names", domain.Organization{Name: "Mayo Clinic"}, domain.Organization{Name: "Cleveland Clinic"}, false},
		{"different cities still contain",
			domain.Organization{Name: "Fortis Hospital", City: "Delhi"},
			domain.Organization{Name: "Fortis Hospital Gurgaon", City: "Gurgaon"}, true},
		{"different domains still contain",
			domain.Organization{Name: "City Hospital", Website: "cityhospital.org"},
			domain.Organization{Name: "City Hospital Trust", Website: "https://www.other.org"}, true},
		{"empty name never matches", domain.Organization{Name: ""}, domain.Organization{Name: ""}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.Match(tc.a, tc.b))
			assert.Equal(t, tc.want, m.Match(tc.b, tc.a), "match is symmetric")
		})
	}
}

func TestMatch_LocationVeto(t *testing.T) {
	m := &Merger{threshold: 0.8, locationVeto: true}
	tests := []struct {
		name string
		a, b domain.Organization
		want bool
	}{
		{"different cities veto containment",
			domain.Organization{Name: "Apollo Hospitals", City: "Chennai"},
			domain.Organization{Name: "Apollo Hospitals Delhi", City: "Delhi"}, false},
		{"different domains veto containment",
			domain.Organization{Name: "City Hospital", Website: "cityhospital.org"},
			domain.Organization{Name: "City Hospital Trust", Website: "https://www.other.org"}, false},
		{"same domain keeps containment",
			domain.Organization{Name: "City Hospital", Website: "cityhospital.org"},
			domain.Organization{Name: "City Hospital Trust", Website: "https://www.cityhospital.org/about"}, true},
		{"missing city does not veto",
			domain.Organization{Name: "Apollo Hospitals", City: "Chennai"},
			domain.Organization{Name: "Apollo Hospitals Chennai"}, true},
		{"exact name ignores the veto",
			domain.Organization{Name: "Mayo Clinic", City: "Rochester"},
			domain.Organization{Name: "MAYO CLINIC", City: "Phoenix"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.Match(tc.a, tc.b))
			assert.Equal(t, tc.want, m.Match(tc.b, tc.a))
		})
	}

	tx, err := taxonomy.Default()
	require.NoError(t, err)
	assert.False(t, tx.LocationVeto(), "veto is off in the default tables")
}

func TestDedupe_MergesSubstringNames(t *testing.T) {
	m := newMerger(t)
	res := m.Dedupe([]domain.Organization{
		{Name: "Fortis Hospital", City: "Delhi", Certifications: []domain.Certification{cert("JCI", "JCI", "JCI")}},
		{Name: "Fortis Hospital Gurgaon", City: "Gurgaon", Certifications: []domain.Certification{cert("NABH", "NABH_INDIA", "NABH")}},
	})
	require.Len(t, res.Organizations, 1)
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, "Delhi", res.Organizations[0].City)
	assert.Len(t, res.Organizations[0].Certifications, 2)
}

func TestMatch_JaccardThreshold(t *testing.T) {
	m := newMerger(t)
	// 9 shared of 10 distinct tokens, reordered so neither contains the other
	a := domain.Organization{Name: "one two three four five six seven eight nine"}
	b := domain.Organization{Name: "nine one two three four five six seven eight ten"}
	assert.True(t, m.Match(a, b))

	// 3 shared of 5
	c := domain.Organization{Name: "north valley regional medical"}
	d := domain.Organization{Name: "north valley regional children"}
	assert.False(t, m.Match(c, d))

	tx, err := taxonomy.Default()
	require.NoError(t, err)
	loose := New(tx.WithJaccardThreshold(0.6))
	assert.True(t, loose.Match(c, d))
}

func TestDedupe_MergesAcrossSources(t *testing.T) {
	m := newMerger(t)
	res := m.Dedupe([]domain.Organization{
		{Name: "Apollo Hospitals Chennai", Certifications: []domain.Certification{cert("CAP Accreditation", "CAP", "CAP")}, Sources: []string{"cap"}},
		{Name: "apollo hospitals, chennai", Certifications: []domain.Certification{cert("ISO 9001:2015", "ISO_9001", "TUV")}, Sources: []string{"iso"}},
	})

	require.Len(t, res.Organizations, 1)
	assert.Equal(t, 1, res.Merged)
	got := res.Organizations[0]
	assert.Equal(t, "Apollo Hospitals Chennai", got.Name)
	require.Len(t, got.Certifications, 2)
	assert.Equal(t, "CAP", got.Certifications[0].Tag())
	assert.Equal(t, "ISO_9001", got.Certifications[1].Tag())
	assert.Equal(t, []string{"cap", "iso"}, got.Sources)
	assert.NotEmpty(t, got.ID)
}

func TestMerge_DoesNotOverwriteExistingCertification(t *testing.T) {
	first := cert("JCI Gold Seal", "JCI", "JCI")
	later := cert("JCI", "JCI", "jci ")
	later.Source = "scraper-b"

	out := Merge(domain.Organization{Name: "X", Certifications: []domain.Certification{first}},
		domain.Organization{Name: "X", Certifications: []domain.Certification{later}})

	require.Len(t, out.Certifications, 1)
	assert.Equal(t, "JCI Gold Seal", out.Certifications[0].Name)
}

func TestMerge_DifferentIssuerIsDistinct(t *testing.T) {
	out := Merge(domain.Organization{Name: "X", Certifications: []domain.Certification{cert("ISO 9001", "ISO_9001", "TUV")}},
		domain.Organization{Name: "X", Certifications: []domain.Certification{cert("ISO 9001", "ISO_9001", "BSI")}})
	assert.Len(t, out.Certifications, 2)
}

func TestMerge_UnclassifiedKeyedByName(t *testing.T) {
	out := Merge(domain.Organization{Certifications: []domain.Certification{{Name: "Green Award"}}},
		domain.Organization{Certifications: []domain.Certification{{Name: "green  award"}, {Name: "Best Employer"}}})
	assert.Len(t, out.Certifications, 2)
}

func TestMerge_FillsOnlyEmptyFields(t *testing.T) {
	canonical := domain.Organization{
		Name:           "St Olav",
		City:           "Trondheim",
		QualityMetrics: domain.QualityMetrics{domain.ClinicalOutcomes: 80},
	}
	incoming := domain.Organization{
		Name:            "St. Olav",
		City:            "Oslo",
		Phone:           "+47 72 57 30 00",
		Address:         "Prinsesse Kristinas gate 3",
		RegionalContext: domain.ContextDeveloped,
		QualityMetrics:  domain.QualityMetrics{domain.ClinicalOutcomes: 20, domain.PatientExperience: 70},
	}

	out := Merge(canonical, incoming)
	assert.Equal(t, "Trondheim", out.City)
	assert.Equal(t, "+47 72 57 30 00", out.Phone)
	assert.Equal(t, "Prinsesse Kristinas gate 3", out.Address)
	assert.Equal(t, domain.ContextDeveloped, out.RegionalContext)
	assert.Equal(t, 80.0, out.QualityMetrics[domain.ClinicalOutcomes])
	assert.Equal(t, 70.0, out.QualityMetrics[domain.PatientExperience])
	assert.Empty(t, canonical.Phone, "inputs are not modified")
	assert.Len(t, canonical.QualityMetrics, 1)
}

func TestMerge_Idempotent(t *testing.T) {
	m := newMerger(t)
	res := m.Dedupe([]domain.Organization{
		{Name: "Apollo Hospitals Chennai", Phone: "044", Certifications: []domain.Certification{cert("CAP", "CAP", "CAP")}, Sources: []string{"cap"}},
		{Name: "Apollo Hospitals, Chennai", Certifications: []domain.Certification{cert("ISO 9001", "ISO_9001", "TUV"), {Name: "Green Award"}}, Sources: []string{"iso"}},
	})
	require.Len(t, res.Organizations, 1)
	merged := res.Organizations[0]

	again := Merge(merged, merged)
	assert.Equal(t, merged, again)

	twice := Merge(Merge(merged, merged), merged)
	assert.Equal(t, merged, twice)
}

func TestDedupe_KeepsDistinctOrganizationsInOrder(t *testing.T) {
	m := newMerger(t)
	res := m.Dedupe([]domain.Organization{
		{Name: "Mayo Clinic"},
		{Name: "Cleveland Clinic"},
		{Name: "mayo clinic"},
	})
	require.Len(t, res.Organizations, 2)
	assert.Equal(t, "Mayo Clinic", res.Organizations[0].Name)
	assert.Equal(t, "Cleveland Clinic", res.Organizations[1].Name)
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, []int{0, 1}, res.Origins)

	res = m.Dedupe([]domain.Organization{
		{Name: "mayo clinic"},
		{Name: "Mayo Clinic"},
		{Name: "Cleveland Clinic"},
	})
	assert.Equal(t, []int{0, 2}, res.Origins)
}

func TestOrganizationID_Stable(t *testing.T) {
	a := OrganizationID("Apollo Hospitals, Chennai", "")
	b := OrganizationID("apollo hospitals chennai", "")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, OrganizationID("Apollo Hospitals", "Chennai"))
	assert.Len(t, a, 36)
}
