// Package dedupe consolidates organization records from independent sources
// into one canonical record per real organization.
package dedupe

import (
	"strings"

	"github.com/google/uuid"

	"qualitygrid/internal/domain"
	"qualitygrid/internal/taxonomy"
)

// namespace seeds name-based organization ids, so the same organization
// gets the same id on every run.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://qualitygrid.dev/organizations"))

// OrganizationID derives a stable id from the normalized name and city.
func OrganizationID(name, city string) string {
	return uuid.NewSHA1(namespace, []byte(NormalizeName(name)+"|"+NormalizeName(city))).String()
}

type Merger struct {
	threshold    float64
	locationVeto bool
}

func New(tx *taxonomy.Taxonomy) *Merger {
	return &Merger{threshold: tx.JaccardThreshold(), locationVeto: tx.LocationVeto()}
}

// Match decides whether a and b denote the same organization. An exact
// case-insensitive name match is immediate. Otherwise one normalized name
// must contain the other, or their token Jaccard must reach the threshold.
// With the location veto on, records naming different cities or different
// website domains never match fuzzily.
func (m *Merger) Match(a, b domain.Organization) bool {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(b.Name) == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)) {
		return true
	}
	na, nb := NormalizeName(a.Name), NormalizeName(b.Name)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if m.locationVeto && (conflicting(NormalizeName(a.City), NormalizeName(b.City)) ||
		conflicting(RegistrableDomain(a.Website), RegistrableDomain(b.Website))) {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return Jaccard(na, nb) >= m.threshold
}

func conflicting(a, b string) bool {
	return a != "" && b != "" && a != b
}

// Merge folds incoming into canonical and returns the result; neither input
// is modified. Certifications already present by (type, issuer) are never
// replaced, free-text fields are only filled when empty, and sources are
// unioned. Merging the same record twice changes nothing.
func Merge(canonical, incoming domain.Organization) domain.Organization {
	out := canonical
	out.Certifications = nil
	seen := make(map[domain.CertKey]bool)
	for _, list := range [][]domain.Certification{canonical.Certifications, incoming.Certifications} {
		for _, c := range list {
			k := c.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out.Certifications = append(out.Certifications, c)
		}
	}

	fill(&out.Country, incoming.Country)
	fill(&out.Region, incoming.Region)
	fill(&out.State, incoming.State)
	fill(&out.City, incoming.City)
	fill(&out.Type, incoming.Type)
	fill(&out.Address, incoming.Address)
	fill(&out.Phone, incoming.Phone)
	fill(&out.Website, incoming.Website)
	if out.RegionalContext == "" {
		out.RegionalContext = incoming.RegionalContext
	}

	if len(canonical.QualityMetrics) > 0 || len(incoming.QualityMetrics) > 0 {
		qm := make(domain.QualityMetrics, len(canonical.QualityMetrics))
		for k, v := range canonical.QualityMetrics {
			qm[k] = v
		}
		for k, v := range incoming.QualityMetrics {
			if _, ok := qm[k]; !ok {
				qm[k] = v
			}
		}
		out.QualityMetrics = qm
	}

	out.Sources = nil
	have := make(map[string]bool)
	for _, s := range append(append([]string(nil), canonical.Sources...), incoming.Sources...) {
		if s == "" || have[s] {
			continue
		}
		have[s] = true
		out.Sources = append(out.Sources, s)
	}
	return out
}

func fill(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = strings.TrimSpace(v)
	}
}

// Result reports one dedupe pass.
type Result struct {
	Organizations []domain.Organization
	// Origins holds, per canonical organization, the index in the input of
	// the record that founded it.
	Origins []int
	// Merged counts input records folded into an earlier canonical record.
	Merged int
}

// Dedupe merges records in input order: each record joins the first
// canonical record it matches, or becomes a new one. Canonical records
// without an id get a deterministic one.
func (m *Merger) Dedupe(records []domain.Organization) Result {
	var res Result
	exact := make(map[string]int)
	for i, r := range records {
		key := NormalizeName(r.Name)
		idx, ok := exact[key]
		if ok && !m.Match(res.Organizations[idx], r) {
			ok = false
		}
		if !ok {
			idx = -1
			for j := range res.Organizations {
				if m.Match(res.Organizations[j], r) {
					idx = j
					break
				}
			}
		}
		if idx >= 0 {
			res.Organizations[idx] = Merge(res.Organizations[idx], r)
			res.Merged++
			continue
		}
		c := Merge(r, domain.Organization{})
		if c.ID == "" {
			c.ID = OrganizationID(c.Name, c.City)
		}
		exact[key] = len(res.Organizations)
		res.Organizations = append(res.Organizations, c)
		res.Origins = append(res.Origins, i)
	}
	return res
}
