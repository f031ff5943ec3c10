// Package scoring turns one organization's classified certifications and
// quality metrics into a ScoreBreakdown.
//
// The certification side sums tier-weighted scores, adds diversity and
// international bonuses and subtracts mandatory-compliance penalties. The
// result is capped from above only: a penalty-dominated organization keeps a
// negative certification score, and that signed value flows into the total.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"qualitygrid/internal/domain"
	"qualitygrid/internal/services/compliance"
	"qualitygrid/internal/taxonomy"
)

type Engine struct {
	tx       *taxonomy.Taxonomy
	resolver *compliance.Resolver
}

func New(tx *taxonomy.Taxonomy) *Engine {
	return &Engine{tx: tx, resolver: compliance.NewResolver(tx)}
}

// scoredCert is an active certification with a known type.
type scoredCert struct {
	tag      string
	def      taxonomy.CertificationType
	weighted float64
}

// eligible filters org's certifications down to the ones that score at ref.
// Unclassified certifications and tags missing from the weight table drop
// out here without error.
func (e *Engine) eligible(org domain.Organization, ref time.Time) []scoredCert {
	var out []scoredCert
	for _, c := range org.Certifications {
		if !c.ActiveAt(ref) {
			continue
		}
		def, ok := e.tx.Type(c.Tag())
		if !ok {
			continue
		}
		base := def.BaseScore
		if c.ScoreImpact != nil {
			base = *c.ScoreImpact
		}
		out = append(out, scoredCert{tag: def.Tag, def: def, weighted: base * def.Weight})
	}
	return out
}

// Score computes the full breakdown. It is a pure function of org, the
// tables and ref, and never fails.
func (e *Engine) Score(org domain.Organization, ref time.Time) domain.ScoreBreakdown {
	p := e.tx.Scoring()
	certs := e.eligible(org, ref)

	b := domain.ScoreBreakdown{
		CertificationBreakdown: make(map[string]domain.CertificationDetail),
	}

	var rawSum float64
	distinct := make(map[string]bool)
	tier1 := make(map[string]bool)
	for _, c := range certs {
		rawSum += c.weighted
		distinct[c.tag] = true
		if c.def.Tier == 1 {
			tier1[c.tag] = true
		}
		switch {
		case c.def.Tier == 1:
			b.Recognition.GlobalStandards++
		case c.def.Tier <= 3:
			b.Recognition.RegionalExcellence++
		default:
			b.Recognition.SpecialtyCertifications++
		}

		d := b.CertificationBreakdown[c.tag]
		d.Count++
		d.TotalScore += c.weighted
		d.Weight = c.def.Weight
		d.Tier = c.def.Tier
		d.Region = c.def.Region
		d.Description = c.def.Description
		b.CertificationBreakdown[c.tag] = d
	}
	b.Recognition.TotalCertifications = len(certs)

	if len(certs) > 1 {
		b.DiversityBonus = math.Min(float64(len(distinct))*p.DiversityPerType, p.DiversityCap)
	}
	if len(tier1) > 0 {
		b.InternationalBonus = math.Min(float64(len(tier1))*p.InternationalPerTier1, p.InternationalCap)
	}

	res := e.resolver.Resolve(keys(distinct))
	b.MandatoryCompliance = res.Compliance
	b.MandatoryPenalties = res.Penalties
	b.MandatorySatisfiedBy = res.SatisfiedBy
	if len(res.Softened) > 0 {
		b.PenaltySoftenings = res.Softened
	}
	b.TotalPenalty = res.TotalPenalty

	b.CertificationScore = math.Min(rawSum+b.DiversityBonus+b.InternationalBonus-b.TotalPenalty, p.CertificationCap)

	var innovation float64
	b.QualityMetricsScore, b.QualityBreakdown, innovation = e.quality(org.QualityMetrics, p)

	// Only the earned side is weighted; a negative certification score is
	// carried at full strength so penalties are never diluted.
	cert := b.CertificationScore
	if cert > 0 {
		cert *= p.CertificationWeight
	}
	b.TotalScore = cert + b.QualityMetricsScore*p.QualityWeight

	b.RegionalAdjustment, b.RegionalAdjustments = e.regional(org.RegionalContext, innovation)
	b.TotalScore += b.RegionalAdjustment

	b.Recommendations = e.recommend(org, b, distinct)
	return b
}

// quality returns the capped weighted metric score, the per-category detail
// and the weighted innovation score. No supplied metrics means zero quality
// score; supplied metrics default each missing category to its baseline.
func (e *Engine) quality(m domain.QualityMetrics, p taxonomy.Scoring) (float64, map[domain.MetricCategory]domain.MetricDetail, float64) {
	if len(m) == 0 {
		return 0, nil, 0
	}
	detail := make(map[domain.MetricCategory]domain.MetricDetail, len(p.MetricCategories))
	var sum, innovation float64
	for _, mc := range p.MetricCategories {
		cat := domain.MetricCategory(mc.Category)
		raw, ok := m[cat]
		if !ok {
			raw = mc.Baseline
		}
		raw = math.Max(0, math.Min(raw, p.MetricCeiling))
		weighted := raw * mc.Weight
		sum += weighted
		if cat == domain.InnovationTechnology {
			innovation = weighted
		}
		detail[cat] = domain.MetricDetail{RawScore: raw, WeightedScore: weighted, Weight: mc.Weight, Defaulted: !ok}
	}
	return math.Min(sum, p.QualityCap), detail, innovation
}

// regional applies the context bonus. Contexts only ever add.
func (e *Engine) regional(context domain.RegionalContext, innovation float64) (float64, []string) {
	if context == "" {
		return 0, nil
	}
	rc, ok := e.tx.RegionalContext(string(context))
	if !ok {
		return 0, nil
	}
	var adj float64
	var notes []string
	if rc.InnovationRate > 0 && innovation > 0 {
		bonus := innovation * rc.InnovationRate
		adj += bonus
		notes = append(notes, fmt.Sprintf("%s: +%.2f", rc.Label, bonus))
	}
	if rc.FlatBonus > 0 {
		adj += rc.FlatBonus
		notes = append(notes, fmt.Sprintf("%s: +%.2f", rc.Label, rc.FlatBonus))
	}
	return math.Max(adj, 0), notes
}

func (e *Engine) recommend(org domain.Organization, b domain.ScoreBreakdown, held map[string]bool) []domain.Recommendation {
	var out []domain.Recommendation
	if b.Recognition.GlobalStandards == 0 {
		out = append(out, domain.Recommendation{
			Category:       "Global Accreditation",
			Priority:       "High",
			Recommendation: "Pursue JCI Accreditation",
			Description:    "Joint Commission International accreditation is the global gold standard for healthcare quality",
		})
	}
	iso := 0
	for tag := range held {
		if strings.HasPrefix(tag, "ISO_") {
			iso++
		}
	}
	if iso < 3 {
		out = append(out, domain.Recommendation{
			Category:       "Quality Management",
			Priority:       "Medium",
			Recommendation: "Implement ISO Quality Management Systems",
			Description:    "ISO 9001, ISO 15189 and ISO 27001 cover quality, laboratory and information security management",
		})
	}
	if tag, ok := e.tx.RegionalStandard(org.Region); ok && !held[tag] {
		desc := tag
		if def, ok := e.tx.Type(tag); ok {
			desc = def.Description
		}
		out = append(out, domain.Recommendation{
			Category:       "Regional Excellence",
			Priority:       "Medium",
			Recommendation: "Pursue " + desc,
			Description:    "Recognized national standard for " + org.Region,
		})
	}
	return out
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
