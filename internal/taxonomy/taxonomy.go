package taxonomy

import (
	"sort"
	"strings"
	"time"
)

// Taxonomy is the compiled, read-only view of Tables. Accessors return
// copies so callers cannot mutate shared state; a reload builds a new value.
type Taxonomy struct {
	version      int
	types        map[string]CertificationType
	typeOrder    []string
	groups       map[string]EquivalencyGroup
	groupMembers map[string]map[string]bool
	requirements []MandatoryRequirement
	softenings   []PenaltySoftening
	rules        []ClassifierRule
	ttls         CacheTTLs
	scoring      Scoring
	contexts     map[string]RegionalContext
	grades       []Grade
	dedupe       Dedupe
	ranking      Ranking
	validated    map[string]bool
	regional     map[string]string
}

// Compile validates t and freezes it.
func Compile(t *Tables) (*Taxonomy, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	tx := &Taxonomy{
		version:      t.Version,
		types:        make(map[string]CertificationType, len(t.CertificationTypes)),
		groups:       make(map[string]EquivalencyGroup, len(t.EquivalencyGroups)),
		groupMembers: make(map[string]map[string]bool, len(t.EquivalencyGroups)),
		requirements: append([]MandatoryRequirement(nil), t.MandatoryReqs...),
		softenings:   append([]PenaltySoftening(nil), t.PenaltySoftenings...),
		ttls:         t.CacheTTLs,
		scoring:      t.Scoring,
		contexts:     make(map[string]RegionalContext, len(t.RegionalContexts)),
		grades:       append([]Grade(nil), t.Grades...),
		dedupe:       t.Dedupe,
		ranking:      t.Ranking,
		validated:    make(map[string]bool, len(t.Registry.ValidatedTags)),
		regional:     make(map[string]string, len(t.RegionalStandards)),
	}
	tx.scoring.MetricCategories = append([]MetricCategory(nil), t.Scoring.MetricCategories...)
	tx.ranking.GroupIndicators = append([]string(nil), t.Ranking.GroupIndicators...)
	for _, ct := range t.CertificationTypes {
		tx.types[ct.Tag] = ct
		tx.typeOrder = append(tx.typeOrder, ct.Tag)
	}
	for _, g := range t.EquivalencyGroups {
		g.Members = append([]string(nil), g.Members...)
		tx.groups[g.ID] = g
		members := make(map[string]bool, len(g.Members))
		for _, m := range g.Members {
			members[m] = true
		}
		tx.groupMembers[g.ID] = members
	}
	for _, r := range t.ClassifierRules {
		r.Keywords = append([]string(nil), r.Keywords...)
		tx.rules = append(tx.rules, r)
	}
	for _, rc := range t.RegionalContexts {
		tx.contexts[rc.Context] = rc
	}
	for _, tag := range t.Registry.ValidatedTags {
		tx.validated[tag] = true
	}
	for _, rs := range t.RegionalStandards {
		tx.regional[strings.ToLower(rs.Region)] = rs.Tag
	}
	return tx, nil
}

// Default compiles the embedded tables.
func Default() (*Taxonomy, error) {
	t, err := DefaultTables()
	if err != nil {
		return nil, err
	}
	return Compile(t)
}

func (t *Taxonomy) Version() int { return t.version }

// Type looks up a certification type. Unknown tags report false and are
// treated as unclassified by callers.
func (t *Taxonomy) Type(tag string) (CertificationType, bool) {
	ct, ok := t.types[tag]
	return ct, ok
}

// Tags lists every tag in table order.
func (t *Taxonomy) Tags() []string {
	return append([]string(nil), t.typeOrder...)
}

func (t *Taxonomy) Group(id string) (EquivalencyGroup, bool) {
	g, ok := t.groups[id]
	if !ok {
		return g, false
	}
	g.Members = append([]string(nil), g.Members...)
	return g, true
}

// InGroup reports whether tag is a member of group id.
func (t *Taxonomy) InGroup(id, tag string) bool {
	return t.groupMembers[id][tag]
}

// GroupIDs lists group ids in sorted order.
func (t *Taxonomy) GroupIDs() []string {
	ids := make([]string, 0, len(t.groups))
	for id := range t.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Taxonomy) Requirements() []MandatoryRequirement {
	return append([]MandatoryRequirement(nil), t.requirements...)
}

func (t *Taxonomy) Softenings() []PenaltySoftening {
	return append([]PenaltySoftening(nil), t.softenings...)
}

func (t *Taxonomy) Rules() []ClassifierRule {
	out := make([]ClassifierRule, len(t.rules))
	for i, r := range t.rules {
		r.Keywords = append([]string(nil), r.Keywords...)
		out[i] = r
	}
	return out
}

func (t *Taxonomy) TTLs() CacheTTLs { return t.ttls }

// WithTTLs returns a copy with cache TTL overrides applied; zero values keep
// the table value.
func (t *Taxonomy) WithTTLs(classification, external time.Duration) *Taxonomy {
	cp := *t
	if classification > 0 {
		cp.ttls.Classification = classification
	}
	if external > 0 {
		cp.ttls.External = external
	}
	return &cp
}

func (t *Taxonomy) Scoring() Scoring {
	s := t.scoring
	s.MetricCategories = append([]MetricCategory(nil), t.scoring.MetricCategories...)
	return s
}

func (t *Taxonomy) RegionalContext(name string) (RegionalContext, bool) {
	rc, ok := t.contexts[name]
	return rc, ok
}

// GradeFor returns the first grade whose minimum the score reaches, or the
// lowest grade.
func (t *Taxonomy) GradeFor(score float64) string {
	if len(t.grades) == 0 {
		return ""
	}
	for _, g := range t.grades {
		if score >= g.Min {
			return g.Grade
		}
	}
	return t.grades[len(t.grades)-1].Grade
}

func (t *Taxonomy) Grades() []Grade { return append([]Grade(nil), t.grades...) }

func (t *Taxonomy) JaccardThreshold() float64 { return t.dedupe.JaccardThreshold }

func (t *Taxonomy) LocationVeto() bool { return t.dedupe.LocationVeto }

// WithJaccardThreshold returns a copy with the dedupe threshold replaced
// when v is in (0,1].
func (t *Taxonomy) WithJaccardThreshold(v float64) *Taxonomy {
	cp := *t
	if v > 0 && v <= 1 {
		cp.dedupe.JaccardThreshold = v
	}
	return &cp
}

func (t *Taxonomy) GroupIndicators() []string {
	return append([]string(nil), t.ranking.GroupIndicators...)
}

func (t *Taxonomy) TopN() int { return t.ranking.TopN }

// RegistryValidated reports whether tag must be confirmed by an external
// registry before it counts.
func (t *Taxonomy) RegistryValidated(tag string) bool { return t.validated[tag] }

// RegionalStandard returns the recommended national standard for region,
// matched case-insensitively.
func (t *Taxonomy) RegionalStandard(region string) (string, bool) {
	tag, ok := t.regional[strings.ToLower(strings.TrimSpace(region))]
	return tag, ok
}
