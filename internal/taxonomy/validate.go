package taxonomy

import (
	"fmt"
	"math"
	"strings"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks every cross-table reference. Any failure here would
// silently corrupt every score, so callers treat it as fatal.
func (t *Tables) Validate() error {
	tags := make(map[string]CertificationType, len(t.CertificationTypes))
	for _, ct := range t.CertificationTypes {
		if ct.Tag == "" {
			return invalid("certification type with empty tag")
		}
		if _, dup := tags[ct.Tag]; dup {
			return invalid("duplicate certification tag %q", ct.Tag)
		}
		if ct.Tier < 1 || ct.Tier > 5 {
			return invalid("tag %q: tier %d outside 1..5", ct.Tag, ct.Tier)
		}
		if ct.Weight <= 0 {
			return invalid("tag %q: weight must be positive", ct.Tag)
		}
		if ct.BaseScore < 0 {
			return invalid("tag %q: base score must not be negative", ct.Tag)
		}
		tags[ct.Tag] = ct
	}

	groups := make(map[string]map[string]bool, len(t.EquivalencyGroups))
	for _, g := range t.EquivalencyGroups {
		if g.ID == "" {
			return invalid("equivalency group with empty id")
		}
		if _, dup := groups[g.ID]; dup {
			return invalid("duplicate equivalency group %q", g.ID)
		}
		if len(g.Members) == 0 {
			return invalid("group %q has no members", g.ID)
		}
		members := make(map[string]bool, len(g.Members))
		for _, m := range g.Members {
			if _, ok := tags[m]; !ok {
				return invalid("group %q: unknown member tag %q", g.ID, m)
			}
			members[m] = true
		}
		if g.PrimaryStandard != "" && !members[g.PrimaryStandard] {
			return invalid("group %q: primary standard %q is not a member", g.ID, g.PrimaryStandard)
		}
		groups[g.ID] = members
	}
	for _, ct := range t.CertificationTypes {
		if ct.EquivalencyGroup == "" {
			continue
		}
		members, ok := groups[ct.EquivalencyGroup]
		if !ok {
			return invalid("tag %q references unknown group %q", ct.Tag, ct.EquivalencyGroup)
		}
		if !members[ct.Tag] {
			return invalid("tag %q claims group %q but is not a member", ct.Tag, ct.EquivalencyGroup)
		}
	}

	reqs := make(map[string]bool, len(t.MandatoryReqs))
	for _, r := range t.MandatoryReqs {
		if r.Key == "" {
			return invalid("mandatory requirement with empty key")
		}
		if reqs[r.Key] {
			return invalid("duplicate mandatory requirement %q", r.Key)
		}
		if r.Tag == "" && r.Group == "" {
			return invalid("requirement %q is satisfied by nothing", r.Key)
		}
		if r.Tag != "" {
			if _, ok := tags[r.Tag]; !ok {
				return invalid("requirement %q references unknown tag %q", r.Key, r.Tag)
			}
		}
		if r.Group != "" {
			if _, ok := groups[r.Group]; !ok {
				return invalid("requirement %q references unknown equivalency group %q", r.Key, r.Group)
			}
		}
		if r.Penalty < 0 {
			return invalid("requirement %q: penalty must not be negative", r.Key)
		}
		reqs[r.Key] = true
	}

	softened := make(map[string]bool)
	for _, s := range t.PenaltySoftenings {
		if !reqs[s.Requirement] {
			return invalid("softening references unknown requirement %q", s.Requirement)
		}
		if _, ok := tags[s.Credential]; !ok {
			return invalid("softening for %q references unknown credential %q", s.Requirement, s.Credential)
		}
		if s.Factor <= 0 || s.Factor >= 1 {
			return invalid("softening for %q: factor %.2f outside (0,1)", s.Requirement, s.Factor)
		}
		key := s.Requirement + "|" + s.Credential
		if softened[key] {
			return invalid("duplicate softening %s via %s", s.Requirement, s.Credential)
		}
		softened[key] = true
	}

	for i, r := range t.ClassifierRules {
		if _, ok := tags[r.Tag]; !ok {
			return invalid("classifier rule %d references unknown tag %q", i, r.Tag)
		}
		if len(r.Keywords) == 0 {
			return invalid("classifier rule %d (%s) has no keywords", i, r.Tag)
		}
		for _, k := range r.Keywords {
			if strings.TrimSpace(k) == "" {
				return invalid("classifier rule %d (%s) has an empty keyword", i, r.Tag)
			}
		}
	}

	if t.CacheTTLs.Classification <= 0 || t.CacheTTLs.External <= 0 {
		return invalid("cache TTLs must be positive")
	}

	if err := t.Scoring.validate(); err != nil {
		return err
	}

	for _, rc := range t.RegionalContexts {
		if rc.InnovationRate < 0 || rc.FlatBonus < 0 {
			return invalid("regional context %q: bonuses must not be negative", rc.Context)
		}
	}
	for i := 1; i < len(t.Grades); i++ {
		if t.Grades[i].Min >= t.Grades[i-1].Min {
			return invalid("grades must be listed by strictly descending minimum")
		}
	}
	if t.Dedupe.JaccardThreshold <= 0 || t.Dedupe.JaccardThreshold > 1 {
		return invalid("dedupe threshold %.2f outside (0,1]", t.Dedupe.JaccardThreshold)
	}
	for _, tag := range t.Registry.ValidatedTags {
		if _, ok := tags[tag]; !ok {
			return invalid("registry references unknown tag %q", tag)
		}
	}
	for _, rs := range t.RegionalStandards {
		if _, ok := tags[rs.Tag]; !ok || rs.Region == "" {
			return invalid("regional standard %q: unknown tag %q", rs.Region, rs.Tag)
		}
	}
	return nil
}

func (s Scoring) validate() error {
	if s.CertificationCap <= 0 || s.QualityCap <= 0 || s.MetricCeiling <= 0 {
		return invalid("scoring caps must be positive")
	}
	if s.CertificationWeight < 0 || s.QualityWeight < 0 {
		return invalid("scoring weights must not be negative")
	}
	if s.DiversityPerType < 0 || s.DiversityCap < 0 || s.InternationalPerTier1 < 0 || s.InternationalCap < 0 {
		return invalid("bonus rates must not be negative")
	}
	seen := make(map[string]bool)
	sum := 0.0
	for _, m := range s.MetricCategories {
		if seen[m.Category] {
			return invalid("duplicate metric category %q", m.Category)
		}
		seen[m.Category] = true
		if m.Weight < 0 || m.Baseline < 0 || m.Baseline > s.MetricCeiling {
			return invalid("metric category %q: weight or baseline out of range", m.Category)
		}
		sum += m.Weight
	}
	if len(s.MetricCategories) > 0 && math.Abs(sum-1.0) > 0.001 {
		return invalid("metric category weights sum to %.4f, must sum to 1.0", sum)
	}
	return nil
}
