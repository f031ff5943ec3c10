// Package compliance resolves mandatory-standard requirements against an
// organization's classified active certifications.
package compliance

import (
	"sort"

	"qualitygrid/internal/taxonomy"
)

// Result is the per-requirement outcome. Every configured requirement has
// an entry in Compliance and Penalties.
type Result struct {
	Compliance   map[string]bool
	Penalties    map[string]float64
	TotalPenalty float64
	// SatisfiedBy names the tag shown for a met requirement: the group's
	// primary standard when met through equivalency, else the direct tag.
	SatisfiedBy map[string]string
	// Softened names the credential that reduced an unmet requirement's
	// penalty.
	Softened map[string]string
}

type Resolver struct {
	tx *taxonomy.Taxonomy
}

func NewResolver(tx *taxonomy.Taxonomy) *Resolver {
	return &Resolver{tx: tx}
}

// satisfies reports whether tag meets r directly or through r's
// equivalency group.
func (s *Resolver) satisfies(r taxonomy.MandatoryRequirement, tag string) (bool, bool) {
	if r.Tag != "" && tag == r.Tag {
		return true, false
	}
	if r.Group != "" && s.tx.InGroup(r.Group, tag) {
		return true, true
	}
	return false, false
}

// Resolve takes the classified tags of an organization's active
// certifications. Requirements are independent: each unmet one adds its own
// penalty, and a certification never satisfies anything beyond the
// requirements that name its tag or group.
func (s *Resolver) Resolve(tags []string) Result {
	held := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t != "" {
			held[t] = true
		}
	}

	res := Result{
		Compliance:  make(map[string]bool),
		Penalties:   make(map[string]float64),
		SatisfiedBy: make(map[string]string),
		Softened:    make(map[string]string),
	}
	ordered := sortedTags(held)
	for _, r := range s.tx.Requirements() {
		met, via := "", false
		for _, tag := range ordered {
			ok, group := s.satisfies(r, tag)
			if !ok {
				continue
			}
			if !group {
				met, via = tag, false
				break
			}
			if met == "" {
				met, via = tag, true
			}
		}
		if met != "" {
			res.Compliance[r.Key] = true
			res.Penalties[r.Key] = 0
			display := met
			if via {
				if g, ok := s.tx.Group(r.Group); ok && g.PrimaryStandard != "" {
					display = g.PrimaryStandard
				}
			}
			res.SatisfiedBy[r.Key] = display
			continue
		}

		penalty := r.Penalty
		if factor, credential := s.softening(r.Key, held); credential != "" {
			penalty *= factor
			res.Softened[r.Key] = credential
		}
		res.Compliance[r.Key] = false
		res.Penalties[r.Key] = penalty
		res.TotalPenalty += penalty
	}
	return res
}

// softening picks the most generous softening whose credential is held.
// Softenings never compound.
func (s *Resolver) softening(key string, held map[string]bool) (float64, string) {
	best, credential := 1.0, ""
	for _, sf := range s.tx.Softenings() {
		if sf.Requirement != key || !held[sf.Credential] {
			continue
		}
		if sf.Factor < best {
			best, credential = sf.Factor, sf.Credential
		}
	}
	return best, credential
}

func sortedTags(held map[string]bool) []string {
	out := make([]string, 0, len(held))
	for t := range held {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
