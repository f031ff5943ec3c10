package ranking

import (
	"strings"

	"qualitygrid/internal/domain"
)

// IsGroupLevel reports whether name denotes a hospital group rather than a
// single facility: it carries a group indicator as a whole phrase, or it
// has no location qualifier while another name in the population extends it.
func (r *Ranker) IsGroupLevel(name string, population []string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return false
	}
	padded := " " + strings.Join(strings.Fields(lower), " ") + " "
	for _, ind := range r.tx.GroupIndicators() {
		if strings.Contains(padded, " "+strings.ToLower(ind)+" ") {
			return true
		}
	}
	if strings.ContainsAny(lower, ",(") {
		return false
	}
	for _, other := range population {
		o := strings.ToLower(strings.TrimSpace(other))
		if o == lower {
			continue
		}
		if strings.HasPrefix(o, lower+" ") || strings.HasPrefix(o, lower+",") {
			return true
		}
	}
	return false
}

// ExcludeGroupLevel splits entries into facility-level ones and group-level
// ones. Order is preserved in both.
func (r *Ranker) ExcludeGroupLevel(entries []domain.RankingEntry) (kept, excluded []domain.RankingEntry) {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	for _, e := range entries {
		if r.IsGroupLevel(e.Name, names) {
			excluded = append(excluded, e)
			continue
		}
		kept = append(kept, e)
	}
	return kept, excluded
}
