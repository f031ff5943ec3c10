// Package ranking assigns every scored organization a unique rank and a
// percentile. Ranks are never shared: exact score ties fall back to active
// certification count and then to the lower-cased name.
package ranking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"qualitygrid/internal/domain"
	"qualitygrid/internal/taxonomy"
)

type Ranker struct {
	tx *taxonomy.Taxonomy
}

func New(tx *taxonomy.Taxonomy) *Ranker {
	return &Ranker{tx: tx}
}

// EntryFor builds the ranking input for a scored organization.
func EntryFor(org domain.Organization, ref time.Time) domain.RankingEntry {
	var total float64
	if org.ScoreBreakdown != nil {
		total = org.ScoreBreakdown.TotalScore
	}
	return domain.RankingEntry{
		OrganizationID:           org.ID,
		Name:                     org.Name,
		TotalScore:               total,
		ActiveCertificationCount: org.ActiveClassifiedCount(ref),
		NameKey:                  strings.ToLower(strings.TrimSpace(org.Name)),
	}
}

func less(a, b domain.RankingEntry) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if a.ActiveCertificationCount != b.ActiveCertificationCount {
		return a.ActiveCertificationCount > b.ActiveCertificationCount
	}
	if a.NameKey != b.NameKey {
		return a.NameKey < b.NameKey
	}
	return a.OrganizationID < b.OrganizationID
}

// Rank returns a sorted copy of entries with Rank, Percentile and Grade set.
// It is a pure function of the whole population; any score change means
// ranking again from scratch.
func (r *Ranker) Rank(entries []domain.RankingEntry) []domain.RankingEntry {
	out := make([]domain.RankingEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].NameKey == "" {
			out[i].NameKey = strings.ToLower(strings.TrimSpace(out[i].Name))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })

	n := float64(len(out))
	for i := range out {
		out[i].Rank = i + 1
		out[i].Percentile = (n - float64(out[i].Rank) + 1) / n * 100
		out[i].Grade = r.tx.GradeFor(out[i].TotalScore)
	}
	return out
}

// Statistics summarizes ranked entries. Median is the upper middle value.
func (r *Ranker) Statistics(ranked []domain.RankingEntry) domain.RankingStatistics {
	st := domain.RankingStatistics{Count: len(ranked), GradeDistribution: make(map[string]int)}
	for _, g := range r.tx.Grades() {
		st.GradeDistribution[g.Grade] = 0
	}
	if len(ranked) == 0 {
		return st
	}

	scores := make([]float64, len(ranked))
	var sum float64
	for i, e := range ranked {
		scores[i] = e.TotalScore
		sum += e.TotalScore
		st.GradeDistribution[r.tx.GradeFor(e.TotalScore)]++
	}
	sort.Float64s(scores)
	st.Mean = sum / float64(len(scores))
	st.Median = scores[len(scores)/2]
	st.Min = scores[0]
	st.Max = scores[len(scores)-1]

	top := r.tx.TopN()
	if top > len(ranked) {
		top = len(ranked)
	}
	st.Top = append([]domain.RankingEntry(nil), ranked[:top]...)
	return st
}

// Validation lists rank-set defects; both lists are empty for any output of
// Rank.
type Validation struct {
	Duplicates []int `json:"duplicates"`
	Gaps       []int `json:"gaps"`
}

func (v Validation) OK() bool { return len(v.Duplicates) == 0 && len(v.Gaps) == 0 }

func (v Validation) Error() string {
	return fmt.Sprintf("ranking invalid: duplicate ranks %v, missing ranks %v", v.Duplicates, v.Gaps)
}

// Validate checks that ranks are exactly 1..N.
func Validate(ranked []domain.RankingEntry) Validation {
	var v Validation
	seen := make(map[int]int, len(ranked))
	for _, e := range ranked {
		seen[e.Rank]++
		if seen[e.Rank] == 2 {
			v.Duplicates = append(v.Duplicates, e.Rank)
		}
	}
	for rank := 1; rank <= len(ranked); rank++ {
		if seen[rank] == 0 {
			v.Gaps = append(v.Gaps, rank)
		}
	}
	sort.Ints(v.Duplicates)
	return v
}
