package domain

import (
	"strings"
	"time"
)

// Core domain models shared by every service. Snapshot and database shapes
// live in their adapters; keep these decoupled where helpful.

type Status string

const (
	StatusActive    Status = "Active"
	StatusExpired   Status = "Expired"
	StatusSuspended Status = "Suspended"
	StatusUnknown   Status = "Unknown"
)

// ParseStatus folds the free-text status vocabularies used by registries.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "valid", "current", "accredited":
		return StatusActive
	case "expired", "lapsed":
		return StatusExpired
	case "suspended", "withdrawn", "revoked":
		return StatusSuspended
	default:
		return StatusUnknown
	}
}

type Certification struct {
	Name           string     `json:"name"`
	Type           string     `json:"type,omitempty"`
	Standard       string     `json:"standard,omitempty"`
	Status         Status     `json:"status"`
	Issuer         string     `json:"issuer,omitempty"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	ScoreImpact    *float64   `json:"score_impact,omitempty"`
	Source         string     `json:"source,omitempty"`
	ClassifiedType *string    `json:"classified_type"`
}

// Text is the string the classifier reads.
func (c Certification) Text() string {
	return strings.TrimSpace(c.Name + " " + c.Type + " " + c.Standard)
}

// Tag returns the classified tag or "" when unclassified.
func (c Certification) Tag() string {
	if c.ClassifiedType == nil {
		return ""
	}
	return *c.ClassifiedType
}

// WithTag returns a copy carrying the classified tag.
func (c Certification) WithTag(tag string) Certification {
	if tag == "" {
		c.ClassifiedType = nil
		return c
	}
	t := tag
	c.ClassifiedType = &t
	return c
}

// ActiveAt reports whether the certification participates in scoring at the
// reference time. A past validUntil overrides a declared Active status.
func (c Certification) ActiveAt(ref time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.ValidUntil != nil && !ref.IsZero() && c.ValidUntil.Before(ref) {
		return false
	}
	return true
}

// CertKey identifies a certification inside one organization after merge.
type CertKey struct {
	Type   string
	Issuer string
}

// Key falls back to the normalized raw name when the certification is
// unclassified, so two different unclassified credentials do not collapse.
func (c Certification) Key() CertKey {
	t := c.Tag()
	if t == "" {
		t = "raw:" + strings.ToLower(strings.Join(strings.Fields(c.Name), " "))
	}
	return CertKey{Type: t, Issuer: strings.ToLower(strings.TrimSpace(c.Issuer))}
}

type MetricCategory string

const (
	ClinicalOutcomes      MetricCategory = "clinical_outcomes"
	PatientExperience     MetricCategory = "patient_experience"
	OperationalExcellence MetricCategory = "operational_excellence"
	InnovationTechnology  MetricCategory = "innovation_technology"
	SustainabilitySocial  MetricCategory = "sustainability_social"
)

// QualityMetrics holds composite 0-100 scores per category. Missing
// categories fall back to the configured baseline.
type QualityMetrics map[MetricCategory]float64

type RegionalContext string

const (
	ContextDeveloped  RegionalContext = "developed"
	ContextDeveloping RegionalContext = "developing"
	ContextUrban      RegionalContext = "urban"
	ContextRural      RegionalContext = "rural"
)

type Organization struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Country         string          `json:"country,omitempty"`
	Region          string          `json:"region,omitempty"`
	State           string          `json:"state,omitempty"`
	City            string          `json:"city,omitempty"`
	Type            string          `json:"type,omitempty"`
	Address         string          `json:"address,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	Website         string          `json:"website,omitempty"`
	Certifications  []Certification `json:"certifications"`
	QualityMetrics  QualityMetrics  `json:"quality_metrics,omitempty"`
	RegionalContext RegionalContext `json:"regional_context,omitempty"`
	Sources         []string        `json:"sources,omitempty"`
	ScoreBreakdown  *ScoreBreakdown `json:"score_breakdown,omitempty"`
	Rank            int             `json:"rank,omitempty"`
	Percentile      float64         `json:"percentile,omitempty"`
	Grade           string          `json:"grade,omitempty"`
}

// ActiveClassifiedCount counts the certifications that feed scoring.
func (o Organization) ActiveClassifiedCount(ref time.Time) int {
	n := 0
	for _, c := range o.Certifications {
		if c.Tag() != "" && c.ActiveAt(ref) {
			n++
		}
	}
	return n
}

type CertificationDetail struct {
	Count       int     `json:"count"`
	TotalScore  float64 `json:"total_score"`
	Weight      float64 `json:"weight"`
	Tier        int     `json:"tier"`
	Region      string  `json:"region,omitempty"`
	Description string  `json:"description,omitempty"`
}

type Recognition struct {
	GlobalStandards         int `json:"global_standards"`
	RegionalExcellence      int `json:"regional_excellence"`
	SpecialtyCertifications int `json:"specialty_certifications"`
	TotalCertifications     int `json:"total_certifications"`
}

type MetricDetail struct {
	RawScore      float64 `json:"raw_score"`
	WeightedScore float64 `json:"weighted_score"`
	Weight        float64 `json:"weight"`
	Defaulted     bool    `json:"defaulted"`
}

type Recommendation struct {
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Recommendation string `json:"recommendation"`
	Description    string `json:"description,omitempty"`
}

// ScoreBreakdown is recomputed wholesale on every scoring pass.
//
// TotalScore applies the certification weight to CertificationScore only
// when it is positive; a negative CertificationScore enters the total
// unweighted.
type ScoreBreakdown struct {
	CertificationScore     float64                         `json:"certification_score"`
	QualityMetricsScore    float64                         `json:"quality_metrics_score"`
	DiversityBonus         float64                         `json:"diversity_bonus"`
	InternationalBonus     float64                         `json:"international_bonus"`
	MandatoryCompliance    map[string]bool                 `json:"mandatory_compliance"`
	MandatoryPenalties     map[string]float64              `json:"mandatory_penalties"`
	MandatorySatisfiedBy   map[string]string               `json:"mandatory_satisfied_by,omitempty"`
	PenaltySoftenings      map[string]string               `json:"penalty_softenings,omitempty"`
	TotalPenalty           float64                         `json:"total_penalty"`
	RegionalAdjustment     float64                         `json:"regional_adjustment"`
	TotalScore             float64                         `json:"total_score"`
	CertificationBreakdown map[string]CertificationDetail  `json:"certification_breakdown,omitempty"`
	Recognition            Recognition                     `json:"recognition"`
	QualityBreakdown       map[MetricCategory]MetricDetail `json:"quality_metrics_breakdown,omitempty"`
	RegionalAdjustments    []string                        `json:"regional_adjustments,omitempty"`
	Recommendations        []Recommendation                `json:"recommendations,omitempty"`
}

type RankingEntry struct {
	OrganizationID           string  `json:"organization_id"`
	Name                     string  `json:"name"`
	TotalScore               float64 `json:"total_score"`
	ActiveCertificationCount int     `json:"active_certification_count"`
	NameKey                  string  `json:"-"`
	Rank                     int     `json:"rank"`
	Percentile               float64 `json:"percentile"`
	Grade                    string  `json:"grade"`
}

// RecordError is a per-organization diagnostic surfaced in the run report.
// Index is the position of the offending record in the input snapshot's
// organizations list, whichever stage reported it.
type RecordError struct {
	Index        int    `json:"index"`
	Organization string `json:"organization,omitempty"`
	Stage        string `json:"stage"`
	Message      string `json:"message"`
}

// RankingStatistics summarizes one ranked population.
type RankingStatistics struct {
	Count             int            `json:"count"`
	Mean              float64        `json:"mean"`
	Median            float64        `json:"median"`
	Max               float64        `json:"max"`
	Min               float64        `json:"min"`
	GradeDistribution map[string]int `json:"grade_distribution"`
	Top               []RankingEntry `json:"top"`
}

// RunReport is the outcome of one batch run. Organizations are listed in
// rank order, followed by the ones that could not be ranked.
type RunReport struct {
	ID            string            `json:"id"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	ReferenceDate time.Time         `json:"reference_date"`
	TablesVersion int               `json:"tables_version"`
	InputRecords  int               `json:"input_records"`
	Merged        int               `json:"merged"`
	Organizations []Organization    `json:"organizations"`
	Rankings      []RankingEntry    `json:"rankings"`
	Excluded      []RankingEntry    `json:"excluded,omitempty"`
	Statistics    RankingStatistics `json:"statistics"`
	Errors        []RecordError     `json:"errors"`
	ErrorCount    int               `json:"error_count"`
}
