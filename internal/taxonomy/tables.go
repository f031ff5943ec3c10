// Package taxonomy loads the static scoring tables: certification types,
// equivalency groups, mandatory requirements, classifier rules, cache TTLs
// and scoring parameters. Tables are validated once at load and exposed
// read-only through Taxonomy.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

// ErrInvalidConfig wraps every table validation failure.
var ErrInvalidConfig = errors.New("invalid taxonomy configuration")

type CertificationType struct {
	Tag              string  `yaml:"tag"`
	Weight           float64 `yaml:"weight"`
	BaseScore        float64 `yaml:"base_score"`
	Tier             int     `yaml:"tier"`
	Region           string  `yaml:"region"`
	Description      string  `yaml:"description"`
	EquivalencyGroup string  `yaml:"equivalency_group,omitempty"`
}

type EquivalencyGroup struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Members         []string `yaml:"members"`
	PrimaryStandard string   `yaml:"primary_standard"`
}

// MandatoryRequirement is satisfied by its direct Tag, or by any member of
// Group. At least one of the two must be set.
type MandatoryRequirement struct {
	Key     string  `yaml:"key"`
	Name    string  `yaml:"name"`
	Penalty float64 `yaml:"penalty"`
	Tag     string  `yaml:"tag,omitempty"`
	Group   string  `yaml:"group,omitempty"`
}

// PenaltySoftening multiplies an unmet requirement's penalty by Factor when
// Credential is held. It never marks the requirement as satisfied.
type PenaltySoftening struct {
	Requirement string  `yaml:"requirement"`
	Credential  string  `yaml:"credential"`
	Factor      float64 `yaml:"factor"`
	Reason      string  `yaml:"reason"`
}

type ClassifierRule struct {
	Tag           string   `yaml:"tag"`
	Keywords      []string `yaml:"keywords"`
	WholeWord     bool     `yaml:"whole_word"`
	CaseSensitive bool     `yaml:"case_sensitive"`
}

type CacheTTLs struct {
	Classification time.Duration `yaml:"classification"`
	External       time.Duration `yaml:"external"`
}

type MetricCategory struct {
	Category string  `yaml:"category"`
	Weight   float64 `yaml:"weight"`
	Baseline float64 `yaml:"baseline"`
}

type Scoring struct {
	CertificationCap      float64          `yaml:"certification_cap"`
	QualityCap            float64          `yaml:"quality_cap"`
	CertificationWeight   float64          `yaml:"certification_weight"`
	QualityWeight         float64          `yaml:"quality_weight"`
	DiversityPerType      float64          `yaml:"diversity_per_type"`
	DiversityCap          float64          `yaml:"diversity_cap"`
	InternationalPerTier1 float64          `yaml:"international_per_tier1"`
	InternationalCap      float64          `yaml:"international_cap"`
	MetricCeiling         float64          `yaml:"metric_ceiling"`
	MetricCategories      []MetricCategory `yaml:"metric_categories"`
}

// RegionalContext bonuses are additive only.
type RegionalContext struct {
	Context        string  `yaml:"context"`
	Label          string  `yaml:"label"`
	InnovationRate float64 `yaml:"innovation_rate"`
	FlatBonus      float64 `yaml:"flat_bonus"`
}

type Grade struct {
	Grade string  `yaml:"grade"`
	Min   float64 `yaml:"min"`
}

type Dedupe struct {
	JaccardThreshold float64 `yaml:"jaccard_threshold"`

	// LocationVeto stops fuzzy matches between records naming different
	// cities or different website domains.
	LocationVeto bool `yaml:"location_veto"`
}

type Ranking struct {
	GroupIndicators []string `yaml:"group_indicators"`
	TopN            int      `yaml:"top_n"`
}

// RegionalStandard names the national accreditation recommended to
// organizations in Region that do not hold it.
type RegionalStandard struct {
	Region string `yaml:"region"`
	Tag    string `yaml:"tag"`
}

type Registry struct {
	ValidatedTags []string `yaml:"validated_tags"`
}

// Tables is the on-disk shape.
type Tables struct {
	Version            int                    `yaml:"version"`
	CertificationTypes []CertificationType    `yaml:"certification_types"`
	EquivalencyGroups  []EquivalencyGroup     `yaml:"equivalency_groups"`
	MandatoryReqs      []MandatoryRequirement `yaml:"mandatory_requirements"`
	PenaltySoftenings  []PenaltySoftening     `yaml:"penalty_softenings"`
	ClassifierRules    []ClassifierRule       `yaml:"classifier_rules"`
	CacheTTLs          CacheTTLs              `yaml:"cache_ttls"`
	Scoring            Scoring                `yaml:"scoring"`
	RegionalContexts   []RegionalContext      `yaml:"regional_contexts"`
	Grades             []Grade                `yaml:"grades"`
	Dedupe             Dedupe                 `yaml:"dedupe"`
	Ranking            Ranking                `yaml:"ranking"`
	Registry           Registry               `yaml:"registry"`
	RegionalStandards  []RegionalStandard     `yaml:"regional_standards"`
}

// DefaultTables parses the embedded tables.
func DefaultTables() (*Tables, error) {
	t := &Tables{}
	if err := yaml.Unmarshal(defaultTables, t); err != nil {
		return nil, fmt.Errorf("parse embedded tables: %w", err)
	}
	return t, nil
}

// LoadFile reads a tables file over the embedded defaults. Sections present
// in the file replace the default section wholesale.
func LoadFile(path string) (*Tables, error) {
	t, err := DefaultTables()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables file: %w", err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse tables file: %w", err)
	}
	return t, nil
}

// Load reads, validates and compiles the tables at path (embedded defaults
// when path is empty).
func Load(path string) (*Taxonomy, error) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(t)
}
