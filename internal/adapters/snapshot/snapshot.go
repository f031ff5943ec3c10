// Package snapshot reads and writes the JSON batch snapshot. Decoding goes
// through the field-mapping table, so the rest of the system only ever sees
// the normalized domain shape.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"

	"qualitygrid/internal/domain"
)

var (
	// ErrMalformedSnapshot means the document itself could not be read; the
	// batch cannot start.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrMalformedRecord marks a single rejected record; the batch goes on.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrDroppedField marks a sub-field left out of an otherwise kept record.
	ErrDroppedField = errors.New("dropped field")
)

// Batch is a decoded input snapshot. Positions[i] is the index of
// Organizations[i] in the snapshot's organizations list.
type Batch struct {
	Metadata      map[string]any
	Organizations []domain.Organization
	Positions     []int
	Errors        []domain.RecordError
}

// Decode reads either {"metadata": {...}, "organizations": [...]} or a bare
// list of organizations.
func Decode(r io.Reader) (Batch, error) {
	var raw any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	var b Batch
	var records []any
	switch doc := raw.(type) {
	case []any:
		records = doc
	case map[string]any:
		if md, ok := doc["metadata"]; ok {
			m, err := cast.ToStringMapE(md)
			if err != nil {
				return Batch{}, fmt.Errorf("%w: metadata: %v", ErrMalformedSnapshot, err)
			}
			b.Metadata = m
		}
		list, ok := doc["organizations"]
		if !ok {
			return Batch{}, fmt.Errorf("%w: no organizations list", ErrMalformedSnapshot)
		}
		records, ok = list.([]any)
		if !ok {
			return Batch{}, fmt.Errorf("%w: organizations is not a list", ErrMalformedSnapshot)
		}
	default:
		return Batch{}, fmt.Errorf("%w: unexpected top-level %T", ErrMalformedSnapshot, raw)
	}

	for i, rec := range records {
		org, problems, err := decodeOrganization(rec)
		if err != nil {
			problems = append(problems, err)
		}
		for _, p := range problems {
			b.Errors = append(b.Errors, domain.RecordError{
				Index:        i,
				Organization: org.Name,
				Stage:        "ingest",
				Message:      p.Error(),
			})
		}
		if err != nil {
			continue
		}
		b.Organizations = append(b.Organizations, org)
		b.Positions = append(b.Positions, i)
	}
	return b, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
}

func str(rec map[string]any, table map[string][]string, field string) string {
	v, ok := lookup(rec, table, field)
	if !ok {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

// decodeOrganization rejects a record only when it is not an object or has
// no name. Bad sub-fields are dropped and reported in problems; the rest of
// the organization is kept.
func decodeOrganization(raw any) (org domain.Organization, problems []error, err error) {
	rec, err := cast.ToStringMapE(raw)
	if err != nil {
		return domain.Organization{}, nil, malformed("record is not an object")
	}
	org = domain.Organization{
		ID:              str(rec, organizationFields, "id"),
		Name:            str(rec, organizationFields, "name"),
		Country:         str(rec, organizationFields, "country"),
		Region:          str(rec, organizationFields, "region"),
		State:           str(rec, organizationFields, "state"),
		City:            str(rec, organizationFields, "city"),
		Type:            str(rec, organizationFields, "type"),
		Address:         str(rec, organizationFields, "address"),
		Phone:           str(rec, organizationFields, "phone"),
		Website:         str(rec, organizationFields, "website"),
		RegionalContext: domain.RegionalContext(strings.ToLower(str(rec, organizationFields, "regional_context"))),
	}
	if org.Name == "" {
		return org, nil, malformed("missing organization name")
	}

	if v, ok := lookup(rec, organizationFields, "sources"); ok {
		if s, isString := v.(string); isString {
			org.Sources = []string{s}
		} else {
			org.Sources = cast.ToStringSlice(v)
		}
	}

	if v, ok := lookup(rec, organizationFields, "certifications"); ok {
		list, isList := v.([]any)
		if !isList {
			problems = append(problems, fmt.Errorf("%w: certifications is not a list", ErrDroppedField))
		}
		for j, item := range list {
			c, cerr := decodeCertification(item)
			if cerr != nil {
				problems = append(problems, fmt.Errorf("%w: certification %d: %v", ErrDroppedField, j, cerr))
				continue
			}
			org.Certifications = append(org.Certifications, c)
		}
	}

	if v, ok := lookup(rec, organizationFields, "quality_metrics"); ok {
		m, merr := cast.ToStringMapE(v)
		if merr != nil {
			problems = append(problems, fmt.Errorf("%w: quality_metrics is not an object", ErrDroppedField))
		}
		for k, val := range m {
			f, ferr := cast.ToFloat64E(val)
			if ferr != nil {
				problems = append(problems, fmt.Errorf("%w: quality metric %q: %v", ErrDroppedField, k, ferr))
				continue
			}
			if org.QualityMetrics == nil {
				org.QualityMetrics = make(domain.QualityMetrics)
			}
			org.QualityMetrics[domain.MetricCategory(k)] = f
		}
	}
	return org, problems, nil
}

// decodeCertification accepts an object or a bare label string. Bare labels
// carry no status and so never score on their own.
func decodeCertification(raw any) (domain.Certification, error) {
	if s, ok := raw.(string); ok {
		return domain.Certification{Name: strings.TrimSpace(s), Status: domain.StatusUnknown}, nil
	}
	rec, err := cast.ToStringMapE(raw)
	if err != nil {
		return domain.Certification{}, errors.New("not an object")
	}
	c := domain.Certification{
		Name:     str(rec, certificationFields, "name"),
		Type:     str(rec, certificationFields, "type"),
		Standard: str(rec, certificationFields, "standard"),
		Status:   domain.ParseStatus(str(rec, certificationFields, "status")),
		Issuer:   str(rec, certificationFields, "issuer"),
		Source:   str(rec, certificationFields, "source"),
	}
	if c.Name == "" && c.Type == "" && c.Standard == "" {
		return c, errors.New("no name, type or standard")
	}
	for field, dst := range map[string]**time.Time{"valid_from": &c.ValidFrom, "valid_until": &c.ValidUntil} {
		v, ok := lookup(rec, certificationFields, field)
		if !ok || cast.ToString(v) == "" {
			continue
		}
		t, err := cast.ToTimeE(v)
		if err != nil {
			return c, fmt.Errorf("%s: %v", field, err)
		}
		*dst = &t
	}
	if v, ok := lookup(rec, certificationFields, "score_impact"); ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return c, fmt.Errorf("score_impact: %v", err)
		}
		c.ScoreImpact = &f
	}
	return c, nil
}

// Output is the document written after a run.
type Output struct {
	Metadata      map[string]any           `json:"metadata"`
	Organizations []domain.Organization    `json:"organizations"`
	Rankings      []domain.RankingEntry    `json:"rankings"`
	Excluded      []domain.RankingEntry    `json:"excluded,omitempty"`
	Statistics    domain.RankingStatistics `json:"statistics"`
	Errors        []domain.RecordError     `json:"errors"`
	ErrorCount    int                      `json:"error_count"`
}

// NewOutput builds the output document for report. input is the input
// snapshot's metadata, carried under "input".
func NewOutput(report domain.RunReport, input map[string]any) Output {
	md := map[string]any{
		"run_id":            report.ID,
		"started_at":        report.StartedAt,
		"finished_at":       report.FinishedAt,
		"reference_date":    report.ReferenceDate,
		"tables_version":    report.TablesVersion,
		"field_map_version": FieldMapVersion,
		"input_records":     report.InputRecords,
		"merged":            report.Merged,
	}
	if len(input) > 0 {
		md["input"] = input
	}
	errs := report.Errors
	if errs == nil {
		errs = []domain.RecordError{}
	}
	return Output{
		Metadata:      md,
		Organizations: report.Organizations,
		Rankings:      report.Rankings,
		Excluded:      report.Excluded,
		Statistics:    report.Statistics,
		Errors:        errs,
		ErrorCount:    report.ErrorCount,
	}
}

func Encode(w io.Writer, out Output) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}
