// Package registry confirms registry-validated certifications (JCI by
// default) against a published list of accredited organizations.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"qualitygrid/internal/domain"
	"qualitygrid/internal/services/dedupe"
)

// Entry is one listed organization. VerificationRequired=false means the
// name alone is sufficient even when the organization's city differs.
type Entry struct {
	Name                 string `json:"name"`
	City                 string `json:"city"`
	VerificationRequired *bool  `json:"verification_required,omitempty"`
}

// Index is an in-memory registry keyed by normalized name.
type Index struct {
	cities  map[string]map[string]bool
	anyCity map[string]bool
}

func NewIndex(entries []Entry) *Index {
	idx := &Index{cities: make(map[string]map[string]bool), anyCity: make(map[string]bool)}
	for _, e := range entries {
		name := dedupe.NormalizeName(e.Name)
		if name == "" {
			continue
		}
		if idx.cities[name] == nil {
			idx.cities[name] = make(map[string]bool)
		}
		if city := dedupe.NormalizeName(e.City); city != "" {
			idx.cities[name][city] = true
		}
		if e.VerificationRequired != nil && !*e.VerificationRequired {
			idx.anyCity[name] = true
		}
	}
	return idx
}

// LoadIndex reads a registry file holding either a bare list of entries or
// an object with an "organizations" list.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	var entries []Entry
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var doc struct {
			Organizations []Entry `json:"organizations"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse registry: %w", err)
		}
		entries = doc.Organizations
	} else if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return NewIndex(entries), nil
}

func (i *Index) Len() int { return len(i.cities) }

// Listed reports whether org is in the registry. When the registry lists
// cities for the name, the organization's city must be one of them.
func (i *Index) Listed(_ context.Context, org domain.Organization) (bool, error) {
	name := dedupe.NormalizeName(org.Name)
	if i.anyCity[name] {
		return true, nil
	}
	cities, ok := i.cities[name]
	if !ok {
		return false, nil
	}
	if len(cities) == 0 {
		return true, nil
	}
	return cities[dedupe.NormalizeName(org.City)], nil
}
