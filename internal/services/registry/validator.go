package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"qualitygrid/internal/cache"
	"qualitygrid/internal/domain"
	"qualitygrid/internal/ports"
	"qualitygrid/internal/services/dedupe"
	"qualitygrid/internal/taxonomy"
)

const (
	listed    = "1"
	notListed = "0"
)

// Validator drops registry-validated certifications the registry cannot
// confirm. Lookups are memoized in the external cache category.
type Validator struct {
	tx     *taxonomy.Taxonomy
	lookup ports.RegistryLookup
	cache  ports.Cache
	logger *zap.Logger
}

// NewValidator returns a validator; a nil lookup disables validation.
func NewValidator(tx *taxonomy.Taxonomy, lookup ports.RegistryLookup, c ports.Cache, logger *zap.Logger) *Validator {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{tx: tx, lookup: lookup, cache: c, logger: logger}
}

func (v *Validator) listed(ctx context.Context, org domain.Organization) (bool, error) {
	key := dedupe.NormalizeName(org.Name) + "|" + dedupe.NormalizeName(org.City)
	if val, ok := v.cache.Get(ctx, cache.CategoryExternal, key); ok {
		return val == listed, nil
	}
	ok, err := v.lookup.Listed(ctx, org)
	if err != nil {
		return false, err
	}
	val := notListed
	if ok {
		val = listed
	}
	v.cache.Set(ctx, cache.CategoryExternal, key, val)
	return ok, nil
}

// Filter returns org without the certifications the registry rejects, and
// how many were removed. On lookup failure org is returned unchanged with
// the error.
func (v *Validator) Filter(ctx context.Context, org domain.Organization) (domain.Organization, int, error) {
	if v.lookup == nil {
		return org, 0, nil
	}
	needs := false
	for _, c := range org.Certifications {
		if v.tx.RegistryValidated(c.Tag()) {
			needs = true
			break
		}
	}
	if !needs {
		return org, 0, nil
	}

	ok, err := v.listed(ctx, org)
	if err != nil {
		return org, 0, fmt.Errorf("registry lookup for %q: %w", org.Name, err)
	}
	if ok {
		return org, 0, nil
	}

	out := org
	out.Certifications = nil
	dropped := 0
	for _, c := range org.Certifications {
		if v.tx.RegistryValidated(c.Tag()) {
			dropped++
			continue
		}
		out.Certifications = append(out.Certifications, c)
	}
	v.logger.Warn("dropped unverified certifications",
		zap.String("organization", org.Name),
		zap.String("city", org.City),
		zap.Int("dropped", dropped))
	return out, dropped, nil
}
