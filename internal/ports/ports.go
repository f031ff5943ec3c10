package ports

import (
	"context"

	"qualitygrid/internal/domain"
)

// Cache is the validation cache. Implementations never fail the caller: an
// unavailable backend reads as a miss and drops writes.
type Cache interface {
	Get(ctx context.Context, category, key string) (value string, ok bool)
	Set(ctx context.Context, category, key, value string)
}

// RegistryLookup answers whether an organization appears in an external
// accreditation registry.
type RegistryLookup interface {
	Listed(ctx context.Context, org domain.Organization) (bool, error)
}

// Reports serves the latest persisted run to reporting collaborators.
type Reports interface {
	LatestRankings(ctx context.Context, limit int) (RunSummary, []domain.RankingEntry, error)
	Organization(ctx context.Context, id string) (domain.Organization, error)
}
