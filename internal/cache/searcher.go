package cache

import (
	"context"

	"github.com/desertthunder/ytplay/internal/models"
)

// Provider is a search backend returning candidates in relevance order.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// CachedSearcher answers repeated queries from a [SearchCache] before calling the provider.
type CachedSearcher struct {
	provider Provider
	cache    *SearchCache
}

// NewCachedSearcher wraps provider with cache.
func NewCachedSearcher(provider Provider, cache *SearchCache) *CachedSearcher {
	return &CachedSearcher{provider: provider, cache: cache}
}

// Search returns cached results for query or fetches and stores them. A cached list fetched with
// a smaller limit is refetched. Failures are not cached.
func (s *CachedSearcher) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if results, ok := s.cache.Lookup(query, limit); ok {
		if limit > 0 && len(results) > limit {
			results = results[:limit]
		}
		return results, nil
	}

	results, err := s.provider.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.cache.PutLimit(query, results, limit)
	return results, nil
}
