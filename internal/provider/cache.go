package provider

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"anistream/internal/media"
)

// CachedEpisodes wraps p so episode lists are remembered for ttl. Servers
// and resolved media are never cached: their tokens and URLs expire.
func CachedEpisodes(p Provider, ttl time.Duration) Provider {
	if ttl <= 0 {
		return p
	}
	c := &cachedProvider{Provider: p, cache: cache.New(ttl, 2*ttl)}
	if s, ok := p.(Searcher); ok {
		return &cachedSearcher{cachedProvider: c, searcher: s}
	}
	return c
}

type cachedProvider struct {
	Provider
	cache *cache.Cache
}

func (c *cachedProvider) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if eps, ok := c.cache.Get(animeRef); ok {
		return slices.Clone(eps.([]media.EpisodeRef)), nil
	}
	eps, err := c.Provider.Episodes(ctx, animeRef)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(animeRef, slices.Clone(eps))
	return eps, nil
}

type cachedSearcher struct {
	*cachedProvider
	searcher Searcher
}

func (c *cachedSearcher) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	return c.searcher.Search(ctx, query)
}
