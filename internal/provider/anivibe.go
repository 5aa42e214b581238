package provider

import (
	"context"
	"fmt"

	"anistream/internal/media"
)

// AniVibe implements Provider for AniVibe. Mirrors are base64 encoded
// iframes in a <select class="mirror">.
type AniVibe struct {
	site
}

// NewAniVibe creates an AniVibe provider.
func NewAniVibe(deps Deps, origin string) *AniVibe {
	return &AniVibe{site: newSite(media.SourceDescriptor{
		ID:       "anivibe",
		Name:     "AniVibe",
		Origin:   "https://anivibe.net",
		Language: "en",
	}, origin, deps)}
}

// Episodes implements Provider. animeRef is the series path, e.g.
// "series/frieren".
func (a *AniVibe) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if !hasEpisodeLister(doc) {
		return nil, fmt.Errorf("getting episodes: no episode list: %w", media.ErrParse)
	}
	return finishEpisodes(a.desc.ID, parseEpisodeLister(doc, a.desc.Origin)), nil
}

// Servers implements Provider.
func (a *AniVibe) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}
	return finishServers(ep, parseMirrors(doc, media.AudioSub))
}

// Resolve implements Provider.
func (a *AniVibe) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	return a.embed(ctx, server, server.Token, a.abs("/"+ep.Token))
}
