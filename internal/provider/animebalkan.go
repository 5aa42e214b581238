package provider

import (
	"context"
	"fmt"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// playerToken is the server token of a page's built-in player, which only
// exists once its scripts have run.
const playerToken = "player"

// AnimeBalkan implements Provider for AnimeBalkan. Mirrors are listed like
// on AniVibe; the default player is filled in by scripts and read through
// the rendering surrogate.
type AnimeBalkan struct {
	site
}

// NewAnimeBalkan creates an AnimeBalkan provider.
func NewAnimeBalkan(deps Deps, origin string) *AnimeBalkan {
	return &AnimeBalkan{site: newSite(media.SourceDescriptor{
		ID:           "animebalkan",
		Name:         "AnimeBalkan",
		Origin:       "https://animebalkan.org",
		Language:     "hr",
		UsesRenderer: true,
	}, origin, deps)}
}

// Episodes implements Provider. animeRef is the series slug.
func (a *AnimeBalkan) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+animeRef+"/"), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if !hasEpisodeLister(doc) {
		return nil, fmt.Errorf("getting episodes: no episode list: %w", media.ErrParse)
	}
	return finishEpisodes(a.desc.ID, parseEpisodeLister(doc, a.desc.Origin)), nil
}

// Servers implements Provider.
func (a *AnimeBalkan) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+ep.Token+"/"), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	servers := parseMirrors(doc, media.AudioSub)
	if doc.Find(".player-embed, #pembed").Length() > 0 {
		servers = append([]media.ServerCandidate{{Name: "AnimeBalkan", Token: playerToken, Audio: media.AudioSub}}, servers...)
	}
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (a *AnimeBalkan) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	page := a.abs("/" + ep.Token + "/")
	if server.Token != playerToken {
		return a.embed(ctx, server, server.Token, page)
	}

	found, err := renderUntil(ctx, &a.site, page, func(html string) (playerSource, error) {
		return findPlayer(html, ".player-embed, #pembed")
	})
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: %w", server.Name, err)
	}
	if found.iframe != "" {
		return a.link(ctx, server, httputil.Resolve(page, found.iframe), page)
	}
	return direct(server, httputil.Resolve(page, found.video), a.desc.Origin+"/")
}
