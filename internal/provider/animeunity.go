package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// AnimeUnity implements Provider for AnimeUnity. The title page keeps its
// episode list as JSON in a <video-player episodes="..."> attribute; each
// episode's embed URL points at VixCloud.
type AnimeUnity struct {
	site
}

// NewAnimeUnity creates an AnimeUnity provider.
func NewAnimeUnity(deps Deps, origin string) *AnimeUnity {
	return &AnimeUnity{site: newSite(media.SourceDescriptor{
		ID:       "animeunity",
		Name:     "AnimeUnity",
		Origin:   "https://www.animeunity.so",
		Language: "it",
	}, origin, deps)}
}

type unityEpisode struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
}

// Episodes implements Provider. animeRef is the title path, e.g.
// "anime/4123-sousou-no-frieren". Tokens are episode ids.
func (a *AnimeUnity) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	attr, ok := doc.Find("video-player").Attr("episodes")
	if !ok {
		return nil, fmt.Errorf("getting episodes: no player data: %w", media.ErrParse)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(attr), &rows); err != nil {
		return nil, fmt.Errorf("getting episodes: %w: %w", media.ErrParse, err)
	}

	var eps []media.EpisodeRef
	for _, raw := range rows {
		var row unityEpisode
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		if row.ID <= 0 {
			continue
		}
		id := strconv.FormatInt(row.ID, 10)
		n, err := strconv.ParseFloat(strings.TrimSpace(row.Number), 64)
		if err != nil {
			n = episodeNumber(row.Number)
		}
		eps = append(eps, media.EpisodeRef{Token: id, Number: n, Title: "Episodio " + row.Number})
	}
	return finishEpisodes(a.desc.ID, eps), nil
}

// Servers implements Provider. VixCloud is the only server.
func (a *AnimeUnity) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := httputil.ValidateNumericID(ep.Token); err != nil {
		return nil, fmt.Errorf("invalid episode id: %w", err)
	}
	return finishServers(ep, []media.ServerCandidate{{Name: "VixCloud", Token: ep.Token, Audio: media.AudioSub}})
}

// Resolve implements Provider.
func (a *AnimeUnity) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	if err := httputil.ValidateNumericID(server.Token); err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("invalid episode id: %w", err)
	}
	resp, err := a.get(ctx, a.abs("/embed-url/"+server.Token), map[string]string{"Referer": a.desc.Origin + "/"})
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("getting embed url: %w", err)
	}
	return a.embed(ctx, server, strings.TrimSpace(resp.String()), a.desc.Origin+"/")
}
