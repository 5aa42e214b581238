package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// AniBunker implements Provider for AniBunker. Players are buttons whose ids
// are posted to a loader script answering with the player URL as JSON.
type AniBunker struct {
	site
}

// NewAniBunker creates an AniBunker provider.
func NewAniBunker(deps Deps, origin string) *AniBunker {
	return &AniBunker{site: newSite(media.SourceDescriptor{
		ID:       "anibunker",
		Name:     "AniBunker",
		Origin:   "https://www.anibunker.com",
		Language: "pt-BR",
	}, origin, deps)}
}

// Episodes implements Provider. animeRef is the anime slug.
func (a *AniBunker) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if doc.Find(".eps-display").Length() == 0 {
		return nil, fmt.Errorf("getting episodes: no episode list: %w", media.ErrParse)
	}

	var eps []media.EpisodeRef
	doc.Find(".eps-display a[href]").Each(func(_ int, s *goquery.Selection) {
		href := a.abs(s.AttrOr("href", ""))
		token := strings.Trim(strings.TrimPrefix(href, a.desc.Origin), "/")
		if token == href || validRef("episode", token) != nil {
			return
		}
		eps = append(eps, media.EpisodeRef{
			Token:  token,
			Number: episodeNumber(s.Find(".ep_number").Text()),
			Title:  strings.TrimSpace(s.AttrOr("title", "")),
		})
	})
	return finishEpisodes(a.desc.ID, eps), nil
}

// Servers implements Provider. Tokens are "<video id>:<player id>".
func (a *AniBunker) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	videoID := strings.TrimSpace(doc.Find("[data-video-id]").First().AttrOr("data-video-id", ""))
	if videoID == "" {
		return nil, fmt.Errorf("getting servers: no video id: %w", media.ErrParse)
	}

	var servers []media.ServerCandidate
	doc.Find(".player_select_item[data-playerid]").Each(func(_ int, s *goquery.Selection) {
		player := strings.TrimSpace(s.AttrOr("data-playerid", ""))
		if player == "" {
			return
		}
		audio := media.AudioSub
		if strings.Contains(strings.ToLower(s.Text()), "dublado") {
			audio = media.AudioDub
		}
		servers = append(servers, media.ServerCandidate{
			Name:  strings.TrimSpace(s.Text()),
			Token: videoID + ":" + player,
			Audio: audio,
		})
	})
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (a *AniBunker) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	videoID, player, ok := strings.Cut(server.Token, ":")
	if !ok {
		return media.ResolvedMedia{}, fmt.Errorf("invalid server token %q", server.Token)
	}

	resp, err := a.postForm(ctx, a.abs("/php/loader.php"),
		map[string]string{"player_id": player, "video_id": videoID},
		map[string]string{"Referer": a.abs("/" + ep.Token), "X-Requested-With": "XMLHttpRequest"})
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("loading player: %w", err)
	}
	media.ReportStage(ctx, media.StageExtracting)

	// The loader answers {"url": "..."} or {"data": {"url": "..."}}; the
	// engine's anibunker entry knows both.
	link, err := a.Engine.Extract(resp.String(), "anibunker.com")
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: %w", server.Name, err)
	}
	// The loader entry is keyed to the site's own hosts, which also serve files.
	if strings.Contains(httputil.Host(link), "anibunker") {
		return direct(server, link, a.desc.Origin+"/")
	}
	return a.link(ctx, server, link, a.desc.Origin+"/")
}
