package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// AnimeWorld implements Provider for AnimeWorld. The title page carries one
// episode list per server; the info API maps a server's episode id to either
// a direct file (grabber) or an embed page (target).
type AnimeWorld struct {
	site
}

// NewAnimeWorld creates an AnimeWorld provider.
func NewAnimeWorld(deps Deps, origin string) *AnimeWorld {
	return &AnimeWorld{site: newSite(media.SourceDescriptor{
		ID:       "animeworld",
		Name:     "AnimeWorld",
		Origin:   "https://www.animeworld.ac",
		Language: "it",
	}, origin, deps)}
}

func (a *AnimeWorld) audio(ref string) media.AudioTag {
	if strings.Contains(strings.ToLower(ref), "-ita") {
		return media.AudioDub
	}
	return media.AudioSub
}

// Episodes implements Provider. animeRef is the play path, e.g.
// "play/frieren.Ab12c". Tokens are "<ref>#<episode number>".
func (a *AnimeWorld) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if doc.Find(".widget.servers .server").Length() == 0 {
		return nil, fmt.Errorf("getting episodes: no server lists: %w", media.ErrParse)
	}

	var eps []media.EpisodeRef
	doc.Find(".server li.episode a").Each(func(_ int, s *goquery.Selection) {
		num, ok := s.Attr("data-num")
		if !ok || strings.TrimSpace(num) == "" {
			return
		}
		n := episodeNumber(num)
		eps = append(eps, media.EpisodeRef{
			Token:  animeRef + "#" + strings.TrimSpace(num),
			Number: n,
			Title:  "Episodio " + strings.TrimSpace(num),
		})
	})
	return finishEpisodes(a.desc.ID, eps), nil
}

// Servers implements Provider.
func (a *AnimeWorld) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	ref, num, ok := strings.Cut(ep.Token, "#")
	if !ok || num == "" {
		return nil, fmt.Errorf("invalid episode token %q", ep.Token)
	}
	if err := validRef("anime ref", ref); err != nil {
		return nil, err
	}

	doc, err := a.document(ctx, a.abs("/"+ref), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	names := map[string]string{}
	doc.Find(".servers-tabs [data-name]").Each(func(_ int, s *goquery.Selection) {
		names[s.AttrOr("data-name", "")] = strings.TrimSpace(s.Text())
	})

	var servers []media.ServerCandidate
	doc.Find(".server[data-name]").Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("data-name", "")
		s.Find("li.episode a").Each(func(_ int, item *goquery.Selection) {
			if strings.TrimSpace(item.AttrOr("data-num", "")) != num {
				return
			}
			epID := item.AttrOr("data-id", "")
			if httputil.ValidateRef(epID) != nil {
				return
			}
			name := names[id]
			if name == "" {
				name = "Server " + id
			}
			servers = append(servers, media.ServerCandidate{Name: name, Token: epID, Audio: a.audio(ref)})
		})
	})
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (a *AnimeWorld) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	if err := validRef("server id", server.Token); err != nil {
		return media.ResolvedMedia{}, err
	}

	var info struct {
		Grabber string `json:"grabber"`
		Target  string `json:"target"`
		Name    string `json:"name"`
	}
	if err := a.getJSON(ctx, a.abs("/api/episode/info?id="+server.Token), nil, &info); err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("getting episode info: %w", err)
	}
	media.ReportStage(ctx, media.StageExtracting)

	if info.Grabber != "" && !a.Engine.Supports(info.Grabber) {
		return direct(server, info.Grabber, a.desc.Origin+"/")
	}
	link := info.Target
	if link == "" {
		link = info.Grabber
	}
	return a.link(ctx, server, link, a.desc.Origin+"/")
}
