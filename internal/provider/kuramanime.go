package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// Kuramanime implements Provider for Kuramanime. The player is injected by
// scripts, so resolution goes through the rendering surrogate.
type Kuramanime struct {
	site
}

// NewKuramanime creates a Kuramanime provider.
func NewKuramanime(deps Deps, origin string) *Kuramanime {
	return &Kuramanime{site: newSite(media.SourceDescriptor{
		ID:           "kuramanime",
		Name:         "Kuramanime",
		Origin:       "https://v8.kuramanime.tel",
		Language:     "id",
		UsesRenderer: true,
	}, origin, deps)}
}

// Episodes implements Provider. animeRef is the title path, e.g.
// "anime/2112/sousou-no-frieren".
func (k *Kuramanime) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := k.document(ctx, k.abs("/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}

	// The list is an HTML fragment stored in a popover attribute.
	content, ok := doc.Find("#episodeLists").Attr("data-content")
	if !ok {
		return nil, fmt.Errorf("getting episodes: no episode list: %w", media.ErrParse)
	}
	list, err := parseHTML([]byte(content))
	if err != nil {
		return nil, err
	}

	var eps []media.EpisodeRef
	list.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := k.abs(s.AttrOr("href", ""))
		token := strings.TrimPrefix(strings.TrimPrefix(href, k.desc.Origin), "/")
		if !strings.Contains(token, "/episode/") || validRef("episode", token) != nil {
			return
		}
		eps = append(eps, media.EpisodeRef{
			Token:  token,
			Number: episodeNumber(token[strings.LastIndex(token, "/")+1:]),
			Title:  strings.TrimSpace(s.Text()),
		})
	})
	return finishEpisodes(k.desc.ID, eps), nil
}

// Servers implements Provider.
func (k *Kuramanime) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	doc, err := k.document(ctx, k.abs("/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	var servers []media.ServerCandidate
	doc.Find("select#changeServer option").Each(func(_ int, s *goquery.Selection) {
		value := strings.TrimSpace(s.AttrOr("value", ""))
		if httputil.ValidateRef(value) != nil {
			return
		}
		servers = append(servers, media.ServerCandidate{
			Name:  strings.TrimSpace(s.Text()),
			Token: value,
			Audio: media.AudioSub,
		})
	})
	return finishServers(ep, servers)
}

type playerSource struct {
	video  string
	iframe string
}

// findPlayer reads the rendered player: a <video> source wins over an iframe.
func findPlayer(html string, containers string) (playerSource, error) {
	doc, err := parseHTML([]byte(html))
	if err != nil {
		return playerSource{}, err
	}
	if src := strings.TrimSpace(doc.Find("video source[src]").First().AttrOr("src", "")); src != "" {
		return playerSource{video: src}, nil
	}
	if src := strings.TrimSpace(doc.Find("video[src]").First().AttrOr("src", "")); src != "" && !strings.HasPrefix(src, "blob:") {
		return playerSource{video: src}, nil
	}
	// Ad frames live outside the player container.
	frames := doc.Find(containers).Find("iframe[src]")
	if frames.Length() == 0 {
		frames = doc.Find("iframe[src]")
	}
	if src := strings.TrimSpace(frames.First().AttrOr("src", "")); src != "" && src != "about:blank" {
		return playerSource{iframe: src}, nil
	}
	return playerSource{}, media.ErrPatternNotFound
}

// Resolve implements Provider.
func (k *Kuramanime) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return media.ResolvedMedia{}, err
	}
	if err := validRef("server", server.Token); err != nil {
		return media.ResolvedMedia{}, err
	}
	page := k.abs("/" + ep.Token + "?activate_stream=1&stream_server=" + server.Token)

	found, err := renderUntil(ctx, &k.site, page, func(html string) (playerSource, error) {
		return findPlayer(html, "#animeVideoPlayer, #player")
	})
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: %w", server.Name, err)
	}
	if found.iframe != "" {
		return k.embed(ctx, server, httputil.Resolve(page, found.iframe), page)
	}
	return direct(server, httputil.Resolve(page, found.video), k.desc.Origin+"/")
}
