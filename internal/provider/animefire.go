package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/extract"
	"anistream/internal/httputil"
	"anistream/internal/media"
)

// AnimeFire implements Provider for AnimeFire. Episode pages either carry a
// data-video-src JSON endpoint listing qualities or a Blogger iframe.
type AnimeFire struct {
	site
}

// NewAnimeFire creates an AnimeFire provider.
func NewAnimeFire(deps Deps, origin string) *AnimeFire {
	return &AnimeFire{site: newSite(media.SourceDescriptor{
		ID:       "animefire",
		Name:     "AnimeFire",
		Origin:   "https://animefire.plus",
		Language: "pt-BR",
	}, origin, deps)}
}

// Episodes implements Provider. animeRef is the listing slug, e.g.
// "sousou-no-frieren-todos-os-episodios".
func (a *AnimeFire) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/animes/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if doc.Find(".div_video_list").Length() == 0 {
		return nil, fmt.Errorf("getting episodes: no episode list: %w", media.ErrParse)
	}

	var eps []media.EpisodeRef
	doc.Find(".div_video_list a.lEp").Each(func(_ int, s *goquery.Selection) {
		href := a.abs(s.AttrOr("href", ""))
		_, token, ok := strings.Cut(href, "/animes/")
		if !ok || validRef("episode", token) != nil {
			return
		}
		eps = append(eps, media.EpisodeRef{
			Token:  token,
			Number: episodeNumber(token[strings.LastIndex(token, "/")+1:]),
			Title:  strings.TrimSpace(s.Text()),
		})
	})
	return finishEpisodes(a.desc.ID, eps), nil
}

// Servers implements Provider.
func (a *AnimeFire) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/animes/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	audio := media.AudioSub
	if strings.Contains(ep.Token, "dublado") {
		audio = media.AudioDub
	}

	var servers []media.ServerCandidate
	if src := strings.TrimSpace(doc.Find("video[data-video-src]").AttrOr("data-video-src", "")); src != "" {
		servers = append(servers, media.ServerCandidate{Name: "AnimeFire", Token: a.abs(src), Audio: audio})
	}
	doc.Find("#div_video iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src := extract.Normalize(s.AttrOr("src", ""))
		servers = append(servers, media.ServerCandidate{Name: httputil.Host(src), Token: src, Audio: audio})
	})
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (a *AnimeFire) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	if httputil.Host(server.Token) != httputil.Host(a.desc.Origin) {
		return a.embed(ctx, server, server.Token, a.desc.Origin+"/")
	}

	// {"data":[{"src":"https://.../720p.mp4","label":"720p"}, ...]}
	var resp struct {
		Data []struct {
			Src   string `json:"src"`
			Label string `json:"label"`
		} `json:"data"`
	}
	if err := a.getJSON(ctx, server.Token, map[string]string{"Referer": a.abs("/animes/" + ep.Token)}, &resp); err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("getting video list: %w", err)
	}
	media.ReportStage(ctx, media.StageExtracting)

	var variants []media.QualityVariant
	for _, d := range resp.Data {
		label := strings.TrimSpace(d.Label)
		variants = append(variants, media.QualityVariant{Label: label, Rank: media.ParseRank(label), URL: extract.Normalize(d.Src)})
	}
	variants = sortVariants(variants)
	if len(variants) == 0 {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: empty video list: %w", server.Name, media.ErrPatternNotFound)
	}

	rm, err := direct(server, variants[0].URL, a.desc.Origin+"/")
	if err != nil {
		return media.ResolvedMedia{}, err
	}
	rm.Variants = variants
	return rm, nil
}
