package provider

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/media"
)

// TokyoInsider implements Provider for TokyoInsider, which only offers
// direct .mkv/.mp4 downloads. Every file is a server.
type TokyoInsider struct {
	site
}

// NewTokyoInsider creates a TokyoInsider provider.
func NewTokyoInsider(deps Deps, origin string) *TokyoInsider {
	return &TokyoInsider{site: newSite(media.SourceDescriptor{
		ID:       "tokyoinsider",
		Name:     "TokyoInsider",
		Origin:   "https://www.tokyoinsider.com",
		Language: "ja",
	}, origin, deps)}
}

// Episodes implements Provider. animeRef is the title path, e.g.
// "anime/S/Sousou_no_Frieren_(TV)".
func (t *TokyoInsider) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := t.document(ctx, t.abs("/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if doc.Find("#inner_page").Length() == 0 {
		return nil, fmt.Errorf("getting episodes: no title page: %w", media.ErrParse)
	}

	var eps []media.EpisodeRef
	doc.Find("div.episode a.download-link").Each(func(_ int, s *goquery.Selection) {
		token := strings.TrimPrefix(s.AttrOr("href", ""), "/")
		if !strings.Contains(token, "/episode/") || validRef("episode", token) != nil {
			return
		}
		eps = append(eps, media.EpisodeRef{
			Token:  token,
			Number: episodeNumber(s.Find("strong").Text()),
			Title:  strings.Join(strings.Fields(s.Text()), " "),
		})
	})
	return finishEpisodes(t.desc.ID, eps), nil
}

var tokyoVideoExts = map[string]bool{".mkv": true, ".mp4": true, ".avi": true}

// Servers implements Provider.
func (t *TokyoInsider) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	doc, err := t.document(ctx, t.abs("/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	var servers []media.ServerCandidate
	doc.Find("div.c_h2 a[href], div.c_h2b a[href]").Each(func(_ int, s *goquery.Selection) {
		href := t.abs(s.AttrOr("href", ""))
		if !tokyoVideoExts[strings.ToLower(path.Ext(href))] {
			return
		}
		name := strings.TrimSpace(s.Text())
		if name == "" {
			name = path.Base(href)
		}
		servers = append(servers, media.ServerCandidate{Name: name, Token: href, Audio: media.AudioSub})
	})
	return finishServers(ep, servers)
}

// Resolve implements Provider. The token already is the file.
func (t *TokyoInsider) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	media.ReportStage(ctx, media.StageExtracting)
	return direct(server, server.Token, t.desc.Origin+"/")
}
