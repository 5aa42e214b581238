package provider

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// HiAnime implements Provider for HiAnime (aniwatch). Lists come from ajax
// endpoints returning JSON-wrapped HTML; sources point at MegaCloud embeds.
type HiAnime struct {
	site
}

// NewHiAnime creates a HiAnime provider. An empty origin uses the public site.
func NewHiAnime(deps Deps, origin string) *HiAnime {
	return &HiAnime{site: newSite(media.SourceDescriptor{
		ID:       "hianime",
		Name:     "HiAnime",
		Origin:   "https://hianime.to",
		Language: "en",
	}, origin, deps)}
}

var hianimeIDRe = regexp.MustCompile(`-(\d+)$`)

type ajaxHTML struct {
	Status bool    `json:"status"`
	HTML   *string `json:"html"`
}

// ajax fetches an endpoint answering {"html": "..."} and parses the HTML.
func (h *HiAnime) ajax(ctx context.Context, url, referer string) (*goquery.Document, error) {
	var resp ajaxHTML
	err := h.getJSON(ctx, url, map[string]string{
		"Referer":          referer,
		"X-Requested-With": "XMLHttpRequest",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.HTML == nil {
		return nil, fmt.Errorf("%s: response has no html: %w", url, media.ErrParse)
	}
	return parseHTML([]byte(*resp.HTML))
}

func (h *HiAnime) watchURL(token string) string {
	return h.desc.Origin + "/watch/" + token
}

// Search returns titles matching query.
func (h *HiAnime) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	doc, err := h.document(ctx, h.abs("/search?keyword="+httputil.EncodeQuery(query)), nil)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []media.SearchResult
	doc.Find(".flw-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".film-name a")
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		ref := strings.TrimPrefix(strings.SplitN(href, "?", 2)[0], "/")
		title := strings.TrimSpace(link.Text())
		if ref == "" || title == "" {
			return
		}
		results = append(results, media.SearchResult{
			Source: h.desc.ID,
			Ref:    ref,
			Title:  title,
			URL:    h.abs(href),
		})
	})
	return results, nil
}

// Episodes implements Provider. animeRef is the title slug, e.g. "frieren-18542".
func (h *HiAnime) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	m := hianimeIDRe.FindStringSubmatch(animeRef)
	if m == nil {
		return nil, fmt.Errorf("cannot extract numeric id from %q: %w", animeRef, media.ErrParse)
	}

	doc, err := h.ajax(ctx, h.abs("/ajax/v2/episode/list/"+m[1]), h.watchURL(animeRef))
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if doc.Find(".ss-list").Length() == 0 {
		return nil, fmt.Errorf("getting episodes: no episode list: %w", media.ErrParse)
	}

	var eps []media.EpisodeRef
	doc.Find("a.ep-item").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("data-id")
		if !ok || httputil.ValidateNumericID(id) != nil {
			return
		}
		eps = append(eps, media.EpisodeRef{
			Token:  animeRef + "?ep=" + id,
			Number: episodeNumber(s.AttrOr("data-number", "")),
			Title:  strings.TrimSpace(s.AttrOr("title", "")),
		})
	})
	return finishEpisodes(h.desc.ID, eps), nil
}

func hianimeEpisodeID(token string) (string, error) {
	u, err := url.Parse(token)
	if err != nil {
		return "", fmt.Errorf("invalid episode token %q: %w", token, err)
	}
	id := u.Query().Get("ep")
	if err := httputil.ValidateNumericID(id); err != nil {
		return "", fmt.Errorf("invalid episode token %q: %w", token, err)
	}
	return id, nil
}

// Servers implements Provider.
func (h *HiAnime) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	id, err := hianimeEpisodeID(ep.Token)
	if err != nil {
		return nil, err
	}

	doc, err := h.ajax(ctx, h.abs("/ajax/v2/episode/servers?episodeId="+id), h.watchURL(ep.Token))
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	var servers []media.ServerCandidate
	doc.Find(".server-item").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("data-id")
		if !ok || httputil.ValidateNumericID(id) != nil {
			return
		}
		servers = append(servers, media.ServerCandidate{
			Name:  strings.TrimSpace(s.Find("a").Text()),
			Token: id,
			Audio: media.ParseAudio(s.AttrOr("data-type", "")),
		})
	})
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (h *HiAnime) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	if err := httputil.ValidateNumericID(server.Token); err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("invalid server id: %w", err)
	}

	// {"type":"iframe","link":"https://megacloud.blog/embed-2/v3/e-1/...","server":4}
	var src struct {
		Type string `json:"type"`
		Link string `json:"link"`
	}
	err := h.getJSON(ctx, h.abs("/ajax/v2/episode/sources?id="+server.Token), map[string]string{
		"Referer":          h.watchURL(ep.Token),
		"X-Requested-With": "XMLHttpRequest",
	}, &src)
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("getting sources: %w", err)
	}
	media.ReportStage(ctx, media.StageExtracting)

	return h.link(ctx, server, src.Link, h.desc.Origin+"/")
}
