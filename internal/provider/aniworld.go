package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// AniWorld implements Provider for AniWorld. Episodes are spread over season
// pages; each episode lists hosters per language behind /redirect/ links.
type AniWorld struct {
	site
}

// NewAniWorld creates an AniWorld provider.
func NewAniWorld(deps Deps, origin string) *AniWorld {
	return &AniWorld{site: newSite(media.SourceDescriptor{
		ID:       "aniworld",
		Name:     "AniWorld",
		Origin:   "https://aniworld.to",
		Language: "de",
	}, origin, deps)}
}

// aniworldAudio maps data-lang-key: 1 is German dub, 2 English sub, 3 German sub.
func aniworldAudio(key string) media.AudioTag {
	switch key {
	case "1":
		return media.AudioDub
	case "2", "3":
		return media.AudioSub
	default:
		return ""
	}
}

// Search returns titles matching query.
func (a *AniWorld) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	resp, err := a.postForm(ctx, a.abs("/ajax/search"), map[string]string{"keyword": query},
		map[string]string{"X-Requested-With": "XMLHttpRequest", "Referer": a.desc.Origin + "/"})
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var hits []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	}
	if err := decodeJSON(resp.Body, &hits); err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []media.SearchResult
	for _, h := range hits {
		ref, ok := strings.CutPrefix(h.Link, "/anime/stream/")
		if !ok || ref == "" || strings.Contains(ref, "/") {
			continue
		}
		// Titles carry <em> highlighting.
		title := h.Title
		if doc, err := parseHTML([]byte(h.Title)); err == nil {
			title = strings.TrimSpace(doc.Text())
		}
		results = append(results, media.SearchResult{Source: a.desc.ID, Ref: ref, Title: title, URL: a.abs(h.Link)})
	}
	return results, nil
}

// Episodes implements Provider. animeRef is the series slug; every season
// page is visited. Numbers restart per season, titles carry SxEy.
func (a *AniWorld) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	series := "/anime/stream/" + animeRef
	doc, err := a.document(ctx, a.abs(series), nil)
	if err != nil {
		return nil, fmt.Errorf("getting seasons: %w", err)
	}
	if doc.Find("#stream").Length() == 0 {
		return nil, fmt.Errorf("getting seasons: no stream navigation: %w", media.ErrParse)
	}

	var seasons []string
	doc.Find(`#stream ul li a[href*="/staffel-"]`).Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if strings.Contains(href, "/episode-") {
			return
		}
		seasons = append(seasons, href)
	})

	var (
		eps      []media.EpisodeRef
		loaded   int
		firstErr error
	)
	for _, href := range seasons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := a.document(ctx, a.abs(href), nil)
		if err != nil {
			a.Logger.Warn("skipping season", "season", href, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		loaded++
		season := episodeNumber(href[strings.LastIndex(href, "/staffel-"):])
		page.Find("table.seasonEpisodesList tbody tr").Each(func(_ int, row *goquery.Selection) {
			link := row.Find(`a[href*="/episode-"]`).First()
			token := strings.TrimPrefix(link.AttrOr("href", ""), "/")
			if validRef("episode", token) != nil {
				return
			}
			n := episodeNumber(row.Find(`meta[itemprop="episodeNumber"]`).AttrOr("content", ""))
			if n == 0 {
				n = episodeNumber(token[strings.LastIndex(token, "/episode-"):])
			}
			name := strings.TrimSpace(row.Find(".seasonEpisodeTitle strong").Text())
			eps = append(eps, media.EpisodeRef{
				Token:  token,
				Number: n,
				Title:  strings.TrimSpace(fmt.Sprintf("S%sE%s %s", media.FormatNumber(season), media.FormatNumber(n), name)),
			})
		})
	}
	if loaded == 0 && firstErr != nil {
		return nil, fmt.Errorf("getting season: %w", firstErr)
	}
	// Season order is page order; sorting by number would interleave seasons.
	return uniqueEpisodes(a.desc.ID, eps), nil
}

// Servers implements Provider.
func (a *AniWorld) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	var servers []media.ServerCandidate
	doc.Find(".hosterSiteVideo ul li[data-link-target]").Each(func(_ int, s *goquery.Selection) {
		target := strings.TrimSpace(s.AttrOr("data-link-target", ""))
		if !strings.HasPrefix(target, "/redirect/") {
			return
		}
		servers = append(servers, media.ServerCandidate{
			Name:  strings.TrimSpace(s.Find("h4").Text()),
			Token: target,
			Audio: aniworldAudio(s.AttrOr("data-lang-key", "")),
		})
	})
	return finishServers(ep, servers)
}

// Resolve implements Provider. The redirect lands on the hoster's embed page.
func (a *AniWorld) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	if err := validRef("server", server.Token); err != nil {
		return media.ResolvedMedia{}, err
	}
	resp, err := a.get(ctx, a.abs(server.Token), map[string]string{"Referer": a.abs("/" + ep.Token)})
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("following redirect: %w", err)
	}
	if httputil.Host(resp.URL) == httputil.Host(a.desc.Origin) {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: redirect did not leave the site: %w", server.Name, media.ErrPatternNotFound)
	}
	return a.embed(ctx, server, resp.URL, a.desc.Origin+"/")
}
