package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

const gogoAjaxOrigin = "https://ajax.gogocdn.net"

// GoGoAnime implements Provider for GoGoAnime. The title page carries a
// movie id used by a separate ajax host to list episodes; episode pages list
// embed mirrors in data-video attributes.
type GoGoAnime struct {
	site
	ajaxOrigin string
}

// NewGoGoAnime creates a GoGoAnime provider. When origin is overridden the
// ajax endpoints are expected on the same origin.
func NewGoGoAnime(deps Deps, origin string) *GoGoAnime {
	g := &GoGoAnime{
		site: newSite(media.SourceDescriptor{
			ID:       "gogoanime",
			Name:     "GoGoAnime",
			Origin:   "https://anitaku.pe",
			Language: "en",
		}, origin, deps),
		ajaxOrigin: gogoAjaxOrigin,
	}
	if origin != "" {
		g.ajaxOrigin = g.desc.Origin
	}
	return g
}

// Search returns titles matching query.
func (g *GoGoAnime) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	doc, err := g.document(ctx, g.abs("/search.html?keyword="+httputil.EncodeQuery(query)), nil)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []media.SearchResult
	doc.Find("ul.items li").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("p.name a")
		href := link.AttrOr("href", "")
		ref := strings.TrimPrefix(href, "/category/")
		if ref == href || ref == "" {
			return
		}
		year := ""
		if n := episodeNumber(s.Find("p.released").Text()); n >= 1900 {
			year = media.FormatNumber(n)
		}
		results = append(results, media.SearchResult{
			Source: g.desc.ID,
			Ref:    ref,
			Title:  strings.TrimSpace(link.Text()),
			Year:   year,
			URL:    g.abs(href),
		})
	})
	return results, nil
}

// Episodes implements Provider. animeRef is the category slug.
func (g *GoGoAnime) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}

	page, err := g.document(ctx, g.abs("/category/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting title page: %w", err)
	}
	movieID := strings.TrimSpace(page.Find("input#movie_id").AttrOr("value", ""))
	if httputil.ValidateNumericID(movieID) != nil {
		return nil, fmt.Errorf("title page has no movie id: %w", media.ErrParse)
	}

	listURL := fmt.Sprintf("%s/ajax/load-list-episode?ep_start=0&ep_end=9999&id=%s&default_ep=0&alias=%s",
		g.ajaxOrigin, movieID, animeRef)
	doc, err := g.document(ctx, listURL, map[string]string{"Referer": g.desc.Origin + "/"})
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if doc.Find("#episode_related").Length() == 0 {
		return nil, fmt.Errorf("getting episodes: no episode list: %w", media.ErrParse)
	}

	var eps []media.EpisodeRef
	doc.Find("#episode_related li a").Each(func(_ int, s *goquery.Selection) {
		token := strings.TrimPrefix(strings.TrimSpace(s.AttrOr("href", "")), "/")
		if validRef("episode", token) != nil {
			return
		}
		name := strings.TrimSpace(s.Find(".name").Text())
		eps = append(eps, media.EpisodeRef{
			Token:  token,
			Number: episodeNumber(name),
			Title:  name,
		})
	})
	return finishEpisodes(g.desc.ID, eps), nil
}

// Servers implements Provider. Each mirror's token is its embed URL.
func (g *GoGoAnime) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}

	doc, err := g.document(ctx, g.abs("/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	audio := media.AudioSub
	if strings.Contains(ep.Token, "-dub-") {
		audio = media.AudioDub
	}

	var servers []media.ServerCandidate
	doc.Find(".anime_muti_link li a[data-video]").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Clone().Children().Remove().End().Text())
		if name == "" {
			name = s.Parent().AttrOr("class", "")
		}
		servers = append(servers, media.ServerCandidate{
			Name:  name,
			Token: strings.TrimSpace(s.AttrOr("data-video", "")),
			Audio: audio,
		})
	})
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (g *GoGoAnime) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	return g.embed(ctx, server, server.Token, g.desc.Origin+"/")
}
