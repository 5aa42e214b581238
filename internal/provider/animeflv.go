package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/extract"
	"anistream/internal/httputil"
	"anistream/internal/media"
)

// AnimeFLV implements Provider for AnimeFLV, whose pages keep their data in
// inline script variables: anime_info, episodes and videos.
type AnimeFLV struct {
	site
}

// NewAnimeFLV creates an AnimeFLV provider.
func NewAnimeFLV(deps Deps, origin string) *AnimeFLV {
	return &AnimeFLV{site: newSite(media.SourceDescriptor{
		ID:       "animeflv",
		Name:     "AnimeFLV",
		Origin:   "https://www3.animeflv.net",
		Language: "es",
	}, origin, deps)}
}

// Search returns titles matching query.
func (a *AnimeFLV) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	doc, err := a.document(ctx, a.abs("/browse?q="+httputil.EncodeQuery(query)), nil)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []media.SearchResult
	doc.Find("ul.ListAnimes li article").Each(func(_ int, s *goquery.Selection) {
		href := s.Find(`a[href^="/anime/"]`).First().AttrOr("href", "")
		ref := strings.TrimPrefix(href, "/anime/")
		title := strings.TrimSpace(s.Find("h3.Title").Text())
		if ref == "" || title == "" {
			return
		}
		results = append(results, media.SearchResult{Source: a.desc.ID, Ref: ref, Title: title, URL: a.abs(href)})
	})
	return results, nil
}

// Episodes implements Provider. animeRef is the anime slug.
func (a *AnimeFLV) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	resp, err := a.get(ctx, a.abs("/anime/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	page := resp.String()

	// var episodes = [[12,3456],[11,3455],...];
	var rows [][]float64
	if err := extract.DecodeJSVar(page, "episodes", &rows); err != nil {
		return nil, fmt.Errorf("getting episodes: %w: %w", media.ErrParse, err)
	}
	// var anime_info = ["3971","Sousou no Frieren","sousou-no-frieren", ...];
	var info []string
	if err := extract.DecodeJSVar(page, "anime_info", &info); err != nil || len(info) < 3 {
		info = []string{"", animeRef, animeRef}
	}

	var eps []media.EpisodeRef
	for _, row := range rows {
		if len(row) < 1 || row[0] < 0 {
			continue
		}
		num := media.FormatNumber(row[0])
		eps = append(eps, media.EpisodeRef{
			Token:  info[2] + "-" + num,
			Number: row[0],
			Title:  info[1] + " " + num,
		})
	}
	return finishEpisodes(a.desc.ID, eps), nil
}

type flvVideo struct {
	Server string `json:"server"`
	Title  string `json:"title"`
	Code   string `json:"code"`
	URL    string `json:"url"`
}

// Servers implements Provider. Tokens are embed URLs.
func (a *AnimeFLV) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	resp, err := a.get(ctx, a.abs("/ver/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	// var videos = {"SUB":[{"server":"sw","title":"SW","code":"https://..."}],"LAT":[...]};
	var videos map[string][]flvVideo
	if err := extract.DecodeJSVar(resp.String(), "videos", &videos); err != nil {
		return nil, fmt.Errorf("getting servers: %w: %w", media.ErrParse, err)
	}

	langs := make([]string, 0, len(videos))
	for lang := range videos {
		langs = append(langs, lang)
	}
	slices.Sort(langs)

	var servers []media.ServerCandidate
	for _, lang := range langs {
		audio := media.AudioSub
		if lang == "LAT" {
			audio = media.AudioDub
		}
		for _, v := range videos[lang] {
			code := extract.Normalize(v.Code)
			if code == "" {
				code = extract.Normalize(v.URL)
			}
			name := v.Title
			if name == "" {
				name = v.Server
			}
			servers = append(servers, media.ServerCandidate{Name: name, Token: code, Audio: audio})
		}
	}
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (a *AnimeFLV) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	return a.embed(ctx, server, server.Token, a.desc.Origin+"/")
}
