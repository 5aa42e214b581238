package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"anistream/internal/config"
	"anistream/internal/extract"
	"anistream/internal/media"
)

// Generic implements Provider for sources declared in the config file that
// speak a small JSON protocol:
//
//	search   -> [{"ref": "...", "title": "...", "year": "..."}]
//	episodes -> [{"token": "...", "number": 1, "title": "..."}]
//	servers  -> [{"name": "...", "token": "...", "audio": "sub"}]
//	source   -> {"url": "..."} or {"link": "<embed page>"}, plus optional
//	            "subtitles": [{"label", "url"}] and "headers": {...}
type Generic struct {
	site
	paths config.GenericSource
}

// NewGeneric creates a provider from a config entry.
func NewGeneric(deps Deps, src config.GenericSource) *Generic {
	name := src.Name
	if name == "" {
		name = src.ID
	}
	return &Generic{
		site: newSite(media.SourceDescriptor{
			ID:       strings.ToLower(src.ID),
			Name:     name,
			Origin:   strings.TrimRight(src.Origin, "/"),
			Language: src.Language,
			Headers:  src.Headers,
		}, "", deps),
		paths: src,
	}
}

// endpoint fills a path template. Values are query-escaped.
func (g *Generic) endpoint(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", url.QueryEscape(v))
	}
	return g.abs(strings.NewReplacer(pairs...).Replace(tmpl))
}

// Search implements Searcher. Sources without a search path return an error.
func (g *Generic) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	if g.paths.Search == "" {
		return nil, fmt.Errorf("source %s does not support search", g.desc.ID)
	}
	var rows []struct {
		Ref   string `json:"ref"`
		Title string `json:"title"`
		Year  string `json:"year"`
	}
	if err := g.getJSON(ctx, g.endpoint(g.paths.Search, map[string]string{"query": query}), nil, &rows); err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []media.SearchResult
	for _, r := range rows {
		if r.Ref == "" {
			continue
		}
		results = append(results, media.SearchResult{Source: g.desc.ID, Ref: r.Ref, Title: r.Title, Year: r.Year})
	}
	return results, nil
}

// Episodes implements Provider.
func (g *Generic) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	var rows []struct {
		Token  string  `json:"token"`
		Number float64 `json:"number"`
		Title  string  `json:"title"`
	}
	if err := g.getJSON(ctx, g.endpoint(g.paths.Episodes, map[string]string{"ref": animeRef}), nil, &rows); err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}

	var eps []media.EpisodeRef
	for _, r := range rows {
		if r.Token == "" {
			continue
		}
		eps = append(eps, media.EpisodeRef{Token: r.Token, Number: r.Number, Title: r.Title})
	}
	return finishEpisodes(g.desc.ID, eps), nil
}

// Servers implements Provider.
func (g *Generic) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	var rows []struct {
		Name  string `json:"name"`
		Token string `json:"token"`
		Audio string `json:"audio"`
	}
	if err := g.getJSON(ctx, g.endpoint(g.paths.Servers, map[string]string{"token": ep.Token}), nil, &rows); err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	servers := make([]media.ServerCandidate, 0, len(rows))
	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = r.Token
		}
		servers = append(servers, media.ServerCandidate{Name: name, Token: r.Token, Audio: media.ParseAudio(r.Audio)})
	}
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (g *Generic) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	var src struct {
		URL       string            `json:"url"`
		Link      string            `json:"link"`
		Kind      string            `json:"kind"`
		Headers   map[string]string `json:"headers"`
		Subtitles []struct {
			Label string `json:"label"`
			URL   string `json:"url"`
		} `json:"subtitles"`
	}
	u := g.endpoint(g.paths.Source, map[string]string{"token": ep.Token, "server": server.Token})
	if err := g.getJSON(ctx, u, nil, &src); err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("getting source: %w", err)
	}
	media.ReportStage(ctx, media.StageExtracting)

	if src.URL == "" {
		return g.link(ctx, server, src.Link, g.desc.Origin+"/")
	}

	rm, err := direct(server, extract.Normalize(src.URL), "")
	if err != nil {
		return media.ResolvedMedia{}, err
	}
	switch media.Kind(strings.ToLower(src.Kind)) {
	case media.KindHLS, media.KindFile:
		rm.Kind = media.Kind(strings.ToLower(src.Kind))
	}
	if len(src.Headers) > 0 {
		rm.Headers = src.Headers
	}
	for _, s := range src.Subtitles {
		if s.URL != "" {
			rm.Subtitles = append(rm.Subtitles, media.SubtitleTrack{Label: s.Label, URL: g.abs(s.URL)})
		}
	}
	return rm, nil
}
