package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// Anilibria implements Provider for the Anilibria JSON API. Every episode
// has HLS playlists in up to three qualities on the API's media host.
type Anilibria struct {
	site
}

// NewAnilibria creates an Anilibria provider.
func NewAnilibria(deps Deps, origin string) *Anilibria {
	return &Anilibria{site: newSite(media.SourceDescriptor{
		ID:       "anilibria",
		Name:     "Anilibria",
		Origin:   "https://api.anilibria.tv",
		Language: "ru",
	}, origin, deps)}
}

type libriaHLS struct {
	FHD string `json:"fhd"`
	HD  string `json:"hd"`
	SD  string `json:"sd"`
}

type libriaEpisode struct {
	Episode float64   `json:"episode"`
	Name    string    `json:"name"`
	HLS     libriaHLS `json:"hls"`
}

type libriaTitle struct {
	Code  string `json:"code"`
	Names struct {
		RU string `json:"ru"`
		EN string `json:"en"`
	} `json:"names"`
	Season struct {
		Year int `json:"year"`
	} `json:"season"`
	Player *struct {
		Host string                   `json:"host"`
		List map[string]libriaEpisode `json:"list"`
	} `json:"player"`
}

func (t libriaTitle) name() string {
	if t.Names.EN != "" {
		return t.Names.EN
	}
	return t.Names.RU
}

// Search returns titles matching query.
func (l *Anilibria) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	var resp struct {
		List []libriaTitle `json:"list"`
	}
	u := l.abs("/v3/title/search?filter=code,names,season&search=" + httputil.EncodeQuery(query))
	if err := l.getJSON(ctx, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []media.SearchResult
	for _, t := range resp.List {
		if t.Code == "" {
			continue
		}
		year := ""
		if t.Season.Year > 0 {
			year = strconv.Itoa(t.Season.Year)
		}
		results = append(results, media.SearchResult{Source: l.desc.ID, Ref: t.Code, Title: t.name(), Year: year})
	}
	return results, nil
}

func (l *Anilibria) title(ctx context.Context, code string) (libriaTitle, error) {
	var t libriaTitle
	u := l.abs("/v3/title?filter=code,names,player&code=" + url.QueryEscape(code))
	if err := l.getJSON(ctx, u, nil, &t); err != nil {
		return t, err
	}
	if t.Player == nil {
		return t, fmt.Errorf("title %s has no player: %w", code, media.ErrParse)
	}
	return t, nil
}

// Episodes implements Provider. animeRef is the title code. Tokens are
// "<code>/<episode>".
func (l *Anilibria) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	t, err := l.title(ctx, animeRef)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}

	var eps []media.EpisodeRef
	for key, e := range t.Player.List {
		n := e.Episode
		if n == 0 {
			n = episodeNumber(key)
		}
		title := e.Name
		if title == "" {
			title = fmt.Sprintf("%s %s", t.name(), media.FormatNumber(n))
		}
		eps = append(eps, media.EpisodeRef{Token: animeRef + "/" + media.FormatNumber(n), Number: n, Title: title})
	}
	return finishEpisodes(l.desc.ID, eps), nil
}

// Servers implements Provider. The API is the only server.
func (l *Anilibria) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	return finishServers(ep, []media.ServerCandidate{{Name: "Anilibria", Token: "hls", Audio: media.AudioDub}})
}

// Resolve implements Provider. The variants are the episode's HLS qualities,
// so no master playlist needs fetching.
func (l *Anilibria) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	i := strings.LastIndex(ep.Token, "/")
	if i <= 0 {
		return media.ResolvedMedia{}, fmt.Errorf("invalid episode token %q", ep.Token)
	}
	code, num := ep.Token[:i], ep.Token[i+1:]

	t, err := l.title(ctx, code)
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("getting title: %w", err)
	}
	media.ReportStage(ctx, media.StageExtracting)

	var e *libriaEpisode
	for key, cand := range t.Player.List {
		if key == num || media.FormatNumber(cand.Episode) == num {
			e = &cand
			break
		}
	}
	if e == nil {
		return media.ResolvedMedia{}, fmt.Errorf("episode %s not in player list: %w", num, media.ErrPatternNotFound)
	}

	host := "https://" + strings.TrimPrefix(strings.TrimPrefix(t.Player.Host, "https://"), "http://")
	var variants []media.QualityVariant
	for _, q := range []struct{ label, path string }{{"1080p", e.HLS.FHD}, {"720p", e.HLS.HD}, {"480p", e.HLS.SD}} {
		if q.path == "" {
			continue
		}
		variants = append(variants, media.QualityVariant{Label: q.label, Rank: media.ParseRank(q.label), URL: httputil.Resolve(host+"/", q.path)})
	}
	variants = sortVariants(variants)
	if len(variants) == 0 {
		return media.ResolvedMedia{}, fmt.Errorf("episode %s has no playlists: %w", num, media.ErrPatternNotFound)
	}

	rm, err := direct(server, variants[0].URL, "")
	if err != nil {
		return media.ResolvedMedia{}, err
	}
	rm.Kind = media.KindHLS
	rm.Variants = variants
	return rm, nil
}
