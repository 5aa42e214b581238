package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/extract"
	"anistream/internal/httputil"
	"anistream/internal/media"
)

// Anime3rb implements Provider for Anime3rb. Episode pages point at a vid3rb
// player whose qualities are a `var videos = [...]` literal; when the static
// page lacks it the player is rendered.
type Anime3rb struct {
	site
}

// NewAnime3rb creates an Anime3rb provider.
func NewAnime3rb(deps Deps, origin string) *Anime3rb {
	return &Anime3rb{site: newSite(media.SourceDescriptor{
		ID:           "anime3rb",
		Name:         "Anime3rb",
		Origin:       "https://anime3rb.com",
		Language:     "ar",
		UsesRenderer: true,
	}, origin, deps)}
}

// Search returns titles matching query.
func (a *Anime3rb) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	doc, err := a.document(ctx, a.abs("/search?q="+httputil.EncodeQuery(query)), nil)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	var results []media.SearchResult
	doc.Find(".search-results a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		parts := strings.Split(strings.TrimRight(href, "/"), "/")
		ref := parts[len(parts)-1]
		title := strings.TrimSpace(s.Find("h4").Text())
		if ref == "" || title == "" {
			return
		}
		results = append(results, media.SearchResult{Source: a.desc.ID, Ref: ref, Title: title, URL: a.abs(href)})
	})
	return results, nil
}

// Episodes implements Provider. animeRef is the title slug.
func (a *Anime3rb) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	doc, err := a.document(ctx, a.abs("/titles/"+animeRef), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	if doc.Find("h1").Length() == 0 {
		return nil, fmt.Errorf("getting episodes: not a title page: %w", media.ErrParse)
	}
	title := strings.TrimSpace(doc.Find("h1 span").First().Text())

	prefix := "/episode/" + animeRef + "/"
	var eps []media.EpisodeRef
	doc.Find(`a[href*="/episode/"]`).Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		i := strings.Index(href, prefix)
		if i < 0 {
			return
		}
		num := strings.Trim(href[i+len(prefix):], "/")
		if httputil.ValidateNumericID(num) != nil {
			return
		}
		n := episodeNumber(num)
		eps = append(eps, media.EpisodeRef{
			Token:  animeRef + "/" + num,
			Number: n,
			Title:  strings.TrimSpace(title + " " + num),
		})
	})
	return finishEpisodes(a.desc.ID, eps), nil
}

// Servers implements Provider. The only server is the vid3rb player.
func (a *Anime3rb) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	resp, err := a.get(ctx, a.abs("/episode/"+ep.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	player, err := a.Engine.Extract(resp.String(), "anime3rb.com")
	if err != nil && !errors.Is(err, media.ErrPatternNotFound) {
		return nil, err
	}
	return finishServers(ep, []media.ServerCandidate{{Name: "vid3rb", Token: player, Audio: media.AudioSub}})
}

type anime3rbVideo struct {
	Src   string `json:"src"`
	Label string `json:"label"`
	Res   any    `json:"res"`
}

func anime3rbVariants(page string) ([]media.QualityVariant, error) {
	var videos []anime3rbVideo
	if err := extract.DecodeJSVar(page, "videos", &videos); err != nil {
		return nil, err
	}
	var vs []media.QualityVariant
	for _, v := range videos {
		label := strings.TrimSpace(v.Label)
		if label == "" && v.Res != nil {
			label = fmt.Sprint(v.Res) + "p"
		}
		vs = append(vs, media.QualityVariant{Label: label, Rank: media.ParseRank(label), URL: extract.Normalize(v.Src)})
	}
	vs = sortVariants(vs)
	if len(vs) == 0 {
		return nil, fmt.Errorf("videos literal is empty: %w", media.ErrPatternNotFound)
	}
	return vs, nil
}

// Resolve implements Provider.
func (a *Anime3rb) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	player := extract.Normalize(server.Token)
	resp, err := a.get(ctx, player, map[string]string{"Referer": a.desc.Origin + "/"})
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("getting player: %w", err)
	}
	media.ReportStage(ctx, media.StageExtracting)

	variants, err := anime3rbVariants(resp.String())
	if errors.Is(err, media.ErrPatternNotFound) && a.Renderer != nil {
		a.Logger.Debug("videos literal missing, rendering player", "url", player)
		variants, err = renderUntil(ctx, &a.site, player, anime3rbVariants)
	}
	if err != nil {
		return media.ResolvedMedia{}, fmt.Errorf("server %s: %w", server.Name, err)
	}

	rm, err := direct(server, variants[0].URL, httputil.Origin(player)+"/")
	if err != nil {
		return media.ResolvedMedia{}, err
	}
	rm.Variants = variants
	return rm, nil
}
