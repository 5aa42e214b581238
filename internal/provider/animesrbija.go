package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// AnimeSrbija implements Provider for AnimeSRBIJA, a Next.js site: every
// page embeds its data as __NEXT_DATA__ JSON.
type AnimeSrbija struct {
	site
}

// NewAnimeSrbija creates an AnimeSRBIJA provider.
func NewAnimeSrbija(deps Deps, origin string) *AnimeSrbija {
	return &AnimeSrbija{site: newSite(media.SourceDescriptor{
		ID:       "animesrbija",
		Name:     "AnimeSRBIJA",
		Origin:   "https://www.animesrbija.com",
		Language: "sr",
	}, origin, deps)}
}

// nextData fetches a page and decodes props.pageProps.data into v.
func (a *AnimeSrbija) nextData(ctx context.Context, url string, v any) error {
	doc, err := a.document(ctx, url, nil)
	if err != nil {
		return err
	}
	script := doc.Find("script#__NEXT_DATA__")
	if script.Length() == 0 {
		return fmt.Errorf("%s: no page data: %w", url, media.ErrParse)
	}
	var page struct {
		Props struct {
			PageProps struct {
				Data json.RawMessage `json:"data"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(script.Text()), &page); err != nil {
		return fmt.Errorf("%s: decoding page data: %w: %w", url, media.ErrParse, err)
	}
	if len(page.Props.PageProps.Data) == 0 {
		return fmt.Errorf("%s: page data is empty: %w", url, media.ErrParse)
	}
	if err := json.Unmarshal(page.Props.PageProps.Data, v); err != nil {
		return fmt.Errorf("%s: decoding page data: %w: %w", url, media.ErrParse, err)
	}
	return nil
}

// Episodes implements Provider. animeRef is the anime slug.
func (a *AnimeSrbija) Episodes(ctx context.Context, animeRef string) ([]media.EpisodeRef, error) {
	if err := validRef("anime ref", animeRef); err != nil {
		return nil, err
	}
	var data struct {
		Anime struct {
			Title    string `json:"title"`
			Episodes []struct {
				Slug   string  `json:"slug"`
				Number float64 `json:"number"`
				Title  string  `json:"title"`
			} `json:"episodes"`
		} `json:"anime"`
	}
	if err := a.nextData(ctx, a.abs("/anime/"+animeRef), &data); err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}

	var eps []media.EpisodeRef
	for _, e := range data.Anime.Episodes {
		if validRef("episode", e.Slug) != nil {
			continue
		}
		title := e.Title
		if title == "" {
			title = fmt.Sprintf("%s %s", data.Anime.Title, media.FormatNumber(e.Number))
		}
		eps = append(eps, media.EpisodeRef{Token: e.Slug, Number: e.Number, Title: title})
	}
	return finishEpisodes(a.desc.ID, eps), nil
}

// Servers implements Provider. Player links are the episode's player1..N
// fields; a leading "!" marks the site's preferred player.
func (a *AnimeSrbija) Servers(ctx context.Context, ep media.EpisodeRef) ([]media.ServerCandidate, error) {
	if err := validRef("episode", ep.Token); err != nil {
		return nil, err
	}
	var data struct {
		Episode map[string]any `json:"episode"`
	}
	if err := a.nextData(ctx, a.abs("/epizoda/"+ep.Token), &data); err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}

	keys := make([]string, 0, len(data.Episode))
	for k := range data.Episode {
		if strings.HasPrefix(k, "player") {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var servers []media.ServerCandidate
	for _, k := range keys {
		link, _ := data.Episode[k].(string)
		link = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(link), "!"))
		if link == "" {
			continue
		}
		servers = append(servers, media.ServerCandidate{Name: httputil.Host(link), Token: link, Audio: media.AudioSub})
	}
	return finishServers(ep, servers)
}

// Resolve implements Provider.
func (a *AnimeSrbija) Resolve(ctx context.Context, ep media.EpisodeRef, server media.ServerCandidate) (media.ResolvedMedia, error) {
	return a.embed(ctx, server, server.Token, a.desc.Origin+"/")
}
