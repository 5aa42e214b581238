package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"anistream/internal/media"
)

// MegaCloud hides a per-request client key in the embed page using one of
// several rotating tricks. Each pattern captures the key (or its parts).
var clientKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<meta name="_gg_fb" content="([a-zA-Z0-9]+)">`),
	regexp.MustCompile(`<!--\s+_is_th:([0-9a-zA-Z]+)\s+-->`),
	regexp.MustCompile(`window\._lk_db\s*=\s*\{([^}]*)\}`),
	regexp.MustCompile(`<div\s+data-dpi="([0-9a-zA-Z]+)"`),
	regexp.MustCompile(`<script nonce="([0-9a-zA-Z]+)">`),
	regexp.MustCompile("window\\._xy_ws\\s*=\\s*['\"`]([0-9a-zA-Z]+)['\"`]"),
}

var (
	lkDbPart       = regexp.MustCompile(`([xyz]):\s*["']([a-zA-Z0-9]+)["']`)
	embedPrefixRe  = regexp.MustCompile(`^embed-\d+$`)
	megacloudHosts = []string{"megacloud", "rapid-cloud", "rabbitstream", "videostr", "streameeeeee"}
)

// extractClientKey finds the client key in a MegaCloud embed page.
func extractClientKey(page string) (string, error) {
	for i, re := range clientKeyPatterns {
		m := re.FindStringSubmatch(page)
		if len(m) < 2 {
			continue
		}
		if i != 2 {
			return m[1], nil
		}
		// {x: "..", y: "..", z: ".."} in any order, joined x+y+z.
		parts := map[string]string{}
		for _, p := range lkDbPart.FindAllStringSubmatch(m[1], -1) {
			parts[p[1]] = p[2]
		}
		if parts["x"] == "" || parts["y"] == "" || parts["z"] == "" {
			return "", fmt.Errorf("incomplete _lk_db key: %w", media.ErrPatternNotFound)
		}
		return parts["x"] + parts["y"] + parts["z"], nil
	}
	return "", fmt.Errorf("client key: %w", media.ErrPatternNotFound)
}

// parseEmbedURL splits a MegaCloud embed URL into its origin, embed prefix
// and source id, e.g. https://megacloud.blog/embed-2/v3/e-1/XyZ?k=1 ->
// ("https://megacloud.blog", "embed-2", "XyZ").
func parseEmbedURL(embedURL string) (origin, embedPrefix, sourceID string, err error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing URL: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")

	embedPrefix = parts[0]
	if !embedPrefixRe.MatchString(embedPrefix) {
		embedPrefix = "embed-2"
	}

	sourceID = parts[len(parts)-1]
	if sourceID == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("could not extract source ID from %q: %w", embedURL, media.ErrParse)
	}

	return u.Scheme + "://" + u.Host, embedPrefix, sourceID, nil
}

type megacloudSources struct {
	Sources   json.RawMessage `json:"sources"`
	Tracks    []megacloudTrack `json:"tracks"`
	Encrypted bool            `json:"encrypted"`
}

type megacloudTrack struct {
	File  string `json:"file"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

type megacloudSource struct {
	File string `json:"file"`
	Type string `json:"type"`
}

// resolveMegaCloud loads the embed page for its client key, then asks the
// getSources endpoint for the stream and caption tracks.
func resolveMegaCloud(ctx context.Context, e *Engine, embedURL, referer string) (Embedded, error) {
	origin, prefix, id, err := parseEmbedURL(embedURL)
	if err != nil {
		return Embedded{}, err
	}

	pageURL := fmt.Sprintf("%s/%s/v3/e-1/%s?z=", origin, prefix, url.PathEscape(id))
	headers := map[string]string{}
	if referer != "" {
		headers["Referer"] = referer
	}
	page, err := e.client.GetString(ctx, pageURL, headers)
	if err != nil {
		return Embedded{}, fmt.Errorf("fetching megacloud embed: %w", err)
	}

	media.ReportStage(ctx, media.StageExtracting)
	key, err := extractClientKey(page)
	if err != nil {
		return Embedded{}, fmt.Errorf("megacloud: %w", err)
	}

	sourcesURL := fmt.Sprintf("%s/%s/v3/e-1/getSources?id=%s&_k=%s",
		origin, prefix, url.QueryEscape(id), url.QueryEscape(key))

	var resp megacloudSources
	err = e.client.GetJSON(ctx, sourcesURL, map[string]string{
		"Referer":          embedURL,
		"X-Requested-With": "XMLHttpRequest",
	}, &resp)
	if err != nil {
		return Embedded{}, fmt.Errorf("fetching megacloud sources: %w", err)
	}

	raw := []byte(resp.Sources)
	if resp.Encrypted {
		var payload string
		if err := json.Unmarshal(resp.Sources, &payload); err != nil {
			return Embedded{}, fmt.Errorf("parsing megacloud payload: %w", media.ErrParse)
		}
		megaKey, err := e.megaKey.get(ctx, e)
		if err != nil {
			return Embedded{}, err
		}
		plain, err := decryptSources(payload, key, megaKey)
		if err != nil {
			return Embedded{}, err
		}
		raw = []byte(plain)
	}

	var sources []megacloudSource
	if err := json.Unmarshal(raw, &sources); err != nil {
		return Embedded{}, fmt.Errorf("parsing megacloud sources: %w", media.ErrParse)
	}

	var file string
	for _, s := range sources {
		if s.File != "" {
			file = s.File
			break
		}
	}
	if file == "" {
		return Embedded{}, fmt.Errorf("megacloud: empty source list: %w", media.ErrPatternNotFound)
	}

	var subs []media.SubtitleTrack
	for _, t := range resp.Tracks {
		if (t.Kind != "captions" && t.Kind != "subtitles") || t.File == "" {
			continue
		}
		subs = append(subs, media.SubtitleTrack{Label: t.Label, URL: t.File})
	}

	return Embedded{
		URL:       file,
		Kind:      media.KindHLS,
		Subtitles: subs,
		Headers:   map[string]string{"Referer": origin + "/"},
	}, nil
}
