package provider

import (
	"encoding/base64"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"anistream/internal/extract"
	"anistream/internal/httputil"
	"anistream/internal/media"
)

// Helpers for WordPress anime themes (AniVibe, AnimeBalkan): an .eplister
// episode list and a select.mirror whose options are base64 iframe snippets.

// hasEpisodeLister reports whether doc has the theme's episode list.
func hasEpisodeLister(doc *goquery.Document) bool {
	return doc.Find(".eplister").Length() > 0
}

// parseEpisodeLister reads the .eplister rows. Tokens are paths relative
// to origin.
func parseEpisodeLister(doc *goquery.Document, origin string) []media.EpisodeRef {
	var eps []media.EpisodeRef
	doc.Find(".eplister li a[href]").Each(func(_ int, s *goquery.Selection) {
		href := httputil.Resolve(origin+"/", s.AttrOr("href", ""))
		if httputil.Host(href) != httputil.Host(origin) {
			return
		}
		token := strings.Trim(strings.TrimPrefix(href, origin), "/")
		if httputil.ValidateRef(token) != nil {
			return
		}
		title := strings.TrimSpace(s.Find(".epl-title").Text())
		eps = append(eps, media.EpisodeRef{
			Token:  token,
			Number: episodeNumber(s.Find(".epl-num").Text()),
			Title:  title,
		})
	})
	return eps
}

// parseMirrors decodes select.mirror options into embed URLs. Options that
// aren't base64 iframe snippets are skipped.
func parseMirrors(doc *goquery.Document, audio media.AudioTag) []media.ServerCandidate {
	var servers []media.ServerCandidate
	doc.Find("select.mirror option").Each(func(_ int, s *goquery.Selection) {
		value := strings.TrimSpace(s.AttrOr("value", ""))
		if value == "" {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return
		}
		snippet, err := parseHTML(raw)
		if err != nil {
			return
		}
		src := extract.Normalize(snippet.Find("iframe").AttrOr("src", ""))
		if src == "" {
			return
		}
		servers = append(servers, media.ServerCandidate{
			Name:  strings.TrimSpace(s.Text()),
			Token: src,
			Audio: audio,
		})
	})
	return servers
}
