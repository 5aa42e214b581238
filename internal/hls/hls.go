// Package hls reads HLS master playlists into quality variants.
package hls

import (
	"bufio"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"anistream/internal/media"
)

const streamInfTag = "#EXT-X-STREAM-INF:"

// standardHeights are the labels a RESOLUTION attribute snaps to.
var standardHeights = []int{1080, 720, 480, 360}

// Parse extracts the variant streams of a master playlist. URIs are resolved
// against baseURL. Variants are sorted by rank, highest first; variants that
// have no label, no URI, or repeat an earlier label are dropped. A media
// playlist (no #EXT-X-STREAM-INF) yields an empty slice.
func Parse(manifest, baseURL string) ([]media.QualityVariant, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}

	var (
		variants []media.QualityVariant
		seen     = make(map[string]bool)
		pending  *media.QualityVariant
		hasLabel bool
	)

	scanner := bufio.NewScanner(strings.NewReader(manifest))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, streamInfTag) {
			attrs := parseAttributes(strings.TrimPrefix(line, streamInfTag))
			label := labelFor(attrs)
			pending = &media.QualityVariant{Label: label, Rank: media.ParseRank(label)}
			hasLabel = label != ""
			continue
		}

		if strings.HasPrefix(line, "#") || pending == nil {
			continue
		}

		// First URI line after the tag belongs to it.
		v := *pending
		pending = nil
		if !hasLabel || seen[strings.ToLower(v.Label)] {
			continue
		}
		ref, err := url.Parse(line)
		if err != nil {
			continue
		}
		v.URL = base.ResolveReference(ref).String()
		seen[strings.ToLower(v.Label)] = true
		variants = append(variants, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Rank > variants[j].Rank
	})

	return variants, nil
}

// IsMaster reports whether manifest lists variant streams.
func IsMaster(manifest string) bool {
	return strings.Contains(manifest, streamInfTag)
}

func labelFor(attrs map[string]string) string {
	if res := attrs["RESOLUTION"]; res != "" {
		if _, h, ok := strings.Cut(strings.ToLower(res), "x"); ok {
			if height, err := strconv.Atoi(h); err == nil && height > 0 {
				return strconv.Itoa(SnapHeight(height)) + "p"
			}
		}
	}
	return strings.TrimSpace(attrs["NAME"])
}

// SnapHeight maps a pixel height to the nearest standard label height.
// Ties go to the higher label.
func SnapHeight(height int) int {
	best := standardHeights[0]
	bestDist := abs(height - best)
	for _, h := range standardHeights[1:] {
		if d := abs(height - h); d < bestDist {
			best, bestDist = h, d
		}
	}
	return best
}

// parseAttributes splits an attribute list, honouring quoted commas.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inKey, inQuote := true, false

	flush := func() {
		k := strings.ToUpper(strings.TrimSpace(key.String()))
		if k != "" {
			attrs[k] = strings.Trim(strings.TrimSpace(val.String()), `"`)
		}
		key.Reset()
		val.Reset()
		inKey = true
	}

	for _, r := range s {
		switch {
		case inKey && r == '=':
			inKey = false
		case inKey && r == ',':
			flush()
		case inKey:
			key.WriteRune(r)
		case r == '"':
			inQuote = !inQuote
			val.WriteRune(r)
		case r == ',' && !inQuote:
			flush()
		default:
			val.WriteRune(r)
		}
	}
	flush()
	return attrs
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
