// Package media defines the types shared by every stage of source resolution.
package media

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

// SourceDescriptor describes one integrated site. Descriptors are built at
// startup and never mutated.
type SourceDescriptor struct {
	ID           string            // Stable lookup key, e.g. "hianime"
	Name         string            // Display name
	Origin       string            // Base URL, e.g. "https://hianime.to"
	Language     string            // Primary audio/subtitle language of the site
	Headers      map[string]string // Extra headers the site expects on every request
	UsesRenderer bool              // Needs the rendering surrogate for some pages
}

// EpisodeRef identifies one episode on one source. Token is opaque outside
// the owning adapter.
type EpisodeRef struct {
	Source string
	Token  string
	Number float64
	Title  string
}

// AudioTag marks the audio track of a server candidate.
type AudioTag string

const (
	AudioSub AudioTag = "sub"
	AudioDub AudioTag = "dub"
	AudioRaw AudioTag = "raw"
)

// ParseAudio normalizes a user supplied audio preference.
func ParseAudio(s string) AudioTag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sub", "subbed", "softsub", "hardsub":
		return AudioSub
	case "dub", "dubbed":
		return AudioDub
	case "raw":
		return AudioRaw
	default:
		return ""
	}
}

// ServerCandidate is one playback server offered for an episode.
type ServerCandidate struct {
	Name  string   // Display name, e.g. "HD-1" or "VidStreaming"
	Token string   // Opaque, unique within one listing
	Audio AudioTag // Empty when the source doesn't say
}

// Kind tells the player how to treat a media URL.
type Kind string

const (
	KindFile Kind = "file"
	KindHLS  Kind = "hls"
)

// KindFromURL guesses the media kind from the URL path.
func KindFromURL(raw string) Kind {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	if strings.EqualFold(path.Ext(p), ".m3u8") {
		return KindHLS
	}
	return KindFile
}

// SubtitleTrack is one subtitle file offered alongside a media URL.
type SubtitleTrack struct {
	Label string // e.g. "English" or "Portuguese - Brazil"
	URL   string
}

// QualityVariant is one rendition of an HLS stream. Rank is the numeric part
// of Label (e.g. 720 for "720p"), 0 when the label has none.
type QualityVariant struct {
	Label string
	Rank  int
	URL   string
}

// ResolvedMedia is the successful outcome of resolving one server.
type ResolvedMedia struct {
	Server    string            // Name of the server it came from
	URL       string            // Never empty
	Kind      Kind
	Audio     AudioTag
	Subtitles []SubtitleTrack
	Headers   map[string]string // Headers the player must send (Referer, User-Agent)
	Variants  []QualityVariant  // Sorted by Rank descending
}

// SearchResult is one hit returned by a source search.
type SearchResult struct {
	Source string
	Ref    string // Passed back to Provider.Episodes
	Title  string
	Year   string
	URL    string
}

// FormatNumber prints an episode number without a trailing ".0".
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Progress is a saved playback position for one episode.
type Progress struct {
	Source   string
	Ref      string
	Token    string
	Title    string
	Episode  float64
	Position float64 // seconds
	Duration float64 // seconds
}

// ParseRank extracts the first run of digits in a quality label, e.g. 720
// from "720p" or "HD 720". Labels without digits, or with a run too long to
// be a resolution, rank 0.
func ParseRank(label string) int {
	start := strings.IndexFunc(label, isDigit)
	if start < 0 {
		return 0
	}
	end := strings.IndexFunc(label[start:], func(r rune) bool { return !isDigit(r) })
	if end < 0 {
		end = len(label) - start
	}
	n, err := strconv.Atoi(label[start : start+end])
	if err != nil || n > maxRank {
		return 0
	}
	return n
}

// maxRank bounds a plausible video height.
const maxRank = 100000

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
