// Package subtitle picks subtitle tracks by language and keeps downloaded
// files in a randomized temp directory.
package subtitle

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// maxSize caps subtitle downloads at 10MB.
const maxSize = 10 << 20

// Tracks turns a label to URL map into tracks sorted by label.
func Tracks(subs map[string]string) []media.SubtitleTrack {
	tracks := make([]media.SubtitleTrack, 0, len(subs))
	for label, u := range subs {
		tracks = append(tracks, media.SubtitleTrack{Label: label, URL: u})
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Label < tracks[j].Label })
	return tracks
}

// Filter returns the tracks whose label contains language (case-insensitive).
func Filter(tracks []media.SubtitleTrack, language string) []media.SubtitleTrack {
	if language == "" {
		return tracks
	}

	lang := strings.ToLower(language)
	var matched []media.SubtitleTrack
	for _, t := range tracks {
		if strings.Contains(strings.ToLower(t.Label), lang) {
			matched = append(matched, t)
		}
	}
	return matched
}

// BestMatch returns the best track for language: a non-SDH match first,
// then any match.
func BestMatch(tracks []media.SubtitleTrack, language string) (media.SubtitleTrack, bool) {
	filtered := Filter(tracks, language)
	if len(filtered) == 0 {
		return media.SubtitleTrack{}, false
	}
	for _, t := range filtered {
		if !strings.Contains(strings.ToLower(t.Label), "sdh") {
			return t, true
		}
	}
	return filtered[0], true
}

// TempDir manages a secure temporary directory for subtitle files.
type TempDir struct {
	path string
}

// NewTempDir creates a randomized temporary directory for subtitle files.
func NewTempDir() (*TempDir, error) {
	dir, err := os.MkdirTemp("", "anistream-subs-*")
	if err != nil {
		return nil, fmt.Errorf("creating subtitle temp dir: %w", err)
	}
	return &TempDir{path: dir}, nil
}

// Cleanup removes the temporary directory and all contents.
func (t *TempDir) Cleanup() {
	if t.path != "" {
		os.RemoveAll(t.path)
	}
}

// Download fetches a track into the temp directory and returns the local
// path. headers are sent along, since some hosts check the Referer.
func (t *TempDir) Download(ctx context.Context, client *httputil.Client, track media.SubtitleTrack, headers map[string]string) (string, error) {
	resp, err := client.Get(ctx, track.URL, headers)
	if err != nil {
		return "", fmt.Errorf("downloading subtitle %q: %w", track.Label, err)
	}
	if len(resp.Body) > maxSize {
		return "", fmt.Errorf("subtitle %q is larger than %d bytes", track.Label, maxSize)
	}

	localPath := filepath.Join(t.path, fileName(track))
	if err := os.WriteFile(localPath, resp.Body, 0o600); err != nil {
		return "", fmt.Errorf("writing subtitle file: %w", err)
	}
	return localPath, nil
}

// fileName is the label plus the URL's extension, .vtt when it has none.
func fileName(track media.SubtitleTrack) string {
	ext := ".vtt"
	if u, err := url.Parse(track.URL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e) <= 5 {
			ext = strings.ToLower(e)
		}
	}
	label := track.Label
	if label == "" {
		label = "subtitle"
	}
	return httputil.SanitizeFilename(label) + ext
}
