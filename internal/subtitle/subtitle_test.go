package subtitle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anistream/internal/httputil"
	"anistream/internal/logging"
	"anistream/internal/media"
)

var tracks = Tracks(map[string]string{
	"English":             "https://example.com/en.vtt",
	"English - SDH":       "https://example.com/sdh.vtt",
	"Spanish":             "https://example.com/es.vtt",
	"Portuguese - Brazil": "https://example.com/pt.srt",
})

func TestTracksSorted(t *testing.T) {
	want := []string{"English", "English - SDH", "Portuguese - Brazil", "Spanish"}
	if len(tracks) != len(want) {
		t.Fatalf("got %d tracks, want %d", len(tracks), len(want))
	}
	for i, w := range want {
		if tracks[i].Label != w {
			t.Errorf("tracks[%d] = %q, want %q", i, tracks[i].Label, w)
		}
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		lang     string
		expected int
	}{
		{"english", 2},
		{"spanish", 1},
		{"brazil", 1},
		{"german", 0},
		{"", 4},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			got := Filter(tracks, tt.lang)
			if len(got) != tt.expected {
				t.Errorf("Filter(%q) returned %d subs, want %d", tt.lang, len(got), tt.expected)
			}
		})
	}
}

func TestBestMatch(t *testing.T) {
	sdhFirst := []media.SubtitleTrack{
		{Label: "English - SDH", URL: "https://example.com/sdh.vtt"},
		{Label: "English", URL: "https://example.com/en.vtt"},
	}
	best, ok := BestMatch(sdhFirst, "english")
	if !ok || best.Label != "English" {
		t.Errorf("BestMatch preferred %q, want 'English' (non-SDH)", best.Label)
	}

	best, ok = BestMatch(sdhFirst[:1], "english")
	if !ok || best.Label != "English - SDH" {
		t.Errorf("BestMatch with only SDH = %q, %v", best.Label, ok)
	}

	if _, ok := BestMatch(tracks, "japanese"); ok {
		t.Error("BestMatch should report no match for japanese")
	}
}

func TestTempDirDownload(t *testing.T) {
	var referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		w.Write([]byte("WEBVTT\n\n00:00.000 --> 00:01.000\nhello\n"))
	}))
	defer srv.Close()

	tmpDir, err := NewTempDir()
	if err != nil {
		t.Fatalf("NewTempDir() error: %v", err)
	}
	defer tmpDir.Cleanup()

	client := httputil.NewClient(httputil.ClientConfig{Timeout: 5 * time.Second, AllowHTTP: true, Logger: logging.Discard()})
	track := media.SubtitleTrack{Label: "Portuguese - Brazil", URL: srv.URL + "/subs/pt.SRT?sig=1"}
	path, err := tmpDir.Download(context.Background(), client, track, map[string]string{"Referer": "https://megacloud.blog/"})
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if filepath.Base(path) != "Portuguese - Brazil.srt" {
		t.Errorf("file name = %q", filepath.Base(path))
	}
	if referer != "https://megacloud.blog/" {
		t.Errorf("Referer = %q", referer)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:6]) != "WEBVTT" {
		t.Errorf("unexpected content %q", data)
	}

	tmpDir.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Cleanup left the subtitle behind")
	}
}
