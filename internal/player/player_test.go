package player

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/media"
)

var request = Request{
	Media: media.ResolvedMedia{
		URL:  "https://cdn.example/master.m3u8",
		Kind: media.KindHLS,
		Headers: map[string]string{
			"Referer":    "https://megacloud.blog/",
			"User-Agent": "Mozilla/5.0",
			"Origin":     "https://megacloud.blog",
			"X-Token":    "a,b",
		},
	},
	URL:       "https://cdn.example/720.m3u8",
	Title:     "Frieren - Episode 3",
	Start:     125.4,
	Subtitles: []string{"/tmp/en.vtt", "https://cdn.example/pt.vtt"},
}

func TestNew(t *testing.T) {
	assert.Equal(t, "mpv", New("mpv").Name())
	assert.Equal(t, "mpv", New("unknown").Name())
	assert.Equal(t, "vlc", New("VLC").Name())
	assert.Equal(t, "iina", New("iina").Name())
	assert.Equal(t, "celluloid", New("celluloid").Name())
}

func TestMPVArgs(t *testing.T) {
	assert.Equal(t, []string{
		"https://cdn.example/720.m3u8",
		"--force-media-title=Frieren - Episode 3",
		"--really-quiet",
		"--input-ipc-server=/tmp/sock",
		"--start=+125",
		"--referrer=https://megacloud.blog/",
		"--user-agent=Mozilla/5.0",
		`--http-header-fields=Origin: https://megacloud.blog,X-Token: a\,b`,
		"--sub-file=/tmp/en.vtt",
		"--sub-file=https://cdn.example/pt.vtt",
	}, mpvArgs(request, "/tmp/sock"))

	plain := Request{Media: media.ResolvedMedia{URL: "https://cdn.example/a.mp4"}, Title: "A"}
	assert.Equal(t, []string{"https://cdn.example/a.mp4", "--force-media-title=A", "--really-quiet"}, mpvArgs(plain, ""))
}

func TestVLCArgs(t *testing.T) {
	assert.Equal(t, []string{
		"https://cdn.example/720.m3u8",
		"--meta-title", "Frieren - Episode 3",
		"--play-and-exit",
		"--start-time=125",
		"--http-referrer=https://megacloud.blog/",
		"--http-user-agent=Mozilla/5.0",
		"--sub-file", "/tmp/en.vtt",
	}, vlcArgs(request))
}

func TestGenericArgs(t *testing.T) {
	args := genericArgs("iina", request)
	assert.Contains(t, args, "--mpv-referrer=https://megacloud.blog/")
	assert.Contains(t, args, "--mpv-sub-file=/tmp/en.vtt")

	args = genericArgs("celluloid", request)
	assert.Contains(t, args, "--start=+125")
	assert.Contains(t, args, "--user-agent=Mozilla/5.0")
}

func TestTrackPosition(t *testing.T) {
	dir, err := os.MkdirTemp("", "mpv-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	socketPath := filepath.Join(dir, "s")

	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		// Wait for both observe commands before answering.
		for i := 0; i < 2; i++ {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
		for _, line := range []string{
			`{"request_id":100,"error":"success"}`,
			`{"event":"property-change","id":2,"name":"duration","data":1440.5}`,
			`{"event":"property-change","id":1,"name":"time-pos","data":12.25}`,
			`{"event":"property-change","id":1,"name":"time-pos","data":null}`,
			`not json`,
			`{"event":"property-change","id":1,"name":"time-pos","data":600.75}`,
			`{"event":"end-file"}`,
		} {
			conn.Write([]byte(line + "\n"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := trackPosition(ctx, socketPath)
	assert.Equal(t, Result{Position: 600.75, Duration: 1440.5}, res)
}

func TestTrackPositionWithoutSocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.Equal(t, Result{}, trackPosition(ctx, filepath.Join(t.TempDir(), "missing")))
}
