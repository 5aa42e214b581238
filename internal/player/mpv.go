package player

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// MPV implements the Player interface for mpv. Position and duration are
// tracked over mpv's JSON IPC socket at a randomized temp path.
type MPV struct{}

func (m *MPV) Name() string { return "mpv" }

func (m *MPV) Available() bool {
	_, err := exec.LookPath("mpv")
	return err == nil
}

func mpvArgs(req Request, socketPath string) []string {
	args := []string{
		req.url(),
		"--force-media-title=" + req.Title,
		"--really-quiet",
	}
	if socketPath != "" {
		args = append(args, "--input-ipc-server="+socketPath)
	}
	if req.Start > 0 {
		args = append(args, fmt.Sprintf("--start=+%.0f", req.Start))
	}

	referer, userAgent, rest := splitHeaders(req.Media.Headers)
	if referer != "" {
		args = append(args, "--referrer="+referer)
	}
	if userAgent != "" {
		args = append(args, "--user-agent="+userAgent)
	}
	if len(rest) > 0 {
		// mpv splits this list on commas.
		fields := make([]string, len(rest))
		for i, h := range rest {
			fields[i] = strings.ReplaceAll(h, ",", `\,`)
		}
		args = append(args, "--http-header-fields="+strings.Join(fields, ","))
	}

	for _, sub := range req.Subtitles {
		args = append(args, "--sub-file="+sub)
	}
	return args
}

// Play launches mpv and returns the last position it reported.
func (m *MPV) Play(ctx context.Context, req Request) (Result, error) {
	socketDir, err := os.MkdirTemp("", "anistream-mpv-*")
	if err != nil {
		return Result{}, fmt.Errorf("creating temp dir for mpv socket: %w", err)
	}
	defer os.RemoveAll(socketDir)
	socketPath := filepath.Join(socketDir, "socket")

	tracked := make(chan Result, 1)
	trackCtx, stopTracking := context.WithCancel(ctx)
	defer stopTracking()
	go func() { tracked <- trackPosition(trackCtx, socketPath) }()

	runErr := run(ctx, "mpv", mpvArgs(req, socketPath))

	var res Result
	select {
	case res = <-tracked:
	case <-time.After(2 * time.Second):
		stopTracking()
		res = <-tracked
	}
	return res, runErr
}

// trackPosition observes time-pos and duration until the socket closes or
// ctx is done.
func trackPosition(ctx context.Context, socketPath string) Result {
	var conn net.Conn
	for i := 0; i < 50; i++ {
		var err error
		var d net.Dialer
		conn, err = d.DialContext(ctx, "unix", socketPath)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return Result{}
		}
		select {
		case <-ctx.Done():
			return Result{}
		case <-time.After(100 * time.Millisecond):
		}
	}
	if conn == nil {
		return Result{}
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for i, prop := range []string{"time-pos", "duration"} {
		data, _ := json.Marshal(map[string]any{
			"command":    []any{"observe_property", i + 1, prop},
			"request_id": 100 + i,
		})
		if _, err := conn.Write(append(data, '\n')); err != nil {
			return Result{}
		}
	}

	var res Result
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var event struct {
			Event string   `json:"event"`
			Name  string   `json:"name"`
			Data  *float64 `json:"data"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil || event.Event != "property-change" || event.Data == nil {
			continue
		}
		switch event.Name {
		case "time-pos":
			if *event.Data > 0 {
				res.Position = *event.Data
			}
		case "duration":
			res.Duration = *event.Data
		}
	}
	return res
}
