package player

import (
	"context"
	"fmt"
	"os/exec"
)

// VLC implements the Player interface for VLC media player. VLC has no IPC
// position tracking, so Play reports a zero Result.
type VLC struct{}

func (v *VLC) Name() string { return "vlc" }

func (v *VLC) Available() bool {
	_, err := exec.LookPath("vlc")
	return err == nil
}

func vlcArgs(req Request) []string {
	args := []string{
		req.url(),
		"--meta-title", req.Title,
		"--play-and-exit",
	}
	if req.Start > 0 {
		args = append(args, fmt.Sprintf("--start-time=%.0f", req.Start))
	}
	referer, userAgent, _ := splitHeaders(req.Media.Headers)
	if referer != "" {
		args = append(args, "--http-referrer="+referer)
	}
	if userAgent != "" {
		args = append(args, "--http-user-agent="+userAgent)
	}
	if len(req.Subtitles) > 0 {
		// VLC loads a single external subtitle file.
		args = append(args, "--sub-file", req.Subtitles[0])
	}
	return args
}

func (v *VLC) Play(ctx context.Context, req Request) (Result, error) {
	return Result{}, run(ctx, "vlc", vlcArgs(req))
}
