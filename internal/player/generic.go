package player

import (
	"context"
	"fmt"
	"os/exec"
)

// Generic implements the Player interface for players like iina and celluloid
// that accept mpv-compatible arguments.
type Generic struct {
	name string
}

func (g *Generic) Name() string { return g.name }

func (g *Generic) Available() bool {
	_, err := exec.LookPath(g.name)
	return err == nil
}

func genericArgs(name string, req Request) []string {
	// iina forwards mpv options only when they carry its --mpv- prefix.
	prefix := "--"
	if name == "iina" {
		prefix = "--mpv-"
	}
	args := []string{req.url(), prefix + "force-media-title=" + req.Title}
	if req.Start > 0 {
		args = append(args, fmt.Sprintf("%sstart=+%.0f", prefix, req.Start))
	}
	referer, userAgent, _ := splitHeaders(req.Media.Headers)
	if referer != "" {
		args = append(args, prefix+"referrer="+referer)
	}
	if userAgent != "" {
		args = append(args, prefix+"user-agent="+userAgent)
	}
	for _, sub := range req.Subtitles {
		args = append(args, prefix+"sub-file="+sub)
	}
	return args
}

// Play launches the player. Position tracking is not supported.
func (g *Generic) Play(ctx context.Context, req Request) (Result, error) {
	return Result{}, run(ctx, g.name, genericArgs(g.name, req))
}
