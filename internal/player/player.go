// Package player launches external media players on resolved media.
// Players are started with exec.CommandContext and explicit argument slices,
// never through a shell.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"anistream/internal/media"
)

// Request is one playback.
type Request struct {
	Media media.ResolvedMedia
	// URL overrides Media.URL, e.g. with a chosen quality variant.
	URL   string
	Title string
	// Start is the resume position in seconds.
	Start float64
	// Subtitles are local paths or URLs, loaded in order.
	Subtitles []string
}

func (r Request) url() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Media.URL
}

// Result reports where playback stopped. Zero when the player cannot say.
type Result struct {
	Position float64
	Duration float64
}

// Player is the interface for media player implementations.
type Player interface {
	// Play blocks until the player exits.
	Play(ctx context.Context, req Request) (Result, error)

	// Name returns the player name.
	Name() string

	// Available checks if the player binary exists in PATH.
	Available() bool
}

// New creates a player by name.
func New(name string) Player {
	switch strings.ToLower(name) {
	case "vlc":
		return &VLC{}
	case "iina", "celluloid":
		return &Generic{name: strings.ToLower(name)}
	default:
		return &MPV{}
	}
}

// splitHeaders separates the headers players take as dedicated flags from
// the rest, which are returned as sorted "Key: Value" lines.
func splitHeaders(headers map[string]string) (referer, userAgent string, rest []string) {
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "referer":
			referer = v
		case "user-agent":
			userAgent = v
		default:
			rest = append(rest, k+": "+v)
		}
	}
	sort.Strings(rest)
	return referer, userAgent, rest
}

func run(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		// Players exit non-zero when the user closes them.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}
