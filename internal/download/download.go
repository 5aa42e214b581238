// Package download saves resolved media to disk with ffmpeg.
// ffmpeg is run with explicit argument slices and output paths are checked
// against directory traversal.
package download

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

// Request is one download.
type Request struct {
	Media media.ResolvedMedia
	// URL overrides Media.URL, e.g. with a chosen quality variant.
	URL   string
	Title string
	Dir   string
	// Subtitles are local paths or URLs muxed in as extra streams.
	Subtitles []string
}

// Download fetches req to Dir/<title>.mkv and returns the output path.
func Download(ctx context.Context, req Request) (string, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	outputPath, err := OutputPath(req.Dir, req.Title)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, Args(req, outputPath)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Fprintf(os.Stderr, "Downloading to: %s\n", outputPath)

	if err := cmd.Run(); err != nil {
		// Clean up partial download on failure
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg download failed: %w", err)
	}
	return outputPath, nil
}

// OutputPath creates dir and returns the sanitized .mkv path for title in it.
func OutputPath(dir, title string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	outputPath, err := httputil.SafeDownloadPath(absDir, httputil.SanitizeFilename(title)+".mkv")
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}
	return outputPath, nil
}

// Args builds the ffmpeg command line for req.
func Args(req Request, outputPath string) []string {
	url := req.URL
	if url == "" {
		url = req.Media.URL
	}

	args := []string{"-y", "-loglevel", "warning", "-stats"}
	if h := headerBlock(req.Media.Headers); h != "" {
		// -headers applies to the next input only.
		args = append(args, "-headers", h)
	}
	args = append(args, "-i", url)
	for _, sub := range req.Subtitles {
		args = append(args, "-i", sub)
	}

	args = append(args, "-map", "0:v?", "-map", "0:a?")
	for i := range req.Subtitles {
		args = append(args, "-map", fmt.Sprintf("%d:s", i+1))
	}
	args = append(args, "-c:v", "copy", "-c:a", "copy")
	if len(req.Subtitles) > 0 {
		args = append(args, "-c:s", "srt")
	}

	args = append(args,
		"-metadata", "title="+req.Title,
		outputPath,
	)
	return args
}

func headerBlock(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	lines := make([]string, 0, len(headers))
	for k, v := range headers {
		lines = append(lines, k+": "+v+"\r\n")
	}
	sort.Strings(lines)
	return strings.Join(lines, "")
}
