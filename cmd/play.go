package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"golang.org/x/term"

	"anistream/internal/api"
	"anistream/internal/config"
	"anistream/internal/download"
	"anistream/internal/history"
	"anistream/internal/media"
	"anistream/internal/pipeline"
	"anistream/internal/player"
	"anistream/internal/subtitle"
)

// show is one title on one source, as picked from search or history.
type show struct {
	source string
	ref    string
	title  string
}

// resolveEpisode runs the pipeline for ep, printing per-server outcomes to
// stderr when it is a terminal.
func resolveEpisode(ctx context.Context, s show, ep media.EpisodeRef) (*pipeline.Playback, error) {
	p := resolver
	if !flagJSON && term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintf(os.Stderr, "Resolving %s episode %s on %s\n", s.title, media.FormatNumber(ep.Number), s.source)
		p = pipeline.New(registry, client, pipeline.Options{Logger: logger, Observer: printAttempt})
	}
	return p.Resolve(ctx, s.source, ep, cfg.Quality, media.ParseAudio(cfg.Audio))
}

func printAttempt(e pipeline.Event) {
	if e.Attempt == nil {
		return
	}
	switch e.Attempt.Stage {
	case media.StageSucceeded:
		fmt.Fprintf(os.Stderr, "  %s %s\n", color.GreenString("✓"), e.Attempt.Server.Name)
	case media.StageFailed:
		fmt.Fprintf(os.Stderr, "  %s %s %s\n", color.RedString("✗"), e.Attempt.Server.Name,
			color.New(color.Faint).Sprint(pipeline.Message(e.Attempt.Err)))
	}
}

// chooseMedia returns the media to play and the URL to open: the chosen
// quality variant when there is one, else the first media as is.
func chooseMedia(pb *pipeline.Playback) (media.ResolvedMedia, string) {
	if v, ok := pb.ChosenQuality.Get(); ok {
		for _, m := range pb.Media {
			for _, mv := range m.Variants {
				if mv.URL == v.URL {
					return m, v.URL
				}
			}
		}
	}
	return pb.Media[0], pb.Media[0].URL
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// watch resolves ep and plays or downloads it. start is the resume position
// in seconds.
func watch(ctx context.Context, s show, ep media.EpisodeRef, start float64) error {
	pb, err := resolveEpisode(ctx, s, ep)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(api.NewPlayback(pb))
	}

	m, url := chooseMedia(pb)
	title := fmt.Sprintf("%s - Episode %s", s.title, media.FormatNumber(ep.Number))
	logger.Debug("playing", "server", m.Server, "url", url, "kind", m.Kind)

	var subs []string
	if !flagNoSubs && len(pb.Subtitles) > 0 {
		if best, ok := subtitle.BestMatch(subtitle.Tracks(pb.Subtitles), cfg.SubsLanguage); ok {
			tmpDir, err := subtitle.NewTempDir()
			if err != nil {
				return err
			}
			defer tmpDir.Cleanup()
			if path, err := tmpDir.Download(ctx, client, best, m.Headers); err != nil {
				logger.Warn("subtitle download failed", "label", best.Label, "err", err)
			} else {
				subs = append(subs, path)
			}
		}
	}

	if flagDownload != "" {
		dir := flagDownload
		if dir == "default" {
			if dir, err = cfg.ExpandDownloadDir(); err != nil {
				return fmt.Errorf("resolving download dir: %w", err)
			}
		}
		out, err := download.Download(ctx, download.Request{Media: m, URL: url, Title: title, Dir: dir, Subtitles: subs})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Downloaded: %s\n", out)
		return nil
	}

	pl := player.New(cfg.Player)
	if !pl.Available() {
		return fmt.Errorf("player %q not found in PATH", cfg.Player)
	}
	res, playErr := pl.Play(ctx, player.Request{Media: m, URL: url, Title: title, Start: start, Subtitles: subs})

	// The position is worth keeping even when playback was interrupted.
	if playErr == nil || res.Position > 0 {
		saveProgress(context.WithoutCancel(ctx), media.Progress{
			Source:   s.source,
			Ref:      s.ref,
			Token:    ep.Token,
			Title:    s.title,
			Episode:  ep.Number,
			Position: res.Position,
			Duration: res.Duration,
		})
	}
	if playErr != nil {
		return fmt.Errorf("playback failed: %w", playErr)
	}
	return nil
}

// openHistory opens the progress store, or returns nil when history is off.
func openHistory() (*history.Store, error) {
	if !cfg.History {
		return nil, nil
	}
	path, err := config.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

// savedPosition returns where ep was left off, 0 without --continue.
func savedPosition(ctx context.Context, s show, ep media.EpisodeRef) float64 {
	if !flagContinue {
		return 0
	}
	store, err := openHistory()
	if err != nil || store == nil {
		return 0
	}
	defer store.Close()
	e, ok, err := store.Get(ctx, s.source, s.ref, ep.Number)
	if err != nil || !ok {
		return 0
	}
	logger.Debug("resuming", "position", e.Position)
	return e.Position
}

func saveProgress(ctx context.Context, p media.Progress) {
	store, err := openHistory()
	if err != nil {
		logger.Warn("opening history failed", "err", err)
		return
	}
	if store == nil {
		return
	}
	defer store.Close()
	if err := store.Save(ctx, p); err != nil {
		logger.Warn("saving history failed", "err", err)
	}
}
