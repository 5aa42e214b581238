package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"anistream/internal/media"
	"anistream/internal/provider"
	"anistream/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:   "search <source> <query>",
	Short: "Search a source's catalogue",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := search(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(results)
		}
		for _, r := range results {
			fmt.Printf("%s  %s\n", color.CyanString(r.Ref), displayTitle(r))
		}
		return nil
	},
}

// searchRun is the default command: anistream <query>
func searchRun(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	if query == "" {
		var err error
		if query, err = ui.Input("Search"); err != nil {
			return fmt.Errorf("no search query provided")
		}
	}
	logger.Debug("searching", "source", cfg.Source, "query", query)

	results, err := search(cmd.Context(), cfg.Source, query)
	if err != nil {
		return err
	}
	items := make([]string, len(results))
	for i, r := range results {
		items[i] = displayTitle(r)
	}
	idx, err := ui.Select("Anime", items)
	if err != nil {
		return err
	}

	picked := results[idx]
	return pickAndWatch(cmd.Context(), show{source: picked.Source, ref: picked.Ref, title: picked.Title}, 0)
}

func search(ctx context.Context, sourceID, query string) ([]media.SearchResult, error) {
	src, err := registry.Lookup(sourceID)
	if err != nil {
		return nil, err
	}
	searcher, ok := src.(provider.Searcher)
	if !ok {
		return nil, fmt.Errorf("source %s cannot search; pass an anime ref to `anistream episodes %s <ref>`", sourceID, sourceID)
	}
	results, err := searcher.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no results for %q on %s", query, sourceID)
	}
	for i := range results {
		if results[i].Source == "" {
			results[i].Source = src.Descriptor().ID
		}
	}
	return results, nil
}

func displayTitle(r media.SearchResult) string {
	if r.Year != "" {
		return fmt.Sprintf("%s (%s)", r.Title, r.Year)
	}
	return r.Title
}

// pickAndWatch lists the episodes of s, lets the user pick one unless
// number is set, and watches it.
func pickAndWatch(ctx context.Context, s show, number float64) error {
	src, err := registry.Lookup(s.source)
	if err != nil {
		return err
	}
	eps, err := src.Episodes(ctx, s.ref)
	if err != nil {
		return fmt.Errorf("listing episodes: %w", err)
	}
	ep, err := pickEpisode(eps, number)
	if err != nil {
		return err
	}
	if s.title == "" {
		s.title = s.ref
	}
	return watch(ctx, s, ep, savedPosition(ctx, s, ep))
}

func pickEpisode(eps []media.EpisodeRef, number float64) (media.EpisodeRef, error) {
	if len(eps) == 0 {
		return media.EpisodeRef{}, fmt.Errorf("no episodes found")
	}
	if number > 0 {
		for _, ep := range eps {
			if ep.Number == number {
				return ep, nil
			}
		}
		return media.EpisodeRef{}, fmt.Errorf("episode %s not found", media.FormatNumber(number))
	}
	if len(eps) == 1 {
		return eps[0], nil
	}

	items := make([]string, len(eps))
	for i, ep := range eps {
		items[i] = episodeLabel(ep)
	}
	idx, err := ui.Select("Episode", items)
	if err != nil {
		return media.EpisodeRef{}, err
	}
	return eps[idx], nil
}

func episodeLabel(ep media.EpisodeRef) string {
	label := "Episode " + media.FormatNumber(ep.Number)
	if ep.Title != "" && ep.Title != label {
		label += ": " + ep.Title
	}
	return label
}
