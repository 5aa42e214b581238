package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"anistream/internal/history"
	"anistream/internal/ui"
)

// finishedPercent is how far into an episode it counts as watched.
const finishedPercent = 90

var flagHistoryRemove bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Resume from watch history",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

func init() {
	historyCmd.Flags().BoolVar(&flagHistoryRemove, "remove", false, "Remove the picked title from history instead of playing it")
}

func historyRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openHistory()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if store == nil {
		return fmt.Errorf("history is disabled in the config")
	}
	entries, err := store.Recent(ctx, 0)
	store.Close()
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No history entries found.")
		return nil
	}

	idx, err := ui.Select("History", history.FormatForDisplay(entries))
	if err != nil {
		return err
	}
	picked := entries[idx]
	logger.Debug("resuming", "source", picked.Source, "ref", picked.Ref, "episode", picked.Episode)

	if flagHistoryRemove {
		if store, err = openHistory(); err != nil {
			return err
		}
		defer store.Close()
		return store.Remove(ctx, picked.Source, picked.Ref)
	}

	s := show{source: picked.Source, ref: picked.Ref, title: picked.Title}
	src, err := registry.Lookup(s.source)
	if err != nil {
		return err
	}
	eps, err := src.Episodes(ctx, s.ref)
	if err != nil {
		return fmt.Errorf("listing episodes: %w", err)
	}

	// Resume the saved episode, or move on to the next one once it is
	// mostly watched.
	for i, ep := range eps {
		if ep.Number != picked.Episode {
			continue
		}
		if picked.Percent() < finishedPercent {
			return watch(ctx, s, ep, picked.Position)
		}
		if i+1 < len(eps) {
			return watch(ctx, s, eps[i+1], 0)
		}
		fmt.Printf("%s is finished, no episode after %v.\n", s.title, picked.Episode)
		return nil
	}
	return pickAndWatch(ctx, s, 0)
}
