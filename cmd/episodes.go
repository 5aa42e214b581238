package cmd

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"anistream/internal/api"
	"anistream/internal/media"
	"anistream/internal/subtitle"
)

var episodesCmd = &cobra.Command{
	Use:   "episodes <source> <ref>",
	Short: "List the episodes of a title",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := registry.Lookup(args[0])
		if err != nil {
			return err
		}
		eps, err := src.Episodes(cmd.Context(), args[1])
		if err != nil {
			return fmt.Errorf("listing episodes: %w", err)
		}
		if flagJSON {
			return printJSON(eps)
		}
		for _, ep := range eps {
			fmt.Printf("%s  %s\n", color.YellowString("%6s", media.FormatNumber(ep.Number)), episodeLabel(ep))
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <source> <ref> [episode]",
	Short: "Resolve an episode to playable media",
	Long: `Resolve lists the servers of an episode, resolves all of them and prints the
playable media. Pass --play to open it in the player or --download to save it.
Without an episode number you are asked to pick one.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: resolveRun,
}

var flagPlay bool

func init() {
	resolveCmd.Flags().BoolVar(&flagPlay, "play", false, "Play the resolved media")
}

func resolveRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := show{source: args[0], ref: args[1], title: args[1]}

	var number float64
	if len(args) == 3 {
		n, err := strconv.ParseFloat(args[2], 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid episode number %q", args[2])
		}
		number = n
	}

	if flagPlay || flagDownload != "" {
		return pickAndWatch(ctx, s, number)
	}

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

	pb, err := resolveEpisode(ctx, s, ep)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(api.NewPlayback(pb))
	}

	for _, m := range pb.Media {
		fmt.Printf("%s  %s  %s\n", color.GreenString(m.Server), m.Kind, m.URL)
		for _, v := range m.Variants {
			fmt.Printf("    %-6s %s\n", v.Label, v.URL)
		}
		if ref := m.Headers["Referer"]; ref != "" {
			fmt.Printf("    %s %s\n", color.New(color.Faint).Sprint("referer"), ref)
		}
	}
	if v, ok := pb.ChosenQuality.Get(); ok {
		fmt.Printf("%s %s %s\n", color.New(color.Bold).Sprint("chosen"), v.Label, v.URL)
	}
	for _, t := range subtitle.Tracks(pb.Subtitles) {
		fmt.Printf("%s %s %s\n", color.New(color.Faint).Sprint("subtitle"), t.Label, t.URL)
	}
	for _, f := range pb.Failures {
		fmt.Printf("%s %s: %v\n", color.RedString("failed"), f.Server, f.Err)
	}
	return nil
}
