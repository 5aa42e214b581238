package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"anistream/internal/provider"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the available sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		type sourceRow struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			Origin       string `json:"origin"`
			Language     string `json:"language"`
			Searchable   bool   `json:"searchable"`
			UsesRenderer bool   `json:"uses_renderer"`
		}
		var rows []sourceRow
		for _, id := range registry.IDs() {
			p, _ := registry.Adapter(id)
			d := p.Descriptor()
			_, searchable := p.(provider.Searcher)
			rows = append(rows, sourceRow{d.ID, d.Name, d.Origin, d.Language, searchable, d.UsesRenderer})
		}
		if flagJSON {
			return printJSON(rows)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, r := range rows {
			id := r.ID
			if id == cfg.Source {
				id = color.New(color.Bold, color.FgGreen).Sprint(id + "*")
			}
			var notes string
			if r.Searchable {
				notes += "search "
			}
			if r.UsesRenderer {
				notes += "browser"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, r.Name, r.Language, color.CyanString(r.Origin), notes)
		}
		return w.Flush()
	},
}
