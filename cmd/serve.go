package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"anistream/internal/api"
)

var (
	flagListen   string
	flagNoBanner bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sources and the resolver as a JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.API.Listen
		if flagListen != "" {
			addr = flagListen
		}

		srv := api.New(registry, resolver, api.Options{
			AllowedOrigins: cfg.API.AllowedOrigins,
			Logger:         logger,
		})
		if !flagNoBanner {
			printBanner(addr)
		}
		return srv.Listen(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Address to listen on (default: api.listen from the config)")
	serveCmd.Flags().BoolVar(&flagNoBanner, "no-banner", false, "Hide the start banner")
}

func printBanner(addr string) {
	date := new(strings.Builder)
	log.New(date, "", log.LstdFlags).Print()

	bold := color.New(color.Bold).Add(color.FgGreen)
	bold.Printf("%s Server started at %s\n", strings.TrimSpace(date.String()), color.CyanString("http://%s", addr))

	regular := color.New()
	regular.Printf("├─ Sources: %s\n", color.CyanString("http://%s/api/sources", addr))
	regular.Printf("├─ Search: %s\n", color.CyanString("http://%s/api/sources/:id/search?q=", addr))
	regular.Printf("├─ Episodes: %s\n", color.CyanString("http://%s/api/sources/:id/episodes?ref=", addr))
	regular.Printf("└─ Resolve: %s\n", color.CyanString("http://%s/api/sources/:id/resolve?token=", addr))
	fmt.Println()
}
