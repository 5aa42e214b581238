// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"anistream/internal/config"
	"anistream/internal/httputil"
	"anistream/internal/logging"
	"anistream/internal/pipeline"
	"anistream/internal/provider"
	"anistream/internal/render"
	"anistream/internal/retry"
	"anistream/internal/ui"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig   string
	flagSource   string
	flagQuality  string
	flagAudio    string
	flagPlayer   string
	flagLanguage string
	flagNoSubs   bool
	flagDownload string
	flagContinue bool
	flagJSON     bool
	flagDebug    bool
)

// Shared state, built by setup before any command runs.
var (
	// cfg holds the loaded configuration (merged: defaults < config file < flags).
	cfg      *config.Config
	logger   *slog.Logger
	client   *httputil.Client
	browser  *render.Browser
	registry *provider.Registry
	resolver *pipeline.Pipeline
)

var rootCmd = &cobra.Command{
	Use:   "anistream [query]",
	Short: "Find anime episodes and resolve them to playable streams",
	Long: `anistream searches anime sites, resolves an episode's servers to direct
media URLs and plays them with mpv/vlc or downloads them with ffmpeg.`,
	Args:               cobra.ArbitraryArgs,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE: setup,
	RunE:              searchRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("anistream", Version)
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := execute(ctx, rootCmd)
	if errors.Is(err, ui.ErrCancelled) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), pipeline.Message(err))
		if logger != nil {
			logger.Debug("command failed", "err", err)
		}
		stop()
		os.Exit(1)
	}
}

// cleanups run after the command returns, whether or not it failed.
var cleanups []func() error

// execute runs cmd and then every registered cleanup.
func execute(ctx context.Context, cmd *cobra.Command) error {
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil && logger != nil {
				logger.Warn("cleanup failed", "err", err)
			}
		}
		cleanups = nil
	}()
	return cmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/anistream/config.toml)")
	pf.StringVarP(&flagSource, "source", "s", "", "Source id, see `anistream sources`")
	pf.StringVarP(&flagQuality, "quality", "q", "", "Video quality: best | worst | 360 | 480 | 720 | 1080")
	pf.StringVarP(&flagAudio, "audio", "a", "", "Preferred audio: sub | dub | raw")
	pf.StringVar(&flagPlayer, "player", "", "Media player: mpv | vlc | iina | celluloid")
	pf.StringVarP(&flagLanguage, "language", "l", "", "Subtitle language (default: english)")
	pf.BoolVarP(&flagNoSubs, "no-subs", "n", false, "Disable subtitles")
	pf.StringVarP(&flagDownload, "download", "d", "", "Download to this directory instead of playing")
	pf.Lookup("download").NoOptDefVal = "default" // bare --download uses download_dir
	pf.BoolVarP(&flagContinue, "continue", "c", false, "Resume from the saved position")
	pf.BoolVarP(&flagJSON, "json", "j", false, "Print JSON instead of text")
	pf.BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(sourcesCmd, searchCmd, episodesCmd, resolveCmd, historyCmd, serveCmd, versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig() (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if flagConfig != "" {
		c, err = config.LoadFile(flagConfig)
	} else {
		c, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagSource != "" {
		c.Source = flagSource
	}
	if flagQuality != "" {
		c.Quality = flagQuality
	}
	if flagAudio != "" {
		c.Audio = flagAudio
	}
	if flagPlayer != "" {
		c.Player = flagPlayer
	}
	if flagLanguage != "" {
		c.SubsLanguage = flagLanguage
	}
	if flagDebug {
		c.Debug = true
	}

	// Re-validate after flag overrides
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = loadConfig(); err != nil {
		return err
	}

	logOpts := logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		Color:      term.IsTerminal(int(os.Stderr.Fd())),
	}
	if cfg.Debug {
		logOpts.Level = "debug"
	} else if logOpts.File, err = cfg.LogFile(); err != nil {
		return err
	}
	if logger, err = logging.Init(logOpts, os.Stderr); err != nil {
		return err
	}

	client = httputil.NewClient(httputil.ClientConfig{
		Timeout:    cfg.HTTP.Timeout.Duration,
		MaxRetries: cfg.HTTP.Retries,
		UserAgent:  cfg.HTTP.UserAgent,
		Debug:      cfg.Debug,
		Logger:     logger,
	})
	browser = render.NewBrowser(render.BrowserOptions{
		Bin:      cfg.Render.BrowserBin,
		Headless: cfg.Render.Headless,
		Logger:   logger,
	})
	cleanups = append(cleanups, browser.Close)
	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay.Duration}

	registry, err = provider.FromConfig(provider.Deps{
		Client:   client,
		Renderer: browser,
		Retry:    retry.New(policy, logger),
		Logger:   logger,
	}, cfg)
	if err != nil {
		return fmt.Errorf("building sources: %w", err)
	}
	resolver = pipeline.New(registry, client, pipeline.Options{Logger: logger})

	logger.Debug("configured", "source", cfg.Source, "sources", len(registry.IDs()), "player", cfg.Player)
	return nil
}
