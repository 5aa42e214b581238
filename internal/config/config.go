// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only, nothing in the file is executed.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kirsle/configdir"
)

const appName = "anistream"

// Config holds all application configuration.
type Config struct {
	Source       string `toml:"source"`
	Player       string `toml:"player"`
	Quality      string `toml:"quality"`
	Audio        string `toml:"audio"`
	SubsLanguage string `toml:"subs_language"`
	History      bool   `toml:"history"`
	DownloadDir  string `toml:"download_dir"`
	Debug        bool   `toml:"debug"`

	Retry  RetryConfig  `toml:"retry"`
	HTTP   HTTPConfig   `toml:"http"`
	Render RenderConfig `toml:"render"`
	Log    LogConfig    `toml:"log"`
	Cache  CacheConfig  `toml:"cache"`
	API    APIConfig    `toml:"api"`

	// Origins overrides the base URL of a source, keyed by source id.
	Origins map[string]string `toml:"origins"`
	// Generic declares additional JSON-API sources.
	Generic []GenericSource `toml:"generic"`
}

// RetryConfig bounds retries of rendered extractions.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	Delay       Duration `toml:"delay"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	Timeout   Duration `toml:"timeout"`
	Retries   int      `toml:"retries"`
	UserAgent string   `toml:"user_agent"`
}

// RenderConfig configures the headless browser.
type RenderConfig struct {
	BrowserBin string `toml:"browser_bin"`
	Headless   bool   `toml:"headless"`
}

// LogConfig configures structured logging. File "default" logs to the
// user cache dir, empty logs to stderr.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
}

// CacheConfig configures the episode-list cache.
type CacheConfig struct {
	EpisodesTTL Duration `toml:"episodes_ttl"`
}

// APIConfig configures `anistream serve`.
type APIConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"` // CORS; empty allows any
}

// GenericSource declares a source that speaks a small JSON protocol. Paths
// are appended to Origin; {ref}, {token}, {server} and {query} are replaced.
type GenericSource struct {
	ID       string            `toml:"id"`
	Name     string            `toml:"name"`
	Origin   string            `toml:"origin"`
	Language string            `toml:"language"`
	Search   string            `toml:"search"`
	Episodes string            `toml:"episodes"`
	Servers  string            `toml:"servers"`
	Source   string            `toml:"source"`
	Headers  map[string]string `toml:"headers"`
}

// Duration is a time.Duration that decodes from TOML strings like "1s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Source:       "hianime",
		Player:       "mpv",
		Quality:      "1080",
		Audio:        "sub",
		SubsLanguage: "english",
		History:      true,
		DownloadDir:  "~/Videos/anistream",
		Retry: RetryConfig{
			MaxAttempts: 10,
			Delay:       Duration{time.Second},
		},
		HTTP: HTTPConfig{
			Timeout: Duration{30 * time.Second},
			Retries: 2,
		},
		Render: RenderConfig{Headless: true},
		Log: LogConfig{
			Level:      "warn",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Cache: CacheConfig{EpisodesTTL: Duration{5 * time.Minute}},
		API:   APIConfig{Listen: "127.0.0.1:8686"},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

var qualityPattern = regexp.MustCompile(`^(?i)(best|worst|[0-9]{3,4}p?)$`)

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	validPlayers := map[string]bool{
		"mpv": true, "vlc": true, "iina": true, "celluloid": true,
	}
	if !validPlayers[strings.ToLower(c.Player)] {
		return fmt.Errorf("unsupported player %q (valid: mpv, vlc, iina, celluloid)", c.Player)
	}

	if c.Quality != "" && !qualityPattern.MatchString(c.Quality) {
		return fmt.Errorf("unsupported quality %q (valid: best, worst, or a height like 720)", c.Quality)
	}

	switch strings.ToLower(c.Audio) {
	case "", "sub", "dub", "raw":
	default:
		return fmt.Errorf("unsupported audio %q (valid: sub, dub, raw)", c.Audio)
	}

	if c.Source == "" {
		return fmt.Errorf("source cannot be empty")
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 50 {
		return fmt.Errorf("retry.max_attempts must be between 1 and 50, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Delay.Duration < 0 {
		return fmt.Errorf("retry.delay cannot be negative")
	}
	if c.HTTP.Timeout.Duration <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q (valid: text, json)", c.Log.Format)
	}

	for id, origin := range c.Origins {
		if err := validateOrigin(origin); err != nil {
			return fmt.Errorf("origin for %q: %w", id, err)
		}
	}

	seen := make(map[string]bool)
	for i, g := range c.Generic {
		if g.ID == "" {
			return fmt.Errorf("generic source #%d has no id", i+1)
		}
		if seen[g.ID] {
			return fmt.Errorf("generic source %q declared twice", g.ID)
		}
		seen[g.ID] = true
		if err := validateOrigin(g.Origin); err != nil {
			return fmt.Errorf("generic source %q: %w", g.ID, err)
		}
		if g.Episodes == "" || g.Servers == "" || g.Source == "" {
			return fmt.Errorf("generic source %q needs episodes, servers and source paths", g.ID)
		}
	}

	return nil
}

func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("malformed origin: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("origin must be an https URL, got %q", origin)
	}
	return nil
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	return expandHome(c.DownloadDir)
}

// LogFile returns the resolved log file path, or "" to log to stderr.
func (c *Config) LogFile() (string, error) {
	switch c.Log.File {
	case "":
		return "", nil
	case "default":
		return filepath.Join(configdir.LocalCache(appName), appName+".log"), nil
	default:
		return expandHome(c.Log.File)
	}
}

func expandHome(dir string) (string, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// HistoryPath returns the path to the progress database.
func HistoryPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, appName, "history.db"), nil
}
