// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Twitter  TwitterConfig  `mapstructure:"twitter"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Log      LogConfig      `mapstructure:"log"`
	Ops      OpsConfig      `mapstructure:"ops"`
}

// ScrapeConfig governs the page fetch and the scheduling interval.
type ScrapeConfig struct {
	URL             string `mapstructure:"url"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	UserAgent       string `mapstructure:"user_agent"`
}

// HTTPConfig configures HTTP client timeout/retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// TwitterConfig holds posting API credentials and endpoint.
// The four secrets come from the environment; they are never logged.
type TwitterConfig struct {
	APIKey            string `mapstructure:"api_key"`
	APISecret         string `mapstructure:"api_secret"`
	AccessToken       string `mapstructure:"access_token"`
	AccessTokenSecret string `mapstructure:"access_token_secret"`
	BaseURL           string `mapstructure:"base_url"`
}

// HeadlessConfig configures the render-fallback fetcher.
type HeadlessConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
}

// LogConfig controls console encoding and the rotating debug file.
type LogConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
}

// OpsConfig controls the optional operational HTTP server.
type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// envAliases maps config keys to the bare environment names the bot has
// always honored, ahead of the WAITBOT_-prefixed forms.
var envAliases = map[string][]string{
	"twitter.api_key":             {"TWITTER_API_KEY", "WAITBOT_TWITTER_API_KEY"},
	"twitter.api_secret":          {"TWITTER_API_SECRET", "WAITBOT_TWITTER_API_SECRET"},
	"twitter.access_token":        {"TWITTER_ACCESS_TOKEN", "WAITBOT_TWITTER_ACCESS_TOKEN"},
	"twitter.access_token_secret": {"TWITTER_ACCESS_TOKEN_SECRET", "WAITBOT_TWITTER_ACCESS_TOKEN_SECRET"},
	"scrape.interval_minutes":     {"SCRAPE_INTERVAL_MINUTES", "WAITBOT_SCRAPE_INTERVAL_MINUTES"},
	"http.timeout_seconds":        {"REQUEST_TIMEOUT_SECONDS", "WAITBOT_HTTP_TIMEOUT_SECONDS"},
	"http.max_retries":            {"MAX_RETRIES", "WAITBOT_HTTP_MAX_RETRIES"},
}

// Load builds a Config from defaults, an optional config file, and the
// environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAITBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scrape.url", "https://www.atl.com/times/")
	v.SetDefault("scrape.interval_minutes", 30)
	// The page serves reduced markup to obvious bots, so the default UA
	// reads like a desktop browser.
	v.SetDefault("scrape.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("twitter.base_url", "https://api.twitter.com")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "waitbot.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.addr", ":9090")
}

// Validate enforces required values and reasonable limits. Posting
// credentials are checked separately by TwitterConfig.Validate so read-only
// commands can run without them.
func (c Config) Validate() error {
	if c.Scrape.URL == "" {
		return fmt.Errorf("scrape.url must be set")
	}
	if _, err := url.ParseRequestURI(c.Scrape.URL); err != nil {
		return fmt.Errorf("scrape.url invalid: %w", err)
	}
	if c.Scrape.IntervalMinutes <= 0 {
		return fmt.Errorf("scrape.interval_minutes must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffInitialMs <= 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http backoff window invalid: initial %dms, max %dms",
			c.HTTP.BackoffInitialMs, c.HTTP.BackoffMaxMs)
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0 when a log file is set")
	}
	if c.Log.MaxBackups < 0 {
		return fmt.Errorf("log.max_backups must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	if c.Ops.Enabled && c.Ops.Addr == "" {
		return fmt.Errorf("ops.addr must be set when ops server is enabled")
	}
	return nil
}

// Validate checks that every posting credential is present. Commands that
// post call this before building the Twitter client; missing secrets halt
// the process before the loop starts.
func (c TwitterConfig) Validate() error {
	missing := make([]string, 0, 4)
	if c.APIKey == "" {
		missing = append(missing, "TWITTER_API_KEY")
	}
	if c.APISecret == "" {
		missing = append(missing, "TWITTER_API_SECRET")
	}
	if c.AccessToken == "" {
		missing = append(missing, "TWITTER_ACCESS_TOKEN")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "TWITTER_ACCESS_TOKEN_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Interval returns the pause between cycles.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Scrape.IntervalMinutes) * time.Minute
}

// RequestTimeout bounds a single page or API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps retry delays.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// NavTimeout bounds a headless page render.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}
