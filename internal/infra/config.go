package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"token_sniper/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds every application setting.
// Defaults are applied first, then the YAML file, then SNIPER_* environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		SourceWSURL      string  `yaml:"source_ws_url"`
		PriceBaseURL     string  `yaml:"price_base_url"`
		FeedTimeoutMS    int     `yaml:"feed_timeout_ms"`
		PriceTimeoutMS   int     `yaml:"price_timeout_ms"`
		PriceRatePerSec  float64 `yaml:"price_rate_per_sec"`
		SourceBufferSize int     `yaml:"source_buffer_size"`
	} `yaml:"feed"`

	Watchlist struct {
		Path             string `yaml:"path"`
		MaxTrackedTokens int    `yaml:"max_tracked_tokens"`
		PersistenceCap   int    `yaml:"persistence_cap"`
	} `yaml:"watchlist"`

	Tracker struct {
		ScrapeIntervalMS int             `yaml:"scrape_interval_ms"`
		TrackIntervalMS  int             `yaml:"track_interval_ms"`
		ErrorCooldownMS  int             `yaml:"error_cooldown_ms"`
		GainTriggerPct   decimal.Decimal `yaml:"gain_trigger_pct"`
	} `yaml:"tracker"`

	EntryCriteria struct {
		Enforce      bool            `yaml:"enforce"`
		MinMarketCap decimal.Decimal `yaml:"min_market_cap"`
		MaxMarketCap decimal.Decimal `yaml:"max_market_cap"`
		MaxHolders   int             `yaml:"max_holders"`
		MinVolume    decimal.Decimal `yaml:"min_volume"`
	} `yaml:"entry_criteria"`

	Dispatch struct {
		TradeEndpoint     string `yaml:"trade_endpoint"`
		DispatchTimeoutMS int    `yaml:"dispatch_timeout_ms"`
	} `yaml:"dispatch"`

	Storage struct {
		HistoryDBPath string `yaml:"history_db_path"`
	} `yaml:"storage"`

	Icons struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
		Size    int    `yaml:"size"`
	} `yaml:"icons"`

	Logging struct {
		Level      string `yaml:"level"`
		Dir        string `yaml:"dir"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration populated with production defaults.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "token-sniper"
	cfg.App.Version = "dev"

	cfg.Feed.SourceWSURL = "wss://pumpportal.fun/api/data"
	cfg.Feed.PriceBaseURL = "https://frontend-api.pump.fun"
	cfg.Feed.FeedTimeoutMS = 60_000
	cfg.Feed.PriceTimeoutMS = 15_000
	cfg.Feed.PriceRatePerSec = 5
	cfg.Feed.SourceBufferSize = 1000

	cfg.Watchlist.Path = "watchlist.json"
	cfg.Watchlist.MaxTrackedTokens = 500
	cfg.Watchlist.PersistenceCap = 300

	cfg.Tracker.ScrapeIntervalMS = 60_000
	cfg.Tracker.TrackIntervalMS = 60_000
	cfg.Tracker.ErrorCooldownMS = 30_000
	cfg.Tracker.GainTriggerPct = decimal.NewFromInt(100)

	// Entry criteria bounds stay zero (unbounded). Market caps and volume are
	// in SOL as reported by the source feed, which does not report holders.

	cfg.Dispatch.TradeEndpoint = "http://localhost:3000/trade"
	cfg.Dispatch.DispatchTimeoutMS = 10_000

	cfg.Storage.HistoryDBPath = "data/history.db"

	cfg.Icons.Dir = "data/icons"
	cfg.Icons.Size = 24

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Logging.File = "system.log"
	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28
	return &cfg
}

// LoadConfig reads and parses the config file on top of DefaultConfig.
// A missing file is not an error; defaults and environment still apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &domain.ConfigError{Field: path, Err: err}
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Feed.SourceWSURL == "" || (!strings.HasPrefix(c.Feed.SourceWSURL, "ws://") && !strings.HasPrefix(c.Feed.SourceWSURL, "wss://")) {
		return &domain.ConfigError{Field: "feed.source_ws_url", Err: fmt.Errorf("invalid websocket URL %q", c.Feed.SourceWSURL)}
	}
	if !strings.HasPrefix(c.Feed.PriceBaseURL, "http://") && !strings.HasPrefix(c.Feed.PriceBaseURL, "https://") {
		return &domain.ConfigError{Field: "feed.price_base_url", Err: fmt.Errorf("invalid URL %q", c.Feed.PriceBaseURL)}
	}
	if c.Watchlist.MaxTrackedTokens <= 0 {
		return &domain.ConfigError{Field: "watchlist.max_tracked_tokens", Err: errors.New("must be positive")}
	}
	if c.Watchlist.PersistenceCap <= 0 {
		return &domain.ConfigError{Field: "watchlist.persistence_cap", Err: errors.New("must be positive")}
	}
	if c.Tracker.ScrapeIntervalMS <= 0 || c.Tracker.TrackIntervalMS <= 0 || c.Tracker.ErrorCooldownMS <= 0 {
		return &domain.ConfigError{Field: "tracker", Err: errors.New("intervals must be positive")}
	}
	if !c.Tracker.GainTriggerPct.IsPositive() {
		return &domain.ConfigError{Field: "tracker.gain_trigger_pct", Err: errors.New("must be positive")}
	}
	if c.EntryCriteria.Enforce && c.EntryCriteria.MaxMarketCap.IsPositive() &&
		c.EntryCriteria.MaxMarketCap.LessThan(c.EntryCriteria.MinMarketCap) {
		return &domain.ConfigError{Field: "entry_criteria", Err: errors.New("max_market_cap below min_market_cap")}
	}
	if c.Feed.PriceRatePerSec <= 0 {
		return &domain.ConfigError{Field: "feed.price_rate_per_sec", Err: errors.New("must be positive")}
	}
	return nil
}

// ScrapeInterval returns the discovery period.
func (c *Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Tracker.ScrapeIntervalMS) * time.Millisecond
}

// TrackInterval returns the tracking period.
func (c *Config) TrackInterval() time.Duration {
	return time.Duration(c.Tracker.TrackIntervalMS) * time.Millisecond
}

// ErrorCooldown returns the shortened delay used after a failed cycle.
func (c *Config) ErrorCooldown() time.Duration {
	return time.Duration(c.Tracker.ErrorCooldownMS) * time.Millisecond
}

// FeedTimeout bounds one source feed fetch.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.FeedTimeoutMS) * time.Millisecond
}

// PriceTimeout bounds one price request.
func (c *Config) PriceTimeout() time.Duration {
	return time.Duration(c.Feed.PriceTimeoutMS) * time.Millisecond
}

// DispatchTimeout bounds one trade alert POST.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.DispatchTimeoutMS) * time.Millisecond
}

// overrideWithEnv overwrites settings from environment variables when present.
func overrideWithEnv(cfg *Config) {
	setStr(&cfg.Dispatch.TradeEndpoint, "SNIPER_TRADE_ENDPOINT")
	setStr(&cfg.Feed.SourceWSURL, "SNIPER_SOURCE_WS_URL")
	setStr(&cfg.Feed.PriceBaseURL, "SNIPER_PRICE_BASE_URL")
	setStr(&cfg.Watchlist.Path, "SNIPER_WATCHLIST_PATH")
	setStr(&cfg.Storage.HistoryDBPath, "SNIPER_HISTORY_DB")
	setStr(&cfg.Logging.Level, "SNIPER_LOG_LEVEL")
	setInt(&cfg.Watchlist.MaxTrackedTokens, "SNIPER_MAX_TRACKED_TOKENS")
	setInt(&cfg.Watchlist.PersistenceCap, "SNIPER_PERSISTENCE_CAP")
	setInt(&cfg.Tracker.ScrapeIntervalMS, "SNIPER_SCRAPE_INTERVAL_MS")
	setInt(&cfg.Tracker.TrackIntervalMS, "SNIPER_TRACK_INTERVAL_MS")
	if v := os.Getenv("SNIPER_GAIN_TRIGGER_PCT"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Tracker.GainTriggerPct = d
		}
	}
	if v := os.Getenv("SNIPER_ENFORCE_ENTRY_CRITERIA"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EntryCriteria.Enforce = b
		}
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
