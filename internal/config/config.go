// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Cache    CacheConfig    `mapstructure:"cache"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles. When enabled, a request passes with
// the static key or, if a database is configured, any key in the api_keys table.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs crawl defaults and the shared fetch bound.
type CrawlerConfig struct {
	MaxPagesDefault int    `mapstructure:"max_pages_default"`
	MaxConcurrency  int    `mapstructure:"max_concurrency"`
	UserAgent       string `mapstructure:"user_agent"`
	FollowLinks     bool   `mapstructure:"follow_links"`
}

// HTTPConfig configures the static fetch client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	IdleTimeoutSec int    `mapstructure:"idle_timeout_seconds"`
	SettleMinMs    int    `mapstructure:"settle_min_ms"`
	SettleMaxMs    int    `mapstructure:"settle_max_ms"`
	ExecPath       string `mapstructure:"exec_path"`
}

// ExtractConfig selects the default body rendering.
type ExtractConfig struct {
	ContentMode string `mapstructure:"content_mode"`
}

// CacheConfig controls the page cache. An empty RedisURL selects the in-process cache.
type CacheConfig struct {
	RedisURL   string `mapstructure:"redis_url"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	Prefix     string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN disables history.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.max_pages_default", 10)
	v.SetDefault("crawler.max_concurrency", 10)
	v.SetDefault("crawler.user_agent", "scrape-engine/1.0")
	v.SetDefault("crawler.follow_links", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.idle_timeout_seconds", 30)
	v.SetDefault("headless.settle_min_ms", 1000)
	v.SetDefault("headless.settle_max_ms", 3000)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("extract.content_mode", string(crawler.ContentModeMarkdown))
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.prefix", "scrape:")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "scraped_data")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxConcurrency <= 0 {
		return fmt.Errorf("crawler.max_concurrency must be > 0")
	}
	if c.Crawler.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawler.max_pages_default must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	if c.Headless.SettleMinMs < 0 || c.Headless.SettleMaxMs < c.Headless.SettleMinMs {
		return fmt.Errorf("headless settle bounds must satisfy 0 <= settle_min_ms <= settle_max_ms")
	}
	switch crawler.ContentMode(c.Extract.ContentMode) {
	case crawler.ContentModeMarkdown, crawler.ContentModeText:
	default:
		return fmt.Errorf("extract.content_mode must be markdown or text, got %q", c.Extract.ContentMode)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" && c.DB.DSN == "" {
		return fmt.Errorf("auth.api_key or db.dsn must be set when auth is enabled")
	}
	return nil
}

// HTTPTimeout is the static fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CacheTTL is how long scraped pages stay cached.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
