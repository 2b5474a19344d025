// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig holds the shared secret that gates mutating endpoints.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// CrawlerConfig governs category crawling and batch scraping behavior.
type CrawlerConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	Keyword         string  `mapstructure:"keyword"`
	Concurrency     int     `mapstructure:"concurrency"`
	ScrapeBatchSize int     `mapstructure:"scrape_batch_size"`
	UserAgent       string  `mapstructure:"user_agent"`
	RequestsPerSec  float64 `mapstructure:"requests_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// HTTPConfig configures outbound HTTP client behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
}

// LoggingConfig selects the logger profile.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from the optional file at path, with
// PRICELOOM_* environment variables taking precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICELOOM")
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
	v.SetDefault("crawler.base_url", "https://www.myprotein.com")
	v.SetDefault("crawler.keyword", "protein")
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.scrape_batch_size", 3)
	v.SetDefault("crawler.user_agent", "priceloom-bot/0.1")
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret must be set")
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url must be set")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.ScrapeBatchSize <= 0 {
		return fmt.Errorf("crawler.scrape_batch_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	return nil
}

// HTTPTimeout converts the outbound timeout config into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MaxConnLifetime converts the pool lifetime config into a duration.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMin) * time.Minute
}
