package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PRICELOOM_AUTH_SECRET", "hunter2")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "hunter2", cfg.Auth.Secret)
	require.Equal(t, "protein", cfg.Crawler.Keyword)
	require.Equal(t, 3, cfg.Crawler.ScrapeBatchSize)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout())
	require.Equal(t, 30*time.Minute, cfg.MaxConnLifetime())
	require.True(t, cfg.Logging.Development)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PRICELOOM_AUTH_SECRET", "hunter2")
	t.Setenv("PRICELOOM_SERVER_PORT", "9090")
	t.Setenv("PRICELOOM_CRAWLER_CONCURRENCY", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 8, cfg.Crawler.Concurrency)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("PRICELOOM_AUTH_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth.secret")
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:  ServerConfig{Port: 8080},
		Auth:    AuthConfig{Secret: "s"},
		Crawler: CrawlerConfig{BaseURL: "https://shop.example", Concurrency: 4, ScrapeBatchSize: 0},
		HTTP:    HTTPConfig{TimeoutSeconds: 15},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "scrape_batch_size")
}
