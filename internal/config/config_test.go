package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.API.Port)
	require.Equal(t, "https://backend.liberty.mp", cfg.Upstream.BaseURL)
	require.Equal(t, "https://ucp.liberty.mp", cfg.Upstream.UCPBaseURL)
	require.Equal(t, 20, cfg.Scraper.MaxWorkers)
	require.Equal(t, 20, cfg.Scraper.BatchSize)
	require.Equal(t, 3, cfg.Scraper.MaxRetries)
	require.Equal(t, "direct", cfg.Fetcher.Transport)
	require.Equal(t, "local", cfg.Storage.Provider)
	require.Equal(t, "database/players_db.json", cfg.Storage.DBFile)
	require.Equal(t, "none", cfg.Archive.Provider)
	require.Equal(t, "none", cfg.Publisher.Provider)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  port: 9090
upstream:
  base_url: https://staging.liberty.mp
  timeout_seconds: 5
scraper:
  max_workers: 8
fetcher:
  transport: headless
  headless_max_tabs: 4
storage:
  provider: postgres
  dsn: postgres://crawler@localhost/inventory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.API.Port)
	require.Equal(t, "https://staging.liberty.mp", cfg.Upstream.BaseURL)
	require.Equal(t, 5*time.Second, cfg.FetchTimeout())
	require.Equal(t, 8, cfg.Scraper.MaxWorkers)
	require.Equal(t, "headless", cfg.Fetcher.Transport)
	// Unset values still fall back to defaults.
	require.Equal(t, 20, cfg.Scraper.BatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.API.Port = 0 }},
		{"missing base url", func(c *Config) { c.Upstream.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.Upstream.TimeoutSeconds = 0 }},
		{"zero workers", func(c *Config) { c.Scraper.MaxWorkers = 0 }},
		{"bad transport", func(c *Config) { c.Fetcher.Transport = "carrier-pigeon" }},
		{"headless without tabs", func(c *Config) {
			c.Fetcher.Transport = "headless"
			c.Fetcher.HeadlessMaxTabs = 0
		}},
		{"bad storage provider", func(c *Config) { c.Storage.Provider = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Provider = "postgres" }},
		{"local without db file", func(c *Config) { c.Storage.DBFile = "" }},
		{"local archive without dir", func(c *Config) { c.Archive.Provider = "local" }},
		{"gcs archive without bucket", func(c *Config) { c.Archive.Provider = "gcs" }},
		{"pubsub without project", func(c *Config) { c.Publisher.Provider = "pubsub" }},
		{"bad publisher provider", func(c *Config) { c.Publisher.Provider = "kafka" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_MemoryPublisher(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Publisher.Provider = "memory"
	require.NoError(t, cfg.Validate())
}

func TestConfig_EndpointURLs(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Upstream.BaseURL = "https://backend.liberty.mp/"
	cfg.Upstream.UCPBaseURL = "https://ucp.liberty.mp/"

	require.Equal(t, "https://backend.liberty.mp/general/online", cfg.OnlineURL())
	require.Equal(t, "https://backend.liberty.mp/general/inventory", cfg.InventoryURL())
	require.Equal(t, "https://ucp.liberty.mp/assets/game/vehicleData.json", cfg.VehicleDataURL())
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 10*time.Second, cfg.FetchTimeout())
	require.Equal(t, 250*time.Millisecond, cfg.BackoffInitial())
	require.Equal(t, 5*time.Second, cfg.BackoffMax())
}
