// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Roster    RosterConfig    `mapstructure:"roster"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// APIConfig controls the HTTP query server.
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// UpstreamConfig points at the game-server endpoints.
type UpstreamConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UCPBaseURL     string `mapstructure:"ucp_base_url"`
	TokenFile      string `mapstructure:"token_file"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ScraperConfig governs crawl pipeline behavior.
type ScraperConfig struct {
	MaxWorkers       int `mapstructure:"max_workers"`
	BatchSize        int `mapstructure:"batch_size"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// FetcherConfig selects and tunes the fetch transport.
type FetcherConfig struct {
	Transport          string `mapstructure:"transport"`
	UserAgent          string `mapstructure:"user_agent"`
	HeadlessMaxTabs    int    `mapstructure:"headless_max_tabs"`
	HeadlessNavTimeout int    `mapstructure:"headless_nav_timeout_seconds"`
}

// StorageConfig selects the durable snapshot store.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
	DBFile   string `mapstructure:"db_file"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// RosterConfig sets the persisted roster file.
type RosterConfig struct {
	DBFile string `mapstructure:"db_file"`
}

// ArchiveConfig controls optional raw payload archival.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublisherConfig controls optional crawl completion events.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INVCRAWLER")
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
	v.SetDefault("api.port", 8080)
	v.SetDefault("upstream.base_url", "https://backend.liberty.mp")
	v.SetDefault("upstream.ucp_base_url", "https://ucp.liberty.mp")
	v.SetDefault("upstream.token_file", "database/token")
	v.SetDefault("upstream.timeout_seconds", 10)
	v.SetDefault("scraper.max_workers", 20)
	v.SetDefault("scraper.batch_size", 20)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.backoff_initial_ms", 250)
	v.SetDefault("scraper.backoff_max_ms", 5000)
	v.SetDefault("fetcher.transport", "direct")
	v.SetDefault("fetcher.user_agent", "invcrawler/0.1")
	v.SetDefault("fetcher.headless_max_tabs", 2)
	v.SetDefault("fetcher.headless_nav_timeout_seconds", 25)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.db_file", "database/players_db.json")
	v.SetDefault("storage.table", "players")
	v.SetDefault("roster.db_file", "database/online_db.json")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "profiles")
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.Port <= 0 {
		return fmt.Errorf("api.port must be > 0")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be > 0")
	}
	if c.Scraper.MaxWorkers <= 0 {
		return fmt.Errorf("scraper.max_workers must be > 0")
	}
	if c.Scraper.BatchSize <= 0 {
		return fmt.Errorf("scraper.batch_size must be > 0")
	}
	if c.Scraper.MaxRetries <= 0 {
		return fmt.Errorf("scraper.max_retries must be > 0")
	}
	switch c.Fetcher.Transport {
	case "direct", "headless":
	default:
		return fmt.Errorf("fetcher.transport must be direct or headless")
	}
	if c.Fetcher.Transport == "headless" && c.Fetcher.HeadlessMaxTabs <= 0 {
		return fmt.Errorf("fetcher.headless_max_tabs must be > 0 when transport is headless")
	}
	switch c.Storage.Provider {
	case "local":
		if c.Storage.DBFile == "" {
			return fmt.Errorf("storage.db_file is required for the local provider")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("storage.provider must be local or postgres")
	}
	switch c.Archive.Provider {
	case "none", "local", "gcs":
	default:
		return fmt.Errorf("archive.provider must be none, local or gcs")
	}
	if c.Archive.Provider == "local" && c.Archive.Dir == "" {
		return fmt.Errorf("archive.dir is required for the local archive provider")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket is required for the gcs archive provider")
	}
	switch c.Publisher.Provider {
	case "none", "memory", "pubsub":
	default:
		return fmt.Errorf("publisher.provider must be none, memory or pubsub")
	}
	if c.Publisher.Provider == "pubsub" && (c.Publisher.ProjectID == "" || c.Publisher.TopicName == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic_name are required for pubsub")
	}
	return nil
}

// FetchTimeout converts the upstream timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial backoff config into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Scraper.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the backoff ceiling config into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Scraper.BackoffMaxMs) * time.Millisecond
}

// OnlineURL is the roster endpoint.
func (c Config) OnlineURL() string {
	return strings.TrimRight(c.Upstream.BaseURL, "/") + "/general/online"
}

// InventoryURL is the item catalog endpoint.
func (c Config) InventoryURL() string {
	return strings.TrimRight(c.Upstream.BaseURL, "/") + "/general/inventory"
}

// VehicleDataURL is the vehicle catalog endpoint.
func (c Config) VehicleDataURL() string {
	return strings.TrimRight(c.Upstream.UCPBaseURL, "/") + "/assets/game/vehicleData.json"
}
