// Package config provides application configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Crawler defaults.
const (
	defaultMaxPages          = 50
	defaultDetailConcurrency = 2
	defaultNoNewPageLimit    = 3
)

// Config is the root application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Browser    BrowserConfig
	Scheduler  SchedulerConfig
	Crawler    CrawlerConfig
	Sources    SourcesConfig
	Enrichment EnrichmentConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
}

// LoggerConfig holds logger settings.
type LoggerConfig struct {
	Level       string
	Development bool
	Encoding    string
	OutputPaths []string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// BrowserConfig holds headless browser settings.
type BrowserConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via the rod launcher.
	RemoteURL         string
	NavigationTimeout time.Duration
	AnchorTimeout     time.Duration
}

// SchedulerConfig holds scheduler settings.
type SchedulerConfig struct {
	TickInterval time.Duration
}

// CrawlerConfig holds per-crawl behavior settings shared by all sources.
type CrawlerConfig struct {
	// MaxPages caps listing pagination per crawl.
	MaxPages int
	// DetailConcurrency bounds in-flight detail fetches. The browser
	// backend crashes under unbounded parallel sessions, so keep it small.
	DetailConcurrency int
	// BatchPause is the pause between detail-fetch batches.
	BatchPause time.Duration
	// NoNewPageLimit stops the crawl after this many consecutive pages
	// that yielded no unseen external ids.
	NoNewPageLimit int
	// RetryUnit is the base delay unit for detail-fetch retries.
	RetryUnit time.Duration
}

// SourcesConfig holds the listing base URLs of the crawled portals.
type SourcesConfig struct {
	IdeasURL  string
	IssuesURL string
	EventsURL string
}

// EnrichmentConfig holds text-enrichment service settings.
type EnrichmentConfig struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Load builds the typed configuration from Viper state.
// Init() must have been called first.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        viper.GetString("app.name"),
			Environment: viper.GetString("app.environment"),
			Debug:       viper.GetBool("app.debug"),
		},
		Logger: LoggerConfig{
			Level:       viper.GetString("logger.level"),
			Development: viper.GetBool("logger.development"),
			Encoding:    viper.GetString("logger.encoding"),
			OutputPaths: viper.GetStringSlice("logger.output_paths"),
		},
		Server: ServerConfig{
			Address:      viper.GetString("server.address"),
			ReadTimeout:  viper.GetDuration("server.read_timeout"),
			WriteTimeout: viper.GetDuration("server.write_timeout"),
			IdleTimeout:  viper.GetDuration("server.idle_timeout"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetString("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.dbname"),
			SSLMode:  viper.GetString("database.sslmode"),
		},
		Browser: BrowserConfig{
			RemoteURL:         viper.GetString("browser.remote_url"),
			NavigationTimeout: viper.GetDuration("browser.navigation_timeout"),
			AnchorTimeout:     viper.GetDuration("browser.anchor_timeout"),
		},
		Scheduler: SchedulerConfig{
			TickInterval: viper.GetDuration("scheduler.tick_interval"),
		},
		Crawler: CrawlerConfig{
			MaxPages:          viper.GetInt("crawler.max_pages"),
			DetailConcurrency: viper.GetInt("crawler.detail_concurrency"),
			BatchPause:        viper.GetDuration("crawler.batch_pause"),
			NoNewPageLimit:    viper.GetInt("crawler.no_new_page_limit"),
			RetryUnit:         viper.GetDuration("crawler.retry_unit"),
		},
		Sources: SourcesConfig{
			IdeasURL:  viper.GetString("sources.ideas_url"),
			IssuesURL: viper.GetString("sources.issues_url"),
			EventsURL: viper.GetString("sources.events_url"),
		},
		Enrichment: EnrichmentConfig{
			Enabled:  viper.GetBool("enrichment.enabled"),
			Endpoint: viper.GetString("enrichment.endpoint"),
			APIKey:   viper.GetString("enrichment.api_key"),
			Timeout:  viper.GetDuration("enrichment.timeout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants that would otherwise surface
// as confusing runtime failures.
func (c *Config) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Crawler.DetailConcurrency < 1 {
		return fmt.Errorf("crawler.detail_concurrency must be at least 1, got %d", c.Crawler.DetailConcurrency)
	}
	if c.Crawler.NoNewPageLimit < 1 {
		return fmt.Errorf("crawler.no_new_page_limit must be at least 1, got %d", c.Crawler.NoNewPageLimit)
	}
	if c.Enrichment.Enabled && c.Enrichment.Endpoint == "" {
		return fmt.Errorf("enrichment.endpoint is required when enrichment is enabled")
	}
	return nil
}
