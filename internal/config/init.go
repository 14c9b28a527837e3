package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Init initializes Viper configuration from environment variables and config files.
// This must be called before Load() to ensure Viper is properly configured.
func Init() error {
	loadEnvFile()
	setupViper()
	setDefaults()
	readConfigFile()

	if err := bindEnvironmentVariables(); err != nil {
		return fmt.Errorf("failed to bind environment variables: %w", err)
	}

	setupDevelopmentLogging()
	return nil
}

// loadEnvFile loads .env file (ignores error if file doesn't exist).
func loadEnvFile() {
	_ = godotenv.Load()
}

// setupViper configures Viper for environment variable and config file reading.
func setupViper() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
}

// readConfigFile reads config file (ignores error if file doesn't exist).
func readConfigFile() {
	_ = viper.ReadInConfig()
}

// setDefaults sets default configuration values.
func setDefaults() {
	// App defaults - production safe
	viper.SetDefault("app", map[string]any{
		"name":        "civicrawl",
		"environment": "production",
		"debug":       false,
	})

	// Logger defaults - production safe
	viper.SetDefault("logger", map[string]any{
		"level":        "info",
		"development":  false,
		"encoding":     "json",
		"output_paths": []string{"stdout"},
	})

	// Server defaults - production safe
	viper.SetDefault("server", map[string]any{
		"address":       ":8080",
		"read_timeout":  "15s",
		"write_timeout": "15s",
		"idle_timeout":  "60s",
	})

	// Database defaults
	viper.SetDefault("database", map[string]any{
		"host":    "127.0.0.1",
		"port":    "5432",
		"user":    "civicrawl",
		"dbname":  "civicrawl",
		"sslmode": "disable",
	})

	// Browser defaults
	viper.SetDefault("browser", map[string]any{
		"remote_url":         "",
		"navigation_timeout": "30s",
		"anchor_timeout":     "10s",
	})

	// Scheduler defaults
	viper.SetDefault("scheduler", map[string]any{
		"tick_interval": "60s",
	})

	// Crawler defaults
	viper.SetDefault("crawler", map[string]any{
		"max_pages":          defaultMaxPages,
		"detail_concurrency": defaultDetailConcurrency,
		"batch_pause":        "500ms",
		"no_new_page_limit":  defaultNoNewPageLimit,
		"retry_unit":         "1s",
	})

	// Source defaults - the municipal participation portal
	viper.SetDefault("sources", map[string]any{
		"ideas_url":  "https://mitreden.stadt-beispiel.de/ideen",
		"issues_url": "https://mitreden.stadt-beispiel.de/meldungen",
		"events_url": "https://mitreden.stadt-beispiel.de/veranstaltungen",
	})

	// Enrichment defaults - disabled until an endpoint is configured
	viper.SetDefault("enrichment", map[string]any{
		"enabled":  false,
		"endpoint": "",
		"timeout":  "20s",
	})
}

// bindEnvironmentVariables binds all environment variables to config keys.
func bindEnvironmentVariables() error {
	bindings := map[string][]string{
		"app.environment":     {"APP_ENV"},
		"app.debug":           {"APP_DEBUG"},
		"logger.level":        {"LOG_LEVEL"},
		"logger.encoding":     {"LOG_FORMAT"},
		"server.address":      {"SERVER_ADDRESS"},
		"database.host":       {"DATABASE_HOST"},
		"database.port":       {"DATABASE_PORT"},
		"database.user":       {"DATABASE_USER"},
		"database.password":   {"DATABASE_PASSWORD"},
		"database.dbname":     {"DATABASE_NAME"},
		"database.sslmode":    {"DATABASE_SSLMODE"},
		"browser.remote_url":  {"BROWSER_REMOTE_URL"},
		"enrichment.enabled":  {"ENRICHMENT_ENABLED"},
		"enrichment.endpoint": {"ENRICHMENT_ENDPOINT"},
		"enrichment.api_key":  {"ENRICHMENT_API_KEY"},
	}

	for key, envVars := range bindings {
		if err := viper.BindEnv(append([]string{key}, envVars...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", envVars[0], err)
		}
	}
	return nil
}

// setupDevelopmentLogging configures logging settings based on environment variables.
// Debug level (APP_DEBUG) and development formatting (APP_ENV) are separate concerns:
// debug logs can be enabled in production for troubleshooting.
func setupDevelopmentLogging() {
	if viper.GetBool("app.debug") {
		viper.Set("logger.level", "debug")
	}

	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
		viper.Set("logger.encoding", "console")
	}
}
