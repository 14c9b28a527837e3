package config_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeckner/civicrawl/internal/config"
)

// Viper state is package global, so these subtests run sequentially and
// re-init before each case.

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		require.NoError(t, config.Init())

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Server.Address)
		assert.Equal(t, 50, cfg.Crawler.MaxPages)
		assert.Equal(t, 2, cfg.Crawler.DetailConcurrency)
		assert.Equal(t, 3, cfg.Crawler.NoNewPageLimit)
		assert.NotEmpty(t, cfg.Sources.IdeasURL)
		assert.False(t, cfg.Enrichment.Enabled)
	})

	t.Run("environment override", func(t *testing.T) {
		viper.Reset()
		t.Setenv("CRAWLER_MAX_PAGES", "5")
		require.NoError(t, config.Init())

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Crawler.MaxPages)
	})

	t.Run("rejects zero detail concurrency", func(t *testing.T) {
		viper.Reset()
		require.NoError(t, config.Init())
		viper.Set("crawler.detail_concurrency", 0)

		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "detail_concurrency")
	})

	t.Run("rejects enrichment without endpoint", func(t *testing.T) {
		viper.Reset()
		require.NoError(t, config.Init())
		viper.Set("enrichment.enabled", true)
		viper.Set("enrichment.endpoint", "")

		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "enrichment.endpoint")
	})
}
