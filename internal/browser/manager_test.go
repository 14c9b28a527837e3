package browser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeckner/civicrawl/internal/browser"
	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/logger"
)

func TestManager_NewPageRequiresStart(t *testing.T) {
	t.Parallel()

	m := browser.NewManager(config.BrowserConfig{}, logger.NewNoOp())
	_, err := m.NewPage(context.Background(), "https://example.org")
	require.Error(t, err)
}

func TestManager_ClosePageToleratesNil(t *testing.T) {
	t.Parallel()

	m := browser.NewManager(config.BrowserConfig{}, logger.NewNoOp())
	m.ClosePage(nil)
}
