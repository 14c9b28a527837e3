package enrich_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/enrich"
	"github.com/mbeckner/civicrawl/internal/logger"
)

func newClient(t *testing.T, handler http.Handler) *enrich.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return enrich.NewClient(config.EnrichmentConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
	}, logger.NewNoOp())
}

func TestClient_ExtractEvent(t *testing.T) {
	t.Parallel()

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract/event", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req["text"], "summer concert")

		_ = json.NewEncoder(w).Encode(enrich.Extraction{
			Title:     "Summer Concert",
			Organizer: "City Cultural Office",
			IsFree:    true,
			Location:  &enrich.Location{Name: "Town Hall Square", City: "Springfield"},
			Dates:     []string{"2026-07-12T18:00:00Z"},
		})
	}))

	got, err := client.ExtractEvent(context.Background(), "the summer concert takes place ...", "https://events.example.org/e/1")
	require.NoError(t, err)
	assert.Equal(t, "Summer Concert", got.Title)
	assert.True(t, got.IsFree)
	require.NotNil(t, got.Location)
	assert.Equal(t, "Town Hall Square", got.Location.Name)
}

func TestClient_ExtractEventServerError(t *testing.T) {
	t.Parallel()

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	got, err := client.ExtractEvent(context.Background(), "text", "https://example.org")
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestClient_Summarize(t *testing.T) {
	t.Parallel()

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/summarize", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "Three new ideas about park seating."})
	}))

	got, err := client.Summarize(context.Background(), []string{"idea one", "idea two"})
	require.NoError(t, err)
	assert.Equal(t, "Three new ideas about park seating.", got)
}

func TestClient_Tags(t *testing.T) {
	t.Parallel()

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string][]string{"tags": {"parks", "seating"}})
	}))

	got, err := client.Tags(context.Background(), []string{"idea one", "idea two"})
	require.NoError(t, err)
	assert.Equal(t, []string{"parks", "seating"}, got)
}

func TestClient_SummarizeUnreachable(t *testing.T) {
	t.Parallel()

	client := enrich.NewClient(config.EnrichmentConfig{
		Endpoint: "http://127.0.0.1:1",
		Timeout:  200 * time.Millisecond,
	}, logger.NewNoOp())

	got, err := client.Summarize(context.Background(), []string{"idea"})
	require.Error(t, err)
	assert.Empty(t, got)
}
