// Package enrich is the HTTP client for the external text-enrichment
// service. The service is best-effort by contract: every method returns
// a nil result instead of partial data when the call fails, and callers
// must treat absence as "no enrichment", never as a crawl error.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/logger"
)

const defaultTimeout = 20 * time.Second

// Location is a structured venue extracted from free text.
type Location struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
}

// Extraction is the structured view of an event description.
type Extraction struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Dates       []string  `json:"dates"`
	Location    *Location `json:"location"`
	Organizer   string    `json:"organizer"`
	Price       string    `json:"price"`
	IsFree      bool      `json:"is_free"`
	ImageURLs   []string  `json:"image_urls"`
}

// Client talks to the enrichment service.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     logger.Interface
}

// NewClient creates an enrichment client from configuration.
func NewClient(cfg config.EnrichmentConfig, log logger.Interface) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		logger:     log.WithComponent("enrich"),
	}
}

// ExtractEvent asks the service to pull structured event fields out of
// free text. Returns nil on any failure.
func (c *Client) ExtractEvent(ctx context.Context, text, sourceURL string) (*Extraction, error) {
	var out Extraction
	err := c.post(ctx, "/extract/event", map[string]string{
		"text": text,
		"url":  sourceURL,
	}, &out)
	if err != nil {
		c.logger.Warn("event extraction failed", "url", sourceURL, "error", err)
		return nil, err
	}
	return &out, nil
}

// Summarize condenses a batch of record texts into a short corpus
// summary. Returns an empty string on failure.
func (c *Client) Summarize(ctx context.Context, texts []string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	err := c.post(ctx, "/summarize", map[string]any{"texts": texts}, &out)
	if err != nil {
		c.logger.Warn("summarization failed", "count", len(texts), "error", err)
		return "", err
	}
	return out.Summary, nil
}

// Tags asks the service for topic tags describing a batch of record
// texts. Returns nil on failure.
func (c *Client) Tags(ctx context.Context, texts []string) ([]string, error) {
	var out struct {
		Tags []string `json:"tags"`
	}
	err := c.post(ctx, "/tags", map[string]any{"texts": texts}, &out)
	if err != nil {
		c.logger.Warn("tagging failed", "count", len(texts), "error", err)
		return nil, err
	}
	return out.Tags, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
