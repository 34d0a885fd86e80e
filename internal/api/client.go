package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sentira/feedsync/internal/history"
)

// ErrNotFound indicates the remote API has no job with the requested ID
var ErrNotFound = errors.New("sync not found")

// Config holds remote sync API client settings
type Config struct {
	// Base URL of the sync API, e.g. "https://api.example.com"
	BaseURL string `toml:"base_url"`

	// Per-request timeout
	Timeout time.Duration `toml:"timeout"`
}

// DefaultConfig returns client configuration defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// validateConfig validates client configuration and returns error if invalid
func validateConfig(config Config) error {
	if config.BaseURL == "" {
		return fmt.Errorf("BaseURL must not be empty")
	}

	if _, err := url.Parse(config.BaseURL); err != nil {
		return fmt.Errorf("BaseURL is not a valid URL: %w", err)
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", config.Timeout)
	}

	return nil
}

// Client talks to the remote sync API. It performs no retry or backoff of its
// own; callers decide how a failed call degrades.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a sync API client with validated configuration
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// StartThemeSync asks the backend to reclassify workspace data against the
// current theme set. Returns the job ID to poll.
func (c *Client) StartThemeSync(ctx context.Context, workspaceID string) (StartThemeSyncResult, error) {
	var result StartThemeSyncResult

	path := fmt.Sprintf("/api/v1/workspaces/%s/syncs/themes", url.PathEscape(workspaceID))
	if err := c.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return StartThemeSyncResult{}, fmt.Errorf("start theme sync: %w", err)
	}

	return result, nil
}

// StartAllSourcesSync asks the backend to re-ingest every configured
// connector. The response may describe zero operations when no connectors are
// configured; the caller decides how to surface that.
func (c *Client) StartAllSourcesSync(ctx context.Context, workspaceID string) (StartAllSourcesSyncResult, error) {
	var result StartAllSourcesSyncResult

	path := fmt.Sprintf("/api/v1/workspaces/%s/syncs/sources", url.PathEscape(workspaceID))
	if err := c.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return StartAllSourcesSyncResult{}, fmt.Errorf("start all-sources sync: %w", err)
	}

	return result, nil
}

// SyncStatus fetches the current status of one job. A pure read with no remote
// side effects. Errors mean "unknown this tick", never job failure; a missing
// job wraps ErrNotFound.
func (c *Client) SyncStatus(ctx context.Context, workspaceID, syncID string) (*history.SyncRecord, error) {
	var resp syncStatusResponse

	path := fmt.Sprintf("/api/v1/workspaces/%s/syncs/%s",
		url.PathEscape(workspaceID), url.PathEscape(syncID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("sync status %s: %w", syncID, err)
	}

	status, err := history.ParseStatus(resp.Status)
	if err != nil {
		return nil, fmt.Errorf("sync status %s: %w", syncID, err)
	}

	rec := &history.SyncRecord{
		ID:             syncID,
		DisplayName:    resp.SourceName,
		Status:         status,
		ItemsProcessed: resp.ItemsProcessed,
		ItemsNew:       resp.ItemsNew,
		ErrorMessage:   resp.ErrorMessage,
	}
	if resp.StartedAt != nil {
		rec.StartedAt = *resp.StartedAt
	}

	return rec, nil
}

// SyncHistory fetches one page of the workspace sync history, newest-first
func (c *Client) SyncHistory(ctx context.Context, workspaceID string, page, pageSize int, filter HistoryFilter) (HistoryPage, error) {
	var result HistoryPage

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if filter.Kind != "" {
		q.Set("kind", filter.Kind)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Trigger != "" {
		q.Set("trigger", filter.Trigger)
	}

	path := fmt.Sprintf("/api/v1/workspaces/%s/syncs?%s", url.PathEscape(workspaceID), q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return HistoryPage{}, fmt.Errorf("sync history: %w", err)
	}

	return result, nil
}

// do performs one HTTP round trip and decodes the JSON response into out
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("sync api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
