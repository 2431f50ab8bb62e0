// Package insight is the HTTP client for the external report-analysis
// service, which offers free-text suggestions and report field extraction.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds one insight service call.
const DefaultTimeout = 30 * time.Second

// Opts holds configuration options for the insight client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the insight client.
type Option func(*Opts)

// WithBaseURL sets the insight service base URL (e.g. "http://127.0.0.1:8000").
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client calls the insight service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an insight client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("insight service base URL not set")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}, nil
}

type suggestRequest struct {
	UserID    string `json:"user_id"`
	UserQuery string `json:"user_query"`
}

type suggestResponse struct {
	Suggestions string `json:"suggestions"`
}

type extractRequest struct {
	UserID  string `json:"user_id"`
	FileURL string `json:"file_url"`
}

// Suggest forwards a free-text query and returns the service's suggestion text.
func (c *Client) Suggest(ctx context.Context, userID, query string) (string, error) {
	var resp suggestResponse
	if err := c.post(ctx, "/suggest", suggestRequest{UserID: userID, UserQuery: query}, &resp); err != nil {
		slog.Error("Insight Suggest failed", "error", err, "userID", userID)
		return "", err
	}
	slog.Debug("Insight Suggest succeeded", "userID", userID)
	return resp.Suggestions, nil
}

// NotifyExtraction asks the service to process an uploaded report.
// Callers treat this as fire-and-forget; failures are logged upstream.
func (c *Client) NotifyExtraction(ctx context.Context, userID, fileURL string) error {
	if err := c.post(ctx, "/extract", extractRequest{UserID: userID, FileURL: fileURL}, nil); err != nil {
		slog.Error("Insight NotifyExtraction failed", "error", err, "userID", userID)
		return err
	}
	slog.Debug("Insight NotifyExtraction succeeded", "userID", userID)
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("insight service %s call failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("insight service %s returned status %d: %s", path, resp.StatusCode, raw)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
