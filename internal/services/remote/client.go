// Package remote provides a client for the record service HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the record service API.
	DefaultBaseURL = "http://localhost:8790"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5
)

// Client is a record service API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

var _ interfaces.RecordService = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout on the default client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new record service client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an error from the record service API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("record service error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// do performs a request and decodes the JSON response into result.
// A nil result discards the response body.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s", c.baseURL, path)
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, params.Encode())
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("url", c.baseURL+path).
			Msg("Record service request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			Endpoint:   path,
		}
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetRecord fetches one record by id.
func (c *Client) GetRecord(ctx context.Context, table, id string) (map[string]interface{}, error) {
	var record map[string]interface{}
	path := fmt.Sprintf("/v1/records/%s/%s", url.PathEscape(table), url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &record); err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", table, id, err)
	}
	return record, nil
}

// ListRecords fetches up to limit records whose fields match the filter.
func (c *Client) ListRecords(ctx context.Context, table string, filter map[string]string, limit int) ([]map[string]interface{}, error) {
	params := url.Values{}
	for k, v := range filter {
		params.Set(k, v)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var records []map[string]interface{}
	path := fmt.Sprintf("/v1/records/%s", url.PathEscape(table))
	if err := c.do(ctx, http.MethodGet, path, params, nil, &records); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return records, nil
}

// CreateRecord creates a record and returns the id assigned by the service.
func (c *Client) CreateRecord(ctx context.Context, table string, data map[string]interface{}) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/v1/records/%s", url.PathEscape(table))
	if err := c.do(ctx, http.MethodPost, path, nil, data, &created); err != nil {
		return "", fmt.Errorf("failed to create %s record: %w", table, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create %s record: response missing id", table)
	}
	return created.ID, nil
}

// UpdateRecord applies a partial update to an existing record.
func (c *Client) UpdateRecord(ctx context.Context, table, id string, data map[string]interface{}) error {
	path := fmt.Sprintf("/v1/records/%s/%s", url.PathEscape(table), url.PathEscape(id))
	if err := c.do(ctx, http.MethodPatch, path, nil, data, nil); err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", table, id, err)
	}
	return nil
}

// DeleteRecord removes a record.
func (c *Client) DeleteRecord(ctx context.Context, table, id string) error {
	path := fmt.Sprintf("/v1/records/%s/%s", url.PathEscape(table), url.PathEscape(id))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	return nil
}
