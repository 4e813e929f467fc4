package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config represents generation provider client configuration
type Config struct {
	// BaseURL is the synchronous execution endpoint, e.g. https://fal.run
	BaseURL string `yaml:"base_url"`
	// QueueURL is the asynchronous queue endpoint, e.g. https://queue.fal.run
	QueueURL string `yaml:"queue_url"`
	APIKey   string `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Client is an explicit, injected client for the external generation
// provider. All provider access flows through this one instance; there is no
// package-level configuration.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Result represents a completed generation response.
type Result struct {
	RequestID string
	Data      map[string]interface{}
}

// QueueStatusResponse represents the state of a queued request.
type QueueStatusResponse struct {
	Status      string `json:"status"` // IN_QUEUE, IN_PROGRESS, COMPLETED, FAILED
	RequestID   string `json:"request_id"`
	ResponseURL string `json:"response_url"`
}

// ProviderError carries the upstream HTTP status for refund bookkeeping.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new generation provider client
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("provider API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://fal.run"
	}
	if config.QueueURL == "" {
		config.QueueURL = "https://queue.fal.run"
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.Named("fal_client"),
	}, nil
}

// Run invokes a model synchronously and returns its decoded response.
// The call is bounded by the configured timeout; a timeout surfaces as a
// ProviderError so the caller's refund path applies.
func (c *Client) Run(ctx context.Context, modelID string, payload map[string]interface{}) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(modelID, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.AuthHeader())

	c.logger.Debug("Invoking generation model",
		zap.String("model_id", modelID),
		zap.Int("payload_bytes", len(body)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{StatusCode: http.StatusGatewayTimeout, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), 512)}
	}

	var data map[string]interface{}
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "malformed provider response"}
	}

	return &Result{
		RequestID: resp.Header.Get("X-Fal-Request-Id"),
		Data:      data,
	}, nil
}

// QueueStatus polls the state of a queued request.
func (c *Client) QueueStatus(ctx context.Context, modelID, requestID string) (*QueueStatusResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/requests/%s/status",
		strings.TrimSuffix(c.config.QueueURL, "/"), strings.Trim(modelID, "/"), requestID)

	var status QueueStatusResponse
	if err := c.getJSON(ctx, endpoint, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// QueueResult fetches the final response of a completed queued request.
func (c *Client) QueueResult(ctx context.Context, modelID, requestID string) (*Result, error) {
	endpoint := fmt.Sprintf("%s/%s/requests/%s",
		strings.TrimSuffix(c.config.QueueURL, "/"), strings.Trim(modelID, "/"), requestID)

	var data map[string]interface{}
	if err := c.getJSON(ctx, endpoint, &data); err != nil {
		return nil, err
	}
	return &Result{RequestID: requestID, Data: data}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", c.AuthHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{StatusCode: http.StatusGatewayTimeout, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &ProviderError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), 512)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProviderError{StatusCode: resp.StatusCode, Message: "malformed provider response"}
	}
	return nil
}

// AuthHeader returns the provider credential header value. The proxy handler
// injects this on pass-through requests so the key never reaches clients.
func (c *Client) AuthHeader() string {
	return "Key " + c.config.APIKey
}

// AllowedTarget reports whether an outbound proxy target points at one of
// the provider's own hosts. Anything else is rejected before credits move.
func (c *Client) AllowedTarget(target string) bool {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme != "https" {
		return false
	}
	for _, base := range []string{c.config.BaseURL, c.config.QueueURL} {
		if allowed, err := url.Parse(base); err == nil && parsed.Host == allowed.Host {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
