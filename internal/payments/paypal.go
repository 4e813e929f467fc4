package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayPalConfig represents PayPal REST API client configuration.
type PayPalConfig struct {
	APIURL       string        `yaml:"api_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
}

// PayPalClient is a minimal client for the PayPal Orders v2 API.
type PayPalClient struct {
	config     *PayPalConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// PayPalCapture is the authoritative outcome of a capture call. Amount and
// currency come from PayPal's capture record, never from the client.
type PayPalCapture struct {
	OrderID   string
	CaptureID string
	Status    string
	Amount    decimal.Decimal
	Currency  string
}

// NewPayPalClient creates a new PayPal client.
func NewPayPalClient(config *PayPalConfig, logger *zap.Logger) (*PayPalClient, error) {
	if config.APIURL == "" || config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("paypal api url, client id and client secret are required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &PayPalClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.Named("paypal_client"),
	}, nil
}

// generateAccessToken obtains an OAuth 2.0 access token via the
// client-credentials grant.
func (c *PayPalClient) generateAccessToken(ctx context.Context) (string, error) {
	endpoint := strings.TrimSuffix(c.config.APIURL, "/") + "/v1/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.config.ClientID + ":" + c.config.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return body.AccessToken, nil
}

// CreateOrder creates a CAPTURE-intent order and returns its id.
func (c *PayPalClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, error) {
	token, err := c.generateAccessToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"amount": map[string]string{
					"currency_code": currency,
					"value":         amount.StringFixed(2),
				},
				"description": description,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order payload: %w", err)
	}

	endpoint := strings.TrimSuffix(c.config.APIURL, "/") + "/v2/checkout/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create order: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("create order failed with status %d", resp.StatusCode)
	}

	var order struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &order); err != nil || order.ID == "" {
		return "", fmt.Errorf("create order response missing id")
	}

	c.logger.Info("PayPal order created", zap.String("order_id", order.ID))
	return order.ID, nil
}

// CaptureOrder captures the funds for an approved order and returns the
// authoritative captured amount.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*PayPalCapture, error) {
	token, err := c.generateAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", strings.TrimSuffix(c.config.APIURL, "/"), orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to capture order: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("capture order failed with status %d", resp.StatusCode)
	}

	var body struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Amount struct {
						CurrencyCode string `json:"currency_code"`
						Value        string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(respBody, &body); err != nil {
		return nil, fmt.Errorf("failed to decode capture response: %w", err)
	}

	capture := &PayPalCapture{
		OrderID: orderID,
		Status:  body.Status,
	}

	if len(body.PurchaseUnits) > 0 && len(body.PurchaseUnits[0].Payments.Captures) > 0 {
		raw := body.PurchaseUnits[0].Payments.Captures[0]
		amount, err := decimal.NewFromString(raw.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("capture response carries invalid amount %q: %w", raw.Amount.Value, err)
		}
		capture.CaptureID = raw.ID
		capture.Amount = amount
		capture.Currency = raw.Amount.CurrencyCode
	}

	c.logger.Info("PayPal capture returned",
		zap.String("order_id", orderID),
		zap.String("status", capture.Status),
		zap.String("amount", capture.Amount.String()),
	)
	return capture, nil
}
