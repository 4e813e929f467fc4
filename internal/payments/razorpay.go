package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RazorpayConfig represents Razorpay API client configuration.
type RazorpayConfig struct {
	APIURL    string        `yaml:"api_url"`
	KeyID     string        `yaml:"key_id"`
	KeySecret string        `yaml:"key_secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RazorpayClient is a minimal client for the Razorpay Orders and Payments APIs.
type RazorpayClient struct {
	config     *RazorpayConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// RazorpayPayment is the authoritative payment record fetched from Razorpay.
// Amount is in rupees (converted from the API's paise).
type RazorpayPayment struct {
	ID       string
	OrderID  string
	Status   string
	Amount   decimal.Decimal
	Currency string
}

// NewRazorpayClient creates a new Razorpay client.
func NewRazorpayClient(config *RazorpayConfig, logger *zap.Logger) (*RazorpayClient, error) {
	if config.KeyID == "" || config.KeySecret == "" {
		return nil, fmt.Errorf("razorpay key id and key secret are required")
	}
	if config.APIURL == "" {
		config.APIURL = "https://api.razorpay.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &RazorpayClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.Named("razorpay_client"),
	}, nil
}

// CreateOrder creates an order for the given rupee amount and returns its id.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (string, error) {
	// The API takes the amount in paise.
	paise := amount.Mul(decimal.NewFromInt(100)).IntPart()

	payload := map[string]interface{}{
		"amount":   paise,
		"currency": "INR",
		"receipt":  receipt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order payload: %w", err)
	}

	endpoint := strings.TrimSuffix(c.config.APIURL, "/") + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build order request: %w", err)
	}
	req.SetBasicAuth(c.config.KeyID, c.config.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("create order failed with status %d", resp.StatusCode)
	}

	var order struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&order); err != nil || order.ID == "" {
		return "", fmt.Errorf("create order response missing id")
	}

	c.logger.Info("Razorpay order created", zap.String("order_id", order.ID))
	return order.ID, nil
}

// GetPayment fetches the payment record from Razorpay. The amount it returns
// is the settlement authority; client-supplied amounts are never trusted.
func (c *RazorpayClient) GetPayment(ctx context.Context, paymentID string) (*RazorpayPayment, error) {
	endpoint := strings.TrimSuffix(c.config.APIURL, "/") + "/v1/payments/" + paymentID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment request: %w", err)
	}
	req.SetBasicAuth(c.config.KeyID, c.config.KeySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch payment failed with status %d", resp.StatusCode)
	}

	var body struct {
		ID       string `json:"id"`
		OrderID  string `json:"order_id"`
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode payment response: %w", err)
	}

	return &RazorpayPayment{
		ID:       body.ID,
		OrderID:  body.OrderID,
		Status:   body.Status,
		Amount:   decimal.NewFromInt(body.Amount).Div(decimal.NewFromInt(100)),
		Currency: body.Currency,
	}, nil
}

// VerifyRazorpaySignature checks the checkout callback signature: an
// HMAC-SHA256 of "orderID|paymentID" keyed with the key secret. The compare
// is constant-time.
func VerifyRazorpaySignature(orderID, paymentID, signature, keySecret string) bool {
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
