package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/events"
	"github.com/deepshark/deepshark-backend/internal/models"
	"github.com/deepshark/deepshark-backend/internal/payments"
)

// SettlementStore is the storage surface the settlement service needs.
type SettlementStore interface {
	SettlePayment(ctx context.Context, txn *models.Transaction) (*models.SettlementResult, error)
	ListTransactions(ctx context.Context, req *models.TransactionHistoryRequest) ([]*models.Transaction, error)
}

// PayPalGateway is the PayPal API surface the settlement service needs.
type PayPalGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (*payments.PayPalCapture, error)
}

// RazorpayGateway is the Razorpay API surface the settlement service needs.
type RazorpayGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (string, error)
	GetPayment(ctx context.Context, paymentID string) (*payments.RazorpayPayment, error)
}

// Rates maps paid currency amounts to credits. Credits are always the floor
// of amount times rate; the fractional remainder is never granted.
type Rates struct {
	PayPalCreditsPerUSD   decimal.Decimal
	PayPalMinimumUSD      decimal.Decimal
	RazorpayCreditsPerINR decimal.Decimal
	RazorpayMinimumINR    decimal.Decimal
}

// DefaultRates returns the production conversion rates: 50 credits per USD
// with a $5 minimum, 0.6 credits per INR with a Rs 1 minimum.
func DefaultRates() Rates {
	return Rates{
		PayPalCreditsPerUSD:   decimal.NewFromInt(50),
		PayPalMinimumUSD:      decimal.NewFromInt(5),
		RazorpayCreditsPerINR: decimal.RequireFromString("0.6"),
		RazorpayMinimumINR:    decimal.NewFromInt(1),
	}
}

// SettlementService turns verified payment captures into credited balances,
// exactly once per capture.
type SettlementService struct {
	store          SettlementStore
	paypal         PayPalGateway
	razorpay       RazorpayGateway
	razorpaySecret string
	rates          Rates
	publisher      *events.Publisher
	logger         *zap.Logger
}

// NewSettlementService creates a new settlement service.
func NewSettlementService(
	store SettlementStore,
	paypal PayPalGateway,
	razorpay RazorpayGateway,
	razorpaySecret string,
	rates Rates,
	publisher *events.Publisher,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		store:          store,
		paypal:         paypal,
		razorpay:       razorpay,
		razorpaySecret: razorpaySecret,
		rates:          rates,
		publisher:      publisher,
		logger:         logger.Named("settlement_service"),
	}
}

// creditsFor converts a paid amount to credits: floor(amount * rate).
func creditsFor(amount, rate decimal.Decimal) int {
	return int(amount.Mul(rate).Floor().IntPart())
}

// CreatePayPalOrder validates the purchase amount and creates a PayPal order.
func (s *SettlementService) CreatePayPalOrder(ctx context.Context, amount decimal.Decimal) (string, error) {
	if amount.LessThan(s.rates.PayPalMinimumUSD) {
		return "", models.NewValidationError("amount",
			"minimum purchase is $"+s.rates.PayPalMinimumUSD.String())
	}

	credits := creditsFor(amount, s.rates.PayPalCreditsPerUSD)
	description := "DeepShark credits"

	orderID, err := s.paypal.CreateOrder(ctx, amount, "USD", description)
	if err != nil {
		return "", models.NewServiceError(models.ErrCodeProviderFailure, "Failed to create order", err)
	}

	s.logger.Info("PayPal order opened",
		zap.String("order_id", orderID),
		zap.String("amount", amount.String()),
		zap.Int("credits", credits),
	)
	return orderID, nil
}

// CapturePayPalOrder captures an approved order and settles the credits. The
// credited amount comes from PayPal's capture record, never from the client.
func (s *SettlementService) CapturePayPalOrder(ctx context.Context, accountID uuid.UUID, orderID string) (*models.SettlementResult, error) {
	capture, err := s.paypal.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, models.NewServiceError(models.ErrCodeProviderFailure, "Failed to capture order", err)
	}

	if capture.Status != "COMPLETED" {
		return nil, models.NewPaymentNotCompletedError(orderID, capture.Status)
	}
	if capture.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, models.NewPaymentNotCompletedError(orderID, "zero capture amount")
	}

	// The capture id, not the order id, is the idempotency key: one order
	// yields at most one capture, and replays of the same capture collide.
	captureID := capture.CaptureID
	if captureID == "" {
		captureID = orderID
	}

	result, err := s.store.SettlePayment(ctx, &models.Transaction{
		AccountID:             accountID,
		Amount:                capture.Amount,
		Currency:              strings.ToLower(capture.Currency),
		Credits:               creditsFor(capture.Amount, s.rates.PayPalCreditsPerUSD),
		Provider:              models.ProviderPayPal,
		ProviderTransactionID: captureID,
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadySettled {
		s.publisher.Publish(events.SubjectPaymentSettled, &events.SettlementEvent{
			TransactionID: result.TransactionID,
			AccountID:     accountID,
			Provider:      string(models.ProviderPayPal),
			Credits:       result.CreditsAdded,
			Timestamp:     time.Now().UTC(),
		})
	}
	return result, nil
}

// CreateRazorpayOrder validates the purchase amount (in rupees) and creates
// a Razorpay order.
func (s *SettlementService) CreateRazorpayOrder(ctx context.Context, amount decimal.Decimal) (string, error) {
	if amount.LessThan(s.rates.RazorpayMinimumINR) {
		return "", models.NewValidationError("amount",
			"minimum purchase is Rs "+s.rates.RazorpayMinimumINR.String())
	}

	receipt := "ds_" + uuid.New().String()[:18]
	orderID, err := s.razorpay.CreateOrder(ctx, amount, receipt)
	if err != nil {
		return "", models.NewServiceError(models.ErrCodeProviderFailure, "Failed to create order", err)
	}

	s.logger.Info("Razorpay order opened",
		zap.String("order_id", orderID),
		zap.String("amount", amount.String()),
	)
	return orderID, nil
}

// VerifyRazorpayPayment checks the checkout signature, fetches the
// authoritative payment record, and settles the credits. The signature check
// runs before anything touches the store; a forged callback changes nothing.
func (s *SettlementService) VerifyRazorpayPayment(ctx context.Context, accountID uuid.UUID, orderID, paymentID, signature string) (*models.SettlementResult, error) {
	if !payments.VerifyRazorpaySignature(orderID, paymentID, signature, s.razorpaySecret) {
		s.logger.Warn("Razorpay signature verification failed",
			zap.String("order_id", orderID),
			zap.String("payment_id", paymentID),
			zap.String("account_id", accountID.String()),
		)
		return nil, models.NewInvalidSignatureError()
	}

	payment, err := s.razorpay.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, models.NewServiceError(models.ErrCodeProviderFailure, "Failed to fetch payment", err)
	}

	if payment.OrderID != orderID {
		return nil, models.NewInvalidSignatureError()
	}
	if payment.Status != "captured" {
		return nil, models.NewPaymentNotCompletedError(orderID, payment.Status)
	}

	result, err := s.store.SettlePayment(ctx, &models.Transaction{
		AccountID:             accountID,
		Amount:                payment.Amount,
		Currency:              strings.ToLower(payment.Currency),
		Credits:               creditsFor(payment.Amount, s.rates.RazorpayCreditsPerINR),
		Provider:              models.ProviderRazorpay,
		ProviderTransactionID: paymentID,
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadySettled {
		s.publisher.Publish(events.SubjectPaymentSettled, &events.SettlementEvent{
			TransactionID: result.TransactionID,
			AccountID:     accountID,
			Provider:      string(models.ProviderRazorpay),
			Credits:       result.CreditsAdded,
			Timestamp:     time.Now().UTC(),
		})
	}
	return result, nil
}

// TransactionHistory returns an account's ledger history, newest first.
func (s *SettlementService) TransactionHistory(ctx context.Context, req *models.TransactionHistoryRequest) ([]*models.Transaction, error) {
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}
	return s.store.ListTransactions(ctx, req)
}
