package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/models"
	"github.com/deepshark/deepshark-backend/internal/payments"
)

// fakeSettlementStore mirrors the real store's idempotency: a replayed
// provider transaction id returns the original settlement.
type fakeSettlementStore struct {
	mu       sync.Mutex
	settled  map[string]*models.Transaction
	balances map[uuid.UUID]int
}

func newFakeSettlementStore() *fakeSettlementStore {
	return &fakeSettlementStore{
		settled:  make(map[string]*models.Transaction),
		balances: make(map[uuid.UUID]int),
	}
}

func (s *fakeSettlementStore) SettlePayment(_ context.Context, txn *models.Transaction) (*models.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(txn.Provider) + "/" + txn.ProviderTransactionID
	if existing, ok := s.settled[key]; ok {
		return &models.SettlementResult{
			TransactionID:  existing.ID,
			CreditsAdded:   existing.Credits,
			NewBalance:     s.balances[existing.AccountID],
			AlreadySettled: true,
		}, nil
	}

	txn.ID = uuid.New()
	s.settled[key] = txn
	s.balances[txn.AccountID] += txn.Credits
	return &models.SettlementResult{
		TransactionID: txn.ID,
		CreditsAdded:  txn.Credits,
		NewBalance:    s.balances[txn.AccountID],
	}, nil
}

func (s *fakeSettlementStore) ListTransactions(_ context.Context, req *models.TransactionHistoryRequest) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	for _, txn := range s.settled {
		if txn.AccountID == req.AccountID {
			out = append(out, txn)
		}
	}
	return out, nil
}

type fakePayPal struct {
	capture *payments.PayPalCapture
	err     error
}

func (g *fakePayPal) CreateOrder(_ context.Context, amount decimal.Decimal, currency, description string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "ORDER-1", nil
}

func (g *fakePayPal) CaptureOrder(_ context.Context, orderID string) (*payments.PayPalCapture, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.capture, nil
}

type fakeRazorpay struct {
	payment *payments.RazorpayPayment
	calls   int
	err     error
}

func (g *fakeRazorpay) CreateOrder(_ context.Context, amount decimal.Decimal, receipt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "order_rzp1", nil
}

func (g *fakeRazorpay) GetPayment(_ context.Context, paymentID string) (*payments.RazorpayPayment, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.payment, nil
}

const testRazorpaySecret = "test_secret"

func signRazorpay(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testRazorpaySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestSettlement(store *fakeSettlementStore, paypal *fakePayPal, razorpay *fakeRazorpay) *SettlementService {
	return NewSettlementService(store, paypal, razorpay, testRazorpaySecret, DefaultRates(), nil, zap.NewNop())
}

func TestCreatePayPalOrderMinimum(t *testing.T) {
	svc := newTestSettlement(newFakeSettlementStore(), &fakePayPal{}, &fakeRazorpay{})

	_, err := svc.CreatePayPalOrder(context.Background(), decimal.NewFromInt(4))
	var svcErr *models.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != models.ErrCodeValidationFailed {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}

	if _, err := svc.CreatePayPalOrder(context.Background(), decimal.NewFromInt(5)); err != nil {
		t.Fatalf("minimum amount rejected: %v", err)
	}
}

func TestCapturePayPalOrderFloorsCredits(t *testing.T) {
	store := newFakeSettlementStore()
	accountID := uuid.New()

	paypal := &fakePayPal{capture: &payments.PayPalCapture{
		OrderID:   "ORDER-1",
		CaptureID: "CAP-1",
		Status:    "COMPLETED",
		Amount:    decimal.RequireFromString("20.00"),
		Currency:  "USD",
	}}
	svc := newTestSettlement(store, paypal, &fakeRazorpay{})

	result, err := svc.CapturePayPalOrder(context.Background(), accountID, "ORDER-1")
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if result.CreditsAdded != 1000 {
		t.Errorf("credits = %d, want 1000 for $20 at 50/USD", result.CreditsAdded)
	}

	// Fractional remainder is dropped, never rounded up.
	paypal.capture.CaptureID = "CAP-2"
	paypal.capture.Amount = decimal.RequireFromString("5.99")
	result, err = svc.CapturePayPalOrder(context.Background(), accountID, "ORDER-2")
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if result.CreditsAdded != 299 {
		t.Errorf("credits = %d, want 299 for $5.99", result.CreditsAdded)
	}
}

func TestCapturePayPalOrderNotCompleted(t *testing.T) {
	store := newFakeSettlementStore()
	paypal := &fakePayPal{capture: &payments.PayPalCapture{
		OrderID: "ORDER-1",
		Status:  "PENDING",
	}}
	svc := newTestSettlement(store, paypal, &fakeRazorpay{})

	_, err := svc.CapturePayPalOrder(context.Background(), uuid.New(), "ORDER-1")
	var svcErr *models.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != models.ErrCodePaymentNotCompleted {
		t.Fatalf("err = %v, want PAYMENT_NOT_COMPLETED", err)
	}
	if len(store.settled) != 0 {
		t.Error("incomplete capture must not settle")
	}
}

func TestCapturePayPalOrderIdempotentReplay(t *testing.T) {
	store := newFakeSettlementStore()
	accountID := uuid.New()

	paypal := &fakePayPal{capture: &payments.PayPalCapture{
		OrderID:   "ORDER-1",
		CaptureID: "CAP-1",
		Status:    "COMPLETED",
		Amount:    decimal.NewFromInt(20),
		Currency:  "USD",
	}}
	svc := newTestSettlement(store, paypal, &fakeRazorpay{})

	first, err := svc.CapturePayPalOrder(context.Background(), accountID, "ORDER-1")
	if err != nil {
		t.Fatalf("first capture failed: %v", err)
	}
	second, err := svc.CapturePayPalOrder(context.Background(), accountID, "ORDER-1")
	if err != nil {
		t.Fatalf("replayed capture failed: %v", err)
	}

	if !second.AlreadySettled {
		t.Error("replay must report already settled")
	}
	if second.TransactionID != first.TransactionID {
		t.Error("replay must return the original transaction")
	}
	if store.balances[accountID] != 1000 {
		t.Errorf("balance = %d, want 1000 (credited once)", store.balances[accountID])
	}
}

func TestVerifyRazorpayPaymentTamperedSignature(t *testing.T) {
	store := newFakeSettlementStore()
	razorpay := &fakeRazorpay{}
	svc := newTestSettlement(store, &fakePayPal{}, razorpay)

	_, err := svc.VerifyRazorpayPayment(context.Background(), uuid.New(),
		"order_rzp1", "pay_1", "deadbeef")

	var svcErr *models.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != models.ErrCodeInvalidSignature {
		t.Fatalf("err = %v, want INVALID_SIGNATURE", err)
	}
	if razorpay.calls != 0 {
		t.Error("gateway must not be consulted for a forged signature")
	}
	if len(store.settled) != 0 {
		t.Error("forged callback must not settle")
	}
}

func TestVerifyRazorpayPaymentFloorsCredits(t *testing.T) {
	store := newFakeSettlementStore()
	accountID := uuid.New()

	razorpay := &fakeRazorpay{payment: &payments.RazorpayPayment{
		ID:       "pay_1",
		OrderID:  "order_rzp1",
		Status:   "captured",
		Amount:   decimal.NewFromInt(333),
		Currency: "INR",
	}}
	svc := newTestSettlement(store, &fakePayPal{}, razorpay)

	result, err := svc.VerifyRazorpayPayment(context.Background(), accountID,
		"order_rzp1", "pay_1", signRazorpay("order_rzp1", "pay_1"))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	// floor(333 * 0.6) = floor(199.8) = 199
	if result.CreditsAdded != 199 {
		t.Errorf("credits = %d, want 199", result.CreditsAdded)
	}
}

func TestVerifyRazorpayPaymentOrderMismatch(t *testing.T) {
	store := newFakeSettlementStore()
	razorpay := &fakeRazorpay{payment: &payments.RazorpayPayment{
		ID:      "pay_1",
		OrderID: "order_other",
		Status:  "captured",
		Amount:  decimal.NewFromInt(100),
	}}
	svc := newTestSettlement(store, &fakePayPal{}, razorpay)

	_, err := svc.VerifyRazorpayPayment(context.Background(), uuid.New(),
		"order_rzp1", "pay_1", signRazorpay("order_rzp1", "pay_1"))
	if err == nil {
		t.Fatal("expected error when payment belongs to a different order")
	}
	if len(store.settled) != 0 {
		t.Error("mismatched order must not settle")
	}
}

func TestVerifyRazorpayPaymentNotCaptured(t *testing.T) {
	store := newFakeSettlementStore()
	razorpay := &fakeRazorpay{payment: &payments.RazorpayPayment{
		ID:      "pay_1",
		OrderID: "order_rzp1",
		Status:  "failed",
		Amount:  decimal.NewFromInt(100),
	}}
	svc := newTestSettlement(store, &fakePayPal{}, razorpay)

	_, err := svc.VerifyRazorpayPayment(context.Background(), uuid.New(),
		"order_rzp1", "pay_1", signRazorpay("order_rzp1", "pay_1"))

	var svcErr *models.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != models.ErrCodePaymentNotCompleted {
		t.Fatalf("err = %v, want PAYMENT_NOT_COMPLETED", err)
	}
}

func TestCreateRazorpayOrderMinimum(t *testing.T) {
	svc := newTestSettlement(newFakeSettlementStore(), &fakePayPal{}, &fakeRazorpay{})

	_, err := svc.CreateRazorpayOrder(context.Background(), decimal.RequireFromString("0.5"))
	var svcErr *models.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != models.ErrCodeValidationFailed {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestCreditsForFloor(t *testing.T) {
	cases := []struct {
		amount string
		rate   string
		want   int
	}{
		{"20", "50", 1000},
		{"5.99", "50", 299},
		{"333", "0.6", 199},
		{"1", "0.6", 0},
		{"10", "0.6", 6},
	}
	for _, tc := range cases {
		got := creditsFor(decimal.RequireFromString(tc.amount), decimal.RequireFromString(tc.rate))
		if got != tc.want {
			t.Errorf("creditsFor(%s, %s) = %d, want %d", tc.amount, tc.rate, got, tc.want)
		}
	}
}
