package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/middleware"
	"github.com/deepshark/deepshark-backend/internal/service"
)

type createOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type createOrderResponse struct {
	OrderID string `json:"orderId"`
}

type captureOrderRequest struct {
	OrderID string `json:"orderId"`
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// CreatePayPalOrder opens a PayPal order for a credit purchase.
func CreatePayPalOrder(settlementService *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}

		orderID, err := settlementService.CreatePayPalOrder(r.Context(), req.Amount)
		if err != nil {
			logger.Warn("PayPal order creation failed", zap.Error(err))
			writeServiceError(w, err, "Failed to create order")
			return
		}

		writeJSONResponse(w, http.StatusCreated, createOrderResponse{OrderID: orderID})
	}
}

// CapturePayPalOrder captures an approved PayPal order and credits the
// account.
func CapturePayPalOrder(settlementService *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := middleware.AccountID(r.Context())
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		var req captureOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}

		result, err := settlementService.CapturePayPalOrder(r.Context(), accountID, req.OrderID)
		if err != nil {
			logger.Warn("PayPal capture failed",
				zap.String("order_id", req.OrderID),
				zap.String("account_id", accountID.String()),
				zap.Error(err),
			)
			writeServiceError(w, err, "Failed to capture order")
			return
		}

		writeJSONResponse(w, http.StatusOK, result)
	}
}

// CreateRazorpayOrder opens a Razorpay order for a credit purchase.
func CreateRazorpayOrder(settlementService *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}

		orderID, err := settlementService.CreateRazorpayOrder(r.Context(), req.Amount)
		if err != nil {
			logger.Warn("Razorpay order creation failed", zap.Error(err))
			writeServiceError(w, err, "Failed to create order")
			return
		}

		writeJSONResponse(w, http.StatusCreated, createOrderResponse{OrderID: orderID})
	}
}

// VerifyRazorpayPayment verifies the checkout callback signature and settles
// the payment.
func VerifyRazorpayPayment(settlementService *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := middleware.AccountID(r.Context())
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		var req verifyPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
			writeErrorResponse(w, http.StatusBadRequest, "Missing payment fields", nil)
			return
		}

		result, err := settlementService.VerifyRazorpayPayment(r.Context(), accountID, req.OrderID, req.PaymentID, req.Signature)
		if err != nil {
			logger.Warn("Razorpay verification failed",
				zap.String("order_id", req.OrderID),
				zap.String("payment_id", req.PaymentID),
				zap.String("account_id", accountID.String()),
				zap.Error(err),
			)
			writeServiceError(w, err, "Failed to verify payment")
			return
		}

		writeJSONResponse(w, http.StatusOK, result)
	}
}
