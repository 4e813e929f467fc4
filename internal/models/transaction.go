package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus represents the status of a ledger entry
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRefund    TransactionStatus = "refund"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// PaymentProvider identifies the origin of a ledger entry
type PaymentProvider string

const (
	ProviderPayPal   PaymentProvider = "paypal"
	ProviderRazorpay PaymentProvider = "razorpay"
	ProviderSystem   PaymentProvider = "system"
)

// Transaction is an append-only ledger entry. Purchases carry the paid
// currency amount; refunds and other system entries carry a zero amount with
// the credit delta in Credits. Rows are immutable once written.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	AccountID             uuid.UUID         `json:"account_id"`
	Amount                decimal.Decimal   `json:"amount"`
	Currency              string            `json:"currency"`
	Credits               int               `json:"credits"`
	Status                TransactionStatus `json:"status"`
	Provider              PaymentProvider   `json:"provider"`
	ProviderTransactionID string            `json:"provider_transaction_id"`
	CreatedAt             time.Time         `json:"created_at"`
}

// TransactionHistoryRequest represents a paged ledger history query.
type TransactionHistoryRequest struct {
	AccountID uuid.UUID
	Limit     int
	Offset    int
}

// SettlementResult is returned after a payment capture has been credited.
type SettlementResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	CreditsAdded  int       `json:"credits_added"`
	NewBalance    int       `json:"new_balance"`
	AlreadySettled bool     `json:"already_settled,omitempty"`
}
