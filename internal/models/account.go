package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a registered user with a prepaid credit balance.
// The balance is only ever mutated through the store's atomic debit/credit
// operations; it must never be observed negative.
type Account struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Name          *string    `json:"name,omitempty"`
	EmailVerified *time.Time `json:"email_verified,omitempty"`
	PasswordHash  *string    `json:"-"`
	IsAdmin       bool       `json:"is_admin"`
	Credits       int        `json:"credits"`
	ReferralCode  *string    `json:"referral_code,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AccountCreateRequest represents a request to provision a new account.
type AccountCreateRequest struct {
	Email        string  `json:"email"`
	Name         *string `json:"name,omitempty"`
	PasswordHash *string `json:"-"`
}

// BalanceResponse represents an account credit balance response.
type BalanceResponse struct {
	AccountID   uuid.UUID `json:"account_id"`
	Credits     int       `json:"credits"`
	LastUpdated time.Time `json:"last_updated"`
}
