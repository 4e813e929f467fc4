package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/auth"
	"github.com/deepshark/deepshark-backend/internal/middleware"
	"github.com/deepshark/deepshark-backend/internal/models"
	"github.com/deepshark/deepshark-backend/internal/service"
)

// AccountStore is the storage surface the account handlers need.
type AccountStore interface {
	CreateAccount(ctx context.Context, req *models.AccountCreateRequest, signupGrant int) (*models.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
}

// AccountConfig carries the provisioning knobs the handlers need.
type AccountConfig struct {
	SignupGrant     int
	JWTSecret       string
	SessionDuration time.Duration
}

type createAccountResponse struct {
	Account *models.Account `json:"account"`
	Token   string          `json:"token"`
}

// CreateAccount provisions a new account seeded with the signup grant and
// issues its first session token.
func CreateAccount(store AccountStore, cfg AccountConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.AccountCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid email address", nil)
			return
		}

		account, err := store.CreateAccount(r.Context(), &req, cfg.SignupGrant)
		if err != nil {
			if err == models.ErrAccountAlreadyExists {
				writeErrorResponse(w, http.StatusConflict, "Account already exists", nil)
				return
			}
			logger.Error("Failed to create account", zap.Error(err))
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to create account", err)
			return
		}

		token, expiresAt, err := auth.GenerateToken(account.ID, account.Email, account.IsAdmin, cfg.JWTSecret, cfg.SessionDuration)
		if err != nil {
			logger.Error("Failed to issue session token", zap.Error(err))
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to issue session", err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    token,
			Path:     "/",
			Expires:  expiresAt,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		writeJSONResponse(w, http.StatusCreated, createAccountResponse{
			Account: account,
			Token:   token,
		})
	}
}

// GetCredits returns the authenticated account's current balance.
func GetCredits(store AccountStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := middleware.AccountID(r.Context())
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		account, err := store.GetAccount(r.Context(), accountID)
		if err != nil {
			if err == models.ErrAccountNotFound {
				writeErrorResponse(w, http.StatusNotFound, "Account not found", nil)
				return
			}
			logger.Error("Failed to load account", zap.Error(err))
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to load account", err)
			return
		}

		writeJSONResponse(w, http.StatusOK, models.BalanceResponse{
			AccountID:   account.ID,
			Credits:     account.Credits,
			LastUpdated: account.UpdatedAt,
		})
	}
}

// GetTransactionHistory returns the authenticated account's ledger entries,
// newest first.
func GetTransactionHistory(settlementService *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := middleware.AccountID(r.Context())
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		limit, offset := pagination(r)
		transactions, err := settlementService.TransactionHistory(r.Context(), &models.TransactionHistoryRequest{
			AccountID: accountID,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			logger.Error("Failed to list transactions", zap.Error(err))
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to list transactions", err)
			return
		}

		writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"transactions": transactions,
			"limit":        limit,
			"offset":       offset,
		})
	}
}

// GetGenerationHistory returns the authenticated account's generation jobs,
// newest first.
func GetGenerationHistory(invocationService *service.InvocationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := middleware.AccountID(r.Context())
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		limit, offset := pagination(r)
		jobs, err := invocationService.History(r.Context(), &models.GenerationHistoryRequest{
			AccountID: accountID,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			logger.Error("Failed to list generation jobs", zap.Error(err))
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to list generations", err)
			return
		}

		writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"generations": jobs,
			"limit":       limit,
			"offset":      offset,
		})
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
