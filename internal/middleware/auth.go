package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/auth"
)

type contextKey string

// ContextKeyAccountID is the key the authenticated account id is stored
// under in the request context.
const ContextKeyAccountID contextKey = "account_id"

// Authenticator provides a middleware for session authentication. It accepts
// the token either as a Bearer Authorization header or as the session
// cookie, so both API clients and browsers work.
func Authenticator(logger *zap.Logger, jwtSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
					tokenString = cookie.Value
				}
			}
			if tokenString == "" {
				logger.Warn("Missing session token", zap.String("path", r.URL.Path))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(tokenString, jwtSecret)
			if err != nil {
				logger.Warn("Invalid session token", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			accountID, err := claims.Account()
			if err != nil {
				logger.Warn("Session token carries malformed account id", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), auth.ContextKeyClaims, claims)
			ctx = context.WithValue(ctx, ContextKeyAccountID, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// AccountID extracts the authenticated account id from the request context.
func AccountID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextKeyAccountID).(uuid.UUID)
	return id, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
