package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/auth"
)

const testSecret = "test-secret"

func protectedHandler(t *testing.T, wantAccount uuid.UUID) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := AccountID(r.Context())
		if !ok {
			t.Error("account id missing from context")
		}
		if accountID != wantAccount {
			t.Errorf("account id = %s, want %s", accountID, wantAccount)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticatorBearerToken(t *testing.T) {
	accountID := uuid.New()
	token, _, err := auth.GenerateToken(accountID, "user@example.com", false, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	handler := Authenticator(zap.NewNop(), testSecret)(protectedHandler(t, accountID))

	req := httptest.NewRequest(http.MethodGet, "/api/me/credits", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthenticatorSessionCookie(t *testing.T) {
	accountID := uuid.New()
	token, _, err := auth.GenerateToken(accountID, "user@example.com", false, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	handler := Authenticator(zap.NewNop(), testSecret)(protectedHandler(t, accountID))

	req := httptest.NewRequest(http.MethodGet, "/api/me/credits", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthenticatorMissingToken(t *testing.T) {
	called := false
	handler := Authenticator(zap.NewNop(), testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me/credits", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler must not run without a token")
	}
}

func TestAuthenticatorWrongSecret(t *testing.T) {
	accountID := uuid.New()
	token, _, err := auth.GenerateToken(accountID, "user@example.com", false, "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	handler := Authenticator(zap.NewNop(), testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run with a forged token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me/credits", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticatorExpiredToken(t *testing.T) {
	accountID := uuid.New()
	token, _, err := auth.GenerateToken(accountID, "user@example.com", false, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	handler := Authenticator(zap.NewNop(), testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run with an expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me/credits", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
