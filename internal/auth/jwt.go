package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// I need a type for my context key to avoid collisions.
type contextKey string

// ContextKeyClaims is the key used to store session claims in the request context.
const ContextKeyClaims contextKey = "claims"

// SessionCookieName is the cookie browsers carry the session token in.
const SessionCookieName = "session"

// Claims defines the structure of the session token claims.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Account returns the claims' account id as a UUID.
func (c *Claims) Account() (uuid.UUID, error) {
	return uuid.Parse(c.AccountID)
}

// GenerateToken generates a new session token for the given account.
func GenerateToken(accountID uuid.UUID, email string, isAdmin bool, secretKey string, expiration time.Duration) (string, time.Time, error) {
	expirationTime := time.Now().Add(expiration)

	claims := &Claims{
		AccountID: accountID.String(),
		Email:     email,
		IsAdmin:   isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Subject:   accountID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expirationTime, nil
}

// ValidateToken validates the given session token string and returns its
// claims if valid.
func ValidateToken(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// I must check the signing method!
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err // This handles expired tokens, invalid signatures, etc.
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
