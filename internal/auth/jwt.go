package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nesall/ragd/internal/errors"
)

// TokenExpiry is the fixed lifetime of an issued admin session token.
const TokenExpiry = 30 * time.Minute

const tokenIssuer = "auth_server"

const jwtSecretEnvVar = "JWT_SECRET"

// adminClaims is the JWT body for an authenticated admin session.
type adminClaims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies admin session tokens with a single HMAC
// secret, read from JWT_SECRET or generated once at process start.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer builds a TokenIssuer. The secret is read from the
// environment if present; otherwise a fresh random secret is generated for
// the lifetime of this process, matching every token issued before it.
func NewTokenIssuer() *TokenIssuer {
	if envSecret := os.Getenv(jwtSecretEnvVar); envSecret != "" {
		return &TokenIssuer{secret: []byte(envSecret)}
	}
	return &TokenIssuer{secret: []byte(generateSecret())}
}

// Issue signs a fresh token for the admin subject, valid for TokenExpiry.
func (t *TokenIssuer) Issue() (string, error) {
	now := time.Now()
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", errors.InternalError("failed to sign admin token", err)
	}
	return signed, nil
}

// Verify checks tokenString's signature, issuer and expiry.
func (t *TokenIssuer) Verify(tokenString string) bool {
	parsed, err := jwt.ParseWithClaims(tokenString, &adminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return false
	}
	return parsed.Valid
}

func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
