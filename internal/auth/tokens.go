// Package auth implements Session & Identity (C5): bcrypt password
// hashing, signed access/refresh tokens, and a Redis-backed session
// store, grounded on the teacher's gateway/middleware.go JWT helpers and
// original_source/us-stock-assistant/backend/app/services/auth_service.py's
// token/session contract.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stockassistant/orchestrator/internal/apperrors"
)

// TokenType distinguishes access from refresh claims, per spec.md
// section 4.5's {sub, type, exp} / {sub, session_id, type, exp} payloads.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// AccessClaims is the access token payload.
type AccessClaims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh token payload; SessionID binds the token
// to a KV-store session entry.
type RefreshClaims struct {
	Type      TokenType `json:"type"`
	SessionID string    `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies HS256-signed access/refresh tokens.
type TokenManager struct {
	secret             []byte
	accessTTL          time.Duration
	refreshTTL         time.Duration
	issuer             string
}

// NewTokenManager builds a TokenManager from the configured secret and
// TTLs (internal/config.AuthConfig's AccessTokenExpireMins /
// RefreshTokenExpireDay).
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "stockassistant-orchestrator",
	}
}

// MintAccess signs a new access token for userID.
func (m *TokenManager) MintAccess(userID string) (string, time.Time, error) {
	expire := time.Now().Add(m.accessTTL)
	claims := &AccessClaims{
		Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expire),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    m.issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, apperrors.Internal(err)
	}
	return signed, expire, nil
}

// MintRefresh signs a new refresh token for userID bound to sessionID.
func (m *TokenManager) MintRefresh(userID, sessionID string) (string, time.Time, error) {
	expire := time.Now().Add(m.refreshTTL)
	claims := &RefreshClaims{
		Type:      TokenRefresh,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expire),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    m.issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, apperrors.Internal(err)
	}
	return signed, expire, nil
}

// ParseAccess validates signature and expiry and asserts the access
// token type, returning the subject (user id) on success.
func (m *TokenManager) ParseAccess(tokenString string) (string, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc)
	if err != nil {
		return "", apperrors.InvalidToken(err)
	}
	if !token.Valid {
		return "", apperrors.InvalidToken(fmt.Errorf("token not valid"))
	}
	if claims.Type != TokenAccess {
		return "", apperrors.TokenTypeMismatch()
	}
	return claims.Subject, nil
}

// ParseRefresh validates signature and expiry and asserts the refresh
// token type, returning (user id, session id) on success.
func (m *TokenManager) ParseRefresh(tokenString string) (userID, sessionID string, err error) {
	claims := &RefreshClaims{}
	token, perr := jwt.ParseWithClaims(tokenString, claims, m.keyFunc)
	if perr != nil {
		return "", "", apperrors.InvalidToken(perr)
	}
	if !token.Valid {
		return "", "", apperrors.InvalidToken(fmt.Errorf("token not valid"))
	}
	if claims.Type != TokenRefresh {
		return "", "", apperrors.TokenTypeMismatch()
	}
	if claims.SessionID == "" {
		return "", "", apperrors.InvalidToken(fmt.Errorf("missing session_id claim"))
	}
	return claims.Subject, claims.SessionID, nil
}

func (m *TokenManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return m.secret, nil
}
