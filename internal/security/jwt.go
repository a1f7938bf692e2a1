// Package security implements the authentication primitives shared by the
// chat fabric: JWT access/refresh token pairs with a revocation blacklist,
// password hashing and policy, API key issuance, and CSRF tokens.
package security

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/partshub/runtime/infrastructure/cache"
	"github.com/partshub/runtime/infrastructure/errors"
	"github.com/partshub/runtime/internal/crypto"
)

// TokenClaims are the custom claims carried by both access and refresh tokens.
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TokenUse string `json:"use"` // "access" or "refresh"
}

// IsExpired reports whether the token's expiry has passed.
func (c *TokenClaims) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(c.ExpiresAt.Time)
}

// TokenPair is the access/refresh token pair returned on login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// JWTManager mints and verifies access/refresh token pairs, backing
// revocation with a jti blacklist in the cache fabric.
type JWTManager struct {
	secret      []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	blacklist   *cache.TokenCache
}

// NewJWTManager creates a JWT manager. secret must be non-empty.
func NewJWTManager(secret string, accessTTL, refreshTTL time.Duration) (*JWTManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		blacklist:  cache.NewTokenCache(cache.CacheConfig{DefaultTTL: refreshTTL}),
	}, nil
}

// Mint issues a new access/refresh token pair for the given identity.
func (m *JWTManager) Mint(userID, username, role string) (*TokenPair, error) {
	now := time.Now()

	accessJTI, err := crypto.GenerateRandomBytes(16)
	if err != nil {
		return nil, errors.Internal("generate access jti", err)
	}
	refreshJTI, err := crypto.GenerateRandomBytes(16)
	if err != nil {
		return nil, errors.Internal("generate refresh jti", err)
	}

	accessExp := now.Add(m.accessTTL)
	access, err := m.sign(TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%x", accessJTI),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
		UserID:   userID,
		Username: username,
		Role:     role,
		TokenUse: "access",
	})
	if err != nil {
		return nil, err
	}

	refresh, err := m.sign(TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%x", refreshJTI),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
		UserID:   userID,
		Username: username,
		Role:     role,
		TokenUse: "refresh",
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}

func (m *JWTManager) sign(claims TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.SigningFailed(err)
	}
	return signed, nil
}

// Verify parses and validates a token, rejecting it if blacklisted,
// expired, or signed with an unexpected algorithm.
func (m *JWTManager) Verify(tokenString string, expectedUse string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(fmt.Errorf("token is not valid"))
	}

	if expectedUse != "" && claims.TokenUse != expectedUse {
		return nil, errors.InvalidToken(fmt.Errorf("expected %s token, got %s", expectedUse, claims.TokenUse))
	}

	if _, blacklisted := m.blacklist.GetToken(claims.ID); blacklisted {
		return nil, errors.TokenExpired()
	}

	return claims, nil
}

// Revoke adds a token's jti to the blacklist until it would have expired
// naturally, so a stolen refresh token can be invalidated immediately.
func (m *JWTManager) Revoke(claims *TokenClaims) {
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return
	}
	m.blacklist.SetToken(claims.ID, true, ttl)
}

// Refresh verifies a refresh token, revokes it, and mints a new pair
// (rotation on use).
func (m *JWTManager) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := m.Verify(refreshToken, "refresh")
	if err != nil {
		return nil, err
	}
	m.Revoke(claims)
	return m.Mint(claims.UserID, claims.Username, claims.Role)
}

// SubtleEqual performs a constant-time string comparison, used for
// API key and CSRF token verification.
func SubtleEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
