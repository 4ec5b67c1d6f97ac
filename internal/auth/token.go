package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/modmail-bridge/internal/config"
)

// Claims carries the dashboard principal inside a signed token.
type Claims struct {
	PlatformUserID string `json:"platform_user_id"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates dashboard bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager constructs the manager from auth config.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	ttl := time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(cfg.JWTSecret), ttl: ttl}
}

// Issue creates a signed token for a platform user id.
func (m *TokenManager) Issue(platformUserID string) (string, error) {
	now := time.Now()
	claims := Claims{
		PlatformUserID: platformUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   platformUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse validates a token and returns its claims.
func (m *TokenManager) Parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PlatformUserID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
