// Package session models the backend tokens a browser session carries.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names shared with the backend.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

var (
	ErrNotFound = stderrors.New("session not found")
	ErrExpired  = stderrors.New("session expired")
)

// Session is the token pair for one browser.
type Session struct {
	Key          string         `json:"key"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	CreatedAt    time.Time      `json:"created_at"`
	RefreshedAt  time.Time      `json:"refreshed_at,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// KeyFor derives a stable, non reversible key from a refresh token.
func KeyFor(refreshToken string) string {
	if refreshToken == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:16])
}

// New builds a session keyed by the refresh token.
func New(accessToken, refreshToken string) Session {
	s := Session{
		Key:          KeyFor(refreshToken),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CreatedAt:    time.Now(),
	}
	if exp, ok := TokenExpiry(refreshToken); ok {
		s.ExpiresAt = &exp
	}
	return s
}

func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// TokenExpiry reads the exp claim of a JWT without verifying it. The gateway
// never holds the signing key; the backend verifies tokens.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// CookieMaxAge returns the cookie lifetime in seconds for token, or fallback
// when the token carries no usable exp claim.
func CookieMaxAge(token string, now time.Time, fallback time.Duration) int {
	if exp, ok := TokenExpiry(token); ok {
		if secs := int(exp.Sub(now).Seconds()); secs > 0 {
			return secs
		}
		return -1
	}
	return int(fallback.Seconds())
}
