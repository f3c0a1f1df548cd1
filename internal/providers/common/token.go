package common

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"substream/subtitleservice/internal/domain"
)

// LoginFunc performs the provider's login call and returns a bearer token.
type LoginFunc func(ctx context.Context) (string, error)

// TokenSession holds one adapter's bearer token with lazy expiry-driven
// refresh. Each authenticated adapter owns exactly one session; sessions are
// never shared across adapters even when they hit the same upstream.
type TokenSession struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Bearer returns a valid token, invoking login first when the held token is
// absent, undecodable or at/past its embedded expiry. The refresh is
// mutex-guarded, so concurrent requests trigger at most one login. A failed
// login leaves the session empty, so no stale token survives it.
func (s *TokenSession) Bearer(ctx context.Context, login LoginFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.expiredLocked(time.Now()) {
		return s.token, nil
	}

	s.token = ""
	s.expiresAt = time.Time{}

	token, err := login(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	expiresAt, err := DecodeExpiry(token)
	if err != nil {
		return "", fmt.Errorf("%w: undecodable token: %v", domain.ErrAuthenticationFailed, err)
	}

	s.token = token
	s.expiresAt = expiresAt
	return s.token, nil
}

// Expired reports whether a fresh login would be required at the given time.
func (s *TokenSession) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiredLocked(now)
}

func (s *TokenSession) expiredLocked(now time.Time) bool {
	if s.token == "" || s.expiresAt.IsZero() {
		return true
	}
	return !s.expiresAt.After(now)
}

// DecodeExpiry extracts the exp claim from a bearer token without verifying
// its signature: the provider signed it, we only need the lifetime.
func DecodeExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return expiry.Time, nil
}
