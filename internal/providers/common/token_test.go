package common

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"substream/subtitleservice/internal/domain"
)

func mintToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": expiresAt.Unix(),
		"sub": "tester",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return signed
}

func TestBearerLogsInOnFirstUse(t *testing.T) {
	var logins atomic.Int32
	token := mintToken(t, time.Now().Add(time.Hour))
	session := &TokenSession{}

	got, err := session.Bearer(context.Background(), func(ctx context.Context) (string, error) {
		logins.Add(1)
		return token, nil
	})
	if err != nil {
		t.Fatalf("bearer error: %v", err)
	}
	if got != token {
		t.Fatalf("unexpected token: %q", got)
	}
	if logins.Load() != 1 {
		t.Fatalf("expected 1 login, got %d", logins.Load())
	}
	if session.Expired(time.Now()) {
		t.Fatal("fresh token must not be expired")
	}
}

func TestBearerReusesValidToken(t *testing.T) {
	var logins atomic.Int32
	token := mintToken(t, time.Now().Add(time.Hour))
	session := &TokenSession{}
	login := func(ctx context.Context) (string, error) {
		logins.Add(1)
		return token, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := session.Bearer(context.Background(), login); err != nil {
			t.Fatalf("bearer error: %v", err)
		}
	}
	if logins.Load() != 1 {
		t.Fatalf("expected a single login across calls, got %d", logins.Load())
	}
}

func TestBearerRefreshesExpiredToken(t *testing.T) {
	var logins atomic.Int32
	session := &TokenSession{}
	login := func(ctx context.Context) (string, error) {
		n := logins.Add(1)
		if n == 1 {
			// Already past expiry when handed out.
			return mintToken(t, time.Now().Add(-time.Minute)), nil
		}
		return mintToken(t, time.Now().Add(time.Hour)), nil
	}

	if _, err := session.Bearer(context.Background(), login); err != nil {
		t.Fatalf("first bearer error: %v", err)
	}
	if !session.Expired(time.Now()) {
		t.Fatal("expected the short-lived token to read as expired")
	}
	if _, err := session.Bearer(context.Background(), login); err != nil {
		t.Fatalf("second bearer error: %v", err)
	}
	if logins.Load() != 2 {
		t.Fatalf("expected a refresh login, got %d logins", logins.Load())
	}
}

func TestBearerFailedLoginClearsSession(t *testing.T) {
	session := &TokenSession{}
	loginErr := errors.New("401 unauthorized")

	_, err := session.Bearer(context.Background(), func(ctx context.Context) (string, error) {
		return "", loginErr
	})
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if !session.Expired(time.Now()) {
		t.Fatal("a failed login must leave no usable token behind")
	}
}

func TestBearerRejectsUndecodableToken(t *testing.T) {
	session := &TokenSession{}
	_, err := session.Bearer(context.Background(), func(ctx context.Context) (string, error) {
		return "not-a-jwt", nil
	})
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestBearerConcurrentCallsLoginOnce(t *testing.T) {
	var logins atomic.Int32
	token := mintToken(t, time.Now().Add(time.Hour))
	session := &TokenSession{}
	login := func(ctx context.Context) (string, error) {
		logins.Add(1)
		time.Sleep(20 * time.Millisecond)
		return token, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := session.Bearer(context.Background(), login); err != nil {
				t.Errorf("bearer error: %v", err)
			}
		}()
	}
	wg.Wait()

	if logins.Load() != 1 {
		t.Fatalf("expected exactly one login under contention, got %d", logins.Load())
	}
}

func TestDecodeExpiry(t *testing.T) {
	expiresAt := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	got, err := DecodeExpiry(mintToken(t, expiresAt))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !got.Equal(expiresAt) {
		t.Fatalf("expected expiry %v, got %v", expiresAt, got)
	}

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	if _, err := DecodeExpiry(noExp); err == nil {
		t.Fatal("expected error for token without exp claim")
	}
}
