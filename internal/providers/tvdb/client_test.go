package tvdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"substream/subtitleservice/internal/domain"
)

func mintToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return signed
}

func TestSeriesByIMDBIDLoginAndLookup(t *testing.T) {
	var logins, lookups atomic.Int32
	token := mintToken(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["apikey"] != "tvdb-key" {
			t.Errorf("unexpected apikey %q", body["apikey"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]string{"token": token},
		})
	})
	mux.HandleFunc("/search/remoteid/", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer "+token {
			t.Errorf("unexpected Authorization header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"movie": nil},
				{"series": map[string]any{"id": 81189, "name": "Breaking Bad", "slug": "breaking-bad", "year": "2008"}},
			},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "tvdb-key", BaseURL: server.URL, Client: server.Client()})

	series, err := client.SeriesByIMDBID(context.Background(), "tt0903747")
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if series.ID != 81189 || series.Name != "Breaking Bad" {
		t.Fatalf("unexpected series %+v", series)
	}

	// Token is reused for a second lookup.
	if _, err := client.SeriesByIMDBID(context.Background(), "tt0903747"); err != nil {
		t.Fatalf("second lookup error: %v", err)
	}
	if logins.Load() != 1 {
		t.Fatalf("expected 1 login, got %d", logins.Load())
	}
	if lookups.Load() != 2 {
		t.Fatalf("expected 2 lookups without redis cache, got %d", lookups.Load())
	}
}

func TestSeriesByIMDBIDNotFound(t *testing.T) {
	token := mintToken(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": map[string]string{"token": token}})
	})
	mux.HandleFunc("/search/remoteid/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": []map[string]any{}})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "tvdb-key", BaseURL: server.URL, Client: server.Client()})
	_, err := client.SeriesByIMDBID(context.Background(), "tt0000001")
	if !errors.Is(err, domain.ErrFeatureNotFound) {
		t.Fatalf("expected ErrFeatureNotFound, got %v", err)
	}
}

func TestSeriesByIMDBIDLoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "bad-key", BaseURL: server.URL, Client: server.Client()})
	_, err := client.SeriesByIMDBID(context.Background(), "tt0903747")
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}
