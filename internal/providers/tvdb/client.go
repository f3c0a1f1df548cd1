// Package tvdb is a minimal TVDB v4 client used as a catalog cross-reference:
// it maps an IMDB id to the TVDB series id some providers key their shows by.
package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/providers/common"
)

const (
	defaultBaseURL = "https://api4.thetvdb.com/v4"
	redisCacheKey  = "subtitles:tvdb:"
)

type Config struct {
	APIKey   string
	BaseURL  string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
}

type Client struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	session  common.TokenSession
}

type Series struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Year string `json:"year"`
}

type loginResponse struct {
	Status string `json:"status"`
	Data   struct {
		Token string `json:"token"`
	} `json:"data"`
}

type remoteIDResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Series *Series `json:"series"`
	} `json:"data"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 7 * 24 * time.Hour
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{"apikey": c.apiKey})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("tvdb login HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Status != "success" || decoded.Data.Token == "" {
		return "", fmt.Errorf("tvdb login rejected (status %q)", decoded.Status)
	}
	return decoded.Data.Token, nil
}

// SeriesByIMDBID resolves an IMDB id ("tt...") to the TVDB series record.
// Hits are cached in Redis when available; a miss on the upstream is
// ErrFeatureNotFound.
func (c *Client) SeriesByIMDBID(ctx context.Context, imdbID string) (Series, error) {
	imdbID = strings.TrimSpace(imdbID)
	cacheKey := redisCacheKey + strings.ToLower(imdbID)

	if c.redis != nil {
		if data, err := c.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var series Series
			if json.Unmarshal(data, &series) == nil {
				return series, nil
			}
		}
	}

	token, err := c.session.Bearer(ctx, c.login)
	if err != nil {
		return Series{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/remoteid/"+imdbID, nil)
	if err != nil {
		return Series{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return Series{}, fmt.Errorf("%w: tvdb: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Series{}, fmt.Errorf("%w: tvdb has no series for %s", domain.ErrFeatureNotFound, imdbID)
	}
	if resp.StatusCode != http.StatusOK {
		return Series{}, fmt.Errorf("%w: tvdb HTTP %d", domain.ErrProviderRequestFailed, resp.StatusCode)
	}

	var decoded remoteIDResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 512*1024)).Decode(&decoded); err != nil {
		return Series{}, fmt.Errorf("%w: tvdb: %v", domain.ErrProviderRequestFailed, err)
	}

	var series *Series
	for _, datum := range decoded.Data {
		if datum.Series != nil {
			series = datum.Series
			break
		}
	}
	if series == nil {
		return Series{}, fmt.Errorf("%w: tvdb has no series for %s", domain.ErrFeatureNotFound, imdbID)
	}

	if c.redis != nil {
		if data, err := json.Marshal(series); err == nil {
			_ = c.redis.Set(ctx, cacheKey, data, c.cacheTTL).Err()
		}
	}
	return *series, nil
}
