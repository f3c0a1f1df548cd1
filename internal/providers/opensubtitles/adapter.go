// Package opensubtitles adapts the OpenSubtitles REST API to the normalized
// subtitle contract. Search is unauthenticated (API key only); issuing a
// download link requires a bearer token and consumes the account's daily
// download quota.
package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/providers/common"
)

const (
	defaultBaseURL   = "https://api.opensubtitles.com/api/v1"
	defaultUserAgent = "substream-subtitles/1.0"

	maxPayloadBytes = 2 * 1024 * 1024
)

type Config struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Username  string
	Password  string
	Client    *http.Client
	Logger    *slog.Logger
}

type Adapter struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	userAgent string
	username  string
	password  string
	logger    *slog.Logger
	session   common.TokenSession
}

func NewAdapter(cfg Config) *Adapter {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
		username:  strings.TrimSpace(cfg.Username),
		password:  cfg.Password,
		logger:    logger,
	}
}

func (a *Adapter) Name() domain.Provider {
	return domain.ProviderOpenSubtitles
}

func (a *Adapter) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    string(domain.ProviderOpenSubtitles),
		Label:   "OpenSubtitles",
		Kind:    "rest",
		Enabled: a.apiKey != "",
	}
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	h.Set("Api-Key", a.apiKey)
	h.Set("User-Agent", a.userAgent)
	return h
}

// API response shapes, trimmed to the fields the normalized record needs.

type searchResponse struct {
	TotalCount int     `json:"total_count"`
	Data       []datum `json:"data"`
}

type datum struct {
	ID         string     `json:"id"`
	Attributes attributes `json:"attributes"`
}

type attributes struct {
	SubtitleID     string         `json:"subtitle_id"`
	Language       string         `json:"language"`
	UploadDate     time.Time      `json:"upload_date"`
	Release        string         `json:"release"`
	Comments       string         `json:"comments"`
	URL            string         `json:"url"`
	FeatureDetails featureDetails `json:"feature_details"`
}

type featureDetails struct {
	FeatureType   string `json:"feature_type"`
	Year          int    `json:"year"`
	Title         string `json:"title"`
	MovieName     string `json:"movie_name"`
	IMDBID        int    `json:"imdb_id"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
}

type loginResponse struct {
	Token  string `json:"token"`
	Status int    `json:"status"`
}

type downloadResponse struct {
	Link      string `json:"link"`
	FileName  string `json:"file_name"`
	Requests  int    `json:"requests"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}

// Search queries /subtitles with the normalized parameters. All feature-type
// variants are supported by this upstream, so the query shape is never
// silently ignored.
func (a *Adapter) Search(ctx context.Context, query domain.SearchQuery) ([]domain.SubtitleRecord, error) {
	params := url.Values{}
	params.Set("imdb_id", strings.TrimPrefix(query.IMDBID, "tt"))
	params.Set("languages", joinSorted(query.Languages))
	params.Set("type", string(query.FeatureType))
	if query.Year > 0 {
		params.Set("year", strconv.Itoa(query.Year))
	}
	params.Set("page", "1")
	if episode, ok := query.Episode(); ok {
		params.Set("season_number", strconv.Itoa(episode.Season))
		params.Set("episode_number", strconv.Itoa(episode.Episode))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/subtitles?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = a.headers()

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: opensubtitles: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: opensubtitles search HTTP %d", domain.ErrProviderRequestFailed, resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: opensubtitles: %v", domain.ErrProviderRequestFailed, err)
	}
	return mapSearchResponse(decoded), nil
}

func mapSearchResponse(decoded searchResponse) []domain.SubtitleRecord {
	records := make([]domain.SubtitleRecord, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		details := item.Attributes.FeatureDetails
		featureType := domain.NormalizeFeatureType(details.FeatureType)
		feature := domain.Feature{
			Type:        featureType,
			Title:       details.Title,
			FeatureName: details.MovieName,
			Year:        details.Year,
		}
		if details.IMDBID > 0 {
			feature.IMDBID = fmt.Sprintf("tt%07d", details.IMDBID)
		}
		if featureType == domain.FeatureEpisode {
			feature.SeasonNumber = details.SeasonNumber
			feature.EpisodeNumber = details.EpisodeNumber
		}
		records = append(records, domain.SubtitleRecord{
			OriginID:    item.ID,
			Provider:    domain.ProviderOpenSubtitles,
			ContentID:   item.Attributes.SubtitleID,
			CreatedOn:   item.Attributes.UploadDate,
			SourceURL:   item.Attributes.URL,
			ReleaseName: item.Attributes.Release,
			Comments:    item.Attributes.Comments,
			Feature:     feature,
		})
	}
	return records
}

func (a *Adapter) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": a.username,
		"password": a.password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header = a.headers()

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login HTTP %d", resp.StatusCode)
	}
	var decoded loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Token == "" {
		return "", fmt.Errorf("login succeeded but no token returned")
	}
	return decoded.Token, nil
}

// ResolveDownload requests a short-lived download link for a content id.
// This call is authenticated and decrements the account's remaining quota on
// the upstream, so it must not be treated as idempotent.
func (a *Adapter) ResolveDownload(ctx context.Context, contentID string) (string, error) {
	token, err := a.session.Bearer(ctx, a.login)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{"file_id": contentID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/download", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header = a.headers()
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: opensubtitles: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNotAcceptable:
		return "", fmt.Errorf("%w: opensubtitles file %s", domain.ErrContentNotFound, contentID)
	default:
		// Includes the narrow expired-between-check-and-use 401 window, which
		// the caller may retry.
		return "", fmt.Errorf("%w: opensubtitles download request HTTP %d", domain.ErrProviderRequestFailed, resp.StatusCode)
	}

	var decoded downloadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: opensubtitles: %v", domain.ErrProviderRequestFailed, err)
	}
	if decoded.Link == "" {
		return "", fmt.Errorf("%w: opensubtitles returned no link: %s", domain.ErrProviderRequestFailed, decoded.Message)
	}

	a.logger.Debug("opensubtitles download resolved",
		slog.String("fileId", contentID),
		slog.Int("remainingQuota", decoded.Remaining),
	)
	return decoded.Link, nil
}

// Download fetches the subtitle text behind a resolved link.
func (a *Adapter) Download(ctx context.Context, descriptor string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, descriptor, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: opensubtitles: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return "", fmt.Errorf("%w: link %s", domain.ErrContentNotFound, descriptor)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: opensubtitles content HTTP %d", domain.ErrProviderRequestFailed, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return "", fmt.Errorf("%w: opensubtitles: %v", domain.ErrProviderRequestFailed, err)
	}
	return common.DecodeSubtitleText(payload), nil
}

func joinSorted(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
