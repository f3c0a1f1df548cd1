package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/subtitle"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SubtitleService interface {
	Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResponse, error)
	Content(ctx context.Context, contentID string, provider domain.Provider) (string, error)
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type Server struct {
	subtitles SubtitleService
	logger    *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(subtitleService SubtitleService, options ...ServerOption) *Server {
	server := &Server{
		subtitles: subtitleService,
		logger:    slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/subtitles/search", s.handleSearch)
	mux.HandleFunc("/subtitles/content", s.handleContent)
	mux.HandleFunc("/subtitles/providers", s.handleProviders)
	mux.HandleFunc("/subtitles/providers/health", s.handleProvidersHealth)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "subtitle-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

type searchRequestBody struct {
	IMDBID        string   `json:"imdbId"`
	Languages     []string `json:"languages"`
	FeatureType   string   `json:"featureType"`
	Year          int      `json:"year"`
	Query         string   `json:"query"`
	SeasonNumber  int      `json:"seasonNumber"`
	EpisodeNumber int      `json:"episodeNumber"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/subtitles/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "subtitle service is not configured")
		return
	}

	var body searchRequestBody
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	query, err := buildQuery(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	response, err := s.subtitles.Search(r.Context(), query)
	if err != nil {
		s.logger.Warn("subtitle search failed",
			slog.String("imdbId", body.IMDBID),
			slog.Any("languages", body.Languages),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, domain.ErrMissingIMDBID),
			errors.Is(err, domain.ErrMissingLanguage),
			errors.Is(err, domain.ErrMissingEpisode):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, subtitle.ErrNoAdapters):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		case errors.Is(err, subtitle.ErrAllProvidersFailed):
			writeError(w, http.StatusBadGateway, "upstream_failed", "all subtitle providers failed")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "subtitle search failed")
		}
		return
	}

	failedProviders := make([]string, 0, len(response.Providers))
	for _, providerStatus := range response.Providers {
		if !providerStatus.OK {
			failedProviders = append(failedProviders, providerStatus.Name)
		}
	}
	s.logger.Info("subtitle search completed",
		slog.String("imdbId", body.IMDBID),
		slog.Any("languages", body.Languages),
		slog.Int("totalItems", response.TotalItems),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Int("failedProviders", len(failedProviders)),
	)
	if len(failedProviders) > 0 {
		s.logger.Warn("subtitle providers partially failed",
			slog.String("imdbId", body.IMDBID),
			slog.Any("failedProviders", failedProviders),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/subtitles/content" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "subtitle service is not configured")
		return
	}

	fileID := strings.TrimSpace(r.URL.Query().Get("fileId"))
	provider, known := domain.ParseProvider(r.URL.Query().Get("provider"))
	if fileID == "" || !known {
		writeError(w, http.StatusBadRequest, "invalid_request", "fileId and a known provider are required")
		return
	}

	content, err := s.subtitles.Content(r.Context(), fileID, provider)
	if err != nil {
		s.logger.Warn("subtitle content request failed",
			slog.String("fileId", fileID),
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, subtitle.ErrInvalidRequest), errors.Is(err, subtitle.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, domain.ErrContentNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		case errors.Is(err, domain.ErrAuthenticationFailed):
			writeError(w, http.StatusBadGateway, "upstream_failed", "provider authentication failed")
		case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrProviderRequestFailed):
			writeError(w, http.StatusBadGateway, "upstream_failed", "provider request failed")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "subtitle content fetch failed")
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileID+".srt"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, content)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/subtitles/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "subtitle service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.subtitles.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/subtitles/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.subtitles == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "subtitle service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.subtitles.ProviderDiagnostics(),
	})
}

func buildQuery(body searchRequestBody) (domain.SearchQuery, error) {
	featureType := domain.NormalizeFeatureType(body.FeatureType)
	switch featureType {
	case domain.FeatureEpisode:
		if body.SeasonNumber <= 0 || body.EpisodeNumber <= 0 {
			return domain.SearchQuery{}, domain.ErrMissingEpisode
		}
		return domain.NewEpisodeQuery(body.IMDBID, body.Languages, body.Year, body.Query, body.SeasonNumber, body.EpisodeNumber)
	case domain.FeatureMovie:
		return domain.NewMovieQuery(body.IMDBID, body.Languages, body.Year, body.Query)
	default:
		return domain.NewAllQuery(body.IMDBID, body.Languages, body.Year, body.Query)
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
