package domain

import (
	"errors"
	"strings"
	"time"
)

// Provider identifies which adapter produced and owns a subtitle record.
// Content retrieval keys off this tag to pick the adapter, so the set is closed.
type Provider string

const (
	ProviderOpenSubtitles Provider = "opensubtitles"
	ProviderAddic7ed      Provider = "addic7ed"
)

func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderOpenSubtitles:
		return ProviderOpenSubtitles, true
	case ProviderAddic7ed:
		return ProviderAddic7ed, true
	default:
		return "", false
	}
}

type FeatureType string

const (
	FeatureMovie   FeatureType = "movie"
	FeatureEpisode FeatureType = "episode"
	FeatureAll     FeatureType = "all"
)

func NormalizeFeatureType(raw string) FeatureType {
	switch FeatureType(strings.ToLower(strings.TrimSpace(raw))) {
	case FeatureMovie:
		return FeatureMovie
	case FeatureEpisode:
		return FeatureEpisode
	default:
		return FeatureAll
	}
}

// Feature describes the media item a subtitle belongs to.
// SeasonNumber/EpisodeNumber are set if and only if Type is FeatureEpisode.
type Feature struct {
	Type          FeatureType `json:"featureType"`
	Title         string      `json:"title"`
	FeatureName   string      `json:"featureName"`
	Year          int         `json:"year,omitempty"`
	IMDBID        string      `json:"imdbId,omitempty"`
	SeasonNumber  int         `json:"seasonNumber,omitempty"`
	EpisodeNumber int         `json:"episodeNumber,omitempty"`
}

// SubtitleRecord is the normalized search hit every adapter must produce.
type SubtitleRecord struct {
	OriginID    string    `json:"originId"`
	Provider    Provider  `json:"provider"`
	ContentID   string    `json:"contentId"`
	CreatedOn   time.Time `json:"createdOn"`
	SourceURL   string    `json:"sourceUrl,omitempty"`
	ReleaseName string    `json:"releaseName"`
	Comments    string    `json:"comments,omitempty"`
	Feature     Feature   `json:"feature"`
}

var (
	ErrMissingIMDBID   = errors.New("imdb id is required")
	ErrMissingLanguage = errors.New("at least one language is required")
	ErrMissingEpisode  = errors.New("episode queries require season and episode numbers")
)

type EpisodeRef struct {
	Season  int `json:"seasonNumber"`
	Episode int `json:"episodeNumber"`
}

// SearchQuery is a closed tagged union over feature type: the episode variant
// always carries season/episode, the movie/all variants never do. Construct
// values through NewMovieQuery, NewAllQuery or NewEpisodeQuery; the episode
// reference is not reachable any other way.
type SearchQuery struct {
	IMDBID      string
	Languages   []string
	FeatureType FeatureType
	Year        int
	Query       string

	episode *EpisodeRef
}

func NewMovieQuery(imdbID string, languages []string, year int, text string) (SearchQuery, error) {
	return newFlatQuery(FeatureMovie, imdbID, languages, year, text)
}

func NewAllQuery(imdbID string, languages []string, year int, text string) (SearchQuery, error) {
	return newFlatQuery(FeatureAll, imdbID, languages, year, text)
}

func NewEpisodeQuery(imdbID string, languages []string, year int, text string, season, episode int) (SearchQuery, error) {
	if season <= 0 || episode <= 0 {
		return SearchQuery{}, ErrMissingEpisode
	}
	query, err := newFlatQuery(FeatureEpisode, imdbID, languages, year, text)
	if err != nil {
		return SearchQuery{}, err
	}
	query.episode = &EpisodeRef{Season: season, Episode: episode}
	return query, nil
}

func newFlatQuery(featureType FeatureType, imdbID string, languages []string, year int, text string) (SearchQuery, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return SearchQuery{}, ErrMissingIMDBID
	}
	normalized := normalizeLanguages(languages)
	if len(normalized) == 0 {
		return SearchQuery{}, ErrMissingLanguage
	}
	return SearchQuery{
		IMDBID:      imdbID,
		Languages:   normalized,
		FeatureType: featureType,
		Year:        year,
		Query:       strings.TrimSpace(text),
	}, nil
}

// Episode returns the season/episode reference for the episode variant.
func (q SearchQuery) Episode() (EpisodeRef, bool) {
	if q.episode == nil {
		return EpisodeRef{}, false
	}
	return *q.episode, true
}

func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.IMDBID) == "" {
		return ErrMissingIMDBID
	}
	if len(q.Languages) == 0 {
		return ErrMissingLanguage
	}
	if (q.FeatureType == FeatureEpisode) != (q.episode != nil) {
		return ErrMissingEpisode
	}
	return nil
}

func normalizeLanguages(languages []string) []string {
	seen := make(map[string]struct{}, len(languages))
	normalized := make([]string, 0, len(languages))
	for _, raw := range languages {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		normalized = append(normalized, value)
	}
	return normalized
}

// RankedRecord pairs a normalized record with its relevance score.
type RankedRecord struct {
	Record SubtitleRecord `json:"record"`
	Score  float64        `json:"score"`
}

type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

type SearchResponse struct {
	Query      string           `json:"query"`
	Items      []RankedRecord   `json:"items"`
	Providers  []ProviderStatus `json:"providers"`
	ElapsedMS  int64            `json:"elapsedMs"`
	TotalItems int              `json:"totalItems"`
}
