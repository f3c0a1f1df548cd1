// Package addic7ed adapts an Addic7ed proxy API to the normalized subtitle
// contract. The upstream only knows TV shows, addressed by its own show id;
// search therefore runs a catalog pre-step mapping the query's IMDB id to a
// TVDB series id and then to the Addic7ed show id. Movie/all queries are
// outside this provider's capability and return no results rather than an
// error.
package addic7ed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/providers/common"
	"substream/subtitleservice/internal/providers/tvdb"
)

const (
	maxPayloadBytes = 2 * 1024 * 1024
	redisCacheKey   = "subtitles:addic7ed:show:"
)

// CatalogLookup resolves an IMDB id to a TVDB series. *tvdb.Client satisfies it.
type CatalogLookup interface {
	SeriesByIMDBID(ctx context.Context, imdbID string) (tvdb.Series, error)
}

type Config struct {
	BaseURL  string
	Client   *http.Client
	Catalog  CatalogLookup
	Redis    *redis.Client
	CacheTTL time.Duration
}

type Adapter struct {
	client   *http.Client
	baseURL  string
	catalog  CatalogLookup
	redis    *redis.Client
	cacheTTL time.Duration

	// Show ids are stable, so successful lookups are kept for the process
	// lifetime to avoid repeating the two-hop catalog chain.
	showMu  sync.Mutex
	showIDs map[string]string
}

type showSearchResponse struct {
	Shows []show `json:"shows"`
}

type show struct {
	ID     json.Number `json:"id"`
	Name   string      `json:"name"`
	TVDBID int         `json:"tvDbId"`
}

type subtitlesResponse struct {
	MatchingSubtitles []matchingSubtitle `json:"matchingSubtitles"`
	Episode           episodeInfo        `json:"episode"`
}

type episodeInfo struct {
	Season     int       `json:"season"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	Show       string    `json:"show"`
	Discovered time.Time `json:"discovered"`
}

type matchingSubtitle struct {
	SubtitleID  string    `json:"subtitleId"`
	Version     string    `json:"version"`
	DownloadURI string    `json:"downloadUri"`
	Language    string    `json:"language"`
	Discovered  time.Time `json:"discovered"`
}

func NewAdapter(cfg Config) *Adapter {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 7 * 24 * time.Hour
	}
	return &Adapter{
		client:   client,
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		catalog:  cfg.Catalog,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
		showIDs:  make(map[string]string),
	}
}

func (a *Adapter) Name() domain.Provider {
	return domain.ProviderAddic7ed
}

func (a *Adapter) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    string(domain.ProviderAddic7ed),
		Label:   "Addic7ed",
		Kind:    "catalog",
		Enabled: a.baseURL != "" && a.catalog != nil,
	}
}

func (a *Adapter) Search(ctx context.Context, query domain.SearchQuery) ([]domain.SubtitleRecord, error) {
	episode, ok := query.Episode()
	if !ok {
		// Show-only upstream: a movie/all query is no results, not an error.
		return nil, nil
	}

	showID, err := a.showID(ctx, query.IMDBID)
	if err != nil {
		return nil, err
	}

	records := make([]domain.SubtitleRecord, 0)
	for _, language := range query.Languages {
		batch, err := a.searchEpisode(ctx, showID, episode, language, query.IMDBID)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

func (a *Adapter) searchEpisode(ctx context.Context, showID string, episode domain.EpisodeRef, language, imdbID string) ([]domain.SubtitleRecord, error) {
	endpoint := fmt.Sprintf("%s/subtitles/get/%s/%d/%d/%s",
		a.baseURL, showID, episode.Season, episode.Episode, language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: addic7ed: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The episode is simply not indexed yet.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: addic7ed subtitles HTTP %d", domain.ErrProviderRequestFailed, resp.StatusCode)
	}

	var decoded subtitlesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: addic7ed: %v", domain.ErrProviderRequestFailed, err)
	}

	records := make([]domain.SubtitleRecord, 0, len(decoded.MatchingSubtitles))
	for _, sub := range decoded.MatchingSubtitles {
		createdOn := sub.Discovered
		if createdOn.IsZero() {
			createdOn = decoded.Episode.Discovered
		}
		records = append(records, domain.SubtitleRecord{
			OriginID:    sub.SubtitleID,
			Provider:    domain.ProviderAddic7ed,
			ContentID:   sub.SubtitleID,
			CreatedOn:   createdOn,
			SourceURL:   sub.DownloadURI,
			ReleaseName: sub.Version,
			Feature: domain.Feature{
				Type:          domain.FeatureEpisode,
				Title:         decoded.Episode.Title,
				FeatureName:   decoded.Episode.Show,
				IMDBID:        imdbID,
				SeasonNumber:  decoded.Episode.Season,
				EpisodeNumber: decoded.Episode.Number,
			},
		})
	}
	return records, nil
}

// Download fetches subtitle text directly by content id; this upstream has no
// separate link-resolution step or download quota.
func (a *Adapter) Download(ctx context.Context, descriptor string) (string, error) {
	endpoint := a.baseURL + "/subtitles/download/" + descriptor

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: addic7ed: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: addic7ed subtitle %s", domain.ErrContentNotFound, descriptor)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: addic7ed content HTTP %d", domain.ErrProviderRequestFailed, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return "", fmt.Errorf("%w: addic7ed: %v", domain.ErrProviderRequestFailed, err)
	}
	return common.DecodeSubtitleText(payload), nil
}

// showID maps an IMDB id to the upstream's show id via the TVDB
// cross-reference, consulting the in-process and Redis caches first.
func (a *Adapter) showID(ctx context.Context, imdbID string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(imdbID))

	a.showMu.Lock()
	if id, ok := a.showIDs[key]; ok {
		a.showMu.Unlock()
		return id, nil
	}
	a.showMu.Unlock()

	if a.redis != nil {
		if id, err := a.redis.Get(ctx, redisCacheKey+key).Result(); err == nil && id != "" {
			a.rememberShowID(key, id)
			return id, nil
		}
	}

	series, err := a.catalog.SeriesByIMDBID(ctx, imdbID)
	if err != nil {
		return "", err
	}

	id, err := a.showByTVDBID(ctx, series.ID)
	if err != nil {
		return "", err
	}

	a.rememberShowID(key, id)
	if a.redis != nil {
		_ = a.redis.Set(ctx, redisCacheKey+key, id, a.cacheTTL).Err()
	}
	return id, nil
}

func (a *Adapter) showByTVDBID(ctx context.Context, tvdbID int) (string, error) {
	endpoint := a.baseURL + "/shows/external/tvdb/" + strconv.Itoa(tvdbID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: addic7ed: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: addic7ed has no show for tvdb id %d", domain.ErrFeatureNotFound, tvdbID)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: addic7ed show lookup HTTP %d", domain.ErrProviderRequestFailed, resp.StatusCode)
	}

	var decoded showSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: addic7ed: %v", domain.ErrProviderRequestFailed, err)
	}
	if len(decoded.Shows) == 0 {
		return "", fmt.Errorf("%w: addic7ed has no show for tvdb id %d", domain.ErrFeatureNotFound, tvdbID)
	}
	return decoded.Shows[0].ID.String(), nil
}

func (a *Adapter) rememberShowID(key, id string) {
	a.showMu.Lock()
	a.showIDs[key] = id
	a.showMu.Unlock()
}
