package addic7ed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/providers/tvdb"
)

type fakeCatalog struct {
	series tvdb.Series
	err    error
	hits   atomic.Int32
}

func (c *fakeCatalog) SeriesByIMDBID(ctx context.Context, imdbID string) (tvdb.Series, error) {
	c.hits.Add(1)
	if c.err != nil {
		return tvdb.Series{}, c.err
	}
	return c.series, nil
}

func episodeQuery(t *testing.T, season, episode int) domain.SearchQuery {
	t.Helper()
	query, err := domain.NewEpisodeQuery("tt0903747", []string{"english"}, 0, "", season, episode)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	return query
}

func TestSearchMovieQueryReturnsNothing(t *testing.T) {
	catalog := &fakeCatalog{}
	adapter := NewAdapter(Config{BaseURL: "http://unused.invalid", Catalog: catalog})

	query, err := domain.NewMovieQuery("tt0111161", []string{"english"}, 1994, "")
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	records, err := adapter.Search(context.Background(), query)
	if err != nil {
		t.Fatalf("movie query must be silent, got error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if catalog.hits.Load() != 0 {
		t.Fatal("catalog must not be consulted for movie queries")
	}
}

func TestSearchEpisodeChain(t *testing.T) {
	catalog := &fakeCatalog{series: tvdb.Series{ID: 81189, Name: "Breaking Bad"}}

	var showLookups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/shows/external/tvdb/81189", func(w http.ResponseWriter, r *http.Request) {
		showLookups.Add(1)
		_ = json.NewEncoder(w).Encode(showSearchResponse{
			Shows: []show{{ID: json.Number("2930"), Name: "Breaking Bad", TVDBID: 81189}},
		})
	})
	mux.HandleFunc("/subtitles/get/2930/2/5/english", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(subtitlesResponse{
			MatchingSubtitles: []matchingSubtitle{
				{SubtitleID: "sub-1", Version: "720p.HDTV.x264", DownloadURI: "/original/sub-1/0", Language: "english"},
			},
			Episode: episodeInfo{Season: 2, Number: 5, Title: "Breakage", Show: "Breaking Bad"},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	adapter := NewAdapter(Config{BaseURL: server.URL, Client: server.Client(), Catalog: catalog})

	records, err := adapter.Search(context.Background(), episodeQuery(t, 2, 5))
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ContentID != "sub-1" || got.ReleaseName != "720p.HDTV.x264" {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Provider != domain.ProviderAddic7ed {
		t.Fatalf("unexpected provider tag %q", got.Provider)
	}
	if got.Feature.Type != domain.FeatureEpisode || got.Feature.SeasonNumber != 2 || got.Feature.EpisodeNumber != 5 {
		t.Fatalf("unexpected feature %+v", got.Feature)
	}
	if got.Feature.FeatureName != "Breaking Bad" {
		t.Fatalf("unexpected feature name %q", got.Feature.FeatureName)
	}

	// The show id is cached in-process: a second search skips the catalog chain.
	if _, err := adapter.Search(context.Background(), episodeQuery(t, 2, 5)); err != nil {
		t.Fatalf("second search error: %v", err)
	}
	if catalog.hits.Load() != 1 {
		t.Fatalf("expected 1 catalog lookup, got %d", catalog.hits.Load())
	}
	if showLookups.Load() != 1 {
		t.Fatalf("expected 1 show lookup, got %d", showLookups.Load())
	}
}

func TestSearchEpisodeNotIndexed(t *testing.T) {
	catalog := &fakeCatalog{series: tvdb.Series{ID: 81189}}
	mux := http.NewServeMux()
	mux.HandleFunc("/shows/external/tvdb/81189", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(showSearchResponse{Shows: []show{{ID: json.Number("2930")}}})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	adapter := NewAdapter(Config{BaseURL: server.URL, Client: server.Client(), Catalog: catalog})
	records, err := adapter.Search(context.Background(), episodeQuery(t, 9, 9))
	if err != nil {
		t.Fatalf("unindexed episode must be empty, not an error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestSearchShowNotFound(t *testing.T) {
	catalog := &fakeCatalog{series: tvdb.Series{ID: 42}}
	mux := http.NewServeMux()
	mux.HandleFunc("/shows/external/tvdb/42", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(showSearchResponse{})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	adapter := NewAdapter(Config{BaseURL: server.URL, Client: server.Client(), Catalog: catalog})
	_, err := adapter.Search(context.Background(), episodeQuery(t, 1, 1))
	if !errors.Is(err, domain.ErrFeatureNotFound) {
		t.Fatalf("expected ErrFeatureNotFound, got %v", err)
	}
}

func TestSearchCatalogFailurePropagates(t *testing.T) {
	catalog := &fakeCatalog{err: fmt.Errorf("%w: tvdb down", domain.ErrProviderUnavailable)}
	adapter := NewAdapter(Config{BaseURL: "http://unused.invalid", Catalog: catalog})

	_, err := adapter.Search(context.Background(), episodeQuery(t, 1, 1))
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	const srt = "1\n00:00:01,000 --> 00:00:02,000\nhello\n"
	mux := http.NewServeMux()
	mux.HandleFunc("/subtitles/download/sub-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(srt))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	adapter := NewAdapter(Config{BaseURL: server.URL, Client: server.Client(), Catalog: &fakeCatalog{}})
	content, err := adapter.Download(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("download error: %v", err)
	}
	if content != srt {
		t.Fatalf("unexpected content %q", content)
	}

	if _, err := adapter.Download(context.Background(), "missing"); !errors.Is(err, domain.ErrContentNotFound) {
		t.Fatalf("expected ErrContentNotFound, got %v", err)
	}
}
