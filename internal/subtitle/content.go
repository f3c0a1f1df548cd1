package subtitle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/metrics"
	"substream/subtitleservice/internal/storage"
)

const cacheWriteTimeout = 15 * time.Second

// Content returns subtitle text for a content id, cache-aside: the blob store
// is consulted first and only a miss reaches the owning provider. A download
// obtained on miss is written back to the store in the background; that write
// is best-effort and never fails the call. A failed download never creates a
// store entry, so presence in the store always implies a prior successful
// provider fetch.
func (s *Service) Content(ctx context.Context, contentID string, provider domain.Provider) (string, error) {
	if contentID == "" || provider == "" {
		return "", ErrInvalidRequest
	}

	cached, err := s.store.Get(ctx, contentID)
	switch {
	case err == nil:
		metrics.ContentCacheHitsTotal.Inc()
		return string(cached), nil
	case errors.Is(err, storage.ErrNotFound):
		metrics.ContentCacheMissesTotal.Inc()
	default:
		// A store outage is not a miss; falling through to the provider here
		// would hide it and burn download quota.
		return "", fmt.Errorf("blob store get %q: %w", contentID, err)
	}

	adapter, ok := s.byTag[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	descriptor := contentID
	if resolver, ok := adapter.(DownloadResolver); ok {
		descriptor, err = resolver.ResolveDownload(ctx, contentID)
		if err != nil {
			return "", fmt.Errorf("resolve download %q via %s: %w", contentID, provider, err)
		}
	}

	content, err := adapter.Download(ctx, descriptor)
	if err != nil {
		return "", fmt.Errorf("download %q via %s: %w", contentID, provider, err)
	}
	metrics.ContentDownloadsTotal.WithLabelValues(string(provider)).Inc()

	s.repopulateAsync(contentID, provider, content)
	return content, nil
}

// repopulateAsync writes freshly downloaded content back to the blob store
// without blocking the caller. Transient store errors are retried; a final
// failure is logged and counted, never swallowed silently.
func (s *Service) repopulateAsync(contentID string, provider domain.Provider, content string) {
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()

		writeCtx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()

		err := RetryWithBackoff(writeCtx, DefaultRetryConfig(), func() error {
			return s.store.Put(writeCtx, contentID, []byte(content))
		})
		if err != nil {
			metrics.CacheWriteFailuresTotal.Inc()
			s.logger.Error("subtitle cache write failed",
				slog.String("contentId", contentID),
				slog.String("provider", string(provider)),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Debug("subtitle cached",
			slog.String("contentId", contentID),
			slog.String("provider", string(provider)),
			slog.Int("bytes", len(content)),
		)
	}()
}
