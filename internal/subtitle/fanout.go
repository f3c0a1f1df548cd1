package subtitle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"substream/subtitleservice/internal/domain"
)

// maxConcurrentAdapters bounds simultaneous provider queries so a large
// registry cannot overwhelm the process or the upstreams.
const maxConcurrentAdapters = 8

// Search fans the query out to every registered adapter concurrently, waits
// for all of them to settle, and returns the ranked union of the successful
// adapters' records. One adapter failing does not fail the search; the
// operation fails only when every adapter does.
func (s *Service) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResponse, error) {
	if err := query.Validate(); err != nil {
		return domain.SearchResponse{}, fmt.Errorf("invalid search query: %w", err)
	}
	if len(s.adapters) == 0 {
		return domain.SearchResponse{}, ErrNoAdapters
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	statuses := make([]domain.ProviderStatus, len(s.adapters))
	results := make([][]domain.SubtitleRecord, len(s.adapters))
	failures := make([]error, len(s.adapters))

	sem := semaphore.NewWeighted(maxConcurrentAdapters)
	var wg sync.WaitGroup
	for i, adapter := range s.adapters {
		wg.Add(1)
		go func(index int, current Adapter) {
			defer wg.Done()

			tag := string(current.Name())
			if err := sem.Acquire(runCtx, 1); err != nil {
				statuses[index] = domain.ProviderStatus{Name: tag, OK: false, Error: "context cancelled"}
				failures[index] = fmt.Errorf("%s: %w", tag, err)
				return
			}
			defer sem.Release(1)

			now := time.Now()
			if blocked, until, lastErr := s.isAdapterBlocked(tag, now); blocked {
				statuses[index] = domain.ProviderStatus{
					Name:  tag,
					OK:    false,
					Error: fmt.Sprintf("provider temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr),
				}
				failures[index] = fmt.Errorf("%s: %w: circuit open", tag, domain.ErrProviderUnavailable)
				return
			}

			adapterStartedAt := time.Now()
			records, err := current.Search(runCtx, query)
			s.recordAdapterResult(tag, err, time.Since(adapterStartedAt), time.Now())

			status := domain.ProviderStatus{Name: tag, OK: err == nil, Count: len(records)}
			if err != nil {
				status.Error = err.Error()
				failures[index] = fmt.Errorf("%s: %w", tag, err)
				s.logger.Warn("subtitle search: provider failed",
					slog.String("provider", tag),
					slog.String("imdbId", query.IMDBID),
					slog.String("error", err.Error()),
				)
			}
			statuses[index] = status
			results[index] = stampProvider(current.Name(), records)
		}(i, adapter)
	}
	wg.Wait()

	succeeded := 0
	errs := make([]error, 0, len(failures))
	for i := range s.adapters {
		if failures[i] == nil {
			succeeded++
		} else {
			errs = append(errs, failures[i])
		}
	}
	if succeeded == 0 {
		return domain.SearchResponse{}, errors.Join(append([]error{ErrAllProvidersFailed}, errs...)...)
	}

	// Concatenate in adapter-registration order so input to the ranker is
	// deterministic. No cross-provider dedup: the same release appearing once
	// per provider is legitimate.
	merged := make([]domain.SubtitleRecord, 0)
	for i := range s.adapters {
		merged = append(merged, results[i]...)
	}

	ranked := rankRecords(merged, query.Query, s.rankThreshold)

	s.logger.Info("subtitle search completed",
		slog.String("imdbId", query.IMDBID),
		slog.String("featureType", string(query.FeatureType)),
		slog.Int("merged", len(merged)),
		slog.Int("ranked", len(ranked)),
		slog.Int("failedProviders", len(errs)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)

	return domain.SearchResponse{
		Query:      query.Query,
		Items:      ranked,
		Providers:  statuses,
		ElapsedMS:  time.Since(startedAt).Milliseconds(),
		TotalItems: len(ranked),
	}, nil
}

// stampProvider enforces the ownership invariant: a record's provider tag
// always names the adapter that produced it, whatever the adapter set.
func stampProvider(tag domain.Provider, records []domain.SubtitleRecord) []domain.SubtitleRecord {
	for i := range records {
		records[i].Provider = tag
	}
	return records
}
