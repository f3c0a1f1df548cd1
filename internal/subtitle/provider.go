package subtitle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/storage"
)

var (
	ErrInvalidRequest     = errors.New("content id and provider are required")
	ErrNoAdapters         = errors.New("no subtitle providers configured")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrAllProvidersFailed = errors.New("all subtitle providers failed")
)

// Adapter normalizes one provider's search/download API into the common
// contract. Search must return an empty slice, not an error, when the query's
// feature-type variant is outside the provider's capability.
type Adapter interface {
	Name() domain.Provider
	Info() domain.ProviderInfo
	Search(ctx context.Context, query domain.SearchQuery) ([]domain.SubtitleRecord, error)
	// Download fetches raw subtitle text for a descriptor. For adapters
	// without a resolution step the descriptor is the content id itself.
	Download(ctx context.Context, descriptor string) (string, error)
}

// DownloadResolver is an optional interface for adapters whose upstream uses
// a two-step flow: request a download link, then fetch it. Resolving may
// consume authentication and a provider-side quota, so it is only invoked
// when content is actually needed.
type DownloadResolver interface {
	ResolveDownload(ctx context.Context, contentID string) (string, error)
}

type Service struct {
	adapters []Adapter
	byTag    map[domain.Provider]Adapter
	store    storage.Store
	timeout  time.Duration
	logger   *slog.Logger

	rankThreshold float64

	healthMu sync.Mutex
	health   map[string]*adapterHealth

	// writes tracks in-flight background cache repopulations so shutdown
	// (and tests) can wait for them to settle.
	writes sync.WaitGroup
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRankThreshold(threshold float64) ServiceOption {
	return func(s *Service) {
		if threshold > 0 && threshold < 1 {
			s.rankThreshold = threshold
		}
	}
}

func NewService(adapters []Adapter, store storage.Store, timeout time.Duration, opts ...ServiceOption) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	registered := make([]Adapter, 0, len(adapters))
	byTag := make(map[domain.Provider]Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		tag := adapter.Name()
		if tag == "" {
			continue
		}
		if _, exists := byTag[tag]; exists {
			continue
		}
		byTag[tag] = adapter
		registered = append(registered, adapter)
	}

	svc := &Service{
		adapters:      registered,
		byTag:         byTag,
		store:         store,
		timeout:       timeout,
		logger:        slog.Default(),
		rankThreshold: defaultRankThreshold,
		health:        make(map[string]*adapterHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Close waits for background cache writes to finish.
func (s *Service) Close() {
	s.writes.Wait()
}

func (s *Service) Providers() []domain.ProviderInfo {
	if len(s.adapters) == 0 {
		return nil
	}
	items := make([]domain.ProviderInfo, 0, len(s.adapters))
	for _, adapter := range s.adapters {
		info := adapter.Info()
		if info.Name == "" {
			info.Name = string(adapter.Name())
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	return items
}
