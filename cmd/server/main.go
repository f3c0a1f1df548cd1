package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "substream/subtitleservice/internal/api/http"
	"substream/subtitleservice/internal/app"
	"substream/subtitleservice/internal/metrics"
	"substream/subtitleservice/internal/providers/addic7ed"
	"substream/subtitleservice/internal/providers/opensubtitles"
	"substream/subtitleservice/internal/providers/tvdb"
	"substream/subtitleservice/internal/storage"
	"substream/subtitleservice/internal/subtitle"
	"substream/subtitleservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "subtitle-search")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "subtitle-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Bool("hasOpenSubtitlesKey", cfg.OpenSubtitlesAPIKey != ""),
		slog.Bool("hasAddic7ed", cfg.Addic7edEndpoint != ""),
		slog.Bool("hasTVDBKey", cfg.TVDBAPIKey != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Float64("rankThreshold", cfg.RankThreshold),
	)

	redisClient := buildRedisClient(cfg, logger)
	store := buildBlobStore(redisClient, logger)

	openSubtitlesClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	addic7edClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	tvdbClient := &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}

	adapters := []subtitle.Adapter{
		opensubtitles.NewAdapter(opensubtitles.Config{
			BaseURL:   cfg.OpenSubtitlesEndpoint,
			APIKey:    cfg.OpenSubtitlesAPIKey,
			UserAgent: cfg.UserAgent,
			Username:  cfg.OpenSubtitlesUsername,
			Password:  cfg.OpenSubtitlesPassword,
			Client:    openSubtitlesClient,
			Logger:    logger,
		}),
	}

	if cfg.Addic7edEndpoint != "" && cfg.TVDBAPIKey != "" {
		catalog := tvdb.NewClient(tvdb.Config{
			APIKey:   cfg.TVDBAPIKey,
			BaseURL:  cfg.TVDBEndpoint,
			Client:   tvdbClient,
			Redis:    redisClient,
			CacheTTL: cfg.ShowCacheTTL,
		})
		adapters = append(adapters, addic7ed.NewAdapter(addic7ed.Config{
			BaseURL:  cfg.Addic7edEndpoint,
			Client:   addic7edClient,
			Catalog:  catalog,
			Redis:    redisClient,
			CacheTTL: cfg.ShowCacheTTL,
		}))
	} else {
		logger.Info("addic7ed provider disabled",
			slog.Bool("hasEndpoint", cfg.Addic7edEndpoint != ""),
			slog.Bool("hasTVDBKey", cfg.TVDBAPIKey != ""),
		)
	}

	subtitleService := subtitle.NewService(adapters, store, cfg.RequestTimeout,
		subtitle.WithLogger(logger),
		subtitle.WithRankThreshold(cfg.RankThreshold),
	)
	defer subtitleService.Close()

	handler := apihttp.NewServer(subtitleService, apihttp.WithLogger(logger)).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("subtitle search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("subtitle search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, redis disabled", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, redis disabled", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildBlobStore(redisClient *redis.Client, logger *slog.Logger) storage.Store {
	if redisClient == nil {
		logger.Info("using in-memory subtitle content store")
		return storage.NewMemoryStore()
	}
	return storage.NewRedisStore(redisClient)
}
