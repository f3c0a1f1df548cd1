package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	UserAgent      string

	OpenSubtitlesEndpoint string
	OpenSubtitlesAPIKey   string
	OpenSubtitlesUsername string
	OpenSubtitlesPassword string

	Addic7edEndpoint string

	TVDBEndpoint string
	TVDBAPIKey   string

	RedisURL      string
	ShowCacheTTL  time.Duration
	RankThreshold float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8090"),
		RequestTimeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:      getEnv("SUBTITLES_USER_AGENT", "substream-subtitles/1.0"),

		OpenSubtitlesEndpoint: getEnv("OPENSUBTITLES_API_URL", "https://api.opensubtitles.com/api/v1"),
		OpenSubtitlesAPIKey:   strings.TrimSpace(os.Getenv("OPENSUBTITLES_API_KEY")),
		OpenSubtitlesUsername: strings.TrimSpace(os.Getenv("OPENSUBTITLES_USERNAME")),
		OpenSubtitlesPassword: os.Getenv("OPENSUBTITLES_PASSWORD"),

		Addic7edEndpoint: getEnv("ADDIC7ED_API_URL", ""),

		TVDBEndpoint: getEnv("TVDB_API_URL", "https://api4.thetvdb.com/v4"),
		TVDBAPIKey:   strings.TrimSpace(os.Getenv("TVDB_API_KEY")),

		RedisURL:      getEnv("REDIS_URL", ""),
		ShowCacheTTL:  time.Duration(getEnvInt("SHOW_CACHE_TTL_DAYS", 7)) * 24 * time.Hour,
		RankThreshold: getEnvFloat("RANK_THRESHOLD", 0.5),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return fallback
	}
	return parsed
}
