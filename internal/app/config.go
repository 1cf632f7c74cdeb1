package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	MongoURI           string
	MongoDatabase      string
	LogLevel           string
	LogFormat          string
	JWTSecret          string
	TokenTTL           time.Duration
	AdminUsername      string
	AdminPassword      string
	DownloadDir        string
	FFMPEGPath         string
	MetadataBaseURL    string
	MovieIndexBaseURL  string
	SeriesIndexBaseURL string
	FreeTextBaseURL    string
	TVBaseURL          string
	TorrentHelperURL   string // when set, video requests are proxied to an external helper
	SessionMaxAge      time.Duration
	EvictionInterval   time.Duration
	CORSOrigins        []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB", "streamgate"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenTTL:           getEnvDuration("TOKEN_TTL", 30*24*time.Hour),
		AdminUsername:      getEnv("ADMIN_USERNAME", ""),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		DownloadDir:        getEnv("DOWNLOAD_DIR", os.TempDir()),
		FFMPEGPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		MetadataBaseURL:    getEnv("METADATA_BASE_URL", "https://v3-cinemeta.strem.io"),
		MovieIndexBaseURL:  getEnv("MOVIE_INDEX_BASE_URL", "https://yts.mx"),
		SeriesIndexBaseURL: getEnv("SERIES_INDEX_BASE_URL", "https://eztvx.to"),
		FreeTextBaseURL:    getEnv("FREETEXT_BASE_URL", "https://apibay.org"),
		TVBaseURL:          getEnv("TV_BASE_URL", ""),
		TorrentHelperURL:   getEnv("TORRENT_HELPER_URL", ""),
		SessionMaxAge:      getEnvDuration("SESSION_MAX_AGE", 2*time.Hour),
		EvictionInterval:   getEnvDuration("EVICTION_INTERVAL", 5*time.Minute),
		CORSOrigins:        splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go duration strings ("2h", "5m") and falls back to
// whole seconds for bare integers.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
