package app

import (
	"os"
	"testing"
	"time"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	// Clear all env vars that LoadConfig reads so we get pure defaults.
	envVars := []string{
		"HTTP_ADDR", "MONGO_URI", "MONGO_DB",
		"LOG_LEVEL", "LOG_FORMAT",
		"JWT_SECRET", "TOKEN_TTL", "ADMIN_USERNAME", "ADMIN_PASSWORD",
		"DOWNLOAD_DIR", "FFMPEG_PATH",
		"METADATA_BASE_URL", "MOVIE_INDEX_BASE_URL", "SERIES_INDEX_BASE_URL",
		"FREETEXT_BASE_URL", "TV_BASE_URL", "TORRENT_HELPER_URL",
		"SESSION_MAX_AGE", "EVICTION_INTERVAL",
		"CORS_ALLOWED_ORIGINS",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"MongoURI", cfg.MongoURI, "mongodb://localhost:27017"},
		{"MongoDatabase", cfg.MongoDatabase, "streamgate"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"JWTSecret", cfg.JWTSecret, ""},
		{"TokenTTL", cfg.TokenTTL, 30 * 24 * time.Hour},
		{"DownloadDir", cfg.DownloadDir, os.TempDir()},
		{"FFMPEGPath", cfg.FFMPEGPath, "ffmpeg"},
		{"MetadataBaseURL", cfg.MetadataBaseURL, "https://v3-cinemeta.strem.io"},
		{"TorrentHelperURL", cfg.TorrentHelperURL, ""},
		{"SessionMaxAge", cfg.SessionMaxAge, 2 * time.Hour},
		{"EvictionInterval", cfg.EvictionInterval, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins: got %v, want [*]", cfg.CORSOrigins)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"HTTP_ADDR":            ":9090",
		"MONGO_URI":            "mongodb://remote:27017",
		"MONGO_DB":             "mydb",
		"LOG_LEVEL":            "DEBUG",
		"LOG_FORMAT":           "JSON",
		"JWT_SECRET":           "s3cret",
		"TOKEN_TTL":            "48h",
		"DOWNLOAD_DIR":         "/mnt/data",
		"FFMPEG_PATH":          "/usr/bin/ffmpeg",
		"METADATA_BASE_URL":    "http://meta.local",
		"TORRENT_HELPER_URL":   "http://helper:3000",
		"SESSION_MAX_AGE":      "1h",
		"EVICTION_INTERVAL":    "90",
		"CORS_ALLOWED_ORIGINS": "http://localhost:3000, https://example.com",
	})

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":9090"},
		{"MongoURI", cfg.MongoURI, "mongodb://remote:27017"},
		{"MongoDatabase", cfg.MongoDatabase, "mydb"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"JWTSecret", cfg.JWTSecret, "s3cret"},
		{"TokenTTL", cfg.TokenTTL, 48 * time.Hour},
		{"DownloadDir", cfg.DownloadDir, "/mnt/data"},
		{"FFMPEGPath", cfg.FFMPEGPath, "/usr/bin/ffmpeg"},
		{"MetadataBaseURL", cfg.MetadataBaseURL, "http://meta.local"},
		{"TorrentHelperURL", cfg.TorrentHelperURL, "http://helper:3000"},
		{"SessionMaxAge", cfg.SessionMaxAge, time.Hour},
		{"EvictionInterval", cfg.EvictionInterval, 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	wantOrigins := []string{"http://localhost:3000", "https://example.com"}
	if len(cfg.CORSOrigins) != len(wantOrigins) {
		t.Fatalf("CORSOrigins: got %d entries, want %d", len(cfg.CORSOrigins), len(wantOrigins))
	}
	for i, got := range cfg.CORSOrigins {
		if got != wantOrigins[i] {
			t.Errorf("CORSOrigins[%d]: got %q, want %q", i, got, wantOrigins[i])
		}
	}
}

func TestGetEnvInt64InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int64
		want     int64
	}{
		{"empty string", "", 42, 42},
		{"not a number", "abc", 42, 42},
		{"negative number", "-5", 42, 42},
		{"zero", "0", 42, 0},
		{"valid positive", "100", 42, 100},
		{"whitespace around number", "  50  ", 42, 50},
		{"float", "3.14", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envVal)
			got := getEnvInt64("TEST_INT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvInt64(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name   string
		envVal string
		want   time.Duration
	}{
		{"empty falls back", "", time.Minute},
		{"duration string", "2h", 2 * time.Hour},
		{"bare seconds", "300", 5 * time.Minute},
		{"garbage falls back", "soon", time.Minute},
		{"negative falls back", "-5m", time.Minute},
		{"zero falls back", "0", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DUR_VAR", tt.envVal)
			got := getEnvDuration("TEST_DUR_VAR", time.Minute)
			if got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.envVal, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", nil},
		{"whitespace only", "   ", nil},
		{"single value", "http://localhost:3000", []string{"http://localhost:3000"}},
		{"multiple values", "a,b,c", []string{"a", "b", "c"}},
		{"values with spaces", " a , b , c ", []string{"a", "b", "c"}},
		{"trailing comma", "a,b,", []string{"a", "b"}},
		{"empty entries filtered", "a,,b,,c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitList(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("splitList(%q) returned %d elements, want %d", tt.input, len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("splitList(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("TEST_EXISTING", "hello")

	if got := getEnv("TEST_EXISTING", "default"); got != "hello" {
		t.Errorf("getEnv(existing) = %q, want %q", got, "hello")
	}

	// Unset to test fallback
	t.Setenv("TEST_MISSING_XYZ", "")
	os.Unsetenv("TEST_MISSING_XYZ")
	if got := getEnv("TEST_MISSING_XYZ", "default"); got != "default" {
		t.Errorf("getEnv(missing) = %q, want %q", got, "default")
	}
}

func TestLogLevelCaseInsensitive(t *testing.T) {
	// LoadConfig lowercases LOG_LEVEL, so "DEBUG" -> "debug"
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg := LoadConfig()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "debug")
	}

	t.Setenv("LOG_LEVEL", "Warn")
	cfg = LoadConfig()
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "warn")
	}
}
