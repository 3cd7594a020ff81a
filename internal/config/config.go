// Package config loads Config from environment variables, with an optional
// Vault-backed override when VAULT_ADDR is set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the fully-resolved run configuration. It is a plain value built
// once per run by Load — never a package-level singleton.
type Config struct {
	DatabaseURL string
	CacheDir    string
	LogLevel    string

	RefreshCache bool
	MaxRetries   int
	RetryDelay   time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration

	InitialChunkSize int
	MinChunkSize     int
	MaxChunkSize     int

	UseAIExtraction     bool
	ExtractorParallelism int

	RunTimeout time.Duration
	MetricsDir string

	NATSURL     string
	OTLPEndpoint string
	CronSchedule string

	// SourceAPIKeys holds per-source secrets, e.g. AERC_GEMINI_API_KEY.
	SourceAPIKeys map[string]string
}

// Load reads every setting from the environment, applying documented
// defaults, then — if VAULT_ADDR is set — overlays any matching keys found
// in a Vault KV v2 secret.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		CacheDir:             getenvDefault("CACHE_DIR", "./.cache"),
		LogLevel:             getenvDefault("LOG_LEVEL", "info"),
		RefreshCache:         getenvBool("REFRESH_CACHE", false),
		MaxRetries:           getenvInt("MAX_RETRIES", 3),
		RetryDelay:           getenvDuration("RETRY_DELAY", 2*time.Second),
		RequestTimeout:       getenvDuration("REQUEST_TIMEOUT", 30*time.Second),
		CacheTTL:             getenvDuration("CACHE_TTL", 24*time.Hour),
		InitialChunkSize:     getenvInt("INITIAL_CHUNK_SIZE", 10000),
		MinChunkSize:         getenvInt("MIN_CHUNK_SIZE", 2000),
		MaxChunkSize:         getenvInt("MAX_CHUNK_SIZE", 20000),
		UseAIExtraction:      getenvBool("USE_AI_EXTRACTION", false),
		ExtractorParallelism: getenvInt("EXTRACTOR_PARALLELISM", 1),
		RunTimeout:           getenvDuration("RUN_TIMEOUT", 10*time.Minute),
		MetricsDir:           getenvDefault("METRICS_DIR", "./logs/metrics"),
		NATSURL:              os.Getenv("NATS_URL"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CronSchedule:         os.Getenv("INGEST_SCHEDULE"),
		SourceAPIKeys:        collectSourceAPIKeys(),
	}

	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		if err := overlayVault(&cfg, addr); err != nil {
			return Config{}, fmt.Errorf("config: vault overlay: %w", err)
		}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}

	return cfg, nil
}

// collectSourceAPIKeys gathers every SOURCENAME_API_KEY-shaped variable the
// AI-assisted extraction strategy might need, e.g. AERC_GEMINI_API_KEY.
func collectSourceAPIKeys() map[string]string {
	keys := make(map[string]string)
	for _, env := range os.Environ() {
		for i := 0; i < len(env); i++ {
			if env[i] == '=' {
				key, val := env[:i], env[i+1:]
				if val != "" && isAPIKeyName(key) {
					keys[key] = val
				}
				break
			}
		}
	}
	return keys
}

func isAPIKeyName(key string) bool {
	suffixes := []string{"_API_KEY", "_GEMINI_API_KEY", "_OPENAI_API_KEY"}
	for _, suf := range suffixes {
		if len(key) > len(suf) && key[len(key)-len(suf):] == suf {
			return true
		}
	}
	return false
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
