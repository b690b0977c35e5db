package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendSQLite    = "sqlite"
	BackendPathstore = "pathstore"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Storage
	StoreBackend string
	SQLitePath   string

	// Pathstore connection, used when StoreBackend is pathstore
	PathstoreURL    string
	PathstoreAPIKey string

	// Background saving
	SaveDebounce time.Duration
	SaveWorkers  int
	MaxQueueSize int

	// Session and job state
	SessionTTL time.Duration

	// Upload limits
	MaxUploadBytes int64

	// PDF
	PDFFallbackPdftotext bool

	// Entity catalog: a JSON file of options, or a comma-separated list of names
	CatalogFile     string
	CatalogEntities []string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("ENTLABEL_API_KEY"),

		StoreBackend: strings.ToLower(envOr("STORE_BACKEND", BackendSQLite)),
		SQLitePath:   envOr("SQLITE_PATH", "data/entlabel.db"),

		PathstoreURL:    envOr("PATHSTORE_URL", "http://localhost:8080"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		SaveDebounce: envDuration("SAVE_DEBOUNCE", 500*time.Millisecond),
		SaveWorkers:  envInt("SAVE_WORKERS", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		SessionTTL: envDuration("SESSION_TTL", 1*time.Hour),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		CatalogFile:     os.Getenv("CATALOG_FILE"),
		CatalogEntities: envList("CATALOG_ENTITIES", []string{"Person", "Organization", "Location", "Date"}),
	}

	if cfg.SaveDebounce < 0 {
		cfg.SaveDebounce = 500 * time.Millisecond
	}
	if cfg.SaveWorkers <= 0 {
		cfg.SaveWorkers = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("ENTLABEL_API_KEY is required")
	}
	switch c.StoreBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPathstore:
		if c.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required for the pathstore backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want %s or %s)", c.StoreBackend, BackendSQLite, BackendPathstore)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
