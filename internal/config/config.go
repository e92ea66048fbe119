package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Knowledge-base scope selector: only documents in this scope are indexed.
	KBScope string

	// Corpus and side-table file locations
	CorpusPath        string
	MetadataPath      string
	FallbackIndexPath string

	// Database-backed retrieval path
	DBRetrievalEnabled bool
	RetrievalDBPath    string

	// Circuit-breaker tuning
	CBThreshold        int
	CBTimeout          time.Duration
	CBResetTimeout     time.Duration
	CBHalfOpenRequests int

	// Protocol cache
	ProtocolCacheTTL time.Duration

	// Search
	SearchResultLimit int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		KBScope: getEnv("KB_SCOPE", "protocol-manual"),

		CorpusPath:        getEnv("CORPUS_PATH", "./data/protocols.json"),
		MetadataPath:      getEnv("METADATA_PATH", "./data/protocol_metadata.json"),
		FallbackIndexPath: getEnv("FALLBACK_INDEX_PATH", "./data/protocol_index.json"),

		DBRetrievalEnabled: getBoolEnv("DB_RETRIEVAL_ENABLED", false),
		RetrievalDBPath:    getEnv("RETRIEVAL_DB_PATH", "./data/protocols.db"),

		CBThreshold:        getIntEnv("CB_THRESHOLD", 3),
		CBTimeout:          getDurationEnv("CB_TIMEOUT_MS", 5000),
		CBResetTimeout:     getDurationEnv("CB_RESET_TIMEOUT_MS", 30000),
		CBHalfOpenRequests: getIntEnv("CB_HALF_OPEN_REQUESTS", 2),

		ProtocolCacheTTL: getDurationEnv("PROTOCOL_CACHE_TTL_MS", 3600000),

		SearchResultLimit: getIntEnv("SEARCH_RESULT_LIMIT", 6),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultMs int) time.Duration {
	return time.Duration(getIntEnv(key, defaultMs)) * time.Millisecond
}
