package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.KBScope != "protocol-manual" {
		t.Errorf("KBScope = %q", cfg.KBScope)
	}
	if cfg.DBRetrievalEnabled {
		t.Error("DBRetrievalEnabled defaults to true")
	}
	if cfg.CBThreshold != 3 {
		t.Errorf("CBThreshold = %d, want 3", cfg.CBThreshold)
	}
	if cfg.CBResetTimeout != 30*time.Second {
		t.Errorf("CBResetTimeout = %v, want 30s", cfg.CBResetTimeout)
	}
	if cfg.CBHalfOpenRequests != 2 {
		t.Errorf("CBHalfOpenRequests = %d, want 2", cfg.CBHalfOpenRequests)
	}
	if cfg.ProtocolCacheTTL != time.Hour {
		t.Errorf("ProtocolCacheTTL = %v, want 1h", cfg.ProtocolCacheTTL)
	}
	if cfg.SearchResultLimit != 6 {
		t.Errorf("SearchResultLimit = %d, want 6", cfg.SearchResultLimit)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KB_SCOPE", "all")
	t.Setenv("DB_RETRIEVAL_ENABLED", "true")
	t.Setenv("CB_THRESHOLD", "5")
	t.Setenv("CB_RESET_TIMEOUT_MS", "1000")
	t.Setenv("PROTOCOL_CACHE_TTL_MS", "60000")
	t.Setenv("SEARCH_RESULT_LIMIT", "10")

	cfg := Load()

	if cfg.KBScope != "all" {
		t.Errorf("KBScope = %q", cfg.KBScope)
	}
	if !cfg.DBRetrievalEnabled {
		t.Error("DBRetrievalEnabled override ignored")
	}
	if cfg.CBThreshold != 5 {
		t.Errorf("CBThreshold = %d, want 5", cfg.CBThreshold)
	}
	if cfg.CBResetTimeout != time.Second {
		t.Errorf("CBResetTimeout = %v, want 1s", cfg.CBResetTimeout)
	}
	if cfg.ProtocolCacheTTL != time.Minute {
		t.Errorf("ProtocolCacheTTL = %v, want 1m", cfg.ProtocolCacheTTL)
	}
	if cfg.SearchResultLimit != 10 {
		t.Errorf("SearchResultLimit = %d, want 10", cfg.SearchResultLimit)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("CB_THRESHOLD", "many")
	t.Setenv("DB_RETRIEVAL_ENABLED", "sometimes")

	cfg := Load()
	if cfg.CBThreshold != 3 {
		t.Errorf("CBThreshold = %d, want default 3 for malformed value", cfg.CBThreshold)
	}
	if cfg.DBRetrievalEnabled {
		t.Error("malformed bool did not fall back to default")
	}
}
