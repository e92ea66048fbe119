package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"emsadvisor/internal/models"
)

type stubSource struct {
	protocols map[string]*models.Protocol
	err       error
	calls     int
}

func (s *stubSource) GetProtocolByCode(_ context.Context, code string) (*models.Protocol, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.protocols[code], nil
}

func fastRetriever(primary, fileIndex ProtocolSource) *ProtocolRetriever {
	r := NewProtocolRetriever(primary, fileIndex, NewCircuitBreakerSet(testBreakerConfig()), time.Minute)
	r.maxAttempts = 1
	r.baseDelay = time.Millisecond
	return r
}

func testProtocol(code string) *models.Protocol {
	return &models.Protocol{TPCode: code, Name: "cardiac arrest", IsCurrent: true, FullText: "full text"}
}

func TestRetrieve_PrimarySuccess(t *testing.T) {
	primary := &stubSource{protocols: map[string]*models.Protocol{"1210": testProtocol("1210")}}
	r := fastRetriever(primary, nil)

	out := r.RetrieveProtocol(context.Background(), "1210")
	if !out.Success || out.Fallback {
		t.Fatalf("outcome = %+v", out)
	}
	if out.StrategyUsed != StrategyPrimary {
		t.Errorf("StrategyUsed = %q, want %q", out.StrategyUsed, StrategyPrimary)
	}
	if out.Protocol == nil || out.Protocol.TPCode != "1210" {
		t.Errorf("protocol = %+v", out.Protocol)
	}

	// A primary hit populates the cache.
	if stats := r.GetCacheStats(); stats.Entries != 1 {
		t.Errorf("cache entries = %d, want 1", stats.Entries)
	}
}

func TestRetrieve_CacheFallback(t *testing.T) {
	primary := &stubSource{err: errors.New("backend down")}
	r := fastRetriever(primary, nil)
	r.Prime("1210", testProtocol("1210"))

	out := r.RetrieveProtocol(context.Background(), "1210")
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if out.StrategyUsed != StrategyCache {
		t.Errorf("StrategyUsed = %q, want %q", out.StrategyUsed, StrategyCache)
	}
	if !out.Fallback {
		t.Error("cache hit must be marked as a fallback")
	}
}

func TestRetrieve_FileIndexFallback(t *testing.T) {
	primary := &stubSource{err: errors.New("backend down")}
	fileIndex := &stubSource{protocols: map[string]*models.Protocol{"1237": testProtocol("1237")}}
	r := fastRetriever(primary, fileIndex)

	out := r.RetrieveProtocol(context.Background(), "1237")
	if !out.Success || out.StrategyUsed != StrategyFileIndex || !out.Fallback {
		t.Fatalf("outcome = %+v", out)
	}

	// The file-index hit is cached; a repeat lookup stops at the cache.
	again := r.RetrieveProtocol(context.Background(), "1237")
	if again.StrategyUsed != StrategyCache {
		t.Errorf("repeat StrategyUsed = %q, want %q", again.StrategyUsed, StrategyCache)
	}
}

func TestRetrieve_ConservativeRefusal(t *testing.T) {
	primary := &stubSource{err: errors.New("backend down")}
	fileIndex := &stubSource{protocols: map[string]*models.Protocol{}}
	r := fastRetriever(primary, fileIndex)

	out := r.RetrieveProtocol(context.Background(), "1299")
	if out.Success {
		t.Fatal("expected refusal outcome")
	}
	if out.StrategyUsed != StrategyRefusal || !out.Fallback {
		t.Errorf("outcome = %+v", out)
	}
	if out.Message != ConservativeRefusalMessage {
		t.Errorf("message = %q", out.Message)
	}
	if out.Protocol != nil {
		t.Error("refusal outcome must not fabricate a protocol")
	}
}

func TestRetrieve_NoPrimaryStartsAtCache(t *testing.T) {
	fileIndex := &stubSource{protocols: map[string]*models.Protocol{"1210": testProtocol("1210")}}
	r := fastRetriever(nil, fileIndex)

	out := r.RetrieveProtocol(context.Background(), "1210")
	if !out.Success || out.StrategyUsed != StrategyFileIndex {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestRetrieve_StrategyObserver(t *testing.T) {
	primary := &stubSource{err: errors.New("backend down")}
	r := fastRetriever(primary, nil)
	r.Prime("1210", testProtocol("1210"))

	var seen []string
	r.OnStrategy(func(s string) { seen = append(seen, s) })

	r.RetrieveProtocol(context.Background(), "1210")
	r.RetrieveProtocol(context.Background(), "1299")

	if len(seen) != 2 || seen[0] != StrategyCache || seen[1] != StrategyRefusal {
		t.Errorf("observed strategies = %v", seen)
	}
}

func TestClearCache(t *testing.T) {
	r := fastRetriever(nil, nil)
	r.Prime("1210", testProtocol("1210"))
	r.Prime("1237", testProtocol("1237"))

	if stats := r.GetCacheStats(); stats.Entries != 2 {
		t.Fatalf("cache entries = %d, want 2", stats.Entries)
	}
	r.ClearCache()
	if stats := r.GetCacheStats(); stats.Entries != 0 {
		t.Errorf("cache entries after clear = %d, want 0", stats.Entries)
	}

	out := r.RetrieveProtocol(context.Background(), "1210")
	if out.StrategyUsed != StrategyRefusal {
		t.Errorf("StrategyUsed after clear = %q, want refusal", out.StrategyUsed)
	}
}
