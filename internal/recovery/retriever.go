package recovery

import (
	"context"
	"log/slog"
	"time"

	"emsadvisor/internal/models"

	"github.com/patrickmn/go-cache"
)

// Cascade strategy names.
const (
	StrategyCache     = "cache"
	StrategyFileIndex = "file-index"
	StrategyRefusal   = "conservative-refusal"
)

// ConservativeRefusalMessage is the fixed response used when every retrieval
// strategy fails. It never fabricates medical content.
const ConservativeRefusalMessage = "Protocol content could not be retrieved from any source. " +
	"Do not rely on recalled dosing or protocol steps. Contact Base Hospital for medical direction."

// ProtocolSource looks up one protocol by code. "Not found" is reported as a
// nil protocol with a nil error.
type ProtocolSource interface {
	GetProtocolByCode(ctx context.Context, code string) (*models.Protocol, error)
}

// RetrievalOutcome reports the result of the fallback cascade.
type RetrievalOutcome struct {
	Success      bool             `json:"success"`
	Protocol     *models.Protocol `json:"protocol,omitempty"`
	StrategyUsed string           `json:"strategy_used"`
	Fallback     bool             `json:"fallback"`
	Message      string           `json:"message,omitempty"`
}

// CacheStats summarizes the protocol cache for operational control.
type CacheStats struct {
	Entries int      `json:"entries"`
	Keys    []string `json:"keys"`
}

// ProtocolRetriever wraps the flaky retrieval backend behind retry, a circuit
// breaker, a TTL cache and a static file index, in that order. When the
// primary source is nil (database retrieval disabled) the cascade starts at
// the cache.
type ProtocolRetriever struct {
	primary   ProtocolSource
	fileIndex ProtocolSource
	breakers  *CircuitBreakerSet
	cache     *cache.Cache

	maxAttempts int
	baseDelay   time.Duration

	// onStrategy, when set, observes each successful strategy name.
	onStrategy func(strategy string)
}

// NewProtocolRetriever builds the cascade. ttl bounds cache entry lifetime;
// entries are evicted lazily on read past expiry.
func NewProtocolRetriever(primary, fileIndex ProtocolSource, breakers *CircuitBreakerSet, ttl time.Duration) *ProtocolRetriever {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProtocolRetriever{
		primary:     primary,
		fileIndex:   fileIndex,
		breakers:    breakers,
		cache:       cache.New(ttl, 2*ttl),
		maxAttempts: 3,
		baseDelay:   200 * time.Millisecond,
	}
}

// OnStrategy registers an observer for successful strategy names.
func (r *ProtocolRetriever) OnStrategy(fn func(strategy string)) {
	r.onStrategy = fn
}

// RetrieveProtocol walks the cascade for the given protocol code:
// primary backend with retry, TTL cache, file index, conservative refusal.
// Failures propagate to the next link rather than aborting.
func (r *ProtocolRetriever) RetrieveProtocol(ctx context.Context, code string) RetrievalOutcome {
	if r.primary != nil {
		outcome, err := Execute(ctx, r.breakers, "protocol-backend", func(ctx context.Context) (*models.Protocol, error) {
			res := Retry(ctx, func(ctx context.Context) (*models.Protocol, error) {
				return r.primary.GetProtocolByCode(ctx, code)
			}, r.maxAttempts, r.baseDelay, "protocol-backend")
			if !res.Success {
				return nil, res.Err
			}
			return res.Data, nil
		}, nil)

		if err == nil && outcome.Data != nil {
			r.cache.SetDefault(code, outcome.Data)
			return r.record(RetrievalOutcome{Success: true, Protocol: outcome.Data, StrategyUsed: StrategyPrimary})
		}
		if err != nil {
			slog.Warn("primary protocol retrieval failed, falling back", "code", code, "error", err)
		}
	}

	if v, found := r.cache.Get(code); found {
		if p, ok := v.(*models.Protocol); ok {
			return r.record(RetrievalOutcome{Success: true, Protocol: p, StrategyUsed: StrategyCache, Fallback: true})
		}
	}

	if r.fileIndex != nil {
		p, err := r.fileIndex.GetProtocolByCode(ctx, code)
		if err != nil {
			slog.Warn("file index retrieval failed", "code", code, "error", err)
		} else if p != nil {
			r.cache.SetDefault(code, p)
			return r.record(RetrievalOutcome{Success: true, Protocol: p, StrategyUsed: StrategyFileIndex, Fallback: true})
		}
	}

	return r.record(RetrievalOutcome{
		Success:      false,
		StrategyUsed: StrategyRefusal,
		Fallback:     true,
		Message:      ConservativeRefusalMessage,
	})
}

func (r *ProtocolRetriever) record(out RetrievalOutcome) RetrievalOutcome {
	if r.onStrategy != nil {
		r.onStrategy(out.StrategyUsed)
	}
	return out
}

// Prime stores a protocol in the cache directly. Used at warm-up and by tests.
func (r *ProtocolRetriever) Prime(code string, p *models.Protocol) {
	r.cache.SetDefault(code, p)
}

// GetCacheStats returns a snapshot of the protocol cache.
func (r *ProtocolRetriever) GetCacheStats() CacheStats {
	items := r.cache.Items()
	stats := CacheStats{Entries: len(items), Keys: make([]string, 0, len(items))}
	for k := range items {
		stats.Keys = append(stats.Keys, k)
	}
	return stats
}

// ClearCache drops every cached protocol.
func (r *ProtocolRetriever) ClearCache() {
	r.cache.Flush()
}

// GetCircuitBreakerStatus exposes breaker state for operational control.
func (r *ProtocolRetriever) GetCircuitBreakerStatus() []BreakerStatus {
	return r.breakers.Status()
}

// ResetAllCircuitBreakers returns every breaker to closed.
func (r *ProtocolRetriever) ResetAllCircuitBreakers() {
	r.breakers.ResetAll()
}
