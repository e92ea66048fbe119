package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BreakerState is one of the three circuit states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// Strategy names recorded by Execute.
const (
	StrategyPrimary  = "primary"
	StrategyFallback = "fallback"
	StrategyBlocked  = "circuit-breaker-blocked"
)

// ErrCircuitOpen is returned when the breaker blocks a call and no fallback
// was supplied.
var ErrCircuitOpen = fmt.Errorf("circuit breaker open")

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	Threshold        int           // consecutive failures before opening
	Timeout          time.Duration // per-call timeout for the primary operation, 0 for none
	ResetTimeout     time.Duration // time open before allowing half-open probes
	HalfOpenRequests int           // bounded number of probe calls while half-open
}

// DefaultBreakerConfig mirrors the production tuning defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:        3,
		Timeout:          5 * time.Second,
		ResetTimeout:     30 * time.Second,
		HalfOpenRequests: 2,
	}
}

type breaker struct {
	state         BreakerState
	failureCount  int
	lastFailureAt time.Time
	halfOpenUsed  int
}

// BreakerStatus is the externally visible snapshot of one breaker.
type BreakerStatus struct {
	Key           string       `json:"key"`
	State         BreakerState `json:"state"`
	FailureCount  int          `json:"failure_count"`
	LastFailureAt time.Time    `json:"last_failure_at,omitempty"`
}

// CircuitBreakerSet holds per-operation-key breakers, created lazily on first
// use and shared across concurrent requests. All transitions are atomic with
// respect to interleaved access.
type CircuitBreakerSet struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewCircuitBreakerSet creates a breaker set with the given tuning.
func NewCircuitBreakerSet(cfg BreakerConfig) *CircuitBreakerSet {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerConfig().Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = DefaultBreakerConfig().HalfOpenRequests
	}
	return &CircuitBreakerSet{
		cfg:      cfg,
		now:      time.Now,
		breakers: make(map[string]*breaker),
	}
}

func (c *CircuitBreakerSet) get(key string) *breaker {
	b, ok := c.breakers[key]
	if !ok {
		b = &breaker{state: StateClosed}
		c.breakers[key] = b
	}
	return b
}

// allow reports whether a call for key may proceed, transitioning
// open → half-open once the reset timeout has elapsed.
func (c *CircuitBreakerSet) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.get(key)
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if c.now().Sub(b.lastFailureAt) >= c.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.halfOpenUsed = 1
			slog.Info("circuit breaker half-open", "key", key)
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenUsed < c.cfg.HalfOpenRequests {
			b.halfOpenUsed++
			return true
		}
		return false
	}
	return false
}

// RecordFailure counts a failure for key; on reaching the threshold the
// breaker opens. A half-open probe failure re-opens immediately.
func (c *CircuitBreakerSet) RecordFailure(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.get(key)
	b.failureCount++
	b.lastFailureAt = c.now()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.halfOpenUsed = 0
		slog.Warn("circuit breaker re-opened", "key", key)
	case StateClosed:
		if b.failureCount >= c.cfg.Threshold {
			b.state = StateOpen
			slog.Warn("circuit breaker opened", "key", key, "failures", b.failureCount)
		}
	}
}

// RecordSuccess resets key to closed. Any half-open probe success closes the
// circuit.
func (c *CircuitBreakerSet) RecordSuccess(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.get(key)
	if b.state != StateClosed {
		slog.Info("circuit breaker closed", "key", key)
	}
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenUsed = 0
}

// State returns the current state for key.
func (c *CircuitBreakerSet) State(key string) BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key).state
}

// FailureCount returns the accumulated failure count for key.
func (c *CircuitBreakerSet) FailureCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key).failureCount
}

// Reset returns key to closed with a zero failure count.
func (c *CircuitBreakerSet) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakers[key] = &breaker{state: StateClosed}
}

// ResetAll resets every breaker. Administrative, non-blocking.
func (c *CircuitBreakerSet) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakers = make(map[string]*breaker)
}

// Status snapshots every breaker for operational visibility.
func (c *CircuitBreakerSet) Status() []BreakerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]BreakerStatus, 0, len(c.breakers))
	for key, b := range c.breakers {
		out = append(out, BreakerStatus{
			Key:           key,
			State:         b.state,
			FailureCount:  b.failureCount,
			LastFailureAt: b.lastFailureAt,
		})
	}
	return out
}

// Outcome reports which strategy produced a result from Execute.
type Outcome[T any] struct {
	Data         T
	StrategyUsed string
}

// Execute runs primary behind the breaker for key. When the breaker is open,
// the primary is not invoked: the fallback runs instead, or, with no fallback,
// the call is blocked with StrategyUsed "circuit-breaker-blocked". A primary
// failure with a fallback present degrades to the fallback.
func Execute[T any](ctx context.Context, c *CircuitBreakerSet, key string, primary, fallback func(context.Context) (T, error)) (Outcome[T], error) {
	var out Outcome[T]

	if !c.allow(key) {
		if fallback == nil {
			out.StrategyUsed = StrategyBlocked
			return out, fmt.Errorf("%w: %s", ErrCircuitOpen, key)
		}
		data, err := fallback(ctx)
		if err != nil {
			out.StrategyUsed = StrategyFallback
			return out, fmt.Errorf("fallback failed for %s: %w", key, err)
		}
		out.Data = data
		out.StrategyUsed = StrategyFallback
		return out, nil
	}

	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	data, err := primary(callCtx)
	if err == nil {
		c.RecordSuccess(key)
		out.Data = data
		out.StrategyUsed = StrategyPrimary
		return out, nil
	}
	c.RecordFailure(key)

	if fallback == nil {
		out.StrategyUsed = StrategyPrimary
		return out, err
	}
	fbData, fbErr := fallback(ctx)
	if fbErr != nil {
		out.StrategyUsed = StrategyFallback
		return out, fmt.Errorf("primary failed (%v); fallback failed for %s: %w", err, key, fbErr)
	}
	out.Data = fbData
	out.StrategyUsed = StrategyFallback
	return out, nil
}
