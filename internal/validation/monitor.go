package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"emsadvisor/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// successTargetPct is the operational success-rate target reported on.
const successTargetPct = 99.0

// patternExampleLimit bounds how many example messages each error pattern
// retains.
const patternExampleLimit = 5

// recentFailureLimit bounds the sliding window of recent failures.
const recentFailureLimit = 50

// Sample is one recorded validation outcome.
type Sample struct {
	ID         string            `json:"id"`
	Stage      string            `json:"stage"`
	Result     string            `json:"result"` // "success" or "failure"
	DurationMs float64           `json:"duration_ms"`
	Context    map[string]string `json:"context,omitempty"`
	At         time.Time         `json:"at"`
}

// Pattern is a frequency-ranked error code with bounded example messages.
type Pattern struct {
	Code     string   `json:"code"`
	Count    int      `json:"count"`
	Examples []string `json:"examples"`
}

// Metrics is the exported aggregate snapshot.
type Metrics struct {
	Total          int                `json:"total"`
	Success        int                `json:"success"`
	Failure        int                `json:"failure"`
	SuccessRate    float64            `json:"success_rate"`
	AvgDurationMs  map[string]float64 `json:"avg_duration_ms"`
	SeverityCounts map[string]int     `json:"severity_counts"`
	Patterns       []Pattern          `json:"patterns"`
	RecentFailures []Sample           `json:"recent_failures"`
}

// Monitor aggregates validation outcomes into metrics and patterns for
// operational visibility. It is an explicitly constructed service holding its
// own synchronized state; construct a fresh one for test isolation.
type Monitor struct {
	mu sync.Mutex

	samples        []Sample
	success        int
	failure        int
	durations      map[string]float64 // total ms per stage
	stageCounts    map[string]int
	severityCounts map[string]int
	patterns       map[string]*Pattern
	recentFailures []Sample

	registry       *prometheus.Registry
	validations    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	errorsByCode   *prometheus.CounterVec
	strategyCounts *prometheus.CounterVec
}

// NewMonitor creates a monitor with its own prometheus registry.
func NewMonitor() *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		durations:      make(map[string]float64),
		stageCounts:    make(map[string]int),
		severityCounts: make(map[string]int),
		patterns:       make(map[string]*Pattern),
		registry:       reg,

		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emsadvisor_validation_total",
			Help: "Validation outcomes by stage and result",
		}, []string{"stage", "result"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emsadvisor_validation_duration_seconds",
			Help:    "Validation stage latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5},
		}, []string{"stage"}),

		errorsByCode: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emsadvisor_validation_errors_total",
			Help: "Validation errors by code and severity",
		}, []string{"code", "severity"}),

		strategyCounts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emsadvisor_retrieval_strategy_total",
			Help: "Retrieval outcomes by cascade strategy",
		}, []string{"strategy"}),
	}
}

// Registry exposes the prometheus registry for external scraping.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Record appends a sample for one stage execution.
func (m *Monitor) Record(stage string, result *models.ValidationResult, duration time.Duration) {
	outcome := "success"
	if result != nil && !result.Valid {
		outcome = "failure"
	}

	sample := Sample{
		ID:         uuid.New().String(),
		Stage:      stage,
		Result:     outcome,
		DurationMs: float64(duration.Microseconds()) / 1000,
		At:         time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, sample)
	m.durations[stage] += sample.DurationMs
	m.stageCounts[stage]++

	if outcome == "success" {
		m.success++
	} else {
		m.failure++
		m.recentFailures = append(m.recentFailures, sample)
		if len(m.recentFailures) > recentFailureLimit {
			m.recentFailures = m.recentFailures[len(m.recentFailures)-recentFailureLimit:]
		}
	}

	if result != nil {
		for _, e := range result.Errors {
			m.severityCounts[string(e.Severity)]++
			m.errorsByCode.WithLabelValues(e.Code, string(e.Severity)).Inc()

			p, ok := m.patterns[e.Code]
			if !ok {
				p = &Pattern{Code: e.Code}
				m.patterns[e.Code] = p
			}
			p.Count++
			if len(p.Examples) < patternExampleLimit {
				p.Examples = append(p.Examples, e.Message)
			}
		}
	}

	m.validations.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordStrategy counts a retrieval cascade strategy outcome.
func (m *Monitor) RecordStrategy(strategy string) {
	m.strategyCounts.WithLabelValues(strategy).Inc()
}

// SuccessRate returns the success percentage over all recorded samples.
func (m *Monitor) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successRateLocked()
}

func (m *Monitor) successRateLocked() float64 {
	total := m.success + m.failure
	if total == 0 {
		return 100
	}
	return float64(m.success) / float64(total) * 100
}

// MeetsSuccessTarget reports whether the success rate reaches thresholdPct.
func (m *Monitor) MeetsSuccessTarget(thresholdPct float64) bool {
	return m.SuccessRate() >= thresholdPct
}

// Export returns the aggregate snapshot.
func (m *Monitor) Export() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := make(map[string]float64, len(m.durations))
	for stage, total := range m.durations {
		if n := m.stageCounts[stage]; n > 0 {
			avg[stage] = total / float64(n)
		}
	}

	severity := make(map[string]int, len(m.severityCounts))
	for k, v := range m.severityCounts {
		severity[k] = v
	}

	patterns := make([]Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		patterns = append(patterns, *p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Code < patterns[j].Code
	})

	recent := make([]Sample, len(m.recentFailures))
	copy(recent, m.recentFailures)

	return Metrics{
		Total:          m.success + m.failure,
		Success:        m.success,
		Failure:        m.failure,
		SuccessRate:    m.successRateLocked(),
		AvgDurationMs:  avg,
		SeverityCounts: severity,
		Patterns:       patterns,
		RecentFailures: recent,
	}
}

// ExportMetrics renders the aggregate snapshot as JSON for external scraping.
func (m *Monitor) ExportMetrics() ([]byte, error) {
	data, err := json.MarshalIndent(m.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export metrics: %w", err)
	}
	return data, nil
}

// Report renders a human-readable summary: totals, rate, pass/fail against
// the 99% target, and the top error patterns.
func (m *Monitor) Report() string {
	metrics := m.Export()

	var sb strings.Builder
	sb.WriteString("VALIDATION MONITOR REPORT\n")
	sb.WriteString(fmt.Sprintf("Total: %d | Success: %d | Failure: %d\n",
		metrics.Total, metrics.Success, metrics.Failure))
	sb.WriteString(fmt.Sprintf("Success rate: %.1f%%\n", metrics.SuccessRate))
	if metrics.SuccessRate >= successTargetPct {
		sb.WriteString("TARGET (99%): ✓ MET\n")
	} else {
		sb.WriteString("TARGET (99%): ✗ NOT MET\n")
	}

	if len(metrics.Patterns) > 0 {
		sb.WriteString("Top error patterns:\n")
		limit := len(metrics.Patterns)
		if limit > 5 {
			limit = 5
		}
		for _, p := range metrics.Patterns[:limit] {
			sb.WriteString(fmt.Sprintf("- %s (%d)", p.Code, p.Count))
			if len(p.Examples) > 0 {
				sb.WriteString(fmt.Sprintf(": %s", p.Examples[0]))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Clear drops all recorded samples and aggregates. Prometheus counters are
// monotonic and are left alone; construct a fresh Monitor for full isolation.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = nil
	m.success = 0
	m.failure = 0
	m.durations = make(map[string]float64)
	m.stageCounts = make(map[string]int)
	m.severityCounts = make(map[string]int)
	m.patterns = make(map[string]*Pattern)
	m.recentFailures = nil
}
