// Package health tracks per-component operation health and runs
// periodic checks with auto-recovery. A component is healthy while its
// rolling error rate stays under 5% and its average latency under
// 500ms.
package health

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

const (
	// latencyWindow bounds the rolling latency deque per component.
	latencyWindow = 1000

	// maxErrorRate is the healthy error-rate ceiling.
	maxErrorRate = 0.05

	// maxAvgLatency is the healthy average-latency ceiling.
	maxAvgLatency = 500 * time.Millisecond

	// DefaultInterval is the periodic check cadence.
	DefaultInterval = 60 * time.Second
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status is the result of one periodic check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ComponentHealth is a point-in-time view of one component's rolling
// operation health.
type ComponentHealth struct {
	Name         string    `json:"name"`
	Healthy      bool      `json:"healthy"`
	Operations   int64     `json:"operations"`
	Failures     int64     `json:"failures"`
	ErrorRate    float64   `json:"error_rate"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
	LastSeen     time.Time `json:"last_seen"`
}

// component accumulates one component's rolling stats.
type component struct {
	latencies []time.Duration
	idx       int
	full      bool
	successes int64
	failures  int64
	lastSeen  time.Time
}

// Monitor tracks component health and runs the periodic check loop.
type Monitor struct {
	mu         sync.RWMutex
	components map[string]*component
	checks     []Check
	statuses   []Status
	interval   time.Duration
}

// NewMonitor creates a Monitor. Interval <= 0 takes the default.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		components: make(map[string]*component),
		interval:   interval,
	}
}

// ─── Operation Tracking ─────────────────────────────────────────────────────

// Record notes one operation outcome for a component. The latency joins
// a rolling window; only the newest 1000 observations count.
func (m *Monitor) Record(name string, latency time.Duration, ok bool) {
	m.mu.Lock()
	c := m.components[name]
	if c == nil {
		c = &component{latencies: make([]time.Duration, latencyWindow)}
		m.components[name] = c
	}
	c.latencies[c.idx] = latency
	c.idx++
	if c.idx >= latencyWindow {
		c.idx = 0
		c.full = true
	}
	if ok {
		c.successes++
	} else {
		c.failures++
	}
	c.lastSeen = time.Now()
	healthy := c.healthLocked().Healthy
	m.mu.Unlock()

	gauge := 0.0
	if healthy {
		gauge = 1
	}
	metrics.ComponentHealthy.WithLabelValues(name).Set(gauge)
}

func (c *component) healthLocked() ComponentHealth {
	total := c.successes + c.failures
	h := ComponentHealth{
		Operations: total,
		Failures:   c.failures,
		LastSeen:   c.lastSeen,
	}
	if total > 0 {
		h.ErrorRate = float64(c.failures) / float64(total)
	}
	count := c.idx
	if c.full {
		count = latencyWindow
	}
	if count > 0 {
		var sum time.Duration
		for i := 0; i < count; i++ {
			sum += c.latencies[i]
		}
		h.AvgLatencyMs = float64(sum/time.Duration(count)) / float64(time.Millisecond)
	}
	h.Healthy = h.ErrorRate < maxErrorRate && h.AvgLatencyMs < float64(maxAvgLatency/time.Millisecond)
	return h
}

// Component returns one component's current health.
func (m *Monitor) Component(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.components[name]
	if !ok {
		return ComponentHealth{}, false
	}
	h := c.healthLocked()
	h.Name = name
	return h, true
}

// Components returns every tracked component's health, sorted by name.
func (m *Monitor) Components() []ComponentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ComponentHealth, 0, len(m.components))
	for name, c := range m.components {
		h := c.healthLocked()
		h.Name = name
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overall rolls component health up to a single status: all healthy is
// "healthy", a mix is "degraded", none healthy is "critical". With no
// tracked components the system reports healthy.
func (m *Monitor) Overall() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.components) == 0 {
		return "healthy"
	}
	healthy := 0
	for _, c := range m.components {
		if c.healthLocked().Healthy {
			healthy++
		}
	}
	switch {
	case healthy == len(m.components):
		return "healthy"
	case healthy > 0:
		return "degraded"
	default:
		return "critical"
	}
}

// ─── Periodic Checks ────────────────────────────────────────────────────────

// AddCheck registers a periodic check.
func (m *Monitor) AddCheck(check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check)
}

// Run starts the check loop. Call in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	m.runAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runAll(ctx)
		}
	}
}

func (m *Monitor) runAll(ctx context.Context) {
	m.mu.RLock()
	checks := make([]Check, len(m.checks))
	copy(checks, m.checks)
	m.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr == nil {
					s.Recovered = check.CheckFn(ctx) == nil
				}
			}
			s.Healthy = s.Recovered
			if !s.Healthy {
				log.Printf("[health] check %s failing: %s", check.Name, s.Error)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	m.mu.Lock()
	m.statuses = statuses
	m.mu.Unlock()
}

// Statuses returns the latest periodic check results.
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, len(m.statuses))
	copy(out, m.statuses)
	return out
}

// ChecksPassing reports whether every periodic check passed last run.
func (m *Monitor) ChecksPassing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
