// Package window implements the sliding-window metric store and the
// multi-resolution aggregator. Each metric keeps one fixed-capacity ring
// per resolution (1s, 1m, 5m, 1h, 1d); adds are O(1) with index wrap,
// summaries read the live span of the ring into a stats struct.
package window

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
)

// DefaultWindows are the supported aggregation resolutions.
var DefaultWindows = []time.Duration{
	time.Second,
	time.Minute,
	5 * time.Minute,
	time.Hour,
	24 * time.Hour,
}

// ParseWindow maps a step string (1s, 1m, 5m, 1h, 1d) to its duration.
func ParseWindow(step string) (time.Duration, error) {
	switch step {
	case "1s":
		return time.Second, nil
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, domain.ErrUnknownWindow
}

// ─── Rings ──────────────────────────────────────────────────────────────────

type point struct {
	ts    time.Time
	value float64
}

// ring is a fixed-capacity circular buffer. Overflow discards the oldest.
type ring struct {
	points []point
	idx    int
	full   bool
}

func newRing(capacity int) *ring {
	return &ring{points: make([]point, capacity)}
}

func (r *ring) add(p point) {
	r.points[r.idx] = p
	r.idx = (r.idx + 1) % len(r.points)
	if r.idx == 0 {
		r.full = true
	}
}

// snapshot returns the live points in insertion order.
func (r *ring) snapshot() []point {
	if !r.full {
		out := make([]point, r.idx)
		copy(out, r.points[:r.idx])
		return out
	}
	out := make([]point, 0, len(r.points))
	out = append(out, r.points[r.idx:]...)
	out = append(out, r.points[:r.idx]...)
	return out
}

// ─── Store ──────────────────────────────────────────────────────────────────

// series holds one ring per resolution for a single metric.
type series struct {
	rings map[time.Duration]*ring
}

// Store is the sliding-window store keyed by metric name.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	windows []time.Duration
	metrics map[string]*series
	now     ident.Clock
}

// New creates a Store over the given resolutions (DefaultWindows if nil).
func New(windows []time.Duration) *Store {
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	return &Store{
		windows: windows,
		metrics: make(map[string]*series),
		now:     ident.SystemClock,
	}
}

// ringCapacity doubles the per-second span for overlap, capped so the
// 1-day ring stays at a bounded size at one sample per second.
func ringCapacity(w time.Duration) int {
	n := int(w/time.Second) * 2
	if n < 2 {
		n = 2
	}
	if n > 10000 {
		n = 10000
	}
	return n
}

// Add appends one observation to every resolution ring of the metric.
func (s *Store) Add(p domain.TimeSeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.metrics[p.Metric]
	if !ok {
		ser = &series{rings: make(map[time.Duration]*ring, len(s.windows))}
		for _, w := range s.windows {
			ser.rings[w] = newRing(ringCapacity(w))
		}
		s.metrics[p.Metric] = ser
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	for _, r := range ser.rings {
		r.add(point{ts: ts, value: p.Value})
	}
}

// Metrics returns the names of all tracked metrics.
func (s *Store) Metrics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.metrics))
	for name := range s.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recent returns the values inside the given span of the largest ring,
// oldest first. Used by correlation and forecasting callers.
func (s *Store) Recent(metric string, span time.Duration) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.metrics[metric]
	if !ok {
		return nil
	}
	largest := s.windows[len(s.windows)-1]
	cutoff := s.now().Add(-span)

	var values []float64
	for _, p := range ser.rings[largest].snapshot() {
		if p.ts.After(cutoff) {
			values = append(values, p.value)
		}
	}
	return values
}

// Summary aggregates the live span of one (metric, window) ring.
// Returns ErrInsufficientData when fewer than 2 points fall inside the window.
func (s *Store) Summary(metric string, w time.Duration) (domain.AggregatedMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.metrics[metric]
	if !ok {
		return domain.AggregatedMetrics{}, domain.ErrUnknownMetric
	}
	r, ok := ser.rings[w]
	if !ok {
		return domain.AggregatedMetrics{}, domain.ErrUnknownWindow
	}

	now := s.now()
	cutoff := now.Add(-w)
	var values []float64
	for _, p := range r.snapshot() {
		if p.ts.After(cutoff) {
			values = append(values, p.value)
		}
	}
	if len(values) < 2 {
		return domain.AggregatedMetrics{}, domain.ErrInsufficientData
	}

	return summarize(metric, w, cutoff, now, values), nil
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func summarize(metric string, w time.Duration, start, end time.Time, values []float64) domain.AggregatedMetrics {
	agg := domain.AggregatedMetrics{
		Metric:      metric,
		Window:      w,
		WindowStart: start,
		WindowEnd:   end,
		Count:       len(values),
		Min:         values[0],
		Max:         values[0],
	}

	for _, v := range values {
		agg.Sum += v
		if v < agg.Min {
			agg.Min = v
		}
		if v > agg.Max {
			agg.Max = v
		}
	}
	agg.Mean = agg.Sum / float64(agg.Count)

	var sq float64
	for _, v := range values {
		d := v - agg.Mean
		sq += d * d
	}
	agg.StdDev = math.Sqrt(sq / float64(agg.Count-1)) // sample stddev

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	agg.P50 = percentile(sorted, 0.50)
	agg.P95 = percentile(sorted, 0.95)
	agg.P99 = percentile(sorted, 0.99)

	return agg
}

// percentile reads from a sorted slice by linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
