// Package anomaly implements statistical anomaly detection over metric
// streams. Each metric carries a rolling baseline recomputed on a fixed
// cadence; new points are tested for statistical outliers against the
// baseline and for temporal outliers against the recent rate of change.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// StatisticalSigma is the z-score threshold for a statistical outlier.
	StatisticalSigma = 3.0

	// TemporalSigma is the z-score threshold for a rate-of-change outlier.
	TemporalSigma = 2.5

	// BaselineInterval is how many additions trigger a baseline recompute.
	BaselineInterval = 1000

	// deltaWindow is the lookback for temporal checks.
	deltaWindow = 10

	// RetainedAnomalies caps the detected-anomaly history.
	RetainedAnomalies = 10000
)

// ─── Types ──────────────────────────────────────────────────────────────────

// Baseline holds the rolling statistical profile of one metric.
type Baseline struct {
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Median    float64   `json:"median"`
	Q1        float64   `json:"q1"`
	Q3        float64   `json:"q3"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

// metricState is the per-metric detection state.
type metricState struct {
	history  []float64 // ring, cap BaselineInterval
	rIdx     int
	rFull    bool
	added    int // total additions, drives baseline cadence
	baseline Baseline
	hasBase  bool
}

func (m *metricState) add(v float64, interval int) {
	if len(m.history) < interval {
		m.history = append(m.history, v)
	} else {
		m.history[m.rIdx] = v
		m.rIdx = (m.rIdx + 1) % interval
		m.rFull = true
	}
	m.added++
}

// recent returns the last n history values, oldest first.
func (m *metricState) recent(n int) []float64 {
	var ordered []float64
	if m.rFull {
		ordered = append(ordered, m.history[m.rIdx:]...)
		ordered = append(ordered, m.history[:m.rIdx]...)
	} else {
		ordered = m.history
	}
	if len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the detector.
type Config struct {
	StatisticalSigma float64 // z-score for statistical outliers (default 3.0)
	TemporalSigma    float64 // z-score for temporal outliers (default 2.5)
	BaselineInterval int     // additions per baseline recompute (default 1000)
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		StatisticalSigma: StatisticalSigma,
		TemporalSigma:    TemporalSigma,
		BaselineInterval: BaselineInterval,
	}
}

// ─── Detector ───────────────────────────────────────────────────────────────

// Detector runs anomaly detection on metric points.
// Thread-safe via RWMutex.
type Detector struct {
	mu       sync.RWMutex
	config   Config
	metrics  map[string]*metricState
	detected []domain.Anomaly // ring, cap RetainedAnomalies
	dIdx     int
	dFull    bool

	// Injectable clock for testing.
	now ident.Clock
}

// NewDetector creates a detector; zero config fields take defaults.
func NewDetector(cfg Config) *Detector {
	if cfg.StatisticalSigma <= 0 {
		cfg.StatisticalSigma = StatisticalSigma
	}
	if cfg.TemporalSigma <= 0 {
		cfg.TemporalSigma = TemporalSigma
	}
	if cfg.BaselineInterval <= 0 {
		cfg.BaselineInterval = BaselineInterval
	}
	return &Detector{
		config:   cfg,
		metrics:  make(map[string]*metricState),
		detected: make([]domain.Anomaly, 0, 256),
		now:      ident.SystemClock,
	}
}

// ─── Detection ──────────────────────────────────────────────────────────────

// Observe tests one point against the metric's baseline and recent deltas,
// then folds it into the history. Returns the anomaly and true when the
// point is anomalous. Bounded time: a single pass over a length-10 window,
// plus the periodic baseline recompute.
func (d *Detector) Observe(p domain.TimeSeriesPoint) (domain.Anomaly, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.metrics[p.Metric]
	if !ok {
		state = &metricState{}
		d.metrics[p.Metric] = state
	}

	var kinds []domain.AnomalyKind
	var zScore float64

	if state.hasBase && state.baseline.StdDev > 0 {
		zScore = math.Abs(p.Value-state.baseline.Mean) / state.baseline.StdDev
		if zScore > d.config.StatisticalSigma {
			kinds = append(kinds, domain.AnomalyStatistical)
		}
	}
	if d.isTemporalOutlier(state, p.Value) {
		kinds = append(kinds, domain.AnomalyTemporal)
	}

	state.add(p.Value, d.config.BaselineInterval)
	if state.added%d.config.BaselineInterval == 0 {
		state.baseline = computeBaseline(state.recent(d.config.BaselineInterval), d.now())
		state.hasBase = true
	}

	if len(kinds) == 0 {
		return domain.Anomaly{}, false
	}

	severity := 0.5
	lo, hi := p.Value, p.Value
	if state.hasBase {
		severity = math.Min(1.0, zScore/10.0)
		lo = state.baseline.Mean - d.config.StatisticalSigma*state.baseline.StdDev
		hi = state.baseline.Mean + d.config.StatisticalSigma*state.baseline.StdDev
	}

	a := domain.Anomaly{
		Timestamp:  p.Timestamp,
		Metric:     p.Metric,
		Value:      p.Value,
		ExpectedLo: lo,
		ExpectedHi: hi,
		Kinds:      kinds,
		Confidence: 0.85 + 0.1*float64(len(kinds)),
		Severity:   severity,
		Context: map[string]string{
			"baseline_mean":    fmt.Sprintf("%.4f", state.baseline.Mean),
			"baseline_std_dev": fmt.Sprintf("%.4f", state.baseline.StdDev),
			"z_score":          fmt.Sprintf("%.2f", zScore),
		},
	}
	if a.Confidence > 1.0 {
		a.Confidence = 1.0
	}

	d.record(a)
	for _, k := range kinds {
		metrics.AnomaliesDetected.WithLabelValues(k.String()).Inc()
	}
	return a, true
}

// isTemporalOutlier compares the incoming delta against the deltas of the
// last 10 points.
func (d *Detector) isTemporalOutlier(state *metricState, v float64) bool {
	recent := state.recent(deltaWindow)
	if len(recent) < 2 {
		return false
	}

	deltas := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		deltas = append(deltas, math.Abs(recent[i]-recent[i-1]))
	}

	var meanDelta float64
	for _, x := range deltas {
		meanDelta += x
	}
	meanDelta /= float64(len(deltas))

	stdDelta := meanDelta
	if len(deltas) > 1 {
		var sq float64
		for _, x := range deltas {
			diff := x - meanDelta
			sq += diff * diff
		}
		stdDelta = math.Sqrt(sq / float64(len(deltas)-1))
	}
	if stdDelta == 0 {
		return false
	}

	currentDelta := math.Abs(v - recent[len(recent)-1])
	return (currentDelta-meanDelta)/stdDelta > d.config.TemporalSigma
}

// record appends to the bounded anomaly history.
func (d *Detector) record(a domain.Anomaly) {
	if len(d.detected) < RetainedAnomalies {
		d.detected = append(d.detected, a)
		return
	}
	d.detected[d.dIdx] = a
	d.dIdx = (d.dIdx + 1) % RetainedAnomalies
	d.dFull = true
}

// ─── Queries ────────────────────────────────────────────────────────────────

// BaselineFor returns the metric's current baseline, if one exists.
func (d *Detector) BaselineFor(metric string) (Baseline, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	state, ok := d.metrics[metric]
	if !ok || !state.hasBase {
		return Baseline{}, false
	}
	return state.baseline, true
}

// Recent returns up to limit recent anomalies, oldest first.
func (d *Detector) Recent(limit int) []domain.Anomaly {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ordered []domain.Anomaly
	if d.dFull {
		ordered = append(ordered, d.detected[d.dIdx:]...)
		ordered = append(ordered, d.detected[:d.dIdx]...)
	} else {
		ordered = d.detected
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	out := make([]domain.Anomaly, len(ordered))
	copy(out, ordered)
	return out
}

// TotalDetected returns the count of retained anomalies.
func (d *Detector) TotalDetected() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.dFull {
		return RetainedAnomalies
	}
	return len(d.detected)
}

// ─── Baseline ───────────────────────────────────────────────────────────────

func computeBaseline(values []float64, at time.Time) Baseline {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		diff := v - mean
		sq += diff * diff
	}

	return Baseline{
		Mean:      mean,
		StdDev:    math.Sqrt(sq / float64(len(values))),
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Median:    quantile(sorted, 0.50),
		Q1:        quantile(sorted, 0.25),
		Q3:        quantile(sorted, 0.75),
		Samples:   len(values),
		UpdatedAt: at,
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
