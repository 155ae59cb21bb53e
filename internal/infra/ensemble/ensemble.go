// Package ensemble implements consensus threat detection over a set of
// independent model detectors. Each detector votes on a feature vector;
// a threat requires agreement from at least 2 of 3 models, and the
// classification tier follows the mean confidence.
package ensemble

import (
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/infra/feature"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// ConsensusVotes is how many detectors must vote threat.
	ConsensusVotes = 2

	// historySize caps the retained detection history.
	historySize = 1000
)

// Options tunes the consensus vote and classification tiers. Zero values
// take the defaults.
type Options struct {
	ConsensusVotes    int
	SuspiciousAbove   float64
	MaliciousAbove    float64
	CriticalAbove     float64
	CatastrophicAbove float64
}

func (o Options) withDefaults() Options {
	if o.ConsensusVotes <= 0 {
		o.ConsensusVotes = ConsensusVotes
	}
	if o.SuspiciousAbove <= 0 {
		o.SuspiciousAbove = 0.50
	}
	if o.MaliciousAbove <= 0 {
		o.MaliciousAbove = 0.70
	}
	if o.CriticalAbove <= 0 {
		o.CriticalAbove = 0.85
	}
	if o.CatastrophicAbove <= 0 {
		o.CatastrophicAbove = 0.95
	}
	return o
}

// ─── Detectors ──────────────────────────────────────────────────────────────

// Detector is one model in the ensemble.
type Detector interface {
	Name() string
	// Detect returns the threat vote and a confidence in [0,1].
	Detect(features []float64) (bool, float64)
}

// DefaultDetectors returns the standard three-model detector set.
func DefaultDetectors() []Detector {
	return []Detector{
		&IsolationDetector{Threshold: 0.5},
		&SequenceDetector{Threshold: 0.6},
		&BayesianDetector{Threshold: 0.5},
	}
}

// Default returns the standard three-model ensemble.
func Default() *Ensemble {
	return New(DefaultDetectors()...)
}

// ─── Ensemble ───────────────────────────────────────────────────────────────

// Ensemble coordinates the detectors. Safe for concurrent use; detectors
// can be swapped at runtime when training promotes a new model version.
type Ensemble struct {
	mu        sync.RWMutex
	opts      Options
	detectors []Detector
	history   []domain.DetectionResult
	rIdx      int
	rFull     bool

	now ident.Clock
}

// New returns an Ensemble over the given detectors with default options.
func New(detectors ...Detector) *Ensemble {
	return NewWithOptions(Options{}, detectors...)
}

// NewWithOptions returns an Ensemble with tuned vote and tier settings.
func NewWithOptions(opts Options, detectors ...Detector) *Ensemble {
	return &Ensemble{
		opts:      opts.withDefaults(),
		detectors: detectors,
		history:   make([]domain.DetectionResult, 0, historySize),
		now:       ident.SystemClock,
	}
}

// Replace swaps the detector with the same name for a retrained one.
// Returns false when no detector carries that name.
func (e *Ensemble) Replace(d Detector) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cur := range e.detectors {
		if cur.Name() == d.Name() {
			e.detectors[i] = d
			return true
		}
	}
	return false
}

// ModelNames returns the detector names in vote order.
func (e *Ensemble) ModelNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	return names
}

// Detect runs the ensemble vote over one extracted feature set.
func (e *Ensemble) Detect(set feature.Set, samples []domain.TrafficSample) domain.DetectionResult {
	start := time.Now()
	vector := set.Vector()

	e.mu.RLock()
	votes := make(map[string]float64, len(e.detectors))
	threatVotes := 0
	for _, d := range e.detectors {
		isThreat, confidence := d.Detect(vector)
		votes[d.Name()] = confidence
		if isThreat {
			threatVotes++
		}
	}
	e.mu.RUnlock()

	var sum float64
	for _, c := range votes {
		sum += c
	}
	confidence := sum / float64(len(votes))
	consensus := threatVotes >= e.opts.ConsensusVotes

	result := domain.DetectionResult{
		ThreatDetected:     consensus,
		Classification:     e.classify(consensus, confidence),
		Confidence:         confidence,
		PrimaryType:        threatType(samples),
		ContributingModels: votes,
		FeaturesTriggered:  set.Triggered(),
		DetectedAt:         e.now(),
	}
	if consensus {
		result.Score = confidence * 100
	}
	result.Recommendation = recommendation(result.Classification)

	e.mu.Lock()
	e.record(result)
	e.mu.Unlock()

	metrics.ThreatsDetected.WithLabelValues(result.Classification.String()).Inc()
	metrics.DetectionLatency.Observe(time.Since(start).Seconds())
	return result
}

// History returns up to limit recent detections, oldest first.
func (e *Ensemble) History(limit int) []domain.DetectionResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var ordered []domain.DetectionResult
	if e.rFull {
		ordered = append(ordered, e.history[e.rIdx:]...)
		ordered = append(ordered, e.history[:e.rIdx]...)
	} else {
		ordered = e.history
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	out := make([]domain.DetectionResult, len(ordered))
	copy(out, ordered)
	return out
}

func (e *Ensemble) record(r domain.DetectionResult) {
	if len(e.history) < historySize {
		e.history = append(e.history, r)
		return
	}
	e.history[e.rIdx] = r
	e.rIdx = (e.rIdx + 1) % historySize
	e.rFull = true
}

// ─── Classification ─────────────────────────────────────────────────────────

// classify maps the consensus vote and mean confidence to a tier.
// Without consensus the result is always BENIGN.
func (e *Ensemble) classify(consensus bool, confidence float64) domain.Classification {
	if !consensus {
		return domain.ClassBenign
	}
	switch {
	case confidence > e.opts.CatastrophicAbove:
		return domain.ClassCatastrophic
	case confidence > e.opts.CriticalAbove:
		return domain.ClassCritical
	case confidence > e.opts.MaliciousAbove:
		return domain.ClassMalicious
	case confidence > e.opts.SuspiciousAbove:
		return domain.ClassSuspicious
	default:
		return domain.ClassBenign
	}
}

// threatType infers the primary threat type from traffic patterns.
func threatType(samples []domain.TrafficSample) string {
	if len(samples) == 0 {
		return "unknown"
	}

	ports := make(map[int]bool)
	for _, s := range samples {
		ports[s.Port] = true
	}
	if len(ports) > 10 {
		return "port_scan"
	}
	for _, s := range samples {
		if s.Port == 22 || s.Port == 3389 {
			return "ssh_brute_force"
		}
	}
	for _, s := range samples {
		if s.PacketSize > 65000 {
			return "dos_attack"
		}
	}
	return "anomalous_traffic"
}

func recommendation(c domain.Classification) string {
	switch c {
	case domain.ClassSuspicious:
		return "Monitor closely, escalate if pattern continues"
	case domain.ClassMalicious:
		return "Block source immediately, log incident"
	case domain.ClassCritical:
		return "Block source, isolate affected systems, alert team"
	case domain.ClassCatastrophic:
		return "Execute emergency response plan immediately"
	default:
		return "No action required"
	}
}
