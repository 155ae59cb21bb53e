// Package enrich upgrades raw events to enriched events: severity mapping
// from the sensor threat score, threat-intel context lookup, source
// reputation, and correlation against a recent-event window.
package enrich

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
)

const (
	// DefaultCorrelationWindow is how far back correlation scans.
	DefaultCorrelationWindow = 300 * time.Second

	// DefaultCorrelationCap caps the correlation list per event.
	DefaultCorrelationCap = 10

	// maxRecentEvents bounds the correlation window by count so a burst
	// inside the time window cannot grow it without limit.
	maxRecentEvents = 10_000
)

// IntelTable maps threat types to static context attributes. Swapped
// atomically so feed refreshes never block enrichment.
type IntelTable map[string]map[string]string

// DefaultIntel is the built-in threat-intel table.
func DefaultIntel() IntelTable {
	return IntelTable{
		"port_scan": {
			"category":   "reconnaissance",
			"mitre":      "T1046",
			"first_seen": "network perimeter",
		},
		"ssh_brute_force": {
			"category": "credential_access",
			"mitre":    "T1110",
			"target":   "remote management",
		},
		"dos_attack": {
			"category": "impact",
			"mitre":    "T1498",
			"target":   "service availability",
		},
		"anomalous_traffic": {
			"category": "unknown",
			"mitre":    "T1071",
		},
	}
}

// recentEvent is one entry in the correlation window.
type recentEvent struct {
	fingerprint string
	source      string
	kind        domain.EventKind
	at          time.Time
}

// Enricher builds EnrichedEvents. Safe for concurrent use.
type Enricher struct {
	mu        sync.Mutex
	recent    []recentEvent // pruned lazily, ordered by arrival
	sources   map[string]int
	window    time.Duration
	corrCap   int
	maxRecent int
	intel     atomic.Pointer[IntelTable]
	now       ident.Clock
}

// New returns an Enricher with the default intel table. Zero window and
// correlation cap take the defaults.
func New(window time.Duration, correlationCap int) *Enricher {
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	if correlationCap <= 0 {
		correlationCap = DefaultCorrelationCap
	}
	e := &Enricher{
		window:    window,
		corrCap:   correlationCap,
		maxRecent: maxRecentEvents,
		sources:   make(map[string]int),
		now:       ident.SystemClock,
	}
	intel := DefaultIntel()
	e.intel.Store(&intel)
	return e
}

// SwapIntel atomically replaces the threat-intel table.
func (e *Enricher) SwapIntel(table IntelTable) {
	e.intel.Store(&table)
}

// SeverityFor maps a threat score to severity. Non-threat kinds are INFO
// regardless of score.
func SeverityFor(kind domain.EventKind, score float64) domain.Severity {
	if kind != domain.KindThreatDetection && kind != domain.KindSecurityAlert {
		return domain.SeverityInfo
	}
	switch {
	case score >= 0.8:
		return domain.SeverityCritical
	case score >= 0.6:
		return domain.SeverityHigh
	case score >= 0.4:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// Enrich upgrades a raw event exactly once. The result is deterministic
// given the event and the current recent-window snapshot.
func (e *Enricher) Enrich(raw domain.RawEvent) domain.EnrichedEvent {
	now := e.now()
	fingerprint := ident.Fingerprint(raw)
	severity := SeverityFor(raw.Kind, raw.ThreatScore())

	e.mu.Lock()
	e.prune(now)

	var correlations []string
	for i := len(e.recent) - 1; i >= 0 && len(correlations) < e.corrCap; i-- {
		r := e.recent[i]
		if r.fingerprint == fingerprint {
			continue
		}
		if r.source == raw.Source || r.kind == raw.Kind {
			correlations = append(correlations, r.fingerprint)
		}
	}

	sourceCount := e.sources[raw.Source]
	e.sources[raw.Source]++
	e.recent = append(e.recent, recentEvent{
		fingerprint: fingerprint,
		source:      raw.Source,
		kind:        raw.Kind,
		at:          now,
	})
	if over := len(e.recent) - e.maxRecent; over > 0 {
		e.dropOldestLocked(over)
	}
	e.mu.Unlock()

	return domain.EnrichedEvent{
		Raw:          raw,
		Severity:     severity,
		Correlations: correlations,
		Enrichment: domain.Enrichment{
			ThreatContext:      e.threatContext(raw),
			SourceReputation:   reputation(sourceCount),
			NetworkContext:     networkContext(raw.Kind, severity),
			HistoricalPatterns: historicalPatterns(sourceCount, len(correlations)),
		},
		OriginalHash: fingerprint,
		ProcessedAt:  now,
	}
}

// prune drops window entries older than the correlation window and
// rebuilds the per-source counters from what remains.
func (e *Enricher) prune(now time.Time) {
	cutoff := now.Add(-e.window)
	drop := 0
	for _, r := range e.recent {
		if r.at.After(cutoff) {
			break
		}
		drop++
	}
	e.dropOldestLocked(drop)
}

// dropOldestLocked removes the n oldest window entries and decrements
// their per-source counters. Caller holds e.mu.
func (e *Enricher) dropOldestLocked(n int) {
	if n <= 0 {
		return
	}
	if n > len(e.recent) {
		n = len(e.recent)
	}
	for _, r := range e.recent[:n] {
		if e.sources[r.source] > 0 {
			e.sources[r.source]--
		}
		if e.sources[r.source] == 0 {
			delete(e.sources, r.source)
		}
	}
	e.recent = append([]recentEvent(nil), e.recent[n:]...)
}

func (e *Enricher) threatContext(raw domain.RawEvent) map[string]string {
	table := *e.intel.Load()
	if ctx, ok := table[raw.ThreatType()]; ok {
		out := make(map[string]string, len(ctx))
		for k, v := range ctx {
			out[k] = v
		}
		return out
	}
	return nil
}

// reputation decays from 1.0 toward 0.5 as a source emits more events in
// the window: noisy sources are less trustworthy per event.
func reputation(priorEvents int) float64 {
	score := 1.0 - float64(priorEvents)*0.01
	if score < 0.5 {
		score = 0.5
	}
	return score
}

func networkContext(kind domain.EventKind, severity domain.Severity) string {
	if kind.IsMetric() {
		return "telemetry plane"
	}
	if severity >= domain.SeverityHigh {
		return "mesh data plane, elevated"
	}
	return "mesh data plane"
}

func historicalPatterns(priorEvents, correlations int) string {
	if priorEvents == 0 && correlations == 0 {
		return "first sighting"
	}
	return fmt.Sprintf("%d prior events in window, %d correlated", priorEvents, correlations)
}
