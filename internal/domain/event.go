// Package domain defines the core types of the Sentry telemetry engine:
// events, detections, assessments, alerts, remediations, incidents, and
// multi-region replication records. Domain types are pure — no
// infrastructure dependency.
package domain

import "time"

// ─── Event Kinds ────────────────────────────────────────────────────────────

// EventKind tags a raw event with its upstream sensor category.
type EventKind string

const (
	KindThreatDetection   EventKind = "threat_detection"
	KindNetworkMetric     EventKind = "network_metric"
	KindSystemEvent       EventKind = "system_event"
	KindSecurityAlert     EventKind = "security_alert"
	KindPerformanceMetric EventKind = "performance_metric"
)

// IsValid reports whether k is a recognized event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case KindThreatDetection, KindNetworkMetric, KindSystemEvent,
		KindSecurityAlert, KindPerformanceMetric:
		return true
	}
	return false
}

// IsMetric reports whether events of this kind feed the aggregation path.
func (k EventKind) IsMetric() bool {
	return k == KindNetworkMetric || k == KindPerformanceMetric
}

// ─── Raw Events ─────────────────────────────────────────────────────────────

// RawEvent is an immutable event as received from an upstream sensor.
// Identity for deduplication is the SHA-256 fingerprint over the canonical
// encoding of timestamp, source, kind, payload, and metadata.
type RawEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
}

// ThreatScore extracts the sensor-reported threat score from the payload,
// or 0 when absent or not numeric.
func (e RawEvent) ThreatScore() float64 {
	return payloadFloat(e.Payload, "threat_score")
}

// ThreatType extracts the sensor-reported threat type, or "".
func (e RawEvent) ThreatType() string {
	if v, ok := e.Payload["threat_type"].(string); ok {
		return v
	}
	return ""
}

func payloadFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// ─── Severity ───────────────────────────────────────────────────────────────

// Severity classifies an enriched event.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the severity as a human-readable string.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// ─── Enriched Events ────────────────────────────────────────────────────────

// Enrichment carries the context attached to an event during enrichment.
type Enrichment struct {
	ThreatContext      map[string]string `json:"threat_context,omitempty"`
	SourceReputation   float64           `json:"source_reputation"`
	NetworkContext     string            `json:"network_context,omitempty"`
	HistoricalPatterns string            `json:"historical_patterns,omitempty"`
}

// EnrichedEvent is a RawEvent upgraded exactly once with severity,
// correlations, and threat-intel context. Immutable after construction.
type EnrichedEvent struct {
	Raw          RawEvent   `json:"raw"`
	Severity     Severity   `json:"severity"`
	Correlations []string   `json:"correlations,omitempty"` // fingerprints
	Enrichment   Enrichment `json:"enrichment"`
	OriginalHash string     `json:"original_hash"`
	ProcessedAt  time.Time  `json:"processed_at"`
}

// ─── Time Series ────────────────────────────────────────────────────────────

// TimeSeriesPoint is one append-only metric observation.
type TimeSeriesPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// AggregatedMetrics summarizes one (metric, window) pair.
// Valid only when Count >= 2.
type AggregatedMetrics struct {
	Metric      string        `json:"metric"`
	Window      time.Duration `json:"window"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	Count       int           `json:"count"`
	Sum         float64       `json:"sum"`
	Min         float64       `json:"min"`
	Max         float64       `json:"max"`
	Mean        float64       `json:"mean"`
	StdDev      float64       `json:"std_dev"`
	P50         float64       `json:"p50"`
	P95         float64       `json:"p95"`
	P99         float64       `json:"p99"`
}

// ─── Anomalies ──────────────────────────────────────────────────────────────

// AnomalyKind distinguishes the test that flagged a point.
type AnomalyKind int

const (
	AnomalyStatistical AnomalyKind = iota
	AnomalyTemporal
	AnomalyBehavioral
)

// String returns the anomaly kind as a human-readable string.
func (k AnomalyKind) String() string {
	switch k {
	case AnomalyStatistical:
		return "STATISTICAL"
	case AnomalyTemporal:
		return "TEMPORAL"
	case AnomalyBehavioral:
		return "BEHAVIORAL"
	}
	return "UNKNOWN"
}

// Anomaly is a flagged metric point. Kinds is non-empty by construction.
type Anomaly struct {
	Timestamp  time.Time         `json:"timestamp"`
	Metric     string            `json:"metric"`
	Value      float64           `json:"value"`
	ExpectedLo float64           `json:"expected_lo"`
	ExpectedHi float64           `json:"expected_hi"`
	Kinds      []AnomalyKind     `json:"kinds"`
	Confidence float64           `json:"confidence"` // [0,1]
	Severity   float64           `json:"severity"`   // [0,1]
	Context    map[string]string `json:"context,omitempty"`
}
