// Package metrics provides Prometheus metrics for the Sentry engine —
// counters, gauges, and histograms covering ingestion, analytics,
// response workflows, replication, and training.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ingestion ──────────────────────────────────────────────────────────────

// EventsIngested tracks accepted raw events by kind.
var EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "events_ingested_total",
	Help:      "Total raw events accepted into the pipeline.",
}, []string{"kind"})

// EventsDropped tracks rejected events by reason (duplicate, malformed).
var EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "events_dropped_total",
	Help:      "Total events dropped before enrichment.",
}, []string{"reason"})

// DedupPressure tracks forced oldest-half evictions in the dedup set.
var DedupPressure = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "dedup_pressure_total",
	Help:      "Times the dedup set dropped its oldest half under capacity pressure.",
})

// BatchFlushes tracks batch flushes by trigger (count, deadline, shutdown).
var BatchFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "batch_flushes_total",
	Help:      "Total batch flushes by trigger.",
}, []string{"trigger"})

// SinkRetries tracks per-sink retry attempts after a failed flush.
var SinkRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "sink_retries_total",
	Help:      "Total sink write retries.",
}, []string{"sink"})

// ─── Analytics ──────────────────────────────────────────────────────────────

// AnomaliesDetected tracks flagged anomalies by kind.
var AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "anomalies_detected_total",
	Help:      "Total anomalies flagged by the detector.",
}, []string{"kind"})

// ThreatsDetected tracks ensemble detections by classification.
var ThreatsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "threats_detected_total",
	Help:      "Total ensemble threat detections by classification.",
}, []string{"classification"})

// DetectionLatency tracks ensemble detection duration in seconds.
var DetectionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "sentry",
	Name:      "detection_latency_seconds",
	Help:      "Ensemble detection duration in seconds.",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
})

// ─── Response Workflow ──────────────────────────────────────────────────────

// WorkflowsCompleted tracks finished workflows by terminal status.
var WorkflowsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "workflows_completed_total",
	Help:      "Total response workflows by terminal status.",
}, []string{"status"})

// WorkflowDuration tracks end-to-end workflow duration in seconds.
var WorkflowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "sentry",
	Name:      "workflow_duration_seconds",
	Help:      "End-to-end threat-response workflow duration.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
})

// AlertsRouted tracks routed alerts by escalation level.
var AlertsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "alerts_routed_total",
	Help:      "Total routed alerts by escalation level.",
}, []string{"level"})

// AlertsSuppressed tracks alerts short-circuited by the suppression filter.
var AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "alerts_suppressed_total",
	Help:      "Total alerts suppressed by reason.",
}, []string{"reason"})

// RemediationSteps tracks remediation step outcomes.
var RemediationSteps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "remediation_steps_total",
	Help:      "Total remediation step outcomes by action and status.",
}, []string{"action", "status"})

// IncidentsOpen tracks currently active incidents.
var IncidentsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sentry",
	Name:      "incidents_open",
	Help:      "Number of currently active incidents.",
})

// ─── Regions ────────────────────────────────────────────────────────────────

// ReplicationsTotal tracks state replications by region and outcome.
var ReplicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "replications_total",
	Help:      "Total state replications by region and outcome.",
}, []string{"region", "outcome"})

// FailoversTriggered tracks failovers by failed region.
var FailoversTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "failovers_triggered_total",
	Help:      "Total failovers triggered per failed region.",
}, []string{"region"})

// ─── Event Bus ──────────────────────────────────────────────────────────────

// BusPublished tracks published bus events by topic.
var BusPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "bus_published_total",
	Help:      "Total events published to the bus by topic.",
}, []string{"topic"})

// BusDropped tracks per-subscriber queue overflows.
var BusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "bus_dropped_total",
	Help:      "Total events dropped from slow-subscriber queues.",
}, []string{"topic"})

// ─── Training ───────────────────────────────────────────────────────────────

// TrainingRuns tracks retraining runs by model and outcome.
var TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "training_runs_total",
	Help:      "Total retraining runs by model and outcome.",
}, []string{"model", "outcome"})

// FeedbackDropped tracks feedback records dropped from the full buffer.
var FeedbackDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "feedback_dropped_total",
	Help:      "Total feedback records dropped from the bounded buffer.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// ComponentHealthy tracks per-component health (1=healthy, 0=unhealthy).
var ComponentHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "sentry",
	Name:      "component_healthy",
	Help:      "Component health per rolling error-rate/latency check (1=healthy).",
}, []string{"component"})

// HealthRecoveries tracks auto-recovery attempts per check.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentry",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
