package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestIngestionMetrics(t *testing.T) {
	EventsIngested.WithLabelValues("threat_detection").Inc()
	EventsDropped.WithLabelValues("duplicate").Inc()
	DedupPressure.Inc()
	BatchFlushes.WithLabelValues("deadline").Inc()
	SinkRetries.WithLabelValues("sqlite").Inc()

	names := gatheredNames(t)
	expected := []string{
		"sentry_events_ingested_total",
		"sentry_events_dropped_total",
		"sentry_dedup_pressure_total",
		"sentry_batch_flushes_total",
		"sentry_sink_retries_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestWorkflowMetrics(t *testing.T) {
	WorkflowsCompleted.WithLabelValues("SUCCESS").Inc()
	WorkflowDuration.Observe(0.25)
	AlertsRouted.WithLabelValues("CRITICAL").Inc()
	AlertsSuppressed.WithLabelValues("duplicate").Inc()
	RemediationSteps.WithLabelValues("block_source_ip", "COMPLETED").Inc()
	IncidentsOpen.Set(2)

	names := gatheredNames(t)
	expected := []string{
		"sentry_workflows_completed_total",
		"sentry_workflow_duration_seconds",
		"sentry_alerts_routed_total",
		"sentry_alerts_suppressed_total",
		"sentry_remediation_steps_total",
		"sentry_incidents_open",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestRegionAndTrainingMetrics(t *testing.T) {
	ReplicationsTotal.WithLabelValues("us-east", "ok").Inc()
	FailoversTriggered.WithLabelValues("us-east").Inc()
	TrainingRuns.WithLabelValues("isolation_forest", "deployed").Inc()
	FeedbackDropped.Inc()
	BusPublished.WithLabelValues("threat_detected").Inc()
	BusDropped.WithLabelValues("threat_detected").Inc()

	names := gatheredNames(t)
	expected := []string{
		"sentry_replications_total",
		"sentry_failovers_triggered_total",
		"sentry_training_runs_total",
		"sentry_feedback_dropped_total",
		"sentry_bus_published_total",
		"sentry_bus_dropped_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestAllMetricsGatherable(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	count := 0
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "sentry_") {
			count++
		}
	}
	if count < 15 {
		t.Errorf("expected at least 15 sentry_ metric families, got %d", count)
	}
}
