// Package pipeline ties the ingestion stages together: validate,
// deduplicate, enrich, batch for persistence, and fan out to the metric
// and threat analysis paths.
package pipeline

import (
	"context"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/health"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/anomaly"
	"github.com/sentrymesh/sentry/internal/infra/batch"
	"github.com/sentrymesh/sentry/internal/infra/bus"
	"github.com/sentrymesh/sentry/internal/infra/dedup"
	"github.com/sentrymesh/sentry/internal/infra/enrich"
	"github.com/sentrymesh/sentry/internal/infra/ensemble"
	"github.com/sentrymesh/sentry/internal/infra/feature"
	"github.com/sentrymesh/sentry/internal/infra/forecast"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
	"github.com/sentrymesh/sentry/internal/infra/window"
)

// Responder runs the threat-response workflow for a confirmed threat.
type Responder interface {
	Respond(ctx context.Context, signal domain.ThreatSignal) domain.WorkflowExecution
}

// Publisher emits pipeline observability events.
type Publisher interface {
	Publish(topic string, payload any) string
}

// Pipeline owns in-flight events from ingestion until they enter a
// persisted batch. Safe for concurrent Ingest calls.
type Pipeline struct {
	dedup      *dedup.Filter
	enricher   *enrich.Enricher
	batcher    *batch.Batcher
	windows    *window.Store
	anomalies  *anomaly.Detector
	features   *feature.Extractor
	detectors  *ensemble.Ensemble
	forecaster *forecast.Forecaster
	responder  Responder
	publisher  Publisher
	monitor    *health.Monitor

	now ident.Clock
}

// Options collects the stages a Pipeline drives. Responder, publisher,
// and monitor are optional; the rest are required.
type Options struct {
	Dedup      *dedup.Filter
	Enricher   *enrich.Enricher
	Batcher    *batch.Batcher
	Windows    *window.Store
	Anomalies  *anomaly.Detector
	Features   *feature.Extractor
	Detectors  *ensemble.Ensemble
	Forecaster *forecast.Forecaster
	Responder  Responder
	Publisher  Publisher
	Monitor    *health.Monitor
}

// New wires a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		dedup:      opts.Dedup,
		enricher:   opts.Enricher,
		batcher:    opts.Batcher,
		windows:    opts.Windows,
		anomalies:  opts.Anomalies,
		features:   opts.Features,
		detectors:  opts.Detectors,
		forecaster: opts.Forecaster,
		responder:  opts.Responder,
		publisher:  opts.Publisher,
		monitor:    opts.Monitor,
		now:        ident.SystemClock,
	}
}

// Ingest accepts one raw event. Malformed and duplicate events are
// dropped with a counter increment; they are never fatal.
func (p *Pipeline) Ingest(ctx context.Context, raw domain.RawEvent) error {
	start := p.now()
	err := p.ingest(ctx, raw)
	if p.monitor != nil {
		p.monitor.Record("pipeline", p.now().Sub(start), err == nil || err == domain.ErrDuplicateEvent)
	}
	return err
}

func (p *Pipeline) ingest(ctx context.Context, raw domain.RawEvent) error {
	if raw.Source == "" || raw.Timestamp.IsZero() {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return domain.ErrMalformedEvent
	}
	if !raw.Kind.IsValid() {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return domain.ErrUnknownEventKind
	}

	fingerprint := ident.Fingerprint(raw)
	if p.dedup.Seen(fingerprint) {
		metrics.EventsDropped.WithLabelValues("duplicate").Inc()
		return domain.ErrDuplicateEvent
	}

	enriched := p.enricher.Enrich(raw)
	p.batcher.Add(enriched)
	metrics.EventsIngested.WithLabelValues(string(raw.Kind)).Inc()

	if raw.Kind.IsMetric() {
		p.observeMetric(raw)
		return nil
	}
	if raw.Kind == domain.KindThreatDetection || raw.Kind == domain.KindSecurityAlert {
		p.analyzeThreat(ctx, raw)
	}
	return nil
}

// ─── Metric Path ────────────────────────────────────────────────────────────

// observeMetric feeds the aggregation windows and the anomaly detector.
func (p *Pipeline) observeMetric(raw domain.RawEvent) {
	point, ok := metricPoint(raw)
	if !ok {
		return
	}
	p.windows.Add(point)

	if a, flagged := p.anomalies.Observe(point); flagged {
		if p.publisher != nil {
			p.publisher.Publish(bus.TopicAnomalyDetected, a)
		}
	}
}

// metricPoint extracts the observation from a metric event's payload.
func metricPoint(raw domain.RawEvent) (domain.TimeSeriesPoint, bool) {
	name, _ := raw.Payload["metric"].(string)
	if name == "" {
		name = raw.Source + "." + string(raw.Kind)
	}
	value, ok := payloadNumber(raw.Payload["value"])
	if !ok {
		return domain.TimeSeriesPoint{}, false
	}
	tags := map[string]string{"source": raw.Source}
	return domain.TimeSeriesPoint{
		Timestamp: raw.Timestamp,
		Metric:    name,
		Value:     value,
		Tags:      tags,
	}, true
}

func payloadNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ─── Threat Path ────────────────────────────────────────────────────────────

// analyzeThreat runs the extractor and ensemble over the event's traffic
// sample and hands confirmed threats to the response workflow.
func (p *Pipeline) analyzeThreat(ctx context.Context, raw domain.RawEvent) {
	sample := trafficSample(raw)
	set := p.features.Extract([]domain.TrafficSample{sample})
	result := p.detectors.Detect(set, []domain.TrafficSample{sample})
	if !result.ThreatDetected {
		return
	}

	if p.forecaster != nil {
		p.forecaster.Record(forecast.ThreatEvent{
			Timestamp:  raw.Timestamp,
			ThreatType: result.PrimaryType,
			Severity:   result.Score / 100,
		})
	}

	if p.responder == nil {
		return
	}
	signal := domain.ThreatSignal{
		ThreatID:       raw.ID,
		ThreatType:     result.PrimaryType,
		SourceIP:       sample.SourceIP,
		Confidence:     result.Confidence,
		Internal:       payloadBool(raw.Payload["internal"]),
		ExploitMature:  payloadBool(raw.Payload["exploit_mature"]),
		PatchAvailable: payloadBool(raw.Payload["patch_available"]),
		DetectedAt:     result.DetectedAt,
	}
	if signal.ThreatID == "" {
		signal.ThreatID = ident.Fingerprint(raw)[:16]
	}
	if assets, ok := raw.Payload["target_assets"].([]string); ok {
		signal.TargetAssets = assets
	}
	p.responder.Respond(ctx, signal)
}

// trafficSample maps a threat event's payload onto a traffic sample.
func trafficSample(raw domain.RawEvent) domain.TrafficSample {
	s := domain.TrafficSample{Timestamp: raw.Timestamp}
	if ip, ok := raw.Payload["source_ip"].(string); ok {
		s.SourceIP = ip
	}
	if ip, ok := raw.Payload["dest_ip"].(string); ok {
		s.DestIP = ip
	}
	if proto, ok := raw.Payload["protocol"].(string); ok {
		s.Protocol = proto
	}
	if port, ok := payloadNumber(raw.Payload["port"]); ok {
		s.Port = int(port)
	}
	if size, ok := payloadNumber(raw.Payload["packet_size"]); ok {
		s.PacketSize = int(size)
	}
	if ttl, ok := payloadNumber(raw.Payload["ttl"]); ok {
		s.TTL = int(ttl)
	}
	if win, ok := payloadNumber(raw.Payload["window_size"]); ok {
		s.WindowSize = int(win)
	}
	return s
}

func payloadBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Summary exposes the aggregation store for one (metric, window) pair.
func (p *Pipeline) Summary(metric string, w time.Duration) (domain.AggregatedMetrics, error) {
	return p.windows.Summary(metric, w)
}

// RecentAnomalies exposes the detector's bounded anomaly history.
func (p *Pipeline) RecentAnomalies(limit int) []domain.Anomaly {
	return p.anomalies.Recent(limit)
}
