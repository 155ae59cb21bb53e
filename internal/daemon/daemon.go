package daemon

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentrymesh/sentry/internal/api"
	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/health"
	"github.com/sentrymesh/sentry/internal/infra/alerting"
	"github.com/sentrymesh/sentry/internal/infra/anomaly"
	"github.com/sentrymesh/sentry/internal/infra/assess"
	"github.com/sentrymesh/sentry/internal/infra/batch"
	"github.com/sentrymesh/sentry/internal/infra/bus"
	"github.com/sentrymesh/sentry/internal/infra/dedup"
	"github.com/sentrymesh/sentry/internal/infra/enrich"
	"github.com/sentrymesh/sentry/internal/infra/ensemble"
	"github.com/sentrymesh/sentry/internal/infra/feature"
	"github.com/sentrymesh/sentry/internal/infra/forecast"
	"github.com/sentrymesh/sentry/internal/infra/incident"
	_ "github.com/sentrymesh/sentry/internal/infra/metrics" // Register Prometheus metrics
	"github.com/sentrymesh/sentry/internal/infra/pipeline"
	"github.com/sentrymesh/sentry/internal/infra/region"
	"github.com/sentrymesh/sentry/internal/infra/remedy"
	"github.com/sentrymesh/sentry/internal/infra/sqlite"
	"github.com/sentrymesh/sentry/internal/infra/training"
	"github.com/sentrymesh/sentry/internal/infra/window"
	"github.com/sentrymesh/sentry/internal/infra/workflow"
)

// Daemon is the core Sentry runtime. It wires together all services.
type Daemon struct {
	Config Config
	DB     *sqlite.DB
	Bus    *bus.Bus
	Server *api.Server
	cancel context.CancelFunc

	// Ingestion and analytics
	Pipeline   *pipeline.Pipeline
	Batcher    *batch.Batcher
	Windows    *window.Store
	Anomalies  *anomaly.Detector
	Detectors  *ensemble.Ensemble
	Forecaster *forecast.Forecaster

	// Response chain
	Assessor  *assess.Assessor
	Router    *alerting.Router
	Suppress  *alerting.Suppressor
	Escalate  *alerting.Escalator
	Remedy    *remedy.Engine
	Incidents *incident.Manager
	Forensics *incident.Collector
	Workflows *workflow.Orchestrator

	// Control plane
	Regions  *region.Coordinator
	Training *training.Orchestrator
	Monitor  *health.Monitor
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	db, err := sqlite.Open(sentryHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		Config: cfg,
		DB:     db,
		Bus:    bus.New(cfg.Ingest.EventQueueCap),
	}

	// ─── Response chain ────────────────────────────────────────────────

	d.Monitor = health.NewMonitor(0)
	d.Incidents = incident.NewManager(incident.Config{
		MaxActive:   cfg.Incidents.MaxActive,
		HistorySize: cfg.Incidents.HistorySize,
	})
	d.Assessor = assess.New(assess.Weights{
		Base:          cfg.Assessment.BaseWeights,
		Temporal:      cfg.Assessment.TemporalWeights,
		Environmental: cfg.Assessment.EnvironmentalWeights,
	}, cfg.Detection.MinRemediateConfidence)
	d.Suppress = alerting.NewSuppressorWith(
		parseDuration(cfg.Alerting.DupWindow, 0),
		cfg.Alerting.MaxPerTypeSource,
		parseDuration(cfg.Alerting.FloodWindow, 0),
	)
	d.Escalate = alerting.NewEscalator(alerting.Policies(parseDuration(cfg.Alerting.EscalationStepTimeout, 0)))
	notifier := alerting.NewNotifier()
	notifier.SetSendTimeout(parseDuration(cfg.Alerting.NotifyTimeout, 0))
	d.Router = alerting.NewRouter(nil, d.Suppress, d.Escalate, notifier)
	d.Remedy = remedy.NewEngine()
	d.Remedy.SetDefaultStepTimeout(parseDuration(cfg.Response.StepTimeout, 0))
	d.Forensics = incident.NewCollector(nil)
	d.Workflows = workflow.New(d.Assessor, d.Router, d.Remedy, d.Incidents, d.Bus)
	d.Workflows.SetForensics(d.Forensics)

	// ─── Ingestion pipeline ────────────────────────────────────────────

	d.Windows = window.New(nil)
	d.Anomalies = anomaly.NewDetector(anomaly.Config{
		StatisticalSigma: cfg.Detection.StatisticalSigma,
		TemporalSigma:    cfg.Detection.TemporalSigma,
		BaselineInterval: cfg.Detection.BaselineInterval,
	})
	d.Detectors = ensemble.NewWithOptions(ensembleOptions(cfg.Detection), ensemble.DefaultDetectors()...)
	d.Forecaster = forecast.NewWithOptions(forecast.Options{
		TrendWindow:    cfg.Forecast.TrendWindow,
		SeasonalWeight: cfg.Forecast.SeasonalWeight,
	})
	d.Batcher = batch.New(cfg.Ingest.BatchSize, parseDuration(cfg.Ingest.BatchMaxDelay, 5*time.Second), db)

	d.Pipeline = pipeline.New(pipeline.Options{
		Dedup:      dedup.New(parseDuration(cfg.Ingest.DedupTTL, time.Minute), cfg.Ingest.DedupCapacity),
		Enricher:   enrich.New(parseDuration(cfg.Ingest.EnrichWindow, 5*time.Minute), cfg.Ingest.CorrelationCap),
		Batcher:    d.Batcher,
		Windows:    d.Windows,
		Anomalies:  d.Anomalies,
		Features:   feature.NewExtractor(),
		Detectors:  d.Detectors,
		Forecaster: d.Forecaster,
		Responder:  d.Workflows,
		Publisher:  d.Bus,
		Monitor:    d.Monitor,
	})

	// ─── Control plane ─────────────────────────────────────────────────

	stateLog := region.NewStateLog(nil, time.Duration(cfg.Regions.ReplicationTimeoutMs)*time.Millisecond)
	d.Regions = region.NewCoordinator(nil, stateLog, nil)
	d.Regions.SetBackupCount(cfg.Regions.FailoverBackupCount)

	d.Training = training.New(training.Config{
		BufferSize:        cfg.Training.BufferSize,
		MinSamples:        cfg.Training.MinSamples,
		TrainRatio:        cfg.Training.TrainRatio,
		DeployImprovement: cfg.Training.DeployImprovement,
		RetrainInterval:   parseDuration(cfg.Training.RetrainInterval, time.Hour),
		FeedbackDelta:     cfg.Training.FeedbackDelta,
	}, training.TrainerFunc(centroidTrainer), nil)
	d.Training.Deploy = d.deployModel
	d.Training.Persist = func(fb domain.OperationalFeedback) {
		if err := db.SaveFeedback(fb); err != nil {
			log.Printf("[daemon] persist feedback: %v", err)
		}
	}
	d.replayFeedback()

	d.Monitor.AddCheck(health.Check{
		Name:    "database",
		CheckFn: func(context.Context) error { return db.Ping() },
	})

	srv := api.NewServer(api.Services{
		Pipeline:   d.Pipeline,
		Store:      db,
		Incidents:  d.Incidents,
		Workflows:  d.Workflows,
		Regions:    d.Regions,
		Forensics:  d.Forensics,
		Forecaster: d.Forecaster,
		Training:   d.Training,
		Monitor:    d.Monitor,
	})
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// replayFeedback reloads persisted feedback into the training buffer.
func (d *Daemon) replayFeedback() {
	rows, err := d.DB.RecentFeedback(d.Config.Training.BufferSize)
	if err != nil {
		log.Printf("[daemon] replay feedback: %v", err)
		return
	}
	for _, fb := range rows {
		d.Training.Submit(fb)
	}
	if len(rows) > 0 {
		log.Printf("[daemon] replayed %d feedback records", len(rows))
	}
}

// deployModel swaps the live detector for a newly promoted version and
// records it in the on-disk registry.
func (d *Daemon) deployModel(v domain.ModelVersion) {
	threshold := v.Hyperparameters["threshold"]

	var det ensemble.Detector
	switch v.ModelName {
	case "isolation_forest":
		if threshold == 0 {
			threshold = 0.5
		}
		det = &ensemble.IsolationDetector{Threshold: threshold, Version: v.ID}
	case "lstm_sequence":
		if threshold == 0 {
			threshold = 0.6
		}
		det = &ensemble.SequenceDetector{Threshold: threshold, Version: v.ID}
	case "hybrid_bayesian":
		if threshold == 0 {
			threshold = 0.5
		}
		det = &ensemble.BayesianDetector{Threshold: threshold, Version: v.ID}
	}
	if det != nil && !d.Detectors.Replace(det) {
		log.Printf("[daemon] no live detector named %s to replace", v.ModelName)
	}

	if err := d.DB.SaveModelVersion(v); err != nil {
		log.Printf("[daemon] persist model version %s: %v", v.ID, err)
	}
	d.Bus.Publish(bus.TopicModelDeployed, v)
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.Batcher.Start()
	go d.Monitor.Run(ctx)
	go d.sweepLoop(ctx)
	go d.persistLoop(ctx)
	go d.retentionLoop(ctx)
	go d.retrainLoop(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.Batcher.Stop()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("Sentry serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Batcher != nil {
		d.Batcher.Stop()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// ─── Background Jobs ────────────────────────────────────────────────────────

// sweepLoop advances escalations and expires suppression state.
func (d *Daemon) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, threatID := range d.Escalate.Sweep() {
				log.Printf("[daemon] escalated unacknowledged threat %s", threatID)
			}
			d.Suppress.Sweep()
		}
	}
}

// persistLoop checkpoints incidents and the remediation audit trail.
func (d *Daemon) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.persistState()
		}
	}
}

func (d *Daemon) persistState() {
	for _, inc := range d.Incidents.Active() {
		if err := d.DB.SaveIncident(*inc); err != nil {
			log.Printf("[daemon] persist incident %s: %v", inc.ID, err)
		}
	}
	for _, inc := range d.Incidents.Resolved(100) {
		if err := d.DB.SaveIncident(*inc); err != nil {
			log.Printf("[daemon] persist incident %s: %v", inc.ID, err)
		}
	}
	for _, rec := range d.Remedy.Records() {
		if err := d.DB.AppendActionRecord(rec); err != nil {
			log.Printf("[daemon] persist action record %s: %v", rec.ID, err)
		}
	}
}

// retentionLoop applies the retention policies on a fixed interval.
func (d *Daemon) retentionLoop(ctx context.Context) {
	policies := map[string]int{
		"raw":    d.Config.Retention.RawDays,
		"hourly": d.Config.Retention.HourlyDays,
		"daily":  d.Config.Retention.DailyDays,
	}
	for name, days := range policies {
		if days <= 0 {
			continue
		}
		if err := d.DB.CreateRetention(name, days); err != nil {
			log.Printf("[daemon] create retention %s: %v", name, err)
		}
	}

	interval := parseDuration(d.Config.Retention.SweepInterval, 24*time.Hour)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := d.DB.ApplyRetention(time.Now())
			if err != nil {
				log.Printf("[daemon] retention sweep: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("[daemon] retention sweep deleted %d points", deleted)
			}
		}
	}
}

// tuneEvery is how many retrain ticks pass between hyperparameter
// searches; at a 5-minute tick this tunes roughly hourly.
const tuneEvery = 12

// retrainLoop retrains each detector model when its schedule or
// feedback-volume trigger fires, and periodically re-searches the
// positive-cut hyperparameter against accumulated feedback.
func (d *Daemon) retrainLoop(ctx context.Context) {
	models := d.Detectors.ModelNames()
	space := map[string]training.ParamRange{
		"positive_cut": {Min: 1, Max: 9},
	}

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			if tick%tuneEvery == 0 {
				for _, model := range models {
					result, err := d.Training.TuneHyperparameters(ctx, model, space, 16, time.Now().UnixNano())
					if err != nil {
						continue
					}
					log.Printf("[daemon] tuned %s: score %.3f over %d trials", model, result.BestScore, len(result.Trials))
				}
			}
			d.Training.RetrainDue(ctx, models)
		}
	}
}

// ─── Trainer ────────────────────────────────────────────────────────────────

// positiveCut is the label value at or above which a feedback record
// counts as a confirmed threat.
const positiveCut = 5.0

// centroidTrainer fits a nearest-centroid classifier over the labeled
// feature vectors and reports train and validation accuracy.
func centroidTrainer(_ context.Context, _ string, train, val domain.Dataset, hp map[string]float64) (float64, float64, error) {
	cut := positiveCut
	if c, ok := hp["positive_cut"]; ok && c > 0 {
		cut = c
	}

	pos, neg := centroids(train, cut)
	return centroidAccuracy(train, pos, neg, cut), centroidAccuracy(val, pos, neg, cut), nil
}

func centroids(set domain.Dataset, cut float64) (pos, neg []float64) {
	var nPos, nNeg int
	for i, vec := range set.Features {
		if set.Labels[i] >= cut {
			pos = accumulate(pos, vec)
			nPos++
		} else {
			neg = accumulate(neg, vec)
			nNeg++
		}
	}
	scale(pos, nPos)
	scale(neg, nNeg)
	return pos, neg
}

func accumulate(sum, vec []float64) []float64 {
	if sum == nil {
		sum = make([]float64, len(vec))
	}
	for i := range sum {
		if i < len(vec) {
			sum[i] += vec[i]
		}
	}
	return sum
}

func scale(vec []float64, n int) {
	for i := range vec {
		vec[i] /= float64(n)
	}
}

func centroidAccuracy(set domain.Dataset, pos, neg []float64, cut float64) float64 {
	if set.Len() == 0 {
		return 0
	}
	var correct int
	for i, vec := range set.Features {
		predicted := distance(vec, pos) < distance(vec, neg)
		actual := set.Labels[i] >= cut
		if predicted == actual {
			correct++
		}
	}
	return float64(correct) / float64(set.Len())
}

// distance is the Euclidean distance to a centroid; a missing centroid
// (no samples of that class) is infinitely far.
func distance(vec, centroid []float64) float64 {
	if centroid == nil {
		return math.Inf(1)
	}
	var sq float64
	for i := range centroid {
		var v float64
		if i < len(vec) {
			v = vec[i]
		}
		diff := v - centroid[i]
		sq += diff * diff
	}
	return math.Sqrt(sq)
}

// ensembleOptions maps the detection config onto ensemble options. A
// threshold slice of the wrong length falls back to the defaults.
func ensembleOptions(cfg DetectionConfig) ensemble.Options {
	opts := ensemble.Options{ConsensusVotes: cfg.EnsembleVotes}
	if t := cfg.ClassificationThresholds; len(t) == 4 {
		opts.SuspiciousAbove = t[0]
		opts.MaliciousAbove = t[1]
		opts.CriticalAbove = t[2]
		opts.CatastrophicAbove = t[3]
	}
	return opts
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
