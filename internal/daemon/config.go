// Package daemon manages the Sentry daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/sentrymesh/sentry/internal/infra/assess"
)

// Config holds all daemon configuration.
type Config struct {
	Node       NodeConfig       `toml:"node"`
	API        APIConfig        `toml:"api"`
	Ingest     IngestConfig     `toml:"ingest"`
	Detection  DetectionConfig  `toml:"detection"`
	Assessment AssessmentConfig `toml:"assessment"`
	Forecast   ForecastConfig   `toml:"forecast"`
	Alerting   AlertingConfig   `toml:"alerting"`
	Response   ResponseConfig   `toml:"response"`
	Incidents  IncidentConfig   `toml:"incidents"`
	Regions    RegionsConfig    `toml:"regions"`
	Training   TrainingConfig   `toml:"training"`
	Retention  RetentionConfig  `toml:"retention"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Logging    LoggingConfig    `toml:"logging"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	ID     string `toml:"id"`
	Region string `toml:"region"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// IngestConfig controls the event pipeline stages.
type IngestConfig struct {
	DedupTTL       string `toml:"dedup_ttl"`
	DedupCapacity  int    `toml:"dedup_capacity"`
	EnrichWindow   string `toml:"enrich_window"`
	CorrelationCap int    `toml:"correlation_cap"`
	BatchSize      int    `toml:"batch_size"`
	BatchMaxDelay  string `toml:"batch_max_delay"`

	// EventQueueCap bounds each bus subscriber's queue.
	EventQueueCap int `toml:"event_queue_cap"`
}

// DetectionConfig controls anomaly and threat detection thresholds.
type DetectionConfig struct {
	StatisticalSigma float64 `toml:"statistical_sigma"`
	TemporalSigma    float64 `toml:"temporal_sigma"`
	BaselineInterval int     `toml:"baseline_interval"`

	// EnsembleVotes is how many detectors must agree on a threat.
	EnsembleVotes int `toml:"ensemble_votes"`

	// ClassificationThresholds are the SUSPICIOUS, MALICIOUS, CRITICAL,
	// and CATASTROPHIC confidence floors, in order.
	ClassificationThresholds []float64 `toml:"classification_thresholds"`

	// MinRemediateConfidence gates automated remediation.
	MinRemediateConfidence float64 `toml:"min_remediate_confidence"`
}

// AssessmentConfig carries the CVSS-style weight tables.
type AssessmentConfig struct {
	BaseWeights          map[string]float64 `toml:"base_weights"`
	TemporalWeights      map[string]float64 `toml:"temporal_weights"`
	EnvironmentalWeights map[string]float64 `toml:"environmental_weights"`
}

// ForecastConfig tunes the threat forecaster.
type ForecastConfig struct {
	TrendWindow    int     `toml:"trend_window"`
	SeasonalWeight float64 `toml:"seasonal_weight"`
}

// AlertingConfig controls suppression, escalation, and delivery.
type AlertingConfig struct {
	DupWindow             string `toml:"dup_window"`
	MaxPerTypeSource      int    `toml:"max_per_type_source"`
	FloodWindow           string `toml:"flood_window"`
	EscalationStepTimeout string `toml:"escalation_step_timeout"`
	NotifyTimeout         string `toml:"notify_timeout"`
}

// ResponseConfig controls remediation execution.
type ResponseConfig struct {
	StepTimeout string `toml:"step_timeout"`
}

// IncidentConfig controls incident lifecycle bounds.
type IncidentConfig struct {
	MaxActive   int `toml:"max_active"`
	HistorySize int `toml:"history_size"`
}

// RegionsConfig controls multi-region replication and failover.
type RegionsConfig struct {
	ReplicationTimeoutMs int `toml:"region_replication_timeout_ms"`
	FailoverBackupCount  int `toml:"failover_backup_count"`
}

// TrainingConfig controls the retraining orchestrator.
type TrainingConfig struct {
	BufferSize        int     `toml:"buffer_size"`
	MinSamples        int     `toml:"min_samples"`
	TrainRatio        float64 `toml:"train_ratio"`
	DeployImprovement float64 `toml:"deploy_improvement"`
	RetrainInterval   string  `toml:"retrain_interval"`
	FeedbackDelta     int     `toml:"feedback_delta"`
}

// RetentionConfig controls the time-series retention sweep.
type RetentionConfig struct {
	RawDays       int    `toml:"raw_days"`
	HourlyDays    int    `toml:"hourly_days"`
	DailyDays     int    `toml:"daily_days"`
	SweepInterval string `toml:"sweep_interval"`
}

// TelemetryConfig controls observability exports.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := sentryHome()
	defaultWeights := assess.DefaultWeights()
	return Config{
		Node: NodeConfig{
			Region: "us-east",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Ingest: IngestConfig{
			DedupTTL:       "60s",
			DedupCapacity:  5000,
			EnrichWindow:   "5m",
			CorrelationCap: 10,
			BatchSize:      1000,
			BatchMaxDelay:  "5s",
			EventQueueCap:  1000,
		},
		Detection: DetectionConfig{
			StatisticalSigma:         3.0,
			TemporalSigma:            2.5,
			BaselineInterval:         1000,
			EnsembleVotes:            2,
			ClassificationThresholds: []float64{0.50, 0.70, 0.85, 0.95},
			MinRemediateConfidence:   0.75,
		},
		Assessment: AssessmentConfig{
			BaseWeights:          defaultWeights.Base,
			TemporalWeights:      defaultWeights.Temporal,
			EnvironmentalWeights: defaultWeights.Environmental,
		},
		Forecast: ForecastConfig{
			TrendWindow:    100,
			SeasonalWeight: 0.1,
		},
		Alerting: AlertingConfig{
			DupWindow:             "300s",
			MaxPerTypeSource:      10,
			FloodWindow:           "1h",
			EscalationStepTimeout: "30m",
			NotifyTimeout:         "5s",
		},
		Response: ResponseConfig{
			StepTimeout: "30s",
		},
		Incidents: IncidentConfig{
			MaxActive:   100,
			HistorySize: 10_000,
		},
		Regions: RegionsConfig{
			ReplicationTimeoutMs: 100,
			FailoverBackupCount:  2,
		},
		Training: TrainingConfig{
			BufferSize:        10_000,
			MinSamples:        10,
			TrainRatio:        0.8,
			DeployImprovement: 0.02,
			RetrainInterval:   "1h",
			FeedbackDelta:     100,
		},
		Retention: RetentionConfig{
			RawDays:       7,
			HourlyDays:    30,
			DailyDays:     365,
			SweepInterval: "24h",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "sentry.log"),
		},
	}
}

// LoadConfig reads config from ~/.sentry/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(sentryHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.sentry/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(sentryHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// sentryHome returns the Sentry data directory.
func sentryHome() string {
	if env := os.Getenv("SENTRY_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sentry")
}

// SentryHome is exported for use by other packages.
func SentryHome() string {
	return sentryHome()
}
