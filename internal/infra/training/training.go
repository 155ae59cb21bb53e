// Package training closes the learning loop: operator feedback
// accumulates in a bounded buffer, periodic retraining projects it into
// datasets, and new model versions are promoted only when they beat the
// incumbent on held-out accuracy.
package training

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config controls the retraining loop.
type Config struct {
	// BufferSize bounds the feedback buffer; oldest records drop first.
	BufferSize int

	// MinSamples is the smallest dataset worth training on.
	MinSamples int

	// TrainRatio is the train/validation split point.
	TrainRatio float64

	// DeployImprovement is the minimum test-accuracy gain over the
	// incumbent required to deploy a new version.
	DeployImprovement float64

	// RetrainInterval is the per-model retraining schedule.
	RetrainInterval time.Duration

	// FeedbackDelta forces a retrain once this many new feedback
	// records arrive since the last train.
	FeedbackDelta int

	// Now is the clock, injectable for tests.
	Now ident.Clock
}

// DefaultConfig returns the standard retraining configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:        10_000,
		MinSamples:        10,
		TrainRatio:        0.8,
		DeployImprovement: 0.02,
		RetrainInterval:   time.Hour,
		FeedbackDelta:     100,
		Now:               ident.SystemClock,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.MinSamples <= 0 {
		c.MinSamples = d.MinSamples
	}
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		c.TrainRatio = d.TrainRatio
	}
	if c.DeployImprovement <= 0 {
		c.DeployImprovement = d.DeployImprovement
	}
	if c.RetrainInterval <= 0 {
		c.RetrainInterval = d.RetrainInterval
	}
	if c.FeedbackDelta <= 0 {
		c.FeedbackDelta = d.FeedbackDelta
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// ─── Trainer Contract ───────────────────────────────────────────────────────

// Trainer fits one model on a dataset. External compute; a call may
// block until training completes.
type Trainer interface {
	Train(ctx context.Context, model string, train, val domain.Dataset, hyperparameters map[string]float64) (validationAccuracy, testAccuracy float64, err error)
}

// TrainerFunc adapts a function to the Trainer interface.
type TrainerFunc func(ctx context.Context, model string, train, val domain.Dataset, hyperparameters map[string]float64) (float64, float64, error)

// Train calls f.
func (f TrainerFunc) Train(ctx context.Context, model string, train, val domain.Dataset, hp map[string]float64) (float64, float64, error) {
	return f(ctx, model, train, val, hp)
}

// ─── Orchestrator ───────────────────────────────────────────────────────────

// Orchestrator drives feedback collection and per-model retraining.
// Deploy, if set, is invoked after a version is promoted (for example to
// swap the live detector). Training runs outside the lock.
type Orchestrator struct {
	cfg      Config
	trainer  Trainer
	registry *Registry

	// Deploy receives each newly promoted version.
	Deploy func(domain.ModelVersion)

	// Persist, if set, receives each submitted feedback record so it
	// can be replayed into the buffer after a restart.
	Persist func(domain.OperationalFeedback)

	mu        sync.Mutex
	buffer    []domain.OperationalFeedback
	bIdx      int
	bFull     bool
	added     int // feedback records since the last train, any model
	lastTrain map[string]time.Time
	jobs      []domain.TrainingJob // ring, oldest overwritten first
	jIdx      int
	jFull     bool
	hyper     map[string]map[string]float64
}

// jobsCap bounds the retained training-job history.
const jobsCap = 1000

// New wires an Orchestrator over a trainer and registry.
func New(cfg Config, trainer Trainer, registry *Registry) *Orchestrator {
	cfg = cfg.withDefaults()
	if registry == nil {
		registry = NewRegistry()
	}
	return &Orchestrator{
		cfg:       cfg,
		trainer:   trainer,
		registry:  registry,
		buffer:    make([]domain.OperationalFeedback, cfg.BufferSize),
		lastTrain: make(map[string]time.Time),
		jobs:      make([]domain.TrainingJob, jobsCap),
		hyper:     make(map[string]map[string]float64),
	}
}

// Registry exposes the model registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// ─── Feedback Buffer ────────────────────────────────────────────────────────

// Submit adds one feedback record. When the buffer is full the oldest
// record is overwritten.
func (o *Orchestrator) Submit(fb domain.OperationalFeedback) {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = o.cfg.Now()
	}
	if o.Persist != nil {
		o.Persist(fb)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bFull {
		metrics.FeedbackDropped.Inc()
	}
	o.buffer[o.bIdx] = fb
	o.bIdx++
	if o.bIdx >= len(o.buffer) {
		o.bIdx = 0
		o.bFull = true
	}
	o.added++
}

// FeedbackCount returns the number of buffered records.
func (o *Orchestrator) FeedbackCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.countLocked()
}

func (o *Orchestrator) countLocked() int {
	if o.bFull {
		return len(o.buffer)
	}
	return o.bIdx
}

// datasetLocked projects buffered feedback with feature vectors into a
// training dataset, oldest first.
func (o *Orchestrator) datasetLocked() domain.Dataset {
	count := o.countLocked()
	start := 0
	if o.bFull {
		start = o.bIdx
	}
	var ds domain.Dataset
	for i := 0; i < count; i++ {
		fb := o.buffer[(start+i)%len(o.buffer)]
		if len(fb.Features) == 0 {
			continue
		}
		ds.Features = append(ds.Features, fb.Features)
		ds.Labels = append(ds.Labels, fb.Label)
	}
	return ds
}

// ─── Retraining ─────────────────────────────────────────────────────────────

// ShouldRetrain reports whether a model is due: its schedule elapsed, or
// enough feedback accumulated since the last train.
func (o *Orchestrator) ShouldRetrain(model string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	last, trained := o.lastTrain[model]
	if !trained {
		return o.countLocked() > 0
	}
	if o.cfg.Now().Sub(last) >= o.cfg.RetrainInterval {
		return true
	}
	return o.added >= o.cfg.FeedbackDelta
}

// SetHyperparameters pins the hyperparameters used for a model's next
// trainings, typically the result of a Search.
func (o *Orchestrator) SetHyperparameters(model string, hp map[string]float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hyper[model] = hp
}

// Retrain runs one training cycle for a model: project the buffer into
// a dataset, split, train, and deploy only on sufficient improvement.
// The returned error classifies skipped and rejected runs; the job
// record is always returned.
func (o *Orchestrator) Retrain(ctx context.Context, model string) (domain.TrainingJob, error) {
	o.mu.Lock()
	dataset := o.datasetLocked()
	hp := o.hyper[model]
	o.mu.Unlock()

	job := domain.TrainingJob{
		ID:        uuid.NewString(),
		ModelName: model,
		Status:    domain.TrainingPreparingData,
		StartedAt: o.cfg.Now(),
	}

	if dataset.Len() < o.cfg.MinSamples {
		job.SkipReason = fmt.Sprintf("dataset has %d samples, need %d", dataset.Len(), o.cfg.MinSamples)
		return o.finishJob(job, domain.TrainingCompleted, "skipped", domain.ErrDatasetTooSmall)
	}
	job.TrainingSamples = dataset.Len()

	train, val := dataset.Split(o.cfg.TrainRatio)

	job.Status = domain.TrainingRunning
	valAcc, testAcc, err := o.trainer.Train(ctx, model, train, val, hp)
	if err != nil {
		job.Error = err.Error()
		return o.finishJob(job, domain.TrainingFailed, "failed", err)
	}

	job.Status = domain.TrainingEvaluating
	version := domain.ModelVersion{
		ID:                 fmt.Sprintf("%s-v%d", model, o.registry.NextVersion(model)),
		ModelName:          model,
		Version:            o.registry.NextVersion(model),
		TrainedAt:          o.cfg.Now(),
		ValidationAccuracy: valAcc,
		TestAccuracy:       testAcc,
		Hyperparameters:    hp,
		TrainingSamples:    dataset.Len(),
	}
	o.registry.Register(version)
	job.NewVersion = &version

	if incumbent, ok := o.registry.Active(model); ok {
		if testAcc-incumbent.TestAccuracy < o.cfg.DeployImprovement {
			job.SkipReason = fmt.Sprintf("test accuracy %.4f does not beat incumbent %.4f by %.4f",
				testAcc, incumbent.TestAccuracy, o.cfg.DeployImprovement)
			return o.finishJob(job, domain.TrainingCompleted, "rejected", domain.ErrNotAnImprovement)
		}
	}

	o.registry.PromoteToActive(version.ID)
	job.Deployed = true
	if o.Deploy != nil {
		deployed, _ := o.registry.Active(model)
		o.Deploy(deployed)
	}
	log.Printf("[training] deployed %s (val %.4f, test %.4f, %d samples)",
		version.ID, valAcc, testAcc, dataset.Len())
	return o.finishJob(job, domain.TrainingCompleted, "deployed", nil)
}

// RetrainDue runs Retrain for every due model in the given list.
func (o *Orchestrator) RetrainDue(ctx context.Context, models []string) []domain.TrainingJob {
	var jobs []domain.TrainingJob
	for _, model := range models {
		if !o.ShouldRetrain(model) {
			continue
		}
		job, err := o.Retrain(ctx, model)
		if err != nil {
			log.Printf("[training] retrain %s: %v", model, err)
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (o *Orchestrator) finishJob(job domain.TrainingJob, status domain.TrainingStatus, outcome string, err error) (domain.TrainingJob, error) {
	job.Status = status
	job.CompletedAt = o.cfg.Now()
	metrics.TrainingRuns.WithLabelValues(job.ModelName, outcome).Inc()

	o.mu.Lock()
	o.jobs[o.jIdx] = job
	o.jIdx++
	if o.jIdx >= jobsCap {
		o.jIdx = 0
		o.jFull = true
	}
	if outcome != "skipped" {
		o.lastTrain[job.ModelName] = job.CompletedAt
		o.added = 0
	}
	o.mu.Unlock()
	return job, err
}

// Jobs returns the retained training jobs, oldest first.
func (o *Orchestrator) Jobs() []domain.TrainingJob {
	o.mu.Lock()
	defer o.mu.Unlock()

	count := o.jIdx
	start := 0
	if o.jFull {
		count = jobsCap
		start = o.jIdx
	}
	out := make([]domain.TrainingJob, count)
	for i := 0; i < count; i++ {
		out[i] = o.jobs[(start+i)%jobsCap]
	}
	return out
}

// TuneHyperparameters searches the given space against the current
// feedback dataset and pins the best point for the model's next
// trainings. Trials are scored by held-out test accuracy; a failing
// train scores below any successful one.
func (o *Orchestrator) TuneHyperparameters(ctx context.Context, model string, space map[string]ParamRange, trials int, seed int64) (SearchResult, error) {
	o.mu.Lock()
	dataset := o.datasetLocked()
	o.mu.Unlock()

	if dataset.Len() < o.cfg.MinSamples {
		return SearchResult{}, domain.ErrDatasetTooSmall
	}
	train, val := dataset.Split(o.cfg.TrainRatio)

	result := Search(space, trials, func(hp map[string]float64) float64 {
		_, testAcc, err := o.trainer.Train(ctx, model, train, val, hp)
		if err != nil {
			return -1
		}
		return testAcc
	}, seed)

	if result.Best != nil {
		o.SetHyperparameters(model, result.Best)
	}
	return result, nil
}
