package training

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

// scriptedTrainer returns pre-seeded accuracies per call.
type scriptedTrainer struct {
	calls      int
	accuracies []float64
	trainLen   int
	valLen     int
	err        error
}

func (s *scriptedTrainer) Train(_ context.Context, _ string, train, val domain.Dataset, _ map[string]float64) (float64, float64, error) {
	s.trainLen = train.Len()
	s.valLen = val.Len()
	if s.err != nil {
		return 0, 0, s.err
	}
	acc := s.accuracies[s.calls]
	s.calls++
	return acc, acc, nil
}

func testOrchestrator(t *testing.T, trainer Trainer, now *time.Time) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return *now }
	return New(cfg, trainer, nil)
}

func feed(o *Orchestrator, n int) {
	for i := 0; i < n; i++ {
		o.Submit(domain.OperationalFeedback{
			ThreatID: "thr-1",
			Verdict:  domain.FeedbackCorrect,
			Features: []float64{float64(i), 0.5, 1},
			Label:    7.5,
		})
	}
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.BufferSize = 4
	cfg.Now = func() time.Time { return now }
	o := New(cfg, nil, nil)

	for i := 0; i < 6; i++ {
		o.Submit(domain.OperationalFeedback{Features: []float64{float64(i)}, Label: float64(i)})
	}

	if o.FeedbackCount() != 4 {
		t.Fatalf("FeedbackCount() = %d, want 4", o.FeedbackCount())
	}
	o.mu.Lock()
	ds := o.datasetLocked()
	o.mu.Unlock()
	// Oldest two records (0, 1) were overwritten.
	if ds.Len() != 4 || ds.Labels[0] != 2 || ds.Labels[3] != 5 {
		t.Errorf("dataset labels = %v, want [2 3 4 5]", ds.Labels)
	}
}

func TestRetrainSkipsSmallDataset(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := testOrchestrator(t, &scriptedTrainer{}, &now)
	feed(o, 5)

	job, err := o.Retrain(context.Background(), "risk_scorer")
	if !errors.Is(err, domain.ErrDatasetTooSmall) {
		t.Fatalf("Retrain() error = %v, want ErrDatasetTooSmall", err)
	}
	if job.SkipReason == "" {
		t.Error("skipped job carries no skip reason")
	}
	if job.Deployed {
		t.Error("skipped job marked deployed")
	}
	if len(o.Jobs()) != 1 {
		t.Errorf("jobs recorded = %d, want 1", len(o.Jobs()))
	}
}

func TestFirstTrainingDeploys(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	trainer := &scriptedTrainer{accuracies: []float64{0.81}}
	o := testOrchestrator(t, trainer, &now)

	var deployed []domain.ModelVersion
	o.Deploy = func(v domain.ModelVersion) { deployed = append(deployed, v) }
	feed(o, 10)

	job, err := o.Retrain(context.Background(), "risk_scorer")
	if err != nil {
		t.Fatalf("Retrain() error: %v", err)
	}
	if !job.Deployed {
		t.Fatal("first version not deployed")
	}
	if trainer.trainLen != 8 || trainer.valLen != 2 {
		t.Errorf("split = %d/%d, want 8/2", trainer.trainLen, trainer.valLen)
	}
	active, ok := o.Registry().Active("risk_scorer")
	if !ok || active.Version != 1 || active.TestAccuracy != 0.81 {
		t.Errorf("active = %+v, %v", active, ok)
	}
	if len(deployed) != 1 || deployed[0].ID != "risk_scorer-v1" {
		t.Errorf("deploy hook received %+v", deployed)
	}
}

func TestMarginalImprovementIsRejected(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	trainer := &scriptedTrainer{accuracies: []float64{0.81, 0.82}}
	o := testOrchestrator(t, trainer, &now)
	feed(o, 10)

	if _, err := o.Retrain(context.Background(), "risk_scorer"); err != nil {
		t.Fatalf("first Retrain() error: %v", err)
	}

	// 0.82 beats 0.81 by only 0.01, under the 0.02 deploy threshold.
	job, err := o.Retrain(context.Background(), "risk_scorer")
	if !errors.Is(err, domain.ErrNotAnImprovement) {
		t.Fatalf("Retrain() error = %v, want ErrNotAnImprovement", err)
	}
	if job.Deployed {
		t.Error("marginal improvement deployed")
	}
	active, _ := o.Registry().Active("risk_scorer")
	if active.Version != 1 {
		t.Errorf("active version = %d, want incumbent 1", active.Version)
	}
	// The rejected version is still registered for audit.
	if len(o.Registry().Versions("risk_scorer")) != 2 {
		t.Errorf("versions = %d, want 2", len(o.Registry().Versions("risk_scorer")))
	}
}

func TestSufficientImprovementDeploys(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	trainer := &scriptedTrainer{accuracies: []float64{0.81, 0.84}}
	o := testOrchestrator(t, trainer, &now)
	feed(o, 10)

	o.Retrain(context.Background(), "risk_scorer")
	job, err := o.Retrain(context.Background(), "risk_scorer")
	if err != nil {
		t.Fatalf("second Retrain() error: %v", err)
	}
	if !job.Deployed {
		t.Fatal("improved version not deployed")
	}
	active, _ := o.Registry().Active("risk_scorer")
	if active.Version != 2 || active.TestAccuracy != 0.84 {
		t.Errorf("active = %+v", active)
	}
}

func TestTrainerFailureRecordsFailedJob(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	trainer := &scriptedTrainer{err: errors.New("compute unavailable")}
	o := testOrchestrator(t, trainer, &now)
	feed(o, 10)

	job, err := o.Retrain(context.Background(), "risk_scorer")
	if err == nil {
		t.Fatal("Retrain() succeeded with failing trainer")
	}
	if job.Status != domain.TrainingFailed || job.Error == "" {
		t.Errorf("job = %+v", job)
	}
}

func TestRollbackToPrevious(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	trainer := &scriptedTrainer{accuracies: []float64{0.81, 0.84}}
	o := testOrchestrator(t, trainer, &now)
	feed(o, 10)
	o.Retrain(context.Background(), "risk_scorer")
	o.Retrain(context.Background(), "risk_scorer")

	previous, err := o.Registry().RollbackToPrevious("risk_scorer")
	if err != nil {
		t.Fatalf("RollbackToPrevious() error: %v", err)
	}
	if previous.Version != 1 {
		t.Errorf("rolled back to v%d, want v1", previous.Version)
	}
	active, _ := o.Registry().Active("risk_scorer")
	if active.Version != 1 {
		t.Errorf("active after rollback = v%d", active.Version)
	}

	if _, err := NewRegistry().RollbackToPrevious("missing"); !errors.Is(err, domain.ErrModelNotFound) {
		t.Errorf("rollback on empty registry error = %v", err)
	}
}

func TestShouldRetrainTriggers(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	trainer := &scriptedTrainer{accuracies: []float64{0.81, 0.84, 0.9}}
	o := testOrchestrator(t, trainer, &now)

	if o.ShouldRetrain("risk_scorer") {
		t.Error("due with empty buffer")
	}
	feed(o, 10)
	if !o.ShouldRetrain("risk_scorer") {
		t.Error("untrained model with feedback not due")
	}

	o.Retrain(context.Background(), "risk_scorer")
	if o.ShouldRetrain("risk_scorer") {
		t.Error("due immediately after training")
	}

	// Schedule trigger.
	now = now.Add(time.Hour)
	if !o.ShouldRetrain("risk_scorer") {
		t.Error("not due after retrain interval")
	}

	// Feedback-delta trigger.
	o.Retrain(context.Background(), "risk_scorer")
	feed(o, 100)
	if !o.ShouldRetrain("risk_scorer") {
		t.Error("not due after 100 new feedback records")
	}
}

func TestRetrainDueRunsOnlyDueModels(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	trainer := &scriptedTrainer{accuracies: []float64{0.8, 0.8}}
	o := testOrchestrator(t, trainer, &now)
	feed(o, 10)

	jobs := o.RetrainDue(context.Background(), []string{"risk_scorer", "anomaly_scorer"})
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want both untrained models trained", len(jobs))
	}

	// Neither model is due again until the schedule or delta fires.
	if again := o.RetrainDue(context.Background(), []string{"risk_scorer", "anomaly_scorer"}); len(again) != 0 {
		t.Errorf("retrained %d models immediately after training", len(again))
	}
}

func TestJobHistoryBounded(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := testOrchestrator(t, &scriptedTrainer{}, &now)
	feed(o, 5) // under MinSamples, every run records a skipped job

	for i := 0; i < jobsCap+10; i++ {
		o.Retrain(context.Background(), "risk_scorer")
		now = now.Add(time.Second)
	}

	jobs := o.Jobs()
	if len(jobs) != jobsCap {
		t.Fatalf("retained jobs = %d, want %d", len(jobs), jobsCap)
	}
	// Oldest first, and the earliest runs were overwritten.
	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(10 * time.Second)
	if !jobs[0].StartedAt.Equal(first) {
		t.Errorf("oldest retained job started %v, want %v", jobs[0].StartedAt, first)
	}
	if !jobs[len(jobs)-1].StartedAt.After(jobs[0].StartedAt) {
		t.Error("jobs not ordered oldest first")
	}
}

func TestTuneHyperparameters(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	// Accuracy peaks where positive_cut is lowest.
	trainer := TrainerFunc(func(_ context.Context, _ string, _, _ domain.Dataset, hp map[string]float64) (float64, float64, error) {
		acc := 1 - hp["positive_cut"]/10
		return acc, acc, nil
	})
	o := testOrchestrator(t, trainer, &now)
	feed(o, 10)

	result, err := o.TuneHyperparameters(context.Background(), "risk_scorer", map[string]ParamRange{
		"positive_cut": {Min: 1, Max: 9},
	}, 20, 42)
	if err != nil {
		t.Fatalf("TuneHyperparameters() error: %v", err)
	}
	if result.Best == nil || result.Best["positive_cut"] > 3 {
		t.Errorf("best = %v, want positive_cut near the low end", result.Best)
	}

	// The winning point is pinned for the model's next trainings.
	o.mu.Lock()
	pinned := o.hyper["risk_scorer"]
	o.mu.Unlock()
	if pinned == nil || pinned["positive_cut"] != result.Best["positive_cut"] {
		t.Errorf("pinned hyperparameters = %v, want %v", pinned, result.Best)
	}
}

func TestTuneHyperparametersNeedsData(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := testOrchestrator(t, &scriptedTrainer{}, &now)
	feed(o, 3)

	_, err := o.TuneHyperparameters(context.Background(), "risk_scorer", map[string]ParamRange{
		"positive_cut": {Min: 1, Max: 9},
	}, 5, 1)
	if !errors.Is(err, domain.ErrDatasetTooSmall) {
		t.Errorf("error = %v, want ErrDatasetTooSmall", err)
	}
}

func TestHyperparameterSearch(t *testing.T) {
	space := map[string]ParamRange{
		"learning_rate": {Min: 0.001, Max: 0.1},
		"depth":         {Min: 2, Max: 10},
	}
	// Peak at learning_rate=0.05, depth=6.
	score := func(p map[string]float64) float64 {
		lr := p["learning_rate"] - 0.05
		d := p["depth"] - 6
		return 1 - lr*lr*100 - d*d*0.01
	}

	result := Search(space, 20, score, 42)

	if len(result.Trials) != 30 {
		t.Fatalf("trials = %d, want 20 random + 10 refinement", len(result.Trials))
	}
	if result.BestScore <= 0 {
		t.Errorf("best score = %f", result.BestScore)
	}
	for dim, r := range space {
		v := result.Best[dim]
		if v < r.Min || v > r.Max {
			t.Errorf("best[%s] = %f outside [%f, %f]", dim, v, r.Min, r.Max)
		}
	}
	// Refinement never loses the exploration best.
	var exploreBest float64 = -1
	for _, trial := range result.Trials[:20] {
		if trial.Score > exploreBest {
			exploreBest = trial.Score
		}
	}
	if result.BestScore < exploreBest {
		t.Error("refinement lost the exploration best")
	}
}

func TestSearchEmptySpace(t *testing.T) {
	if r := Search(nil, 10, func(map[string]float64) float64 { return 1 }, 1); len(r.Trials) != 0 {
		t.Errorf("empty space produced %d trials", len(r.Trials))
	}
}
