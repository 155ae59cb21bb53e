package ensemble

import "math"

// The built-in detectors are deterministic scoring functions over the
// feature vector. Training replaces them with fitted versions carrying
// thresholds tuned on operational feedback.

// ─── Isolation ──────────────────────────────────────────────────────────────

// IsolationDetector scores by vector magnitude: points far from the
// origin of the normalized feature space are easier to isolate.
type IsolationDetector struct {
	Threshold float64
	Version   string
}

func (d *IsolationDetector) Name() string { return "isolation_forest" }

func (d *IsolationDetector) Detect(features []float64) (bool, float64) {
	if len(features) == 0 {
		return false, 0
	}
	var sq float64
	for _, f := range features {
		sq += f * f
	}
	score := math.Sqrt(sq) / float64(len(features)+1)
	if score > 1 {
		score = 1
	}
	return score > d.Threshold, score
}

// ─── Sequence Reconstruction ────────────────────────────────────────────────

// SequenceDetector scores by dispersion: a window whose feature groups
// disagree strongly reconstructs poorly against a smooth sequence model.
type SequenceDetector struct {
	Threshold float64
	Version   string
}

func (d *SequenceDetector) Name() string { return "lstm_sequence" }

func (d *SequenceDetector) Detect(features []float64) (bool, float64) {
	if len(features) < 2 {
		return false, 0
	}
	var sum float64
	for _, f := range features {
		sum += f
	}
	mean := sum / float64(len(features))

	var sq float64
	for _, f := range features {
		diff := f - mean
		sq += diff * diff
	}
	std := math.Sqrt(sq / float64(len(features)))

	// Reconstruction error normalized by the mean magnitude.
	err := std / (math.Abs(mean) + 1)
	if err > 1 {
		err = 1
	}
	return err > d.Threshold, err
}

// ─── Bayesian ───────────────────────────────────────────────────────────────

// BayesianDetector scores by posterior threat probability from the mean
// absolute feature magnitude.
type BayesianDetector struct {
	Threshold float64
	Version   string
}

func (d *BayesianDetector) Name() string { return "hybrid_bayesian" }

func (d *BayesianDetector) Detect(features []float64) (bool, float64) {
	if len(features) == 0 {
		return false, 0
	}
	var sum float64
	for _, f := range features {
		sum += math.Abs(f)
	}
	posterior := sum / float64(len(features)) / 100.0
	if posterior > 1 {
		posterior = 1
	}
	return posterior > d.Threshold, posterior
}
