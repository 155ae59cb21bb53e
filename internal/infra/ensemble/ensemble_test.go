package ensemble

import (
	"math"
	"testing"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/infra/feature"
)

// stubDetector votes and scores with fixed values.
type stubDetector struct {
	name       string
	vote       bool
	confidence float64
}

func (d *stubDetector) Name() string                     { return d.name }
func (d *stubDetector) Detect([]float64) (bool, float64) { return d.vote, d.confidence }

func stubEnsemble(votes [3]bool, confidences [3]float64) *Ensemble {
	return New(
		&stubDetector{"isolation_forest", votes[0], confidences[0]},
		&stubDetector{"lstm_sequence", votes[1], confidences[1]},
		&stubDetector{"hybrid_bayesian", votes[2], confidences[2]},
	)
}

func TestTwoOfThreeConsensus(t *testing.T) {
	e := stubEnsemble([3]bool{true, true, false}, [3]float64{0.9, 0.8, 0.2})
	r := e.Detect(feature.Set{}, nil)

	if !r.ThreatDetected {
		t.Fatal("2/3 votes did not reach consensus")
	}
	if want := (0.9 + 0.8 + 0.2) / 3; math.Abs(r.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", r.Confidence, want)
	}
	if r.Classification != domain.ClassSuspicious {
		t.Errorf("classification = %s, want SUSPICIOUS at confidence 0.633", r.Classification)
	}
	if math.Abs(r.Score-r.Confidence*100) > 1e-9 {
		t.Errorf("score = %v, want confidence*100", r.Score)
	}
}

func TestSingleVoteIsBenign(t *testing.T) {
	e := stubEnsemble([3]bool{true, false, false}, [3]float64{0.99, 0.99, 0.99})
	r := e.Detect(feature.Set{}, nil)

	if r.ThreatDetected {
		t.Fatal("1/3 votes reached consensus")
	}
	if r.Classification != domain.ClassBenign {
		t.Errorf("classification = %s, want BENIGN without consensus", r.Classification)
	}
	if r.Score != 0 {
		t.Errorf("score = %v, want 0 without consensus", r.Score)
	}
}

func TestClassificationTiers(t *testing.T) {
	tests := []struct {
		confidence float64
		want       domain.Classification
	}{
		{0.96, domain.ClassCatastrophic},
		{0.90, domain.ClassCritical},
		{0.75, domain.ClassMalicious},
		{0.60, domain.ClassSuspicious},
		{0.50, domain.ClassBenign}, // boundary is exclusive
	}
	for _, tt := range tests {
		e := stubEnsemble(
			[3]bool{true, true, true},
			[3]float64{tt.confidence, tt.confidence, tt.confidence},
		)
		r := e.Detect(feature.Set{}, nil)
		if r.Classification != tt.want {
			t.Errorf("confidence %v: classification = %s, want %s",
				tt.confidence, r.Classification, tt.want)
		}
	}
}

func TestThreatTypeInference(t *testing.T) {
	manyPorts := make([]domain.TrafficSample, 12)
	for i := range manyPorts {
		manyPorts[i] = domain.TrafficSample{Port: 8000 + i}
	}

	tests := []struct {
		name    string
		samples []domain.TrafficSample
		want    string
	}{
		{"no traffic", nil, "unknown"},
		{"port scan", manyPorts, "port_scan"},
		{"ssh target", []domain.TrafficSample{{Port: 22}}, "ssh_brute_force"},
		{"rdp target", []domain.TrafficSample{{Port: 3389}}, "ssh_brute_force"},
		{"oversized packets", []domain.TrafficSample{{Port: 443, PacketSize: 66000}}, "dos_attack"},
		{"fallback", []domain.TrafficSample{{Port: 443, PacketSize: 1400}}, "anomalous_traffic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := threatType(tt.samples); got != tt.want {
				t.Errorf("threatType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestContributingModelsRecorded(t *testing.T) {
	e := stubEnsemble([3]bool{true, true, false}, [3]float64{0.9, 0.8, 0.2})
	r := e.Detect(feature.Set{}, nil)

	if len(r.ContributingModels) != 3 {
		t.Fatalf("contributing models = %d, want 3", len(r.ContributingModels))
	}
	if r.ContributingModels["isolation_forest"] != 0.9 {
		t.Errorf("isolation_forest confidence = %v, want 0.9", r.ContributingModels["isolation_forest"])
	}
}

func TestReplaceSwapsByName(t *testing.T) {
	e := stubEnsemble([3]bool{false, false, false}, [3]float64{0, 0, 0})

	if !e.Replace(&stubDetector{"lstm_sequence", true, 1.0}) {
		t.Fatal("Replace() did not find lstm_sequence")
	}
	if e.Replace(&stubDetector{"unknown_model", true, 1.0}) {
		t.Fatal("Replace() accepted unknown model name")
	}

	names := e.ModelNames()
	if len(names) != 3 {
		t.Fatalf("model count changed after Replace: %d", len(names))
	}
}

func TestHistoryRetained(t *testing.T) {
	e := stubEnsemble([3]bool{true, true, true}, [3]float64{0.9, 0.9, 0.9})
	for i := 0; i < 5; i++ {
		e.Detect(feature.Set{}, nil)
	}
	if got := len(e.History(0)); got != 5 {
		t.Errorf("history length = %d, want 5", got)
	}
	if got := len(e.History(2)); got != 2 {
		t.Errorf("History(2) length = %d, want 2", got)
	}
}

func TestDefaultDetectorsQuietOnZeroVector(t *testing.T) {
	e := Default()
	r := e.Detect(feature.Set{}, nil)
	if r.ThreatDetected {
		t.Error("zero feature vector flagged as threat")
	}
	if r.Classification != domain.ClassBenign {
		t.Errorf("classification = %s, want BENIGN", r.Classification)
	}
}
