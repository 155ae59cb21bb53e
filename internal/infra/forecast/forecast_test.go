package forecast

import (
	"math"
	"testing"
	"time"
)

func fixedForecaster(at time.Time) *Forecaster {
	f := New()
	f.now = func() time.Time { return at }
	return f
}

func recordN(f *Forecaster, n int, threatType string, severity float64, at time.Time) {
	for i := 0; i < n; i++ {
		f.Record(ThreatEvent{
			Timestamp:  at.Add(time.Duration(i) * time.Minute),
			ThreatType: threatType,
			Severity:   severity,
		})
	}
}

func TestPredictEmptyHistory(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := fixedForecaster(at)

	fc := f.Predict(0.4, 24*time.Hour)
	// momentum 0.4, zero trend, neutral seasonality: 0.4 + 0 + 0.1*(0.5-0.5)
	if math.Abs(fc.ThreatProbability-0.4) > 1e-9 {
		t.Errorf("probability = %v, want 0.4", fc.ThreatProbability)
	}
	if fc.Confidence != 0.3 {
		t.Errorf("confidence = %v, want 0.3 for empty history", fc.Confidence)
	}
	if fc.ExpectedType != "unknown" {
		t.Errorf("expected type = %s, want unknown", fc.ExpectedType)
	}
}

func TestPredictClipsToUnit(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := fixedForecaster(at)

	// Rising severities give a positive trend; a long horizon overshoots.
	for i := 0; i < 50; i++ {
		f.Record(ThreatEvent{
			Timestamp:  at.Add(time.Duration(i) * time.Minute),
			ThreatType: "port_scan",
			Severity:   float64(i) / 50,
		})
	}
	fc := f.Predict(0.9, 72*time.Hour)
	if fc.ThreatProbability != 1.0 {
		t.Errorf("probability = %v, want clipped to 1.0", fc.ThreatProbability)
	}

	low := f.Predict(0.0, 0)
	if low.ThreatProbability < 0 || low.ThreatProbability > 1 {
		t.Errorf("probability %v outside [0,1]", low.ThreatProbability)
	}
}

func TestConfidenceTiers(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		events int
		want   float64
	}{
		{9, 0.3},
		{99, 0.5},
		{999, 0.7},
		{1000, 0.9},
	}
	for _, tt := range tests {
		f := fixedForecaster(at)
		recordN(f, tt.events, "port_scan", 0.5, at)
		if got := f.Predict(0.5, time.Hour).Confidence; got != tt.want {
			t.Errorf("confidence with %d events = %v, want %v", tt.events, got, tt.want)
		}
	}
}

func TestCriticalWindows(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	horizon := 24 * time.Hour

	high := criticalWindows(at, horizon, 0.6)
	if len(high) != 1 || !high[0].Start.Equal(at) || !high[0].End.Equal(at.Add(horizon)) {
		t.Errorf("high probability window = %+v, want full horizon", high)
	}

	mid := criticalWindows(at, horizon, 0.4)
	if len(mid) != 1 || !mid[0].Start.Equal(at.Add(12*time.Hour)) {
		t.Errorf("mid probability window = %+v, want second half", mid)
	}

	if low := criticalWindows(at, horizon, 0.2); low != nil {
		t.Errorf("low probability windows = %+v, want none", low)
	}
}

func TestExpectedTypeIsMostFrequent(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := fixedForecaster(at)
	recordN(f, 5, "port_scan", 0.5, at)
	recordN(f, 12, "ssh_brute_force", 0.5, at)
	recordN(f, 3, "dos_attack", 0.5, at)

	if got := f.Predict(0.5, time.Hour).ExpectedType; got != "ssh_brute_force" {
		t.Errorf("expected type = %s, want ssh_brute_force", got)
	}
}

func TestSeasonalityShiftsProbability(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := fixedForecaster(at)

	// All events at hour 10, flat severity: seasonality mass 1.0 at the
	// current hour adds 0.1*(1.0-0.5) = 0.05.
	for i := 0; i < 30; i++ {
		f.Record(ThreatEvent{
			Timestamp:  at.Add(time.Duration(i) * time.Second),
			ThreatType: "port_scan",
			Severity:   0.5,
		})
	}
	fc := f.Predict(0.5, time.Hour)
	if math.Abs(fc.ThreatProbability-0.55) > 1e-9 {
		t.Errorf("probability = %v, want 0.55 with full seasonal mass", fc.ThreatProbability)
	}
}

func TestResourcesScaleWithProbability(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := fixedForecaster(at)

	fc := f.Predict(0.5, time.Hour)
	if fc.Resources["cpu_percent"] != 5.0 {
		t.Errorf("cpu_percent = %v, want 5.0 at probability 0.5", fc.Resources["cpu_percent"])
	}
	if fc.Resources["memory_mb"] != 128.0 {
		t.Errorf("memory_mb = %v, want 128.0", fc.Resources["memory_mb"])
	}
}

func TestRecommendationTiers(t *testing.T) {
	tests := []struct {
		probability float64
		threatType  string
		wantLen     int
	}{
		{0.9, "port_scan", 4},
		{0.7, "ssh_brute_force", 3},
		{0.5, "dos_attack", 1},
		{0.1, "dos_attack", 0},
	}
	for _, tt := range tests {
		got := recommendations(tt.probability, tt.threatType)
		if len(got) != tt.wantLen {
			t.Errorf("recommendations(%v, %s) = %v, want %d entries",
				tt.probability, tt.threatType, got, tt.wantLen)
		}
	}
}
