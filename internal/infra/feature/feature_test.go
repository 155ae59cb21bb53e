package feature

import (
	"fmt"
	"testing"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

func sampleN(n int, mutate func(i int, s *domain.TrafficSample)) []domain.TrafficSample {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	samples := make([]domain.TrafficSample, n)
	for i := range samples {
		samples[i] = domain.TrafficSample{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			SourceIP:   "10.0.0.1",
			DestIP:     "10.0.0.2",
			Port:       443,
			Protocol:   "tcp",
			PacketSize: 1400,
			TTL:        64,
			WindowSize: 65535,
		}
		if mutate != nil {
			mutate(i, &samples[i])
		}
	}
	return samples
}

func TestExtractZeroWhenSparse(t *testing.T) {
	x := NewExtractor()
	set := x.Extract(sampleN(9, nil))
	for i, v := range set.Vector() {
		if v != 0 {
			t.Fatalf("vector[%d] = %v with 9 samples, want all zeros", i, v)
		}
	}
}

func TestVectorLength(t *testing.T) {
	x := NewExtractor()
	set := x.Extract(sampleN(20, nil))
	if got := len(set.Vector()); got != VectorLen {
		t.Fatalf("vector length = %d, want %d", got, VectorLen)
	}
}

func TestHistoryCapped(t *testing.T) {
	x := NewExtractor()
	x.Extract(sampleN(250, nil))
	if got := x.Len(); got != HistorySize {
		t.Errorf("history length = %d, want %d", got, HistorySize)
	}
}

func TestTemporalFeatures(t *testing.T) {
	x := NewExtractor()
	set := x.Extract(sampleN(11, nil)) // uniform 1s gaps

	if set.Temporal[0] != 1 {
		t.Errorf("mean inter-arrival = %v, want 1", set.Temporal[0])
	}
	if set.Temporal[1] != 0 {
		t.Errorf("inter-arrival stddev = %v, want 0 for uniform gaps", set.Temporal[1])
	}
	if set.Temporal[4] != 11 {
		t.Errorf("event count = %v, want 11", set.Temporal[4])
	}
}

func TestBehavioralFeaturesPortScan(t *testing.T) {
	x := NewExtractor()
	set := x.Extract(sampleN(50, func(i int, s *domain.TrafficSample) {
		s.Port = 1000 + i // every port distinct
	}))

	if set.Behavioral[1] != 50 {
		t.Errorf("unique ports = %v, want 50", set.Behavioral[1])
	}
	if set.Behavioral[3] != 1 {
		t.Errorf("port variety = %v, want 1.0 when all ports distinct", set.Behavioral[3])
	}
}

func TestPacketFeatures(t *testing.T) {
	x := NewExtractor()
	set := x.Extract(sampleN(10, func(i int, s *domain.TrafficSample) {
		if i%2 == 0 {
			s.PacketSize = 100
		} else {
			s.PacketSize = 300
		}
	}))

	if set.Packet[0] != 200 {
		t.Errorf("mean packet size = %v, want 200", set.Packet[0])
	}
	if set.Packet[2] != 100 || set.Packet[3] != 300 {
		t.Errorf("min/max packet size = %v/%v, want 100/300", set.Packet[2], set.Packet[3])
	}
	if set.Packet[4] != 64 {
		t.Errorf("mean TTL = %v, want 64", set.Packet[4])
	}
}

func TestNetworkFeaturesFlows(t *testing.T) {
	x := NewExtractor()
	set := x.Extract(sampleN(30, func(i int, s *domain.TrafficSample) {
		s.SourceIP = fmt.Sprintf("10.0.1.%d", i%3)
	}))

	if set.Network[0] != 3 {
		t.Errorf("unique sources = %v, want 3", set.Network[0])
	}
	if set.Network[3] != 3 {
		t.Errorf("unique flows = %v, want 3", set.Network[3])
	}
	if set.Network[2] != 10 {
		t.Errorf("max flow repetition = %v, want 10", set.Network[2])
	}
}

func TestTriggeredSignals(t *testing.T) {
	tests := []struct {
		name string
		set  Set
		want []string
	}{
		{
			"quiet window triggers nothing",
			Set{},
			nil,
		},
		{
			"slow arrivals",
			Set{Temporal: [5]float64{30, 2, 1, 40, 10}}, // group mean > 5
			[]string{"unusual_temporal_pattern"},
		},
		{
			"protocol spread and entropy",
			Set{Behavioral: [5]float64{1, 1, 4, 0, 10}, Statistical: [6]float64{3.5}},
			[]string{"multiple_protocols", "high_entropy"},
		},
		{
			"window size variance",
			Set{Packet: [8]float64{0, 0, 0, 0, 0, 0, 0, 2.5}},
			[]string{"variable_window_size"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.set.Triggered()
			if len(got) != len(tt.want) {
				t.Fatalf("Triggered() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Triggered()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEntropyHighForRandomSizes(t *testing.T) {
	x := NewExtractor()
	set := x.Extract(sampleN(64, func(i int, s *domain.TrafficSample) {
		s.PacketSize = 100 + i*17 // all distinct
	}))
	if set.Statistical[0] <= 3 {
		t.Errorf("entropy = %v for 64 distinct sizes, want > 3", set.Statistical[0])
	}
}
