package domain

import "time"

// ─── Traffic Samples ────────────────────────────────────────────────────────

// TrafficSample is one observed traffic event used for feature extraction.
// Inputs are structured records from upstream sensors, not raw packets.
type TrafficSample struct {
	Timestamp  time.Time `json:"timestamp"`
	SourceIP   string    `json:"source_ip"`
	DestIP     string    `json:"dest_ip"`
	Port       int       `json:"port"`
	Protocol   string    `json:"protocol"`
	PacketSize int       `json:"packet_size"`
	TTL        int       `json:"ttl"`
	WindowSize int       `json:"window_size"`
	Flags      []string  `json:"flags,omitempty"`
}

// ─── Classification ─────────────────────────────────────────────────────────

// Classification is the ensemble verdict tier for a traffic window.
type Classification int

const (
	ClassBenign Classification = iota
	ClassSuspicious
	ClassMalicious
	ClassCritical
	ClassCatastrophic
)

// String returns the classification as a human-readable string.
func (c Classification) String() string {
	switch c {
	case ClassBenign:
		return "BENIGN"
	case ClassSuspicious:
		return "SUSPICIOUS"
	case ClassMalicious:
		return "MALICIOUS"
	case ClassCritical:
		return "CRITICAL"
	case ClassCatastrophic:
		return "CATASTROPHIC"
	}
	return "UNKNOWN"
}

// ─── Detection Results ──────────────────────────────────────────────────────

// DetectionResult is the outcome of an ensemble vote over one feature
// vector. ThreatDetected reflects the consensus vote; Classification can
// still be BENIGN when the mean confidence stays at or below 0.5.
type DetectionResult struct {
	ThreatDetected     bool               `json:"threat_detected"`
	Classification     Classification     `json:"classification"`
	Confidence         float64            `json:"confidence"` // [0,1]
	Score              float64            `json:"score"`      // [0,100]
	PrimaryType        string             `json:"primary_type"`
	ContributingModels map[string]float64 `json:"contributing_models"`
	FeaturesTriggered  []string           `json:"features_triggered,omitempty"`
	Recommendation     string             `json:"recommendation"`
	DetectedAt         time.Time          `json:"detected_at"`
}
