package domain

import "time"

// ─── Risk Levels ────────────────────────────────────────────────────────────

// RiskLevel buckets a CVSS-style risk score.
// Thresholds are closed at the upper bound: a score of exactly 9.0 is CRITICAL.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the risk level as a human-readable string.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// RiskLevelForScore maps a risk score in [1,10] to its level.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 9.0:
		return RiskCritical
	case score >= 7.0:
		return RiskHigh
	case score >= 4.0:
		return RiskMedium
	}
	return RiskLow
}

// IncidentSeverity maps a risk level to the incident severity tier.
func (r RiskLevel) IncidentSeverity() IncidentSeverity {
	switch r {
	case RiskCritical:
		return Sev1
	case RiskHigh:
		return Sev2
	case RiskMedium:
		return Sev3
	}
	return Sev4
}

// ─── Attack Vectors ─────────────────────────────────────────────────────────

// AttackVector is the CVSS access-vector dimension.
type AttackVector int

const (
	VectorNetwork AttackVector = iota
	VectorAdjacent
	VectorLocal
	VectorPhysical
)

// String returns the attack vector as a human-readable string.
func (v AttackVector) String() string {
	switch v {
	case VectorNetwork:
		return "NETWORK"
	case VectorAdjacent:
		return "ADJACENT"
	case VectorLocal:
		return "LOCAL"
	case VectorPhysical:
		return "PHYSICAL"
	}
	return "UNKNOWN"
}

// ─── Threat Signals & Assessments ───────────────────────────────────────────

// ThreatSignal is the assessor's view of a detected threat: the detection
// verdict plus the environmental facts needed for scoring.
type ThreatSignal struct {
	ThreatID       string    `json:"threat_id"`
	ThreatType     string    `json:"threat_type"`
	SourceIP       string    `json:"source_ip"`
	TargetAssets   []string  `json:"target_assets,omitempty"`
	Confidence     float64   `json:"confidence"`
	Internal       bool      `json:"internal"` // source inside the mesh
	ExploitMature  bool      `json:"exploit_mature"`
	PatchAvailable bool      `json:"patch_available"`
	DetectedAt     time.Time `json:"detected_at"`
}

// ThreatAssessment is the scored judgment of one threat signal.
// Invariant: ShouldAutoRemediate implies RiskLevel in {HIGH, CRITICAL}
// and Confidence >= the configured minimum (default 0.75).
type ThreatAssessment struct {
	ThreatID            string             `json:"threat_id"`
	RiskScore           float64            `json:"risk_score"` // [1,10]
	RiskLevel           RiskLevel          `json:"risk_level"`
	Confidence          float64            `json:"confidence"`   // [0,1]
	ImpactScore         float64            `json:"impact_score"` // [0,1]
	AffectedAssets      []string           `json:"affected_assets,omitempty"`
	AttackVector        AttackVector       `json:"attack_vector"`
	Exploitability      float64            `json:"exploitability"`
	ShouldAutoRemediate bool               `json:"should_auto_remediate"`
	RemediationActions  []ActionKind       `json:"remediation_actions,omitempty"`
	ContextFactors      map[string]float64 `json:"context_factors,omitempty"`
	AssessedAt          time.Time          `json:"assessed_at"`
}
