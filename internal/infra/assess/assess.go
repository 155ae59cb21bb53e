// Package assess scores detected threats CVSS-style: a weighted base
// score over the attack profile, a temporal factor over exploit maturity,
// and an environmental factor over the targeted assets, combined 0.7 /
// 0.15 / 0.15 and clamped to [1,10].
package assess

import (
	"fmt"
	"math"
	"sync"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
)

// ─── Weights ────────────────────────────────────────────────────────────────

// Weights holds the per-factor weight tables. All three groups normalize
// by their own weight sum, so tables need not sum to 1.
type Weights struct {
	Base          map[string]float64
	Temporal      map[string]float64
	Environmental map[string]float64
}

// DefaultWeights returns the standard CVSS-style weight tables.
func DefaultWeights() Weights {
	return Weights{
		Base: map[string]float64{
			"attack_vector":       0.25,
			"attack_complexity":   0.15,
			"privileges_required": 0.20,
			"user_interaction":    0.10,
			"scope":               0.15,
			"confidentiality":     0.08,
			"integrity":           0.05,
			"availability":        0.02,
		},
		Temporal: map[string]float64{
			"threat_maturity":       0.40,
			"remediation_available": 0.35,
			"report_confidence":     0.25,
		},
		Environmental: map[string]float64{
			"asset_criticality": 0.40,
			"network_exposure":  0.30,
			"business_impact":   0.30,
		},
	}
}

// ─── Assessor ───────────────────────────────────────────────────────────────

const (
	// DefaultMinAutoRemediateConfidence gates automated response.
	DefaultMinAutoRemediateConfidence = 0.75

	historyCap = 1000
)

// Assessor scores threat signals. Safe for concurrent use.
type Assessor struct {
	mu            sync.Mutex
	weights       Weights
	minConfidence float64
	history       []domain.ThreatAssessment
	rIdx          int
	rFull         bool

	now ident.Clock
}

// New returns an Assessor; zero minConfidence takes the default.
func New(weights Weights, minConfidence float64) *Assessor {
	if len(weights.Base) == 0 {
		weights = DefaultWeights()
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinAutoRemediateConfidence
	}
	return &Assessor{
		weights:       weights,
		minConfidence: minConfidence,
		now:           ident.SystemClock,
	}
}

// Assess scores one threat signal.
func (a *Assessor) Assess(signal domain.ThreatSignal) domain.ThreatAssessment {
	base := weightedScore(a.weights.Base, baseFactors(signal))
	temporal := weightedScore(a.weights.Temporal, temporalFactors(signal))
	environmental := weightedScore(a.weights.Environmental, environmentalFactors(signal))

	final := clamp(0.7*base+0.15*temporal+0.15*environmental, 1, 10)
	level := domain.RiskLevelForScore(final)
	confidence := clamp(signal.Confidence, 0, 1)

	assessment := domain.ThreatAssessment{
		ThreatID:            signal.ThreatID,
		RiskScore:           final,
		RiskLevel:           level,
		Confidence:          confidence,
		ImpactScore:         clamp(environmental/10, 0, 1),
		AffectedAssets:      signal.TargetAssets,
		AttackVector:        attackVector(signal),
		Exploitability:      (final - 1) / 9,
		ShouldAutoRemediate: (level == domain.RiskHigh || level == domain.RiskCritical) && confidence >= a.minConfidence,
		RemediationActions:  remediationActions(level, signal),
		ContextFactors: map[string]float64{
			"base":          base,
			"temporal":      temporal,
			"environmental": environmental,
			"final":         final,
		},
		AssessedAt: a.now(),
	}

	a.mu.Lock()
	a.record(assessment)
	a.mu.Unlock()
	return assessment
}

// History returns up to limit recent assessments, oldest first.
func (a *Assessor) History(limit int) []domain.ThreatAssessment {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ordered []domain.ThreatAssessment
	if a.rFull {
		ordered = append(ordered, a.history[a.rIdx:]...)
		ordered = append(ordered, a.history[:a.rIdx]...)
	} else {
		ordered = a.history
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	out := make([]domain.ThreatAssessment, len(ordered))
	copy(out, ordered)
	return out
}

func (a *Assessor) record(t domain.ThreatAssessment) {
	if len(a.history) < historyCap {
		a.history = append(a.history, t)
		return
	}
	a.history[a.rIdx] = t
	a.rIdx = (a.rIdx + 1) % historyCap
	a.rFull = true
}

// ─── Factor Scoring ─────────────────────────────────────────────────────────

// baseFactors scores the attack profile on the CVSS 1-10 scale.
func baseFactors(s domain.ThreatSignal) map[string]float64 {
	f := map[string]float64{
		"privileges_required": 8.0, // mesh threats arrive unauthenticated
		"user_interaction":    8.0, // no user action needed
		"confidentiality":     5.0,
		"integrity":           4.0,
		"availability":        3.0,
	}

	if s.Internal {
		f["attack_vector"] = 3.0
	} else {
		f["attack_vector"] = 8.0
	}

	// Low-complexity attacks are easier to mount, so they score higher.
	switch s.ThreatType {
	case "ssh_brute_force", "dos_attack":
		f["attack_complexity"] = 8.0
	case "anomalous_traffic":
		f["attack_complexity"] = 4.0
	default:
		f["attack_complexity"] = 6.0
	}

	if len(s.TargetAssets) > 1 {
		f["scope"] = 7.0
	} else {
		f["scope"] = 5.0
	}
	if s.ThreatType == "dos_attack" {
		f["availability"] = 8.0
	}
	return f
}

func temporalFactors(s domain.ThreatSignal) map[string]float64 {
	f := map[string]float64{
		"report_confidence": clamp(s.Confidence*10, 0, 10),
	}
	if s.ExploitMature {
		f["threat_maturity"] = 8.0
	} else {
		f["threat_maturity"] = 3.0
	}
	if s.PatchAvailable {
		f["remediation_available"] = 4.0
	} else {
		f["remediation_available"] = 8.0
	}
	return f
}

func environmentalFactors(s domain.ThreatSignal) map[string]float64 {
	f := map[string]float64{
		"asset_criticality": math.Min(10, 5+float64(len(s.TargetAssets))),
	}
	if s.Internal {
		f["network_exposure"] = 3.0
	} else {
		f["network_exposure"] = 8.0
	}
	switch s.ThreatType {
	case "dos_attack":
		f["business_impact"] = 8.0
	case "ssh_brute_force":
		f["business_impact"] = 7.0
	case "port_scan":
		f["business_impact"] = 4.0
	default:
		f["business_impact"] = 5.0
	}
	return f
}

// weightedScore folds factor scores by the weight table, defaulting a
// missing factor to the scale midpoint.
func weightedScore(weights, factors map[string]float64) float64 {
	var sum, weightSum float64
	for key, w := range weights {
		score, ok := factors[key]
		if !ok {
			score = 5.0
		}
		sum += score * w
		weightSum += w
	}
	if weightSum == 0 {
		return 5.0
	}
	return sum / weightSum
}

func attackVector(s domain.ThreatSignal) domain.AttackVector {
	if s.Internal {
		return domain.VectorLocal
	}
	return domain.VectorNetwork
}

// remediationActions picks the playbook actions appropriate to the level.
func remediationActions(level domain.RiskLevel, s domain.ThreatSignal) []domain.ActionKind {
	switch level {
	case domain.RiskCritical, domain.RiskHigh:
		actions := []domain.ActionKind{
			domain.ActionBlockSourceIP,
			domain.ActionEnableDPI,
		}
		if len(s.TargetAssets) < 10 {
			actions = append(actions, domain.ActionQuarantineNode)
		} else {
			actions = append(actions, domain.ActionIncreaseMonitoring)
		}
		if s.ThreatType == "ssh_brute_force" {
			actions = append(actions, domain.ActionRotateCredentials)
		}
		return actions
	case domain.RiskMedium:
		return []domain.ActionKind{
			domain.ActionIncreaseMonitoring,
			domain.ActionApplyRateLimit,
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Describe renders a one-line summary for logs.
func Describe(t domain.ThreatAssessment) string {
	return fmt.Sprintf("%s risk=%.1f/10 (%s) conf=%.2f auto=%v",
		t.ThreatID, t.RiskScore, t.RiskLevel, t.Confidence, t.ShouldAutoRemediate)
}
