package alerting

import (
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
)

// DefaultStepTimeout is how long an alert stays unacknowledged at one
// level before stepping up.
const DefaultStepTimeout = 30 * time.Minute

// Policies returns the per-risk-level escalation policies with the given
// step timeout; zero takes the default.
func Policies(step time.Duration) map[domain.RiskLevel]domain.EscalationPolicy {
	if step <= 0 {
		step = DefaultStepTimeout
	}
	return map[domain.RiskLevel]domain.EscalationPolicy{
		domain.RiskCritical: {RiskLevel: domain.RiskCritical, StepTimeout: step, MaxEscalation: domain.EscalationCritical},
		domain.RiskHigh:     {RiskLevel: domain.RiskHigh, StepTimeout: step, MaxEscalation: domain.EscalationCritical},
		domain.RiskMedium:   {RiskLevel: domain.RiskMedium, StepTimeout: step, MaxEscalation: domain.EscalationUrgent},
		domain.RiskLow:      {RiskLevel: domain.RiskLow, StepTimeout: step, MaxEscalation: domain.EscalationAlert},
	}
}

// DefaultPolicies returns the policies with the default step timeout.
func DefaultPolicies() map[domain.RiskLevel]domain.EscalationPolicy {
	return Policies(DefaultStepTimeout)
}

// openEscalation tracks one unacknowledged alert.
type openEscalation struct {
	threatID string
	level    domain.EscalationLevel
	policy   domain.EscalationPolicy
	lastStep time.Time
}

// Escalator advances unacknowledged alerts one level per elapsed step
// timeout, up to the policy maximum. Safe for concurrent use.
type Escalator struct {
	mu       sync.Mutex
	open     map[string]*openEscalation
	policies map[domain.RiskLevel]domain.EscalationPolicy
	now      ident.Clock
}

// NewEscalator returns an Escalator; nil policies take the defaults.
func NewEscalator(policies map[domain.RiskLevel]domain.EscalationPolicy) *Escalator {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Escalator{
		open:     make(map[string]*openEscalation),
		policies: policies,
		now:      ident.SystemClock,
	}
}

// Open starts tracking an alert at its initial escalation level.
func (e *Escalator) Open(threatID string, risk domain.RiskLevel, level domain.EscalationLevel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open[threatID] = &openEscalation{
		threatID: threatID,
		level:    level,
		policy:   e.policies[risk],
		lastStep: e.now(),
	}
}

// Acknowledge closes the escalation for a threat.
func (e *Escalator) Acknowledge(threatID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.open[threatID]; !ok {
		return false
	}
	delete(e.open, threatID)
	return true
}

// Level returns the current escalation level of an open alert.
func (e *Escalator) Level(threatID string) (domain.EscalationLevel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.open[threatID]
	if !ok {
		return 0, false
	}
	return rec.level, true
}

// Sweep advances every open alert whose step timeout has elapsed, and
// returns the threat IDs that stepped up. The daemon calls this on a
// fixed cadence.
func (e *Escalator) Sweep() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	var advanced []string
	for id, rec := range e.open {
		if rec.level >= rec.policy.MaxEscalation {
			continue
		}
		if rec.policy.StepTimeout <= 0 || now.Sub(rec.lastStep) < rec.policy.StepTimeout {
			continue
		}
		rec.level++
		rec.lastStep = now
		advanced = append(advanced, id)
	}
	return advanced
}

// OpenCount returns the number of tracked escalations.
func (e *Escalator) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}
