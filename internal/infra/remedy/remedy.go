// Package remedy executes remediation playbooks: prioritized reversible
// steps dispatched to action executors, with per-step timeouts, an
// append-only audit trail, and reverse-order rollback when a required
// step fails.
package remedy

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

// DefaultStepTimeout bounds one executor call when the step carries none.
const DefaultStepTimeout = 30 * time.Second

// Executor performs the effect behind one action kind. Execute returns a
// result map that is later handed back verbatim to Rollback; rollback
// must be idempotent given that result.
type Executor interface {
	Execute(ctx context.Context, target string, params map[string]string) (map[string]string, error)
	Rollback(ctx context.Context, result map[string]string) error
}

// Engine runs playbooks. Safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	executors   map[domain.ActionKind]Executor
	records     []domain.ActionRecord
	stepTimeout time.Duration

	now ident.Clock
}

// NewEngine returns an Engine with a built-in executor registered for
// every action kind.
func NewEngine() *Engine {
	e := &Engine{
		executors:   make(map[domain.ActionKind]Executor),
		stepTimeout: DefaultStepTimeout,
		now:         ident.SystemClock,
	}
	e.Register(domain.ActionBlockSourceIP, &FirewallExecutor{})
	e.Register(domain.ActionQuarantineNode, &IsolationExecutor{})
	e.Register(domain.ActionIsolateTunnel, &TunnelExecutor{})
	e.Register(domain.ActionApplyRateLimit, &RateLimitExecutor{})
	e.Register(domain.ActionEnableDPI, &DPIExecutor{})
	e.Register(domain.ActionRotateCredentials, &CredentialExecutor{})
	e.Register(domain.ActionIncreaseMonitoring, &MonitoringExecutor{})
	e.Register(domain.ActionResetSession, &SessionExecutor{})
	e.Register(domain.ActionDisableService, &ServiceExecutor{})
	e.Register(domain.ActionCollectEvidence, &EvidenceExecutor{})
	return e
}

// SetDefaultStepTimeout overrides the fallback per-step timeout.
func (e *Engine) SetDefaultStepTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stepTimeout = d
}

func (e *Engine) defaultStepTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepTimeout
}

// Register installs the executor for an action kind, replacing any prior.
func (e *Engine) Register(kind domain.ActionKind, exec Executor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executors[kind] = exec
}

// Run executes a playbook against a threat. Steps run one at a time in
// priority order (descending); a failed required step stops the run and,
// when the step asks for it, rolls back every completed step in reverse.
func (e *Engine) Run(ctx context.Context, playbook domain.RemediationPlaybook, threatID string) domain.RemediationExecution {
	start := e.now()
	execution := domain.RemediationExecution{
		ID:         uuid.NewString(),
		PlaybookID: playbook.ID,
		ThreatID:   threatID,
		Status:     domain.ActionExecuting,
		StartedAt:  start,
	}

	steps := make([]domain.RemediationStep, len(playbook.Steps))
	copy(steps, playbook.Steps)
	sort.SliceStable(steps, func(a, b int) bool { return steps[a].Priority > steps[b].Priority })

	rollback := false
	for _, step := range steps {
		result, err := e.runStep(ctx, execution.ID, threatID, step)
		if err == nil {
			execution.ExecutedSteps = append(execution.ExecutedSteps, result)
			continue
		}

		execution.FailedSteps = append(execution.FailedSteps, result)
		log.Printf("[remedy] step %s (%s) failed: %v", step.ID, step.Action, err)
		if !step.Required {
			continue
		}
		if step.RollbackOnFailure {
			rollback = true
		}
		break
	}

	if rollback {
		execution.RolledBackSteps = e.rollbackAll(ctx, execution.ID, threatID, execution.ExecutedSteps)
		execution.Status = domain.ActionRolledBack
	} else if len(execution.FailedSteps) > 0 && requiredFailed(steps, execution.FailedSteps) {
		execution.Status = domain.ActionFailed
	} else {
		execution.Status = domain.ActionCompleted
	}

	execution.CompletedAt = e.now()
	execution.TotalTime = execution.CompletedAt.Sub(start)
	return execution
}

// runStep dispatches one step to its executor under the step timeout and
// writes the audit record.
func (e *Engine) runStep(ctx context.Context, executionID, threatID string, step domain.RemediationStep) (domain.StepResult, error) {
	result := domain.StepResult{
		StepID:    step.ID,
		Action:    step.Action,
		Target:    step.Target,
		Timestamp: e.now(),
	}

	e.mu.Lock()
	exec, ok := e.executors[step.Action]
	e.mu.Unlock()
	if !ok {
		result.Error = domain.ErrNoExecutor.Error()
		e.audit(executionID, threatID, step, domain.ActionFailed, nil)
		metrics.RemediationSteps.WithLabelValues(string(step.Action), "FAILED").Inc()
		return result, domain.ErrNoExecutor
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.defaultStepTimeout()
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.Execute(stepCtx, step.Target, step.Parameters)
	if stepCtx.Err() == context.DeadlineExceeded {
		err = domain.ErrStepTimeout
	}
	if err != nil {
		result.Error = err.Error()
		e.audit(executionID, threatID, step, domain.ActionFailed, out)
		metrics.RemediationSteps.WithLabelValues(string(step.Action), "FAILED").Inc()
		return result, err
	}

	result.Result = out
	e.audit(executionID, threatID, step, domain.ActionCompleted, out)
	metrics.RemediationSteps.WithLabelValues(string(step.Action), "COMPLETED").Inc()
	return result, nil
}

// rollbackAll reverses completed steps newest first. Each successful
// reversal appends its own ROLLED_BACK record; the original COMPLETED
// record stays untouched.
func (e *Engine) rollbackAll(ctx context.Context, executionID, threatID string, completed []domain.StepResult) []domain.StepResult {
	var rolled []domain.StepResult
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]

		e.mu.Lock()
		exec, ok := e.executors[step.Action]
		e.mu.Unlock()
		if !ok {
			continue
		}

		rbCtx, cancel := context.WithTimeout(ctx, e.defaultStepTimeout())
		err := exec.Rollback(rbCtx, step.Result)
		cancel()

		entry := domain.StepResult{
			StepID:    step.StepID,
			Action:    step.Action,
			Target:    step.Target,
			Result:    step.Result,
			Timestamp: e.now(),
		}
		if err != nil {
			entry.Error = err.Error()
			log.Printf("[remedy] rollback of %s (%s) failed: %v", step.StepID, step.Action, err)
		} else {
			e.auditRollback(executionID, threatID, step)
			metrics.RemediationSteps.WithLabelValues(string(step.Action), "ROLLED_BACK").Inc()
		}
		rolled = append(rolled, entry)
	}
	return rolled
}

// ─── Audit Trail ────────────────────────────────────────────────────────────

func (e *Engine) audit(executionID, threatID string, step domain.RemediationStep, status domain.ActionStatus, result map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, domain.ActionRecord{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		ThreatID:    threatID,
		Action:      step.Action,
		Target:      step.Target,
		Status:      status,
		Result:      result,
		ExecutedAt:  e.now(),
		ExecutedBy:  "sentry-automation",
		Reversible:  true,
		RollbackRef: step.ID,
	})
}

// auditRollback appends the ROLLED_BACK record for a reversed step. The
// trail itself is never rewritten.
func (e *Engine) auditRollback(executionID, threatID string, step domain.StepResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, domain.ActionRecord{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		ThreatID:    threatID,
		Action:      step.Action,
		Target:      step.Target,
		Status:      domain.ActionRolledBack,
		Result:      step.Result,
		ExecutedAt:  e.now(),
		ExecutedBy:  "sentry-automation",
		Reversible:  true,
		RollbackRef: step.StepID,
	})
}

// Records returns a copy of the audit trail.
func (e *Engine) Records() []domain.ActionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ActionRecord, len(e.records))
	copy(out, e.records)
	return out
}

// requiredFailed reports whether any failed step was marked required.
func requiredFailed(steps []domain.RemediationStep, failed []domain.StepResult) bool {
	required := make(map[string]bool, len(steps))
	for _, s := range steps {
		required[s.ID] = s.Required
	}
	for _, f := range failed {
		if required[f.StepID] {
			return true
		}
	}
	return false
}

// PlaybookFor builds a playbook from an assessment's recommended actions,
// one step per action with descending priority, all required with
// rollback enabled.
func PlaybookFor(assessment domain.ThreatAssessment, target string) domain.RemediationPlaybook {
	playbook := domain.RemediationPlaybook{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("auto-%s", assessment.ThreatID),
		RiskLevel: assessment.RiskLevel,
		Timeout:   5 * time.Minute,
	}
	for i, action := range assessment.RemediationActions {
		playbook.Steps = append(playbook.Steps, domain.RemediationStep{
			ID:                fmt.Sprintf("%s-step-%d", assessment.ThreatID, i+1),
			Action:            action,
			Target:            target,
			Priority:          len(assessment.RemediationActions) - i,
			Required:          true,
			RollbackOnFailure: true,
		})
	}
	return playbook
}
