// Package workflow chains the threat-response stages: assess, route,
// optionally remediate, open an incident, publish the outcome. The
// orchestrator is the single source of truth for workflow status.
package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/bus"
	"github.com/sentrymesh/sentry/internal/infra/incident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
	"github.com/sentrymesh/sentry/internal/infra/remedy"
)

// ─── Stage Contracts ────────────────────────────────────────────────────────

// Assessor scores a threat signal.
type Assessor interface {
	Assess(signal domain.ThreatSignal) domain.ThreatAssessment
}

// AlertRouter routes an assessment to teams and channels.
type AlertRouter interface {
	Route(assessment domain.ThreatAssessment, signal domain.ThreatSignal, context map[string]string) domain.RoutedAlert
}

// Remediator executes a playbook against a threat.
type Remediator interface {
	Run(ctx context.Context, playbook domain.RemediationPlaybook, threatID string) domain.RemediationExecution
}

// IncidentOpener creates incidents and attaches evidence to them.
type IncidentOpener interface {
	Create(threatID, title string, severity domain.IncidentSeverity, ctx incident.Context) (*domain.Incident, error)
	AttachEvidence(incidentID string, evidenceIDs ...string) error
}

// EvidenceCollector gathers forensic artifacts from affected systems.
type EvidenceCollector interface {
	Collect(incidentID string, systems []string, types []domain.ForensicType) []domain.ForensicEvidence
}

// Publisher emits workflow lifecycle events.
type Publisher interface {
	Publish(topic string, payload any) string
}

const historyCap = 1000

// ─── Orchestrator ───────────────────────────────────────────────────────────

// Orchestrator runs threat-response workflows. Workflows proceed in
// parallel across goroutines; each execution's stages are strictly
// sequential.
type Orchestrator struct {
	assessor  Assessor
	router    AlertRouter
	remedier  Remediator
	incidents IncidentOpener
	publisher Publisher
	forensics EvidenceCollector

	mu      sync.Mutex
	history []domain.WorkflowExecution
	rIdx    int
	rFull   bool
	byID    map[string]int // execution ID → history slot

	now ident.Clock
}

// New wires an Orchestrator. All stages are required except the
// publisher, which may be nil.
func New(assessor Assessor, router AlertRouter, remedier Remediator, incidents IncidentOpener, publisher Publisher) *Orchestrator {
	return &Orchestrator{
		assessor:  assessor,
		router:    router,
		remedier:  remedier,
		incidents: incidents,
		publisher: publisher,
		history:   make([]domain.WorkflowExecution, historyCap),
		byID:      make(map[string]int),
		now:       ident.SystemClock,
	}
}

// SetForensics installs the evidence collector used after incident
// creation. Optional; without one the forensics stage is skipped.
func (o *Orchestrator) SetForensics(collector EvidenceCollector) {
	o.forensics = collector
}

// Respond drives the full response chain for one threat signal.
func (o *Orchestrator) Respond(ctx context.Context, signal domain.ThreatSignal) domain.WorkflowExecution {
	start := o.now()
	exec := domain.WorkflowExecution{
		ID:        uuid.NewString(),
		ThreatID:  signal.ThreatID,
		Status:    domain.WorkflowRunning,
		StartedAt: start,
	}

	o.publish(bus.TopicThreatDetected, signal)

	assessment := o.assessor.Assess(signal)
	exec.Assessment = &assessment
	exec.StepsExecuted = append(exec.StepsExecuted, "assess")

	alert := o.router.Route(assessment, signal, map[string]string{
		"workflow_id": exec.ID,
	})
	exec.Alert = &alert
	exec.StepsExecuted = append(exec.StepsExecuted, "route")

	// Remediation failure degrades the terminal status but never skips the
	// rest of the chain: the incident still opens and records the outcome.
	status := domain.WorkflowSuccess
	if assessment.ShouldAutoRemediate {
		playbook := remedy.PlaybookFor(assessment, signal.SourceIP)
		remediation := o.remedier.Run(ctx, playbook, signal.ThreatID)
		exec.Remediation = &remediation
		exec.StepsExecuted = append(exec.StepsExecuted, "remediate")

		switch remediation.Status {
		case domain.ActionCompleted:
		case domain.ActionRolledBack:
			// The engine already reversed the completed steps.
			exec.Error = "remediation rolled back"
			status = domain.WorkflowRolledBack
		default:
			exec.Error = fmt.Sprintf("remediation finished %s", remediation.Status)
			status = domain.WorkflowFailed
		}
	}

	description := fmt.Sprintf("%s detected with risk score %.1f", signal.ThreatType, assessment.RiskScore)
	if exec.Remediation != nil {
		description += fmt.Sprintf("; remediation %s", exec.Remediation.Status)
	}
	inc, err := o.incidents.Create(
		signal.ThreatID,
		fmt.Sprintf("%s threat from %s", assessment.RiskLevel, signal.SourceIP),
		assessment.RiskLevel.IncidentSeverity(),
		incident.Context{
			Description:     description,
			AffectedSystems: signal.TargetAssets,
			ResponseTeam:    alert.AssignedTeams,
		},
	)
	if err != nil {
		exec.Error = err.Error()
		return o.finish(exec, domain.WorkflowFailed, start)
	}
	exec.IncidentID = inc.ID
	exec.StepsExecuted = append(exec.StepsExecuted, "incident")
	o.publish(bus.TopicIncidentOpened, inc)

	if o.forensics != nil && len(signal.TargetAssets) > 0 {
		plan := incident.PlanResponse(inc, false)
		evidence := o.forensics.Collect(inc.ID, signal.TargetAssets, plan.EvidencePriorities)
		ids := make([]string, len(evidence))
		for i, ev := range evidence {
			ids[i] = ev.ID
		}
		if err := o.incidents.AttachEvidence(inc.ID, ids...); err != nil {
			log.Printf("[workflow] evidence attach for %s failed: %v", inc.ID, err)
		} else if len(ids) > 0 {
			exec.StepsExecuted = append(exec.StepsExecuted, "forensics")
		}
	}

	o.publish(bus.TopicAssessmentComplete, assessment)
	return o.finish(exec, status, start)
}

func (o *Orchestrator) publish(topic string, payload any) {
	if o.publisher != nil {
		o.publisher.Publish(topic, payload)
	}
}

// finish records the terminal status and archives the execution.
func (o *Orchestrator) finish(exec domain.WorkflowExecution, status domain.WorkflowStatus, start time.Time) domain.WorkflowExecution {
	exec.Status = status
	exec.CompletedAt = o.now()
	exec.Duration = exec.CompletedAt.Sub(start)
	if status != domain.WorkflowSuccess {
		log.Printf("[workflow] %s for threat %s finished %s: %s", exec.ID, exec.ThreatID, status, exec.Error)
	}
	metrics.WorkflowsCompleted.WithLabelValues(status.String()).Inc()
	metrics.WorkflowDuration.Observe(exec.Duration.Seconds())

	o.mu.Lock()
	defer o.mu.Unlock()
	o.history[o.rIdx] = exec
	o.byID[exec.ID] = o.rIdx
	o.rIdx++
	if o.rIdx >= historyCap {
		o.rIdx = 0
		o.rFull = true
	}
	return exec
}

// Get returns an archived execution by ID.
func (o *Orchestrator) Get(id string) (domain.WorkflowExecution, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot, ok := o.byID[id]
	if !ok {
		return domain.WorkflowExecution{}, false
	}
	exec := o.history[slot]
	if exec.ID != id { // slot overwritten by a newer workflow
		delete(o.byID, id)
		return domain.WorkflowExecution{}, false
	}
	return exec, true
}

// Recent returns the most recent executions, newest first.
func (o *Orchestrator) Recent(limit int) []domain.WorkflowExecution {
	o.mu.Lock()
	defer o.mu.Unlock()

	count := o.rIdx
	if o.rFull {
		count = historyCap
	}
	if limit > count {
		limit = count
	}
	if limit <= 0 {
		return nil
	}

	out := make([]domain.WorkflowExecution, limit)
	idx := o.rIdx
	for i := 0; i < limit; i++ {
		idx--
		if idx < 0 {
			idx = historyCap - 1
		}
		out[i] = o.history[idx]
	}
	return out
}
