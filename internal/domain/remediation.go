package domain

import "time"

// ─── Action Kinds ───────────────────────────────────────────────────────────

// ActionKind names a reversible remediation action. The underlying effect
// lives behind an executor adapter; the engine requires only that rollback
// be idempotent given the original execute result.
type ActionKind string

const (
	ActionBlockSourceIP      ActionKind = "block_source_ip"
	ActionQuarantineNode     ActionKind = "quarantine_node"
	ActionIsolateTunnel      ActionKind = "isolate_tunnel"
	ActionApplyRateLimit     ActionKind = "apply_rate_limit"
	ActionResetSession       ActionKind = "reset_session"
	ActionEnableDPI          ActionKind = "enable_deep_inspection"
	ActionRotateCredentials  ActionKind = "rotate_credentials"
	ActionDisableService     ActionKind = "disable_service"
	ActionIncreaseMonitoring ActionKind = "increase_monitoring"
	ActionCollectEvidence    ActionKind = "collect_evidence"
)

// ─── Execution Status ───────────────────────────────────────────────────────

// ActionStatus is the lifecycle state of a step or a whole execution.
type ActionStatus int

const (
	ActionPending ActionStatus = iota
	ActionExecuting
	ActionCompleted
	ActionFailed
	ActionRolledBack
)

// String returns the status as a human-readable string.
func (s ActionStatus) String() string {
	switch s {
	case ActionPending:
		return "PENDING"
	case ActionExecuting:
		return "EXECUTING"
	case ActionCompleted:
		return "COMPLETED"
	case ActionFailed:
		return "FAILED"
	case ActionRolledBack:
		return "ROLLED_BACK"
	}
	return "UNKNOWN"
}

// IsTerminal reports whether no further transitions are possible.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionCompleted || s == ActionFailed || s == ActionRolledBack
}

// ─── Playbooks ──────────────────────────────────────────────────────────────

// RemediationStep is one prioritized, reversible action in a playbook.
type RemediationStep struct {
	ID                string            `json:"id"`
	Action            ActionKind        `json:"action"`
	Target            string            `json:"target"` // IP, node, service
	Parameters        map[string]string `json:"parameters,omitempty"`
	Priority          int               `json:"priority"` // higher runs first
	Required          bool              `json:"required"`
	RollbackOnFailure bool              `json:"rollback_on_failure"`
	Timeout           time.Duration     `json:"timeout,omitempty"` // 0 = default
}

// RemediationPlaybook is an ordered sequence of steps for one threat type.
type RemediationPlaybook struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	ThreatType string            `json:"threat_type"`
	RiskLevel  RiskLevel         `json:"risk_level"`
	Steps      []RemediationStep `json:"steps"`
	Timeout    time.Duration     `json:"timeout"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ─── Executions & Audit ─────────────────────────────────────────────────────

// StepResult records the outcome of one executed step, kept so rollback
// can be driven in reverse completion order.
type StepResult struct {
	StepID    string            `json:"step_id"`
	Action    ActionKind        `json:"action"`
	Target    string            `json:"target"`
	Result    map[string]string `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// RemediationExecution is the record of one playbook run against a threat.
type RemediationExecution struct {
	ID              string        `json:"id"`
	PlaybookID      string        `json:"playbook_id"`
	ThreatID        string        `json:"threat_id"`
	Status          ActionStatus  `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at,omitempty"`
	ExecutedSteps   []StepResult  `json:"executed_steps,omitempty"`
	FailedSteps     []StepResult  `json:"failed_steps,omitempty"`
	RolledBackSteps []StepResult  `json:"rolled_back_steps,omitempty"`
	TotalTime       time.Duration `json:"total_time"`
}

// ActionRecord is one append-only audit row. Never updated in place except
// for the rollback transition of its status.
type ActionRecord struct {
	ID          string            `json:"id"`
	ExecutionID string            `json:"execution_id"`
	ThreatID    string            `json:"threat_id"`
	Action      ActionKind        `json:"action"`
	Target      string            `json:"target"`
	Status      ActionStatus      `json:"status"`
	Result      map[string]string `json:"result,omitempty"`
	ExecutedAt  time.Time         `json:"executed_at"`
	ExecutedBy  string            `json:"executed_by"`
	Reversible  bool              `json:"reversible"`
	RollbackRef string            `json:"rollback_ref,omitempty"`
}
