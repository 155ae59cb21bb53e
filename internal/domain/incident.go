package domain

import "time"

// ─── Incident Severity ──────────────────────────────────────────────────────

// IncidentSeverity is the SEV tier assigned at incident creation.
type IncidentSeverity int

const (
	Sev1 IncidentSeverity = iota // critical
	Sev2                         // high
	Sev3                         // medium
	Sev4                         // low
)

// String returns the severity as a human-readable string.
func (s IncidentSeverity) String() string {
	switch s {
	case Sev1:
		return "SEV1"
	case Sev2:
		return "SEV2"
	case Sev3:
		return "SEV3"
	case Sev4:
		return "SEV4"
	}
	return "UNKNOWN"
}

// ─── Incident Status ────────────────────────────────────────────────────────

// IncidentStatus is the forward-only lifecycle state of an incident.
// POST_MORTEM is reachable only from RESOLVED.
type IncidentStatus int

const (
	IncidentDetected IncidentStatus = iota
	IncidentInvestigating
	IncidentContained
	IncidentEradicated
	IncidentRecovering
	IncidentResolved
	IncidentPostMortem
)

// String returns the status as a human-readable string.
func (s IncidentStatus) String() string {
	switch s {
	case IncidentDetected:
		return "DETECTED"
	case IncidentInvestigating:
		return "INVESTIGATING"
	case IncidentContained:
		return "CONTAINED"
	case IncidentEradicated:
		return "ERADICATED"
	case IncidentRecovering:
		return "RECOVERING"
	case IncidentResolved:
		return "RESOLVED"
	case IncidentPostMortem:
		return "POST_MORTEM"
	}
	return "UNKNOWN"
}

// CanTransitionTo reports whether moving from s to next preserves the
// forward-only ordering.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	if next == IncidentPostMortem {
		return s == IncidentResolved
	}
	return next > s && next < IncidentPostMortem
}

// IsTerminal reports whether the incident has left the active set.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentResolved || s == IncidentPostMortem
}

// ─── Incidents ──────────────────────────────────────────────────────────────

// Incident tracks one security incident from detection through post-mortem.
type Incident struct {
	ID                  string           `json:"id"`
	ThreatID            string           `json:"threat_id"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Severity            IncidentSeverity `json:"severity"`
	Status              IncidentStatus   `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	DetectedAt          time.Time        `json:"detected_at"`
	ContainedAt         time.Time        `json:"contained_at,omitempty"`
	ResolvedAt          time.Time        `json:"resolved_at,omitempty"`
	AffectedSystems     []string         `json:"affected_systems,omitempty"`
	AffectedUsers       []string         `json:"affected_users,omitempty"`
	ResponseTeam        []string         `json:"response_team,omitempty"`
	ForensicEvidence    []string         `json:"forensic_evidence,omitempty"`   // evidence IDs
	RemediationActions  []string         `json:"remediation_actions,omitempty"` // action record IDs
	RootCause           string           `json:"root_cause,omitempty"`
	LessonsLearned      []string         `json:"lessons_learned,omitempty"`
}

// ─── Forensics ──────────────────────────────────────────────────────────────

// ForensicType is a category of collected evidence.
type ForensicType string

const (
	ForensicNetworkLogs     ForensicType = "network_logs"
	ForensicProcessLogs     ForensicType = "process_logs"
	ForensicFileHash        ForensicType = "file_hash"
	ForensicSystemLogs      ForensicType = "system_logs"
	ForensicApplicationLogs ForensicType = "application_logs"
)

// ForensicEvidence is one collected artifact with an integrity hash.
type ForensicEvidence struct {
	ID          string            `json:"id"`
	IncidentID  string            `json:"incident_id"`
	Type        ForensicType      `json:"type"`
	Source      string            `json:"source"`
	CollectedAt time.Time         `json:"collected_at"`
	Data        map[string]string `json:"data"`
	Hash        string            `json:"hash"` // sha256 over canonical data
	Description string            `json:"description"`
}

// ─── Response Planning & Post-Mortems ───────────────────────────────────────

// ResponsePlan prioritizes the investigation of one incident.
type ResponsePlan struct {
	IncidentID              string           `json:"incident_id"`
	Severity                IncidentSeverity `json:"severity"`
	InvestigationPriorities []string         `json:"investigation_priorities"`
	EvidencePriorities      []ForensicType   `json:"evidence_priorities"`
	ContainmentStrategy     string           `json:"containment_strategy"`
	RecoverySteps           []string         `json:"recovery_steps"`
}

// PostMortem is the generated closing report of a resolved incident.
type PostMortem struct {
	IncidentID       string            `json:"incident_id"`
	Title            string            `json:"title"`
	Severity         IncidentSeverity  `json:"severity"`
	CreatedAt        time.Time         `json:"created_at"`
	Timeline         []TimelineEntry   `json:"timeline"`
	ExecutiveSummary string            `json:"executive_summary"`
	RootCause        string            `json:"root_cause"`
	SystemsAffected  int               `json:"systems_affected"`
	UsersAffected    int               `json:"users_affected"`
	EvidenceByType   map[string]int    `json:"evidence_by_type,omitempty"`
	LessonsLearned   []string          `json:"lessons_learned,omitempty"`
	Recommendations  []string          `json:"recommendations"`
}

// TimelineEntry is one dated event in a post-mortem timeline.
type TimelineEntry struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
}
