package domain

import "time"

// ─── Escalation Levels ──────────────────────────────────────────────────────

// EscalationLevel controls which notification channels an alert reaches.
type EscalationLevel int

const (
	EscalationInfo EscalationLevel = iota
	EscalationWarning
	EscalationAlert
	EscalationUrgent
	EscalationCritical
)

// String returns the escalation level as a human-readable string.
func (l EscalationLevel) String() string {
	switch l {
	case EscalationInfo:
		return "INFO"
	case EscalationWarning:
		return "WARNING"
	case EscalationAlert:
		return "ALERT"
	case EscalationUrgent:
		return "URGENT"
	case EscalationCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// Channels returns the cumulative notification channels for this level.
// Each level adds one channel on top of the previous.
func (l EscalationLevel) Channels() []NotificationChannel {
	channels := []NotificationChannel{ChannelDashboard}
	if l >= EscalationWarning {
		channels = append(channels, ChannelEmail)
	}
	if l >= EscalationAlert {
		channels = append(channels, ChannelSlack)
	}
	if l >= EscalationUrgent {
		channels = append(channels, ChannelPagerDuty)
	}
	if l >= EscalationCritical {
		channels = append(channels, ChannelSMS)
	}
	return channels
}

// ─── Notification Channels ──────────────────────────────────────────────────

// NotificationChannel names an outbound delivery channel. Delivery itself
// is an external adapter; the engine sees a send function only.
type NotificationChannel string

const (
	ChannelDashboard NotificationChannel = "dashboard"
	ChannelEmail     NotificationChannel = "email"
	ChannelSlack     NotificationChannel = "slack"
	ChannelPagerDuty NotificationChannel = "pagerduty"
	ChannelSMS       NotificationChannel = "sms"
	ChannelSyslog    NotificationChannel = "syslog"
)

// ─── Routing Rules ──────────────────────────────────────────────────────────

// RouteCondition is the match predicate of one routing rule. Zero-valued
// fields match anything.
type RouteCondition struct {
	RiskLevels    []RiskLevel `json:"risk_levels,omitempty"`
	MinRiskScore  float64     `json:"min_risk_score,omitempty"`
	MinConfidence float64     `json:"min_confidence,omitempty"`
	ThreatTypes   []string    `json:"threat_types,omitempty"`
	SourcePattern string      `json:"source_pattern,omitempty"` // substring match
}

// AlertRoute is one priority-ordered routing rule. Higher priority rules
// are evaluated first; the first match wins.
type AlertRoute struct {
	Name       string          `json:"name"`
	Priority   int             `json:"priority"`
	Condition  RouteCondition  `json:"condition"`
	Teams      []string        `json:"teams"`
	Escalation EscalationLevel `json:"escalation"`
}

// ─── Routed Alerts ──────────────────────────────────────────────────────────

// AlertNotification is one outbound message on one channel.
type AlertNotification struct {
	ID          string              `json:"id"`
	Channel     NotificationChannel `json:"channel"`
	Recipient   string              `json:"recipient"`
	Subject     string              `json:"subject"`
	Message     string              `json:"message"`
	Severity    RiskLevel           `json:"severity"`
	ActionItems []string            `json:"action_items,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// RoutedAlert is the routing decision for one assessment.
// AssignedTeams is non-empty by construction (the default map always applies).
type RoutedAlert struct {
	ThreatID        string              `json:"threat_id"`
	RouteName       string              `json:"route_name"`
	SeverityLevel   RiskLevel           `json:"severity_level"`
	EscalationLevel EscalationLevel     `json:"escalation_level"`
	AssignedTeams   []string            `json:"assigned_teams"`
	Notifications   []AlertNotification `json:"notifications,omitempty"`
	EnrichedContext map[string]string   `json:"enriched_context,omitempty"`
	Suppressed      bool                `json:"suppressed"`
	RoutedAt        time.Time           `json:"routed_at"`
}

// EscalationPolicy advances an open alert one level per elapsed step timeout.
type EscalationPolicy struct {
	RiskLevel     RiskLevel       `json:"risk_level"`
	StepTimeout   time.Duration   `json:"step_timeout"`
	MaxEscalation EscalationLevel `json:"max_escalation"`
}
