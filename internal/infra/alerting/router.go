// Package alerting routes assessed threats to teams and notification
// channels: priority-ordered routing rules with a severity-based default,
// a suppression filter for duplicate and flapping alerts, timed escalation,
// and channel fan-out behind a send-function contract.
package alerting

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

// Router matches assessments against routing rules. Safe for concurrent
// use; rules are fixed at construction.
type Router struct {
	routes   []domain.AlertRoute // sorted by priority desc
	suppress *Suppressor
	escalate *Escalator
	notifier *Notifier

	now ident.Clock
}

// NewRouter returns a Router over the given rules. The rules are copied
// and sorted by priority descending.
func NewRouter(routes []domain.AlertRoute, suppress *Suppressor, escalate *Escalator, notifier *Notifier) *Router {
	sorted := make([]domain.AlertRoute, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Priority > sorted[b].Priority
	})
	return &Router{
		routes:   sorted,
		suppress: suppress,
		escalate: escalate,
		notifier: notifier,
		now:      ident.SystemClock,
	}
}

// Route decides teams, escalation level, and notifications for one
// assessment. Suppressed alerts return with Suppressed set and no
// notifications.
func (r *Router) Route(assessment domain.ThreatAssessment, signal domain.ThreatSignal, context map[string]string) domain.RoutedAlert {
	now := r.now()
	alert := domain.RoutedAlert{
		ThreatID:        assessment.ThreatID,
		SeverityLevel:   assessment.RiskLevel,
		EnrichedContext: context,
		RoutedAt:        now,
	}

	if r.suppress != nil {
		if reason, suppressed := r.suppress.Check(assessment.ThreatID, signal.ThreatType, signal.SourceIP); suppressed {
			alert.Suppressed = true
			alert.RouteName = "suppressed"
			alert.AssignedTeams = []string{"none"}
			metrics.AlertsSuppressed.WithLabelValues(reason).Inc()
			return alert
		}
	}

	route, matched := r.match(assessment, signal)
	if matched {
		alert.RouteName = route.Name
		alert.AssignedTeams = route.Teams
		alert.EscalationLevel = route.Escalation
	} else {
		alert.RouteName = "default"
		alert.AssignedTeams, alert.EscalationLevel = defaultRoute(assessment.RiskLevel)
	}

	if r.escalate != nil {
		r.escalate.Open(assessment.ThreatID, assessment.RiskLevel, alert.EscalationLevel)
	}
	if r.notifier != nil {
		alert.Notifications = r.notifier.Build(alert, assessment)
	}

	metrics.AlertsRouted.WithLabelValues(alert.EscalationLevel.String()).Inc()
	return alert
}

// match finds the highest-priority rule whose condition accepts the
// assessment.
func (r *Router) match(assessment domain.ThreatAssessment, signal domain.ThreatSignal) (domain.AlertRoute, bool) {
	for _, route := range r.routes {
		if conditionMatches(route.Condition, assessment, signal) {
			return route, true
		}
	}
	return domain.AlertRoute{}, false
}

// conditionMatches applies the predicate; zero-valued fields accept
// anything.
func conditionMatches(c domain.RouteCondition, assessment domain.ThreatAssessment, signal domain.ThreatSignal) bool {
	if len(c.RiskLevels) > 0 {
		found := false
		for _, l := range c.RiskLevels {
			if l == assessment.RiskLevel {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.MinRiskScore > 0 && assessment.RiskScore < c.MinRiskScore {
		return false
	}
	if c.MinConfidence > 0 && assessment.Confidence < c.MinConfidence {
		return false
	}
	if len(c.ThreatTypes) > 0 {
		found := false
		for _, t := range c.ThreatTypes {
			if t == signal.ThreatType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.SourcePattern != "" && !strings.Contains(signal.SourceIP, c.SourcePattern) {
		return false
	}
	return true
}

// defaultRoute is the severity fallback when no rule matches.
func defaultRoute(level domain.RiskLevel) ([]string, domain.EscalationLevel) {
	switch level {
	case domain.RiskCritical:
		return []string{"security-team", "incident-response"}, domain.EscalationCritical
	case domain.RiskHigh:
		return []string{"security-team"}, domain.EscalationUrgent
	case domain.RiskMedium:
		return []string{"security-team"}, domain.EscalationAlert
	default:
		return []string{"analysts"}, domain.EscalationWarning
	}
}

// ─── Notifier ───────────────────────────────────────────────────────────────

// Notifier builds the per-channel notifications for a routed alert.
// Delivery happens through per-channel send functions; a missing channel
// function means the notification is built but held for the dashboard.
type Notifier struct {
	mu      sync.Mutex
	sends   map[domain.NotificationChannel]SendFunc
	timeout time.Duration
	now     ident.Clock
	gen     *ident.Generator
}

// NewNotifier returns a Notifier with no delivery functions registered.
func NewNotifier() *Notifier {
	return &Notifier{
		sends:   make(map[domain.NotificationChannel]SendFunc),
		timeout: DefaultSendTimeout,
		now:     ident.SystemClock,
		gen:     ident.NewGenerator(nil),
	}
}

// Register installs the delivery function for one channel.
func (n *Notifier) Register(channel domain.NotificationChannel, send SendFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends[channel] = send
}

// SetSendTimeout overrides the per-delivery timeout.
func (n *Notifier) SetSendTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timeout = d
}

// Build creates one notification per channel of the alert's escalation
// level, for each assigned team, and dispatches them asynchronously.
func (n *Notifier) Build(alert domain.RoutedAlert, assessment domain.ThreatAssessment) []domain.AlertNotification {
	now := n.now()
	var out []domain.AlertNotification
	for _, channel := range alert.EscalationLevel.Channels() {
		for _, team := range alert.AssignedTeams {
			notification := domain.AlertNotification{
				ID:        uuid.NewString(),
				Channel:   channel,
				Recipient: team,
				Subject: fmt.Sprintf("[%s] %s threat %s",
					alert.EscalationLevel, alert.SeverityLevel, alert.ThreatID),
				Message: fmt.Sprintf("risk %.1f/10, confidence %.0f%%",
					assessment.RiskScore, assessment.Confidence*100),
				Severity:  alert.SeverityLevel,
				CreatedAt: now,
			}
			for _, a := range assessment.RemediationActions {
				notification.ActionItems = append(notification.ActionItems, string(a))
			}
			out = append(out, notification)
			n.dispatch(notification)
		}
	}
	return out
}

func (n *Notifier) dispatch(notification domain.AlertNotification) {
	n.mu.Lock()
	send, ok := n.sends[notification.Channel]
	timeout := n.timeout
	n.mu.Unlock()
	if !ok {
		return
	}
	go deliver(send, notification, timeout)
}
