package alerting

import (
	"testing"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

func assessment(level domain.RiskLevel, score, confidence float64) domain.ThreatAssessment {
	return domain.ThreatAssessment{
		ThreatID:   "thr-1",
		RiskScore:  score,
		RiskLevel:  level,
		Confidence: confidence,
	}
}

func signal(threatType, source string) domain.ThreatSignal {
	return domain.ThreatSignal{ThreatID: "thr-1", ThreatType: threatType, SourceIP: source}
}

func TestDefaultRouteByRiskLevel(t *testing.T) {
	r := NewRouter(nil, nil, nil, nil)

	tests := []struct {
		level     domain.RiskLevel
		wantTeams []string
		wantEscal domain.EscalationLevel
	}{
		{domain.RiskCritical, []string{"security-team", "incident-response"}, domain.EscalationCritical},
		{domain.RiskHigh, []string{"security-team"}, domain.EscalationUrgent},
		{domain.RiskMedium, []string{"security-team"}, domain.EscalationAlert},
		{domain.RiskLow, []string{"analysts"}, domain.EscalationWarning},
	}
	for _, tt := range tests {
		alert := r.Route(assessment(tt.level, 5, 0.9), signal("port_scan", "1.2.3.4"), nil)
		if alert.RouteName != "default" {
			t.Errorf("%s: route = %s, want default", tt.level, alert.RouteName)
		}
		if len(alert.AssignedTeams) != len(tt.wantTeams) {
			t.Errorf("%s: teams = %v, want %v", tt.level, alert.AssignedTeams, tt.wantTeams)
		}
		if alert.EscalationLevel != tt.wantEscal {
			t.Errorf("%s: escalation = %s, want %s", tt.level, alert.EscalationLevel, tt.wantEscal)
		}
		if len(alert.AssignedTeams) == 0 {
			t.Errorf("%s: assigned teams empty", tt.level)
		}
	}
}

func TestHighestPriorityRuleWins(t *testing.T) {
	routes := []domain.AlertRoute{
		{
			Name:       "catch-all",
			Priority:   1,
			Teams:      []string{"analysts"},
			Escalation: domain.EscalationInfo,
		},
		{
			Name:       "dos-emergency",
			Priority:   100,
			Condition:  domain.RouteCondition{ThreatTypes: []string{"dos_attack"}},
			Teams:      []string{"network-ops"},
			Escalation: domain.EscalationCritical,
		},
	}
	r := NewRouter(routes, nil, nil, nil)

	alert := r.Route(assessment(domain.RiskHigh, 8, 0.9), signal("dos_attack", "1.2.3.4"), nil)
	if alert.RouteName != "dos-emergency" {
		t.Fatalf("route = %s, want dos-emergency", alert.RouteName)
	}

	other := r.Route(assessment(domain.RiskHigh, 8, 0.9), signal("port_scan", "1.2.3.4"), nil)
	if other.RouteName != "catch-all" {
		t.Errorf("route = %s, want catch-all", other.RouteName)
	}
}

func TestConditionPredicates(t *testing.T) {
	tests := []struct {
		name string
		cond domain.RouteCondition
		a    domain.ThreatAssessment
		s    domain.ThreatSignal
		want bool
	}{
		{
			"empty condition matches anything",
			domain.RouteCondition{},
			assessment(domain.RiskLow, 2, 0.1), signal("x", "y"), true,
		},
		{
			"risk level set",
			domain.RouteCondition{RiskLevels: []domain.RiskLevel{domain.RiskHigh, domain.RiskCritical}},
			assessment(domain.RiskMedium, 5, 0.9), signal("x", "y"), false,
		},
		{
			"min score",
			domain.RouteCondition{MinRiskScore: 7},
			assessment(domain.RiskMedium, 6.5, 0.9), signal("x", "y"), false,
		},
		{
			"min confidence",
			domain.RouteCondition{MinConfidence: 0.8},
			assessment(domain.RiskHigh, 8, 0.85), signal("x", "y"), true,
		},
		{
			"source pattern substring",
			domain.RouteCondition{SourcePattern: "10.0."},
			assessment(domain.RiskHigh, 8, 0.9), signal("x", "10.0.0.7"), true,
		},
		{
			"source pattern mismatch",
			domain.RouteCondition{SourcePattern: "10.0."},
			assessment(domain.RiskHigh, 8, 0.9), signal("x", "203.0.113.9"), false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conditionMatches(tt.cond, tt.a, tt.s); got != tt.want {
				t.Errorf("conditionMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuppressedAlertSkipsNotifications(t *testing.T) {
	sup := NewSuppressor()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sup.now = func() time.Time { return at }
	r := NewRouter(nil, sup, nil, NewNotifier())

	first := r.Route(assessment(domain.RiskHigh, 8, 0.9), signal("port_scan", "1.2.3.4"), nil)
	if first.Suppressed {
		t.Fatal("first alert suppressed")
	}

	second := r.Route(assessment(domain.RiskHigh, 8, 0.9), signal("port_scan", "1.2.3.4"), nil)
	if !second.Suppressed {
		t.Fatal("repeat inside window not suppressed")
	}
	if len(second.Notifications) != 0 {
		t.Errorf("suppressed alert built %d notifications", len(second.Notifications))
	}
}

func TestNotificationFanOut(t *testing.T) {
	r := NewRouter(nil, nil, nil, NewNotifier())

	alert := r.Route(assessment(domain.RiskCritical, 9.5, 0.95), signal("dos_attack", "1.2.3.4"), nil)
	// CRITICAL escalation: 5 channels x 2 teams.
	if len(alert.Notifications) != 10 {
		t.Fatalf("notifications = %d, want 10", len(alert.Notifications))
	}

	channels := make(map[domain.NotificationChannel]bool)
	for _, n := range alert.Notifications {
		channels[n.Channel] = true
	}
	for _, want := range []domain.NotificationChannel{
		domain.ChannelDashboard, domain.ChannelEmail, domain.ChannelSlack,
		domain.ChannelPagerDuty, domain.ChannelSMS,
	} {
		if !channels[want] {
			t.Errorf("channel %s missing from fan-out", want)
		}
	}
}

func TestChannelsCumulative(t *testing.T) {
	tests := []struct {
		level domain.EscalationLevel
		want  int
	}{
		{domain.EscalationInfo, 1},
		{domain.EscalationWarning, 2},
		{domain.EscalationAlert, 3},
		{domain.EscalationUrgent, 4},
		{domain.EscalationCritical, 5},
	}
	for _, tt := range tests {
		if got := len(tt.level.Channels()); got != tt.want {
			t.Errorf("%s channels = %d, want %d", tt.level, got, tt.want)
		}
	}
}
