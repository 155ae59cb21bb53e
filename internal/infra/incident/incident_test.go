package incident

import (
	"errors"
	"testing"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

func testManager(t *testing.T, at *time.Time) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return *at }
	return NewManager(cfg)
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testManager(t, &at)

	first, err := m.Create("thr-1", "Port scan from 1.2.3.4", domain.Sev2, Context{})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	second, err := m.Create("thr-2", "DoS burst", domain.Sev1, Context{})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if first.ID != "INC-000001" || second.ID != "INC-000002" {
		t.Errorf("IDs = %s, %s, want INC-000001, INC-000002", first.ID, second.ID)
	}
	if first.Status != domain.IncidentDetected {
		t.Errorf("new incident status = %s, want DETECTED", first.Status)
	}
	if len(first.ResponseTeam) != 1 || first.ResponseTeam[0] != "incident-response" {
		t.Errorf("default response team = %v", first.ResponseTeam)
	}
	if m.ActiveCount() != 2 {
		t.Errorf("active count = %d, want 2", m.ActiveCount())
	}
}

func TestOneOpenIncidentPerThreat(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testManager(t, &at)

	if _, err := m.Create("thr-1", "first", domain.Sev3, Context{}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := m.Create("thr-1", "second", domain.Sev3, Context{}); !errors.Is(err, domain.ErrIncidentAlreadyActive) {
		t.Fatalf("duplicate threat Create() error = %v, want ErrIncidentAlreadyActive", err)
	}
}

func TestFindCoversActiveAndResolved(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testManager(t, &at)

	open, _ := m.Create("thr-1", "open", domain.Sev2, Context{})
	closed, _ := m.Create("thr-2", "closed", domain.Sev3, Context{})
	m.Transition(closed.ID, domain.IncidentResolved)
	m.Transition(closed.ID, domain.IncidentPostMortem)

	if got, ok := m.Find(open.ID); !ok || got.ID != open.ID {
		t.Errorf("Find(open) = %+v, %v", got, ok)
	}
	if got, ok := m.Find(closed.ID); !ok || got.Status != domain.IncidentPostMortem {
		t.Errorf("Find(resolved) = %+v, %v", got, ok)
	}
	// Get only covers open incidents; Find reaches the resolved ring.
	if _, ok := m.Get(closed.ID); ok {
		t.Error("Get() returned a resolved incident")
	}
	if _, ok := m.Find("INC-999999"); ok {
		t.Error("Find() matched a missing incident")
	}
}

func TestActiveCap(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.MaxActive = 2
	cfg.Now = func() time.Time { return at }
	m := NewManager(cfg)

	m.Create("thr-1", "a", domain.Sev4, Context{})
	m.Create("thr-2", "b", domain.Sev4, Context{})
	if _, err := m.Create("thr-3", "c", domain.Sev4, Context{}); !errors.Is(err, domain.ErrTooManyIncidents) {
		t.Fatalf("over-cap Create() error = %v, want ErrTooManyIncidents", err)
	}
}

func TestForwardOnlyTransitions(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testManager(t, &at)
	inc, _ := m.Create("thr-1", "t", domain.Sev2, Context{})

	// Skipping forward is legal.
	if err := m.Transition(inc.ID, domain.IncidentContained); err != nil {
		t.Fatalf("DETECTED → CONTAINED: %v", err)
	}
	// Moving backward is not.
	if err := m.Transition(inc.ID, domain.IncidentInvestigating); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("CONTAINED → INVESTIGATING error = %v, want ErrInvalidTransition", err)
	}
	// POST_MORTEM only from RESOLVED.
	if err := m.Transition(inc.ID, domain.IncidentPostMortem); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("CONTAINED → POST_MORTEM error = %v, want ErrInvalidTransition", err)
	}

	if err := m.Transition(inc.ID, domain.IncidentResolved); err != nil {
		t.Fatalf("→ RESOLVED: %v", err)
	}
	if err := m.Transition(inc.ID, domain.IncidentPostMortem); err != nil {
		t.Fatalf("RESOLVED → POST_MORTEM: %v", err)
	}

	// Post-mortem finalizes: incident leaves the active set and the
	// threat can open a new one.
	if _, ok := m.Get(inc.ID); ok {
		t.Error("finalized incident still active")
	}
	if _, err := m.Create("thr-1", "again", domain.Sev3, Context{}); err != nil {
		t.Errorf("Create() after finalize error: %v", err)
	}
}

func TestTransitionTimestampsAndMTTR(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testManager(t, &at)
	inc, _ := m.Create("thr-1", "t", domain.Sev1, Context{})

	at = at.Add(10 * time.Minute)
	m.Transition(inc.ID, domain.IncidentContained)
	if !inc.ContainedAt.Equal(at) {
		t.Errorf("ContainedAt = %v, want %v", inc.ContainedAt, at)
	}

	at = at.Add(20 * time.Minute)
	m.Transition(inc.ID, domain.IncidentResolved)
	if !inc.ResolvedAt.Equal(at) {
		t.Errorf("ResolvedAt = %v, want %v", inc.ResolvedAt, at)
	}

	stats := m.Stats()
	if stats.TotalResolved != 1 {
		t.Fatalf("resolved = %d, want 1", stats.TotalResolved)
	}
	if stats.AvgMTTR != 30*time.Minute {
		t.Errorf("avg MTTR = %v, want 30m", stats.AvgMTTR)
	}
}

func TestResolvedHistoryNewestFirst(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testManager(t, &at)

	for i := 0; i < 3; i++ {
		inc, _ := m.Create("thr-"+string(rune('a'+i)), "t", domain.Sev3, Context{})
		m.Transition(inc.ID, domain.IncidentResolved)
		m.Transition(inc.ID, domain.IncidentPostMortem)
	}

	recent := m.Resolved(2)
	if len(recent) != 2 {
		t.Fatalf("Resolved(2) = %d entries", len(recent))
	}
	if recent[0].ID != "INC-000003" || recent[1].ID != "INC-000002" {
		t.Errorf("history order = %s, %s", recent[0].ID, recent[1].ID)
	}
}

func TestAttachEvidenceAndActions(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testManager(t, &at)
	inc, _ := m.Create("thr-1", "t", domain.Sev2, Context{})

	if err := m.AttachEvidence(inc.ID, "ev-1", "ev-2"); err != nil {
		t.Fatalf("AttachEvidence() error: %v", err)
	}
	if err := m.AttachActions(inc.ID, "act-1"); err != nil {
		t.Fatalf("AttachActions() error: %v", err)
	}
	if len(inc.ForensicEvidence) != 2 || len(inc.RemediationActions) != 1 {
		t.Errorf("refs = %v / %v", inc.ForensicEvidence, inc.RemediationActions)
	}
	if err := m.AttachEvidence("INC-999999", "ev-x"); !errors.Is(err, domain.ErrIncidentNotFound) {
		t.Errorf("unknown incident error = %v, want ErrIncidentNotFound", err)
	}
}

func TestCollectorHashesEvidence(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewCollector(func() time.Time { return at })

	collected := c.Collect("INC-000001",
		[]string{"node-1", "node-2"},
		[]domain.ForensicType{domain.ForensicNetworkLogs, domain.ForensicProcessLogs})

	if len(collected) != 4 {
		t.Fatalf("collected = %d artifacts, want 4 (2 systems x 2 types)", len(collected))
	}
	for _, ev := range collected {
		if ev.Hash == "" {
			t.Errorf("evidence %s has no integrity hash", ev.ID)
		}
		if !c.Verify(ev.ID) {
			t.Errorf("evidence %s failed verification", ev.ID)
		}
	}
	if got := c.ForIncident("INC-000001"); len(got) != 4 {
		t.Errorf("ForIncident() = %d, want 4", len(got))
	}
}

func TestCollectorSkipsUnregisteredTypes(t *testing.T) {
	c := NewCollector(nil)
	collected := c.Collect("INC-000001", []string{"node-1"},
		[]domain.ForensicType{domain.ForensicFileHash}) // no built-in source
	if len(collected) != 0 {
		t.Errorf("collected = %d, want 0 for unregistered type", len(collected))
	}
}

func TestPlanResponseBySeverity(t *testing.T) {
	tests := []struct {
		severity       domain.IncidentSeverity
		wantPriorities int
		wantIsolation  bool
	}{
		{domain.Sev1, 4, true},
		{domain.Sev2, 3, true},
		{domain.Sev3, 2, false},
		{domain.Sev4, 2, false},
	}
	for _, tt := range tests {
		inc := &domain.Incident{ID: "INC-000001", Severity: tt.severity}
		plan := PlanResponse(inc, false)
		if len(plan.InvestigationPriorities) != tt.wantPriorities {
			t.Errorf("%s: priorities = %d, want %d",
				tt.severity, len(plan.InvestigationPriorities), tt.wantPriorities)
		}
		isolation := plan.ContainmentStrategy == "Isolate affected systems immediately, preserve evidence"
		if isolation != tt.wantIsolation {
			t.Errorf("%s: containment = %q", tt.severity, plan.ContainmentStrategy)
		}
	}

	exposed := PlanResponse(&domain.Incident{Severity: domain.Sev1}, true)
	if len(exposed.EvidencePriorities) != 2 || exposed.EvidencePriorities[0] != domain.ForensicFileHash {
		t.Errorf("data-exposure evidence priorities = %v", exposed.EvidencePriorities)
	}
}

func TestGeneratePostMortem(t *testing.T) {
	detected := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	inc := &domain.Incident{
		ID:              "INC-000007",
		Title:           "SSH brute force on gateway",
		Severity:        domain.Sev2,
		DetectedAt:      detected,
		CreatedAt:       detected,
		ContainedAt:     detected.Add(15 * time.Minute),
		ResolvedAt:      detected.Add(45 * time.Minute),
		AffectedSystems: []string{"gw-1", "gw-2"},
		AffectedUsers:   []string{"ops"},
		RootCause:       "Exposed management port",
		LessonsLearned:  []string{"Restrict management plane to mesh"},
	}
	evidence := []domain.ForensicEvidence{
		{Type: domain.ForensicNetworkLogs},
		{Type: domain.ForensicNetworkLogs},
		{Type: domain.ForensicSystemLogs},
	}

	pm := GeneratePostMortem(inc, evidence, detected.Add(time.Hour))
	if pm.Title != "Post-Mortem: SSH brute force on gateway" {
		t.Errorf("title = %q", pm.Title)
	}
	if len(pm.Timeline) != 4 {
		t.Fatalf("timeline = %d entries, want 4", len(pm.Timeline))
	}
	for i := 1; i < len(pm.Timeline); i++ {
		if pm.Timeline[i].Time.Before(pm.Timeline[i-1].Time) {
			t.Errorf("timeline out of order at %d", i)
		}
	}
	if pm.SystemsAffected != 2 || pm.UsersAffected != 1 {
		t.Errorf("impact = %d systems / %d users", pm.SystemsAffected, pm.UsersAffected)
	}
	if pm.EvidenceByType["network_logs"] != 2 || pm.EvidenceByType["system_logs"] != 1 {
		t.Errorf("evidence summary = %v", pm.EvidenceByType)
	}
	if pm.RootCause != "Exposed management port" {
		t.Errorf("root cause = %q", pm.RootCause)
	}
	// SEV2 adds the audit and zero-trust recommendations.
	if len(pm.Recommendations) != 5 {
		t.Errorf("recommendations = %d, want 5", len(pm.Recommendations))
	}
}

func TestPostMortemDefaultsWhenUnresolved(t *testing.T) {
	detected := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	inc := &domain.Incident{
		ID:         "INC-000008",
		Title:      "open incident",
		Severity:   domain.Sev3,
		DetectedAt: detected,
		CreatedAt:  detected,
	}
	pm := GeneratePostMortem(inc, nil, detected.Add(10*time.Minute))
	if pm.RootCause != "Under investigation" {
		t.Errorf("root cause = %q", pm.RootCause)
	}
	if len(pm.Recommendations) != 3 {
		t.Errorf("SEV3 recommendations = %d, want 3", len(pm.Recommendations))
	}
}
