package remedy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

// scriptedExecutor records calls and fails on demand.
type scriptedExecutor struct {
	executed   []string
	rolledBack []string
	failOn     map[string]bool
}

func (s *scriptedExecutor) Execute(_ context.Context, target string, _ map[string]string) (map[string]string, error) {
	if s.failOn[target] {
		return nil, errors.New("effect unavailable")
	}
	s.executed = append(s.executed, target)
	return map[string]string{"target": target}, nil
}

func (s *scriptedExecutor) Rollback(_ context.Context, result map[string]string) error {
	s.rolledBack = append(s.rolledBack, result["target"])
	return nil
}

func playbook(steps ...domain.RemediationStep) domain.RemediationPlaybook {
	return domain.RemediationPlaybook{ID: "pb-1", Name: "test", Steps: steps}
}

func step(id, target string, priority int, required, rollback bool) domain.RemediationStep {
	return domain.RemediationStep{
		ID:                id,
		Action:            domain.ActionBlockSourceIP,
		Target:            target,
		Priority:          priority,
		Required:          required,
		RollbackOnFailure: rollback,
	}
}

func TestRunCompletesInPriorityOrder(t *testing.T) {
	exec := &scriptedExecutor{}
	e := NewEngine()
	e.Register(domain.ActionBlockSourceIP, exec)

	result := e.Run(context.Background(), playbook(
		step("s1", "low", 1, true, false),
		step("s2", "high", 10, true, false),
		step("s3", "mid", 5, true, false),
	), "thr-1")

	if result.Status != domain.ActionCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Status)
	}
	want := []string{"high", "mid", "low"}
	if len(exec.executed) != 3 {
		t.Fatalf("executed %d steps, want 3", len(exec.executed))
	}
	for i, target := range want {
		if exec.executed[i] != target {
			t.Errorf("executed[%d] = %s, want %s", i, exec.executed[i], target)
		}
	}
	if result.TotalTime < 0 {
		t.Errorf("total time = %v", result.TotalTime)
	}
}

func TestRequiredFailureStopsRun(t *testing.T) {
	exec := &scriptedExecutor{failOn: map[string]bool{"second": true}}
	e := NewEngine()
	e.Register(domain.ActionBlockSourceIP, exec)

	result := e.Run(context.Background(), playbook(
		step("s1", "first", 3, true, false),
		step("s2", "second", 2, true, false),
		step("s3", "third", 1, true, false),
	), "thr-1")

	if result.Status != domain.ActionFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
	if len(exec.executed) != 1 || exec.executed[0] != "first" {
		t.Errorf("executed = %v, want only first", exec.executed)
	}
	if len(result.FailedSteps) != 1 || result.FailedSteps[0].StepID != "s2" {
		t.Errorf("failed steps = %+v, want s2", result.FailedSteps)
	}
}

func TestOptionalFailureContinues(t *testing.T) {
	exec := &scriptedExecutor{failOn: map[string]bool{"second": true}}
	e := NewEngine()
	e.Register(domain.ActionBlockSourceIP, exec)

	result := e.Run(context.Background(), playbook(
		step("s1", "first", 3, true, false),
		step("s2", "second", 2, false, false), // optional
		step("s3", "third", 1, true, false),
	), "thr-1")

	if result.Status != domain.ActionCompleted {
		t.Fatalf("status = %s, want COMPLETED with optional failure", result.Status)
	}
	if len(exec.executed) != 2 {
		t.Errorf("executed = %v, want first and third", exec.executed)
	}
}

func TestRollbackReversesCompletedSteps(t *testing.T) {
	exec := &scriptedExecutor{failOn: map[string]bool{"third": true}}
	e := NewEngine()
	e.Register(domain.ActionBlockSourceIP, exec)

	result := e.Run(context.Background(), playbook(
		step("s1", "first", 3, true, true),
		step("s2", "second", 2, true, true),
		step("s3", "third", 1, true, true),
	), "thr-1")

	if result.Status != domain.ActionRolledBack {
		t.Fatalf("status = %s, want ROLLED_BACK", result.Status)
	}
	want := []string{"second", "first"} // reverse completion order
	if len(exec.rolledBack) != 2 {
		t.Fatalf("rolled back %d steps, want 2", len(exec.rolledBack))
	}
	for i, target := range want {
		if exec.rolledBack[i] != target {
			t.Errorf("rolledBack[%d] = %s, want %s", i, exec.rolledBack[i], target)
		}
	}
	if len(result.RolledBackSteps) != 2 {
		t.Errorf("recorded rolled-back steps = %d, want 2", len(result.RolledBackSteps))
	}
}

func TestMissingExecutorFails(t *testing.T) {
	e := NewEngine()
	result := e.Run(context.Background(), playbook(domain.RemediationStep{
		ID:       "s1",
		Action:   domain.ActionKind("warp_reality"),
		Target:   "x",
		Required: true,
	}), "thr-1")

	if result.Status != domain.ActionFailed {
		t.Fatalf("status = %s, want FAILED for unknown action", result.Status)
	}
	if result.FailedSteps[0].Error != domain.ErrNoExecutor.Error() {
		t.Errorf("error = %q, want ErrNoExecutor", result.FailedSteps[0].Error)
	}
}

func TestStepTimeout(t *testing.T) {
	e := NewEngine()
	e.Register(domain.ActionBlockSourceIP, &hangingExecutor{})

	s := step("s1", "x", 1, true, false)
	s.Timeout = 10 * time.Millisecond
	result := e.Run(context.Background(), playbook(s), "thr-1")

	if result.Status != domain.ActionFailed {
		t.Fatalf("status = %s, want FAILED on timeout", result.Status)
	}
	if result.FailedSteps[0].Error != domain.ErrStepTimeout.Error() {
		t.Errorf("error = %q, want ErrStepTimeout", result.FailedSteps[0].Error)
	}
}

type hangingExecutor struct{}

func (h *hangingExecutor) Execute(ctx context.Context, _ string, _ map[string]string) (map[string]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *hangingExecutor) Rollback(context.Context, map[string]string) error { return nil }

func TestAuditTrailAppendsRollbackRecords(t *testing.T) {
	exec := &scriptedExecutor{failOn: map[string]bool{"bad": true}}
	e := NewEngine()
	e.Register(domain.ActionBlockSourceIP, exec)
	e.Register(domain.ActionQuarantineNode, exec)

	e.Run(context.Background(), domain.RemediationPlaybook{ID: "pb-1", Steps: []domain.RemediationStep{
		{ID: "s1", Action: domain.ActionBlockSourceIP, Target: "good", Priority: 2, Required: true, RollbackOnFailure: true},
		{ID: "s2", Action: domain.ActionQuarantineNode, Target: "bad", Priority: 1, Required: true, RollbackOnFailure: true},
	}}, "thr-9")

	records := e.Records()
	if len(records) != 3 {
		t.Fatalf("audit records = %d, want 3", len(records))
	}
	// The trail keeps the full history in order: the block completed, the
	// quarantine failed, then the block's reversal landed as its own row.
	want := []struct {
		action domain.ActionKind
		status domain.ActionStatus
	}{
		{domain.ActionBlockSourceIP, domain.ActionCompleted},
		{domain.ActionQuarantineNode, domain.ActionFailed},
		{domain.ActionBlockSourceIP, domain.ActionRolledBack},
	}
	for i, w := range want {
		if records[i].Action != w.action || records[i].Status != w.status {
			t.Errorf("record %d = %s/%s, want %s/%s",
				i, records[i].Action, records[i].Status, w.action, w.status)
		}
	}
	// The reversal references the original step and carries a fresh ID.
	if records[2].RollbackRef != "s1" {
		t.Errorf("rollback record references %q, want s1", records[2].RollbackRef)
	}
	if records[2].ID == records[0].ID {
		t.Error("rollback record reuses the completed record's ID")
	}
	for _, r := range records {
		if r.ThreatID != "thr-9" || r.ExecutionID == "" || r.ID == "" {
			t.Errorf("audit record incomplete: %+v", r)
		}
	}
}

func TestBuiltInExecutorsRoundTrip(t *testing.T) {
	fw := &FirewallExecutor{}
	out, err := fw.Execute(context.Background(), "203.0.113.7", map[string]string{"duration": "1h"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !fw.Blocked("203.0.113.7") {
		t.Fatal("IP not blocked after execute")
	}
	if err := fw.Rollback(context.Background(), out); err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	if fw.Blocked("203.0.113.7") {
		t.Fatal("IP still blocked after rollback")
	}
	// Rollback is idempotent.
	if err := fw.Rollback(context.Background(), out); err != nil {
		t.Fatalf("second Rollback() error: %v", err)
	}
}

func TestNewExecutorsRoundTrip(t *testing.T) {
	ctx := context.Background()

	dpi := &DPIExecutor{}
	out, err := dpi.Execute(ctx, "segment-a", nil)
	if err != nil || !dpi.Inspecting("segment-a") {
		t.Fatalf("dpi execute: err=%v inspecting=%v", err, dpi.Inspecting("segment-a"))
	}
	if err := dpi.Rollback(ctx, out); err != nil || dpi.Inspecting("segment-a") {
		t.Fatalf("dpi rollback: err=%v inspecting=%v", err, dpi.Inspecting("segment-a"))
	}

	cred := &CredentialExecutor{}
	out, err = cred.Execute(ctx, "node-7", nil)
	if err != nil || cred.Generation("node-7") != 1 {
		t.Fatalf("credential execute: err=%v gen=%d", err, cred.Generation("node-7"))
	}
	if out["generation"] != "1" {
		t.Errorf("generation result = %q, want 1", out["generation"])
	}
	if err := cred.Rollback(ctx, out); err != nil || cred.Generation("node-7") != 0 {
		t.Fatalf("credential rollback: err=%v gen=%d", err, cred.Generation("node-7"))
	}

	mon := &MonitoringExecutor{}
	out, err = mon.Execute(ctx, "node-7", nil)
	if err != nil {
		t.Fatalf("monitoring execute: %v", err)
	}
	if level, ok := mon.Level("node-7"); !ok || level != "enhanced" {
		t.Errorf("monitoring level = %q/%v, want enhanced", level, ok)
	}
	if err := mon.Rollback(ctx, out); err != nil {
		t.Fatalf("monitoring rollback: %v", err)
	}
	if _, ok := mon.Level("node-7"); ok {
		t.Error("monitoring level survives rollback")
	}

	svc := &ServiceExecutor{}
	out, err = svc.Execute(ctx, "sshd", nil)
	if err != nil || !svc.Disabled("sshd") {
		t.Fatalf("service execute: err=%v disabled=%v", err, svc.Disabled("sshd"))
	}
	if err := svc.Rollback(ctx, out); err != nil || svc.Disabled("sshd") {
		t.Fatalf("service rollback: err=%v disabled=%v", err, svc.Disabled("sshd"))
	}

	sess := &SessionExecutor{}
	out, err = sess.Execute(ctx, "user-3", nil)
	if err != nil || !sess.WasReset("user-3") {
		t.Fatalf("session execute: err=%v reset=%v", err, sess.WasReset("user-3"))
	}
	if err := sess.Rollback(ctx, out); err != nil || sess.WasReset("user-3") {
		t.Fatalf("session rollback: err=%v reset=%v", err, sess.WasReset("user-3"))
	}

	ev := &EvidenceExecutor{}
	out, err = ev.Execute(ctx, "node-9", nil)
	if err != nil || !ev.Captured("node-9") {
		t.Fatalf("evidence execute: err=%v captured=%v", err, ev.Captured("node-9"))
	}
	if err := ev.Rollback(ctx, out); err != nil || ev.Captured("node-9") {
		t.Fatalf("evidence rollback: err=%v captured=%v", err, ev.Captured("node-9"))
	}
}

func TestRecommendedActionsAllExecutable(t *testing.T) {
	// A critical assessment recommends the widest action set; every one
	// must resolve to a registered executor so the playbook completes
	// instead of rolling back on ErrNoExecutor.
	assessment := domain.ThreatAssessment{
		ThreatID:  "thr-42",
		RiskLevel: domain.RiskCritical,
		RemediationActions: []domain.ActionKind{
			domain.ActionBlockSourceIP,
			domain.ActionQuarantineNode,
			domain.ActionIsolateTunnel,
			domain.ActionApplyRateLimit,
			domain.ActionEnableDPI,
			domain.ActionRotateCredentials,
			domain.ActionIncreaseMonitoring,
			domain.ActionResetSession,
			domain.ActionDisableService,
			domain.ActionCollectEvidence,
		},
	}
	e := NewEngine()
	result := e.Run(context.Background(), PlaybookFor(assessment, "203.0.113.9"), "thr-42")

	if result.Status != domain.ActionCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Status)
	}
	if len(result.ExecutedSteps) != len(assessment.RemediationActions) {
		t.Fatalf("executed %d steps, want %d", len(result.ExecutedSteps), len(assessment.RemediationActions))
	}
	if len(result.FailedSteps) != 0 || len(result.RolledBackSteps) != 0 {
		t.Errorf("failed=%d rolledBack=%d, want none", len(result.FailedSteps), len(result.RolledBackSteps))
	}
}

func TestPlaybookFor(t *testing.T) {
	assessment := domain.ThreatAssessment{
		ThreatID:  "thr-5",
		RiskLevel: domain.RiskHigh,
		RemediationActions: []domain.ActionKind{
			domain.ActionBlockSourceIP,
			domain.ActionEnableDPI,
			domain.ActionQuarantineNode,
		},
	}
	pb := PlaybookFor(assessment, "203.0.113.7")
	if len(pb.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(pb.Steps))
	}
	for i, s := range pb.Steps {
		if s.Priority != 3-i {
			t.Errorf("step %d priority = %d, want %d", i, s.Priority, 3-i)
		}
		if !s.Required || !s.RollbackOnFailure {
			t.Errorf("step %d not required/rollbackable", i)
		}
		if s.ID != fmt.Sprintf("thr-5-step-%d", i+1) {
			t.Errorf("step ID = %s", s.ID)
		}
	}
}
