package remedy

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// The built-in executors manage in-process state tables standing in for
// the mesh control plane. Production deployments register adapters that
// talk to the real firewall, node manager, and tunnel supervisor.

// ─── Firewall ───────────────────────────────────────────────────────────────

// FirewallExecutor blocks and unblocks source IPs.
type FirewallExecutor struct {
	mu      sync.Mutex
	blocked map[string]time.Time
}

func (f *FirewallExecutor) Execute(_ context.Context, target string, params map[string]string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked == nil {
		f.blocked = make(map[string]time.Time)
	}
	f.blocked[target] = time.Now().UTC()

	result := map[string]string{"blocked_ip": target}
	if d, ok := params["duration"]; ok {
		result["duration"] = d
	}
	return result, nil
}

func (f *FirewallExecutor) Rollback(_ context.Context, result map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocked, result["blocked_ip"]) // absent entry is a no-op
	return nil
}

// Blocked reports whether an IP is currently blocked.
func (f *FirewallExecutor) Blocked(ip string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blocked[ip]
	return ok
}

// ─── Node Isolation ─────────────────────────────────────────────────────────

// IsolationExecutor quarantines nodes away from the mesh.
type IsolationExecutor struct {
	mu         sync.Mutex
	quarantine map[string]bool
}

func (q *IsolationExecutor) Execute(_ context.Context, target string, _ map[string]string) (map[string]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.quarantine == nil {
		q.quarantine = make(map[string]bool)
	}
	q.quarantine[target] = true
	return map[string]string{"quarantined_node": target}, nil
}

func (q *IsolationExecutor) Rollback(_ context.Context, result map[string]string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.quarantine, result["quarantined_node"])
	return nil
}

// Quarantined reports whether a node is currently isolated.
func (q *IsolationExecutor) Quarantined(node string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quarantine[node]
}

// ─── Tunnels ────────────────────────────────────────────────────────────────

// TunnelExecutor detaches mesh tunnels from the data plane.
type TunnelExecutor struct {
	mu       sync.Mutex
	isolated map[string]bool
}

func (t *TunnelExecutor) Execute(_ context.Context, target string, _ map[string]string) (map[string]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isolated == nil {
		t.isolated = make(map[string]bool)
	}
	t.isolated[target] = true
	return map[string]string{"isolated_tunnel": target}, nil
}

func (t *TunnelExecutor) Rollback(_ context.Context, result map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.isolated, result["isolated_tunnel"])
	return nil
}

// ─── Rate Limits ────────────────────────────────────────────────────────────

// RateLimitExecutor applies per-target traffic caps.
type RateLimitExecutor struct {
	mu     sync.Mutex
	limits map[string]string
}

func (r *RateLimitExecutor) Execute(_ context.Context, target string, params map[string]string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limits == nil {
		r.limits = make(map[string]string)
	}
	limit := params["limit"]
	if limit == "" {
		limit = "1mbps"
	}
	r.limits[target] = limit
	return map[string]string{"limited_target": target, "limit": limit}, nil
}

func (r *RateLimitExecutor) Rollback(_ context.Context, result map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limits, result["limited_target"])
	return nil
}

// Limit returns the active cap for a target, if any.
func (r *RateLimitExecutor) Limit(target string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit, ok := r.limits[target]
	return limit, ok
}

// ─── Deep Packet Inspection ─────────────────────────────────────────────────

// DPIExecutor toggles deep packet inspection on traffic segments.
type DPIExecutor struct {
	mu         sync.Mutex
	inspecting map[string]bool
}

func (d *DPIExecutor) Execute(_ context.Context, target string, _ map[string]string) (map[string]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inspecting == nil {
		d.inspecting = make(map[string]bool)
	}
	d.inspecting[target] = true
	return map[string]string{"inspection_target": target}, nil
}

func (d *DPIExecutor) Rollback(_ context.Context, result map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inspecting, result["inspection_target"])
	return nil
}

// Inspecting reports whether a segment is under deep inspection.
func (d *DPIExecutor) Inspecting(target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inspecting[target]
}

// ─── Credentials ────────────────────────────────────────────────────────────

// CredentialExecutor rotates credential sets per scope. Rollback restores
// the previous generation.
type CredentialExecutor struct {
	mu          sync.Mutex
	generations map[string]int
}

func (c *CredentialExecutor) Execute(_ context.Context, target string, _ map[string]string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations == nil {
		c.generations = make(map[string]int)
	}
	c.generations[target]++
	return map[string]string{
		"rotated_scope": target,
		"generation":    strconv.Itoa(c.generations[target]),
	}, nil
}

func (c *CredentialExecutor) Rollback(_ context.Context, result map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	scope := result["rotated_scope"]
	if c.generations[scope] > 0 {
		c.generations[scope]--
	}
	return nil
}

// Generation returns the current credential generation of a scope.
func (c *CredentialExecutor) Generation(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[scope]
}

// ─── Monitoring ─────────────────────────────────────────────────────────────

// MonitoringExecutor raises the monitoring level of a target.
type MonitoringExecutor struct {
	mu     sync.Mutex
	levels map[string]string
}

func (m *MonitoringExecutor) Execute(_ context.Context, target string, params map[string]string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[string]string)
	}
	level := params["level"]
	if level == "" {
		level = "enhanced"
	}
	m.levels[target] = level
	return map[string]string{"monitored_target": target, "level": level}, nil
}

func (m *MonitoringExecutor) Rollback(_ context.Context, result map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.levels, result["monitored_target"])
	return nil
}

// Level returns the active monitoring level for a target, if raised.
func (m *MonitoringExecutor) Level(target string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	level, ok := m.levels[target]
	return level, ok
}

// ─── Sessions ───────────────────────────────────────────────────────────────

// SessionExecutor forces session resets for a principal or node.
type SessionExecutor struct {
	mu    sync.Mutex
	reset map[string]time.Time
}

func (s *SessionExecutor) Execute(_ context.Context, target string, _ map[string]string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reset == nil {
		s.reset = make(map[string]time.Time)
	}
	s.reset[target] = time.Now().UTC()
	return map[string]string{"reset_target": target}, nil
}

func (s *SessionExecutor) Rollback(_ context.Context, result map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reset, result["reset_target"])
	return nil
}

// WasReset reports whether a target's sessions were reset.
func (s *SessionExecutor) WasReset(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reset[target]
	return ok
}

// ─── Services ───────────────────────────────────────────────────────────────

// ServiceExecutor disables and re-enables services.
type ServiceExecutor struct {
	mu       sync.Mutex
	disabled map[string]bool
}

func (s *ServiceExecutor) Execute(_ context.Context, target string, _ map[string]string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled == nil {
		s.disabled = make(map[string]bool)
	}
	s.disabled[target] = true
	return map[string]string{"disabled_service": target}, nil
}

func (s *ServiceExecutor) Rollback(_ context.Context, result map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disabled, result["disabled_service"])
	return nil
}

// Disabled reports whether a service is currently disabled.
func (s *ServiceExecutor) Disabled(service string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[service]
}

// ─── Evidence Capture ───────────────────────────────────────────────────────

// EvidenceExecutor snapshots forensic captures for a target.
type EvidenceExecutor struct {
	mu       sync.Mutex
	captures map[string]time.Time
}

func (e *EvidenceExecutor) Execute(_ context.Context, target string, _ map[string]string) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.captures == nil {
		e.captures = make(map[string]time.Time)
	}
	e.captures[target] = time.Now().UTC()
	return map[string]string{"capture_ref": target}, nil
}

func (e *EvidenceExecutor) Rollback(_ context.Context, result map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.captures, result["capture_ref"])
	return nil
}

// Captured reports whether a capture exists for a target.
func (e *EvidenceExecutor) Captured(target string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.captures[target]
	return ok
}
