// Package incident tracks security incidents from detection through
// post-mortem. Statuses move forward only; resolved incidents land in a
// bounded history ring with MTTR accounting.
package incident

import (
	"fmt"
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the incident manager.
type Config struct {
	// MaxActive caps concurrent open incidents to prevent cascading.
	MaxActive int

	// HistorySize bounds the resolved-incident ring.
	HistorySize int

	// Now is an injectable clock for testing.
	Now ident.Clock
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxActive:   100,
		HistorySize: 10_000,
		Now:         ident.SystemClock,
	}
}

// ─── Manager ────────────────────────────────────────────────────────────────

// Manager owns the incident lifecycle. Safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	cfg   Config
	idSeq int64

	active map[string]*domain.Incident // id → open incident

	// Resolved/post-mortem incidents, newest overwrite oldest.
	resolved []*domain.Incident
	rIdx     int
	rFull    bool

	// One open incident per threat.
	threatIncidents map[string]string

	totalMTTR   time.Duration
	resolvedCnt int64
}

// NewManager creates an incident manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 100
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10_000
	}
	if cfg.Now == nil {
		cfg.Now = ident.SystemClock
	}
	return &Manager{
		cfg:             cfg,
		active:          make(map[string]*domain.Incident),
		resolved:        make([]*domain.Incident, cfg.HistorySize),
		threatIncidents: make(map[string]string),
	}
}

// ─── Creation ───────────────────────────────────────────────────────────────

// Context carries the optional creation-time detail of an incident.
type Context struct {
	Description     string
	AffectedSystems []string
	AffectedUsers   []string
	ResponseTeam    []string
}

// Create opens an incident for a threat. A threat can hold at most one
// open incident at a time.
func (m *Manager) Create(threatID, title string, severity domain.IncidentSeverity, ctx Context) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.threatIncidents[threatID]; ok {
		if _, found := m.active[existingID]; found {
			return nil, domain.ErrIncidentAlreadyActive
		}
	}
	if len(m.active) >= m.cfg.MaxActive {
		return nil, domain.ErrTooManyIncidents
	}

	now := m.cfg.Now()
	m.idSeq++

	team := ctx.ResponseTeam
	if len(team) == 0 {
		team = []string{"incident-response"}
	}

	inc := &domain.Incident{
		ID:              fmt.Sprintf("INC-%06d", m.idSeq),
		ThreatID:        threatID,
		Title:           title,
		Description:     ctx.Description,
		Severity:        severity,
		Status:          domain.IncidentDetected,
		CreatedAt:       now,
		DetectedAt:      now,
		AffectedSystems: ctx.AffectedSystems,
		AffectedUsers:   ctx.AffectedUsers,
		ResponseTeam:    team,
	}

	m.active[inc.ID] = inc
	m.threatIncidents[threatID] = inc.ID
	metrics.IncidentsOpen.Inc()
	return inc, nil
}

// ─── Transitions ────────────────────────────────────────────────────────────

// Transition advances an incident to the next status. Only forward moves
// are allowed; POST_MORTEM is reachable only from RESOLVED.
func (m *Manager) Transition(incidentID string, next domain.IncidentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.active[incidentID]
	if !ok {
		return domain.ErrIncidentNotFound
	}
	if !inc.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", domain.ErrInvalidTransition, inc.Status, next)
	}

	now := m.cfg.Now()
	inc.Status = next
	switch next {
	case domain.IncidentContained:
		inc.ContainedAt = now
	case domain.IncidentResolved:
		inc.ResolvedAt = now
		m.totalMTTR += now.Sub(inc.DetectedAt)
		m.resolvedCnt++
	case domain.IncidentPostMortem:
		m.finalizeLocked(inc)
	}
	return nil
}

// finalizeLocked moves an incident out of the active set. Lock held.
func (m *Manager) finalizeLocked(inc *domain.Incident) {
	delete(m.active, inc.ID)
	delete(m.threatIncidents, inc.ThreatID)
	metrics.IncidentsOpen.Dec()

	m.resolved[m.rIdx] = inc
	m.rIdx++
	if m.rIdx >= len(m.resolved) {
		m.rIdx = 0
		m.rFull = true
	}
}

// ─── Enrichment ─────────────────────────────────────────────────────────────

// AttachEvidence links collected forensic evidence to an incident.
func (m *Manager) AttachEvidence(incidentID string, evidenceIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.active[incidentID]
	if !ok {
		return domain.ErrIncidentNotFound
	}
	inc.ForensicEvidence = append(inc.ForensicEvidence, evidenceIDs...)
	return nil
}

// AttachActions links remediation action records to an incident.
func (m *Manager) AttachActions(incidentID string, actionIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.active[incidentID]
	if !ok {
		return domain.ErrIncidentNotFound
	}
	inc.RemediationActions = append(inc.RemediationActions, actionIDs...)
	return nil
}

// SetRootCause records the root cause and lessons learned, usually during
// RECOVERING or RESOLVED.
func (m *Manager) SetRootCause(incidentID, rootCause string, lessons ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.active[incidentID]
	if !ok {
		return domain.ErrIncidentNotFound
	}
	inc.RootCause = rootCause
	inc.LessonsLearned = append(inc.LessonsLearned, lessons...)
	return nil
}

// ─── Inspection ─────────────────────────────────────────────────────────────

// Get returns an open incident by ID.
func (m *Manager) Get(id string) (*domain.Incident, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.active[id]
	return inc, ok
}

// Find returns an incident by ID, open or resolved.
func (m *Manager) Find(id string) (*domain.Incident, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inc, ok := m.active[id]; ok {
		return inc, true
	}
	count := m.rIdx
	if m.rFull {
		count = len(m.resolved)
	}
	for i := 0; i < count; i++ {
		if inc := m.resolved[i]; inc != nil && inc.ID == id {
			return inc, true
		}
	}
	return nil, false
}

// Active returns every open incident.
func (m *Manager) Active() []*domain.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Incident, 0, len(m.active))
	for _, inc := range m.active {
		out = append(out, inc)
	}
	return out
}

// ActiveCount returns the number of open incidents.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Resolved returns the most recent closed incidents, newest first.
func (m *Manager) Resolved(limit int) []*domain.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := m.rIdx
	if m.rFull {
		count = len(m.resolved)
	}
	if limit > count {
		limit = count
	}
	if limit <= 0 {
		return nil
	}

	out := make([]*domain.Incident, limit)
	idx := m.rIdx
	for i := 0; i < limit; i++ {
		idx--
		if idx < 0 {
			idx = len(m.resolved) - 1
		}
		out[i] = m.resolved[idx]
	}
	return out
}

// ─── Statistics ─────────────────────────────────────────────────────────────

// Stats summarizes incident-response performance.
type Stats struct {
	Active        int           `json:"active"`
	TotalResolved int64         `json:"total_resolved"`
	AvgMTTR       time.Duration `json:"avg_mttr"`
}

// Stats returns current lifecycle statistics. MTTR measures detection to
// resolution.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avg time.Duration
	if m.resolvedCnt > 0 {
		avg = m.totalMTTR / time.Duration(m.resolvedCnt)
	}
	return Stats{
		Active:        len(m.active),
		TotalResolved: m.resolvedCnt,
		AvgMTTR:       avg,
	}
}
