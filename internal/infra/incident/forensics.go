package incident

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
)

// Source supplies raw forensic data for one evidence type from one
// system. Production deployments register adapters reaching the actual
// log stores; the built-ins return structural summaries.
type Source func(system string) map[string]string

// Collector gathers forensic evidence from affected systems and stamps
// each artifact with an integrity hash.
type Collector struct {
	mu       sync.RWMutex
	sources  map[domain.ForensicType]Source
	evidence map[string]domain.ForensicEvidence

	now ident.Clock
}

// NewCollector returns a Collector with the built-in sources registered.
func NewCollector(now ident.Clock) *Collector {
	if now == nil {
		now = ident.SystemClock
	}
	c := &Collector{
		sources:  make(map[domain.ForensicType]Source),
		evidence: make(map[string]domain.ForensicEvidence),
		now:      now,
	}
	c.RegisterSource(domain.ForensicNetworkLogs, networkLogSummary)
	c.RegisterSource(domain.ForensicProcessLogs, processLogSummary)
	c.RegisterSource(domain.ForensicSystemLogs, systemLogSummary)
	return c
}

// RegisterSource installs the data source for an evidence type.
func (c *Collector) RegisterSource(t domain.ForensicType, src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[t] = src
}

// Collect gathers the requested evidence types from every affected
// system. Types without a registered source are skipped.
func (c *Collector) Collect(incidentID string, systems []string, types []domain.ForensicType) []domain.ForensicEvidence {
	var collected []domain.ForensicEvidence
	for _, system := range systems {
		for _, t := range types {
			c.mu.RLock()
			src, ok := c.sources[t]
			c.mu.RUnlock()
			if !ok {
				continue
			}

			data := src(system)
			ev := domain.ForensicEvidence{
				ID:          uuid.NewString(),
				IncidentID:  incidentID,
				Type:        t,
				Source:      system,
				CollectedAt: c.now(),
				Data:        data,
				Hash:        ident.HashData(data),
				Description: fmt.Sprintf("%s from %s", t, system),
			}

			c.mu.Lock()
			c.evidence[ev.ID] = ev
			c.mu.Unlock()
			collected = append(collected, ev)
		}
	}
	return collected
}

// Evidence returns a collected artifact by ID.
func (c *Collector) Evidence(id string) (domain.ForensicEvidence, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.evidence[id]
	return ev, ok
}

// ForIncident returns every artifact collected for an incident.
func (c *Collector) ForIncident(incidentID string) []domain.ForensicEvidence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.ForensicEvidence
	for _, ev := range c.evidence {
		if ev.IncidentID == incidentID {
			out = append(out, ev)
		}
	}
	return out
}

// Verify recomputes the integrity hash of an artifact.
func (c *Collector) Verify(id string) bool {
	ev, ok := c.Evidence(id)
	if !ok {
		return false
	}
	return ident.HashData(ev.Data) == ev.Hash
}

// ─── Built-in Sources ───────────────────────────────────────────────────────

func networkLogSummary(system string) map[string]string {
	return map[string]string{
		"system":  system,
		"capture": "flow_summary",
		"scope":   "last_hour",
	}
}

func processLogSummary(system string) map[string]string {
	return map[string]string{
		"system":  system,
		"capture": "process_audit",
		"scope":   "last_hour",
	}
}

func systemLogSummary(system string) map[string]string {
	return map[string]string{
		"system":  system,
		"capture": "syslog",
		"scope":   "last_hour",
	}
}
