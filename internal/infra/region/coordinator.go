// Package region coordinates workflow execution and state replication
// across the fleet's geographic regions: logical-clock replication with
// last-writer-wins conflict resolution, scripted failover to backup
// regions, and capacity-weighted load distribution.
package region

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

// Executor runs one workload in one region. External adapter; a call
// may block until the region acknowledges.
type Executor func(ctx context.Context, region domain.RegionID, workload *domain.Workload) error

// DefaultRegions returns the standard three-region fleet layout.
func DefaultRegions() []domain.RegionConfig {
	return []domain.RegionConfig{
		{ID: domain.RegionUSEast, Name: "US East", PrimaryDatacenter: "use1-a", LatencyBudgetMs: 50, Active: true, Priority: 1},
		{ID: domain.RegionEUWest, Name: "EU West", PrimaryDatacenter: "euw1-a", LatencyBudgetMs: 80, Active: true, Priority: 2},
		{ID: domain.RegionAPSoutheast, Name: "AP Southeast", PrimaryDatacenter: "apse1-a", LatencyBudgetMs: 120, Active: true, Priority: 3},
	}
}

// DefaultBackupCount is how many backup regions a failover targets.
const DefaultBackupCount = 2

// Coordinator owns the multi-region control plane. Safe for concurrent
// use; executor and replicator calls run outside the lock.
type Coordinator struct {
	mu           sync.RWMutex
	regions      map[domain.RegionID]domain.RegionConfig
	metrics      map[domain.RegionID]domain.RegionMetrics
	workloads    map[string]*domain.Workload
	failovers    []domain.FailoverPlan
	distribution domain.LoadDistribution
	backupCount  int

	state    *StateLog
	executor Executor
	now      ident.Clock
}

// NewCoordinator wires a Coordinator over the given regions. A nil
// executor acknowledges every region immediately (in-process mode).
func NewCoordinator(regions []domain.RegionConfig, state *StateLog, executor Executor) *Coordinator {
	if len(regions) == 0 {
		regions = DefaultRegions()
	}
	if state == nil {
		state = NewStateLog(nil, 0)
	}
	byID := make(map[domain.RegionID]domain.RegionConfig, len(regions))
	for _, r := range regions {
		byID[r.ID] = r
	}
	return &Coordinator{
		regions:     byID,
		metrics:     make(map[domain.RegionID]domain.RegionMetrics),
		workloads:   make(map[string]*domain.Workload),
		backupCount: DefaultBackupCount,
		state:       state,
		executor:    executor,
		now:         ident.SystemClock,
	}
}

// SetBackupCount overrides how many backup regions failover targets.
func (c *Coordinator) SetBackupCount(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backupCount = n
}

// StateLog exposes the replication log.
func (c *Coordinator) StateLog() *StateLog { return c.state }

// ─── Coordinated Execution ──────────────────────────────────────────────────

// Execute runs a workload across the named regions in parallel. Each
// successful region stores a replica copy of the workload state. A
// partial failure triggers failover away from the first failed region.
func (c *Coordinator) Execute(ctx context.Context, workload *domain.Workload, regions []domain.RegionID) domain.CoordinationResult {
	start := c.now()
	if len(regions) == 0 {
		regions = c.regionIDs()
	}
	if workload.Replicas == nil {
		workload.Replicas = make(map[domain.RegionID]map[string]string)
	}

	c.mu.Lock()
	c.workloads[workload.ID] = workload
	c.mu.Unlock()

	var wg sync.WaitGroup
	var resMu sync.Mutex
	var executed, failed []domain.RegionID
	for _, id := range regions {
		wg.Add(1)
		go func(id domain.RegionID) {
			defer wg.Done()
			err := c.executeIn(ctx, id, workload)
			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				log.Printf("[region] workload %s failed in %s: %v", workload.ID, id, err)
				failed = append(failed, id)
				return
			}
			executed = append(executed, id)
		}(id)
	}
	wg.Wait()

	result := domain.CoordinationResult{
		WorkflowID:          workload.ID,
		Status:              "success",
		ExecutedRegions:     executed,
		FailedRegions:       failed,
		ConsistencyAchieved: true,
	}
	if len(failed) > 0 {
		result.Status = "partial"
		if len(executed) == 0 {
			result.Status = "failed"
		}
		if _, _, err := c.Failover(failed[0]); err == nil {
			result.FailoverTriggered = true
		}
	}
	result.ExecutionTime = c.now().Sub(start)
	result.CoordinationOverhead = result.ExecutionTime / 10
	return result
}

// executeIn runs the workload in one region and records the replica.
func (c *Coordinator) executeIn(ctx context.Context, id domain.RegionID, workload *domain.Workload) error {
	c.mu.RLock()
	cfg, known := c.regions[id]
	c.mu.RUnlock()
	if !known {
		return domain.ErrRegionUnknown
	}
	if !cfg.Active {
		return domain.ErrRegionUnavailable
	}

	if c.executor != nil {
		if err := c.executor(ctx, id, workload); err != nil {
			return err
		}
	}

	replica := make(map[string]string, len(workload.State))
	for k, v := range workload.State {
		replica[k] = v
	}
	c.mu.Lock()
	workload.Replicas[id] = replica
	c.mu.Unlock()
	return nil
}

// ReplicateState replicates a workload state mutation to every region
// holding a replica, then applies it locally.
func (c *Coordinator) ReplicateState(ctx context.Context, workloadID string, newState map[string]string) (map[domain.RegionID]bool, error) {
	c.mu.RLock()
	workload, ok := c.workloads[workloadID]
	c.mu.RUnlock()
	if !ok {
		return nil, domain.ErrWorkloadNotFound
	}
	if _, hasPrimary := workload.Replicas[workload.PrimaryRegion]; !hasPrimary {
		return nil, domain.ErrMissingPrimary
	}

	targets := make([]domain.RegionConfig, 0, len(workload.Replicas))
	c.mu.RLock()
	for id := range workload.Replicas {
		if cfg, known := c.regions[id]; known {
			targets = append(targets, cfg)
		}
	}
	c.mu.RUnlock()

	status := c.state.Replicate(ctx, workloadID, workload.State, newState, targets)

	c.mu.Lock()
	workload.State = newState
	for id, ok := range status {
		if ok {
			replica := make(map[string]string, len(newState))
			for k, v := range newState {
				replica[k] = v
			}
			workload.Replicas[id] = replica
		}
	}
	c.mu.Unlock()
	return status, nil
}

// ─── Region Health & Failover ───────────────────────────────────────────────

// UpdateMetrics ingests fresh per-region metrics, recomputes the load
// distribution from the merged view, and triggers failover for any
// region reporting UNAVAILABLE with active workloads.
func (c *Coordinator) UpdateMetrics(snapshots map[domain.RegionID]domain.RegionMetrics) []domain.FailoverPlan {
	var plans []domain.FailoverPlan
	for id, m := range snapshots {
		c.mu.Lock()
		c.metrics[id] = m
		affected := c.workloadsInLocked(id)
		c.mu.Unlock()

		if m.Health == domain.RegionUnavailable && len(affected) > 0 {
			if plan, _, err := c.Failover(id); err == nil {
				plans = append(plans, plan)
			}
		}
	}

	c.mu.Lock()
	merged := make(map[domain.RegionID]domain.RegionMetrics, len(c.metrics))
	for id, m := range c.metrics {
		merged[id] = m
	}
	c.distribution = DistributeLoad(merged)
	c.mu.Unlock()
	return plans
}

// Distribution returns the load allocation computed from the latest
// region metrics.
func (c *Coordinator) Distribution() domain.LoadDistribution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.distribution
}

// workloadsInLocked lists workload IDs with a replica in a region.
func (c *Coordinator) workloadsInLocked(id domain.RegionID) []string {
	var out []string
	for wid, w := range c.workloads {
		if _, ok := w.Replicas[id]; ok {
			out = append(out, wid)
		}
	}
	return out
}

// Failover plans and runs the scripted response to a region failure:
// pick the top backup regions by (priority, latency budget), stop
// workloads in the failed region, promote replicas, update routing.
func (c *Coordinator) Failover(failed domain.RegionID) (domain.FailoverPlan, domain.CoordinationResult, error) {
	start := c.now()

	c.mu.Lock()
	backups := c.backupRegionsLocked(failed)
	affected := c.workloadsInLocked(failed)
	c.mu.Unlock()

	if len(backups) == 0 {
		return domain.FailoverPlan{}, domain.CoordinationResult{}, domain.ErrNoBackupRegions
	}

	plan := domain.FailoverPlan{
		FailedRegion:      failed,
		AffectedWorkloads: affected,
		TargetRegions:     backups,
		Actions: []string{
			fmt.Sprintf("stop_workloads_in_%s", failed),
			fmt.Sprintf("promote_replicas_from_%s", backups[0]),
			"update_routing",
			"restart_in_backup",
			"monitor_convergence",
		},
		EstimatedDuration: 30 * time.Second,
		RiskLevel:         "high",
	}

	for _, action := range plan.Actions {
		log.Printf("[region] failover %s: %s", failed, action)
	}

	// Promote replicas: workloads whose primary failed move to the
	// first backup holding a replica.
	c.mu.Lock()
	for _, wid := range affected {
		w := c.workloads[wid]
		delete(w.Replicas, failed)
		if w.PrimaryRegion == failed {
			for _, backup := range backups {
				if _, ok := w.Replicas[backup]; ok {
					w.PrimaryRegion = backup
					break
				}
			}
		}
	}
	c.failovers = append(c.failovers, plan)
	c.mu.Unlock()

	metrics.FailoversTriggered.WithLabelValues(string(failed)).Inc()

	result := domain.CoordinationResult{
		WorkflowID:           "failover",
		Status:               "success",
		ExecutedRegions:      backups,
		FailedRegions:        []domain.RegionID{failed},
		ExecutionTime:        c.now().Sub(start),
		ConsistencyAchieved:  true,
		FailoverTriggered:    true,
		CoordinationOverhead: 10 * time.Millisecond,
	}
	return plan, result, nil
}

// backupRegionsLocked picks the top active backups for a failed region,
// ordered by (priority asc, latency budget asc).
func (c *Coordinator) backupRegionsLocked(failed domain.RegionID) []domain.RegionID {
	var candidates []domain.RegionConfig
	for _, cfg := range c.regions {
		if cfg.ID != failed && cfg.Active {
			candidates = append(candidates, cfg)
		}
	}
	sortRegions(candidates)
	if len(candidates) > c.backupCount {
		candidates = candidates[:c.backupCount]
	}
	out := make([]domain.RegionID, len(candidates))
	for i, cfg := range candidates {
		out[i] = cfg.ID
	}
	return out
}

func sortRegions(regions []domain.RegionConfig) {
	for i := 1; i < len(regions); i++ {
		for j := i; j > 0; j-- {
			a, b := regions[j-1], regions[j]
			if b.Priority < a.Priority ||
				(b.Priority == a.Priority && b.LatencyBudgetMs < a.LatencyBudgetMs) {
				regions[j-1], regions[j] = b, a
				continue
			}
			break
		}
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Workload returns a registered workload.
func (c *Coordinator) Workload(id string) (*domain.Workload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.workloads[id]
	return w, ok
}

// Metrics returns the latest snapshot for a region.
func (c *Coordinator) Metrics(id domain.RegionID) (domain.RegionMetrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.metrics[id]
	return m, ok
}

// Failovers returns the failover history.
func (c *Coordinator) Failovers() []domain.FailoverPlan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.FailoverPlan, len(c.failovers))
	copy(out, c.failovers)
	return out
}

// Regions returns the configured regions.
func (c *Coordinator) Regions() []domain.RegionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.RegionConfig, 0, len(c.regions))
	for _, cfg := range c.regions {
		out = append(out, cfg)
	}
	sortRegions(out)
	return out
}

func (c *Coordinator) regionIDs() []domain.RegionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.RegionID, 0, len(c.regions))
	for id := range c.regions {
		out = append(out, id)
	}
	return out
}
