// Multi-region types: regions, replicated workloads, state changes, and
// failover planning for the cross-region coordinator.
package domain

import "time"

// ─── Region Types ───────────────────────────────────────────────────────────

// RegionID uniquely identifies a deployment region.
type RegionID string

const (
	RegionUSEast      RegionID = "us-east"
	RegionEUWest      RegionID = "eu-west"
	RegionAPSoutheast RegionID = "ap-southeast"
)

// AllRegions returns all supported deployment regions.
func AllRegions() []RegionID {
	return []RegionID{RegionUSEast, RegionEUWest, RegionAPSoutheast}
}

// IsValid reports whether r is a recognized region.
func (r RegionID) IsValid() bool {
	switch r {
	case RegionUSEast, RegionEUWest, RegionAPSoutheast:
		return true
	}
	return false
}

// String returns the region as a human-readable string.
func (r RegionID) String() string { return string(r) }

// RegionConfig describes one geographic region of the fleet.
type RegionConfig struct {
	ID                RegionID `json:"id"`
	Name              string   `json:"name"`
	PrimaryDatacenter string   `json:"primary_datacenter"`
	BackupDatacenters []string `json:"backup_datacenters,omitempty"`
	LatencyBudgetMs   int      `json:"latency_budget_ms"` // SLA target
	Active            bool     `json:"active"`
	Priority          int      `json:"priority"` // lower = preferred for failover
}

// ─── Region Health ──────────────────────────────────────────────────────────

// RegionHealth is the coarse operational state of a region.
type RegionHealth int

const (
	RegionHealthy RegionHealth = iota
	RegionDegraded
	RegionUnhealthy
	RegionUnavailable
)

// String returns the health state as a human-readable string.
func (h RegionHealth) String() string {
	switch h {
	case RegionHealthy:
		return "HEALTHY"
	case RegionDegraded:
		return "DEGRADED"
	case RegionUnhealthy:
		return "UNHEALTHY"
	case RegionUnavailable:
		return "UNAVAILABLE"
	}
	return "UNKNOWN"
}

// RegionMetrics is a snapshot of one region's load and health.
type RegionMetrics struct {
	Region        RegionID     `json:"region"`
	Health        RegionHealth `json:"health"`
	LatencyMs     float64      `json:"latency_ms"`
	ThroughputRPS float64      `json:"throughput_rps"`
	ErrorRate     float64      `json:"error_rate"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryPercent float64      `json:"memory_percent"`
	Workloads     int          `json:"workloads"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// IsHealthy reports whether the region can accept workload.
func (m RegionMetrics) IsHealthy() bool {
	return m.Health == RegionHealthy && m.ErrorRate < 0.01 && m.CPUPercent < 85
}

// ─── Consistency & Workloads ────────────────────────────────────────────────

// ConsistencyLevel is the replication guarantee for a workload.
type ConsistencyLevel int

const (
	ConsistencyEventual ConsistencyLevel = iota
	ConsistencyCausal
	ConsistencySession
	ConsistencyStrong
)

// String returns the consistency level as a human-readable string.
func (c ConsistencyLevel) String() string {
	switch c {
	case ConsistencyEventual:
		return "EVENTUAL"
	case ConsistencyCausal:
		return "CAUSAL"
	case ConsistencySession:
		return "SESSION"
	case ConsistencyStrong:
		return "STRONG"
	}
	return "UNKNOWN"
}

// Workload is one replicated state unit owned by a primary region.
// Invariant: while active, PrimaryRegion has an entry in Replicas.
type Workload struct {
	ID            string                         `json:"id"`
	Name          string                         `json:"name"`
	PrimaryRegion RegionID                       `json:"primary_region"`
	BackupRegions []RegionID                     `json:"backup_regions,omitempty"`
	State         map[string]string              `json:"state"`
	Replicas      map[RegionID]map[string]string `json:"replicas,omitempty"`
	Consistency   ConsistencyLevel               `json:"consistency"`
	CreatedAt     time.Time                      `json:"created_at"`
}

// ─── State Replication ──────────────────────────────────────────────────────

// StateChange is one replicated mutation. Version is the issuing region's
// logical clock and increases monotonically per region.
type StateChange struct {
	ChangeID   string            `json:"change_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Region     RegionID          `json:"region"`
	WorkloadID string            `json:"workload_id"`
	OldState   map[string]string `json:"old_state,omitempty"`
	NewState   map[string]string `json:"new_state"`
	Version    int64             `json:"version"`
}

// ConflictsWith reports whether two changes touch the same workload from
// different regions with overlapping key-sets.
func (c StateChange) ConflictsWith(other StateChange) bool {
	if c.WorkloadID != other.WorkloadID || c.Region == other.Region {
		return false
	}
	for k := range c.NewState {
		if _, ok := other.NewState[k]; ok {
			return true
		}
	}
	return false
}

// ─── Failover & Coordination ────────────────────────────────────────────────

// FailoverPlan is the scripted response to a region failure.
type FailoverPlan struct {
	FailedRegion      RegionID      `json:"failed_region"`
	AffectedWorkloads []string      `json:"affected_workloads"`
	TargetRegions     []RegionID    `json:"target_regions"`
	Actions           []string      `json:"actions"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	RiskLevel         string        `json:"risk_level"` // low, medium, high
}

// CoordinationResult reports one coordinated cross-region execution.
type CoordinationResult struct {
	WorkflowID           string        `json:"workflow_id"`
	Status               string        `json:"status"` // success, partial, failed
	ExecutedRegions      []RegionID    `json:"executed_regions"`
	FailedRegions        []RegionID    `json:"failed_regions,omitempty"`
	ExecutionTime        time.Duration `json:"execution_time"`
	CoordinationOverhead time.Duration `json:"coordination_overhead"`
	ConsistencyAchieved  bool          `json:"consistency_achieved"`
	FailoverTriggered    bool          `json:"failover_triggered"`
}

// LoadDistribution is a capacity-weighted allocation across regions.
type LoadDistribution struct {
	Allocations        map[RegionID]float64 `json:"allocations"` // shares summing to 1
	EstimatedLatencyMs float64              `json:"estimated_latency_ms"`
	Utilization        float64              `json:"utilization"`
	BalanceScore       float64              `json:"balance_score"` // 0.0-1.0
}
