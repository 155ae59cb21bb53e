package region

import "github.com/sentrymesh/sentry/internal/domain"

// DistributeLoad computes a capacity-weighted allocation across regions.
// Healthy regions share load in proportion to their free CPU; when no
// region is healthy the allocation falls back to an even split.
func DistributeLoad(snapshots map[domain.RegionID]domain.RegionMetrics) domain.LoadDistribution {
	healthy := make(map[domain.RegionID]domain.RegionMetrics, len(snapshots))
	for id, m := range snapshots {
		if m.IsHealthy() {
			healthy[id] = m
		}
	}

	if len(healthy) == 0 {
		allocations := make(map[domain.RegionID]float64, len(snapshots))
		if len(snapshots) > 0 {
			share := 1.0 / float64(len(snapshots))
			for id := range snapshots {
				allocations[id] = share
			}
		}
		return domain.LoadDistribution{
			Allocations:        allocations,
			EstimatedLatencyMs: 100,
			Utilization:        0.5,
			BalanceScore:       0.5,
		}
	}

	var totalCapacity float64
	for _, m := range healthy {
		totalCapacity += (100 - m.CPUPercent) / 100
	}

	allocations := make(map[domain.RegionID]float64, len(healthy))
	for id, m := range healthy {
		allocations[id] = (100 - m.CPUPercent) / (100 * totalCapacity)
	}

	var avgLatency, utilization float64
	for id, m := range snapshots {
		avgLatency += m.LatencyMs * allocations[id]
		utilization += m.CPUPercent * allocations[id] / 100
	}

	return domain.LoadDistribution{
		Allocations:        allocations,
		EstimatedLatencyMs: avgLatency,
		Utilization:        utilization,
		BalanceScore:       balanceScore(allocations),
	}
}

// balanceScore maps allocation variance to [0,1]; an even split scores 1.
func balanceScore(allocations map[domain.RegionID]float64) float64 {
	if len(allocations) == 0 {
		return 0
	}
	var sum float64
	for _, v := range allocations {
		sum += v
	}
	mean := sum / float64(len(allocations))
	var variance float64
	for _, v := range allocations {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(allocations))
	if score := 1 - variance; score > 0 {
		return score
	}
	return 0
}
