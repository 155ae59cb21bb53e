package region

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

const (
	// DefaultReplicationTimeout bounds one downstream replication call.
	DefaultReplicationTimeout = 100 * time.Millisecond

	// stateLogCap bounds the in-memory change log.
	stateLogCap = 100_000
)

// Replicator delivers one state change to a region. Implementations are
// external adapters; a call may block up to the replication timeout.
type Replicator func(ctx context.Context, region domain.RegionID, change domain.StateChange) error

// StateLog tracks replicated state changes with per-region logical
// clocks. Safe for concurrent use; the replicator is invoked outside the
// lock.
type StateLog struct {
	mu     sync.Mutex
	clocks map[domain.RegionID]int64
	log    []domain.StateChange
	idx    int
	full   bool

	replicate Replicator
	timeout   time.Duration
	gen       *ident.Generator
	now       ident.Clock
}

// NewStateLog creates a StateLog. A nil replicator records changes
// locally without fan-out; timeout <= 0 takes the default.
func NewStateLog(replicate Replicator, timeout time.Duration) *StateLog {
	if timeout <= 0 {
		timeout = DefaultReplicationTimeout
	}
	now := ident.SystemClock
	return &StateLog{
		clocks:    make(map[domain.RegionID]int64),
		log:       make([]domain.StateChange, stateLogCap),
		replicate: replicate,
		timeout:   timeout,
		gen:       ident.NewGenerator(now),
		now:       now,
	}
}

// Replicate fans one state mutation out to the given regions in
// parallel. Each region gets its own change record stamped with that
// region's next logical clock tick. Returns per-region success.
func (s *StateLog) Replicate(ctx context.Context, workloadID string, oldState, newState map[string]string, regions []domain.RegionConfig) map[domain.RegionID]bool {
	status := make(map[domain.RegionID]bool, len(regions))
	changes := make(map[domain.RegionID]domain.StateChange, len(regions))

	s.mu.Lock()
	for _, r := range regions {
		if !r.Active {
			status[r.ID] = false
			continue
		}
		s.clocks[r.ID]++
		change := domain.StateChange{
			ChangeID:   s.gen.NewID(),
			Timestamp:  s.now(),
			Region:     r.ID,
			WorkloadID: workloadID,
			OldState:   oldState,
			NewState:   newState,
			Version:    s.clocks[r.ID],
		}
		s.appendLocked(change)
		changes[r.ID] = change
	}
	s.mu.Unlock()

	if s.replicate == nil {
		for id := range changes {
			status[id] = true
		}
		return status
	}

	// Fan out without holding the lock; replication may block.
	var wg sync.WaitGroup
	var resMu sync.Mutex
	for id, change := range changes {
		wg.Add(1)
		go func(id domain.RegionID, change domain.StateChange) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			err := s.replicate(callCtx, id, change)
			if errors.Is(err, context.DeadlineExceeded) {
				err = domain.ErrReplicationTimeout
			}
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			metrics.ReplicationsTotal.WithLabelValues(string(id), outcome).Inc()

			resMu.Lock()
			status[id] = err == nil
			resMu.Unlock()
		}(id, change)
	}
	wg.Wait()
	return status
}

// appendLocked writes into the bounded log, overwriting the oldest.
func (s *StateLog) appendLocked(change domain.StateChange) {
	s.log[s.idx] = change
	s.idx++
	if s.idx >= len(s.log) {
		s.idx = 0
		s.full = true
	}
}

// Clock returns a region's current logical clock.
func (s *StateLog) Clock(region domain.RegionID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clocks[region]
}

// Recent returns the newest changes, oldest first.
func (s *StateLog) Recent(limit int) []domain.StateChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.idx
	if s.full {
		count = len(s.log)
	}
	if limit > count {
		limit = count
	}
	if limit <= 0 {
		return nil
	}

	out := make([]domain.StateChange, limit)
	idx := s.idx - limit
	if idx < 0 {
		idx += len(s.log)
	}
	for i := 0; i < limit; i++ {
		out[i] = s.log[idx]
		idx++
		if idx >= len(s.log) {
			idx = 0
		}
	}
	return out
}

// ─── Conflict Resolution ────────────────────────────────────────────────────

// Conflict pairs two state changes touching the same workload from
// different regions with overlapping key-sets.
type Conflict struct {
	A, B domain.StateChange
}

// DetectConflicts finds every conflicting pair among the given changes.
func DetectConflicts(changes []domain.StateChange) []Conflict {
	var conflicts []Conflict
	for i, a := range changes {
		for _, b := range changes[i+1:] {
			if a.ConflictsWith(b) {
				conflicts = append(conflicts, Conflict{A: a, B: b})
			}
		}
	}
	return conflicts
}

// ResolveConflicts applies last-writer-wins by timestamp, ties broken by
// region ID. Returns the surviving state per workload.
func ResolveConflicts(conflicts []Conflict) map[string]map[string]string {
	resolved := make(map[string]map[string]string, len(conflicts))
	for _, c := range conflicts {
		winner := c.A
		if c.B.Timestamp.After(c.A.Timestamp) ||
			(c.B.Timestamp.Equal(c.A.Timestamp) && c.B.Region > c.A.Region) {
			winner = c.B
		}
		resolved[winner.WorkloadID] = winner.NewState
	}
	return resolved
}

// SortByOrder orders changes by timestamp, ties broken by region ID.
// This is the cross-region total order used for convergence.
func SortByOrder(changes []domain.StateChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Timestamp.Equal(changes[j].Timestamp) {
			return changes[i].Region < changes[j].Region
		}
		return changes[i].Timestamp.Before(changes[j].Timestamp)
	})
}
