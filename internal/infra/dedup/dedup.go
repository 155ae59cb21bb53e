// Package dedup implements the exact-duplicate filter over event
// fingerprints. The set is sharded into 256 partitions keyed by the first
// fingerprint byte; entries expire after a TTL, and when the set exceeds
// its capacity the globally oldest half of the entries is dropped.
package dedup

import (
	"encoding/hex"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

const (
	// DefaultTTL is how long a fingerprint suppresses duplicates.
	DefaultTTL = 60 * time.Second

	// DefaultCapacity bounds the total number of tracked fingerprints.
	DefaultCapacity = 5000

	partitions = 256
)

type partition struct {
	mu      sync.Mutex
	entries map[string]time.Time // fingerprint -> first-seen
}

// Filter is the sharded duplicate filter. Safe for concurrent use.
type Filter struct {
	parts    [partitions]partition
	ttl      time.Duration
	capacity int
	size     atomic.Int64
	now      ident.Clock
}

// New returns a Filter with the given TTL and capacity; zero values take
// the defaults.
func New(ttl time.Duration, capacity int) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	f := &Filter{ttl: ttl, capacity: capacity, now: ident.SystemClock}
	for i := range f.parts {
		f.parts[i].entries = make(map[string]time.Time)
	}
	return f
}

// partitionFor maps a hex fingerprint to its shard by the first byte.
func (f *Filter) partitionFor(fingerprint string) *partition {
	var idx byte
	if len(fingerprint) >= 2 {
		if b, err := hex.DecodeString(fingerprint[:2]); err == nil {
			idx = b[0]
		}
	}
	return &f.parts[idx]
}

// Seen records the fingerprint and reports whether it was already present
// and unexpired. Expired entries are collected lazily on lookup.
func (f *Filter) Seen(fingerprint string) bool {
	now := f.now()
	p := f.partitionFor(fingerprint)

	p.mu.Lock()
	if seen, ok := p.entries[fingerprint]; ok {
		if now.Sub(seen) < f.ttl {
			p.mu.Unlock()
			return true
		}
		delete(p.entries, fingerprint)
		f.size.Add(-1)
	}
	p.entries[fingerprint] = now
	p.mu.Unlock()

	if f.size.Add(1) > int64(f.capacity) {
		f.evictOldestHalf()
	}
	return false
}

// Size returns the number of tracked fingerprints.
func (f *Filter) Size() int {
	return int(f.size.Load())
}

// evictOldestHalf drops the globally oldest half of the tracked entries.
// Age is compared across partitions, so pressure frees memory even when
// fingerprints spread one per shard. Expired entries go first by
// construction since eviction is by age.
func (f *Filter) evictOldestHalf() {
	metrics.DedupPressure.Inc()

	type aged struct {
		part int
		fp   string
		seen time.Time
	}
	var byAge []aged
	for i := range f.parts {
		p := &f.parts[i]
		p.mu.Lock()
		for fp, seen := range p.entries {
			byAge = append(byAge, aged{i, fp, seen})
		}
		p.mu.Unlock()
	}
	if len(byAge) < 2 {
		return
	}
	sort.Slice(byAge, func(a, b int) bool { return byAge[a].seen.Before(byAge[b].seen) })

	for _, e := range byAge[:len(byAge)/2] {
		p := &f.parts[e.part]
		p.mu.Lock()
		// A concurrent Seen may have refreshed the entry between the
		// snapshot and here; only drop what we actually saw.
		if seen, ok := p.entries[e.fp]; ok && seen.Equal(e.seen) {
			delete(p.entries, e.fp)
			f.size.Add(-1)
		}
		p.mu.Unlock()
	}
}

// Sweep removes all expired entries. The daemon runs this periodically so
// idle partitions do not pin stale fingerprints until the next lookup.
func (f *Filter) Sweep() int {
	now := f.now()
	removed := 0
	for i := range f.parts {
		p := &f.parts[i]
		p.mu.Lock()
		for fp, seen := range p.entries {
			if now.Sub(seen) >= f.ttl {
				delete(p.entries, fp)
				f.size.Add(-1)
				removed++
			}
		}
		p.mu.Unlock()
	}
	return removed
}
