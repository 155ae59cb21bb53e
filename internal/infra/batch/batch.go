// Package batch implements count-or-deadline flushing of enriched events
// to downstream sinks. Sinks run concurrently on flush; a failing sink is
// retried with exponential backoff without blocking the others.
package batch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

const (
	// DefaultMaxSize flushes the buffer when it reaches this many events.
	DefaultMaxSize = 1000

	// DefaultMaxDelay flushes the buffer this long after its first event.
	DefaultMaxDelay = 5 * time.Second

	// retryAttempts is the number of retries after the initial write,
	// one per backoffSchedule entry.
	retryAttempts = 3
)

// backoffSchedule is the per-sink retry delay sequence.
var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Sink receives flushed batches. Implementations must be safe for
// concurrent use; errors are retried, never raised across the boundary.
type Sink interface {
	Name() string
	WriteBatch(ctx context.Context, events []domain.EnrichedEvent) error
}

// Batcher buffers enriched events and flushes on count or deadline.
type Batcher struct {
	mu      sync.Mutex
	buf     []domain.EnrichedEvent
	firstAt time.Time

	maxSize  int
	maxDelay time.Duration
	sinks    []Sink

	now   ident.Clock
	sleep func(time.Duration)

	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a Batcher over the given sinks; zero limits take defaults.
func New(maxSize int, maxDelay time.Duration, sinks ...Sink) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Batcher{
		maxSize:  maxSize,
		maxDelay: maxDelay,
		sinks:    sinks,
		now:      ident.SystemClock,
		sleep:    time.Sleep,
		stop:     make(chan struct{}),
	}
}

// Start launches the deadline watcher. Call Stop to flush and shut down.
func (b *Batcher) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.maxDelay / 5)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.flushIfDue()
			case <-b.stop:
				return
			}
		}
	}()
}

// Stop flushes any buffered events and stops the watcher.
func (b *Batcher) Stop() {
	close(b.stop)
	b.wg.Wait()
	b.flush("shutdown")
}

// Add buffers one event, flushing when the count limit is reached.
func (b *Batcher) Add(e domain.EnrichedEvent) {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.firstAt = b.now()
	}
	b.buf = append(b.buf, e)
	full := len(b.buf) >= b.maxSize
	b.mu.Unlock()

	if full {
		b.flush("count")
	}
}

// Len returns the number of buffered events.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *Batcher) flushIfDue() {
	b.mu.Lock()
	due := len(b.buf) > 0 && b.now().Sub(b.firstAt) >= b.maxDelay
	b.mu.Unlock()
	if due {
		b.flush("deadline")
	}
}

// flush snapshots the buffer and dispatches it to every sink concurrently.
func (b *Batcher) flush(trigger string) {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	events := b.buf
	b.buf = nil
	b.mu.Unlock()

	metrics.BatchFlushes.WithLabelValues(trigger).Inc()

	var wg sync.WaitGroup
	for _, sink := range b.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			b.writeWithRetry(s, events)
		}(sink)
	}
	wg.Wait()
}

// writeWithRetry attempts a sink write, then retries once per backoff
// schedule entry before dropping the batch.
func (b *Batcher) writeWithRetry(s Sink, events []domain.EnrichedEvent) {
	ctx := context.Background()
	var err error
	for attempt := 0; attempt <= retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.SinkRetries.WithLabelValues(s.Name()).Inc()
			b.sleep(backoffSchedule[attempt-1])
		}
		if err = s.WriteBatch(ctx, events); err == nil {
			return
		}
		log.Printf("[batch] sink %s write failed (attempt %d/%d): %v",
			s.Name(), attempt+1, retryAttempts+1, err)
	}
	log.Printf("[batch] sink %s dropped batch of %d after %d attempts: %v",
		s.Name(), len(events), retryAttempts+1, err)
}
