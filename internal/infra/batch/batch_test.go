package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

type recordingSink struct {
	mu      sync.Mutex
	name    string
	batches [][]domain.EnrichedEvent
	fail    int // fail this many calls before succeeding
	calls   int
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) WriteBatch(_ context.Context, events []domain.EnrichedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return errors.New("sink unavailable")
	}
	s.batches = append(s.batches, events)
	return nil
}

func (s *recordingSink) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func enrichedN(n int) []domain.EnrichedEvent {
	events := make([]domain.EnrichedEvent, n)
	for i := range events {
		events[i] = domain.EnrichedEvent{OriginalHash: "fp", Severity: domain.SeverityLow}
	}
	return events
}

func TestFlushOnCount(t *testing.T) {
	sink := &recordingSink{name: "a"}
	b := New(10, time.Hour, sink)
	b.sleep = func(time.Duration) {}

	for _, e := range enrichedN(9) {
		b.Add(e)
	}
	if sink.received() != 0 {
		t.Fatalf("flushed before count limit: %d events", sink.received())
	}

	b.Add(domain.EnrichedEvent{})
	if sink.received() != 10 {
		t.Fatalf("sink received %d events, want 10", sink.received())
	}
	if b.Len() != 0 {
		t.Errorf("buffer length after flush = %d, want 0", b.Len())
	}
}

func TestFlushOnDeadline(t *testing.T) {
	sink := &recordingSink{name: "a"}
	b := New(1000, 5*time.Second, sink)
	b.sleep = func(time.Duration) {}
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return at }

	b.Add(domain.EnrichedEvent{})
	b.flushIfDue()
	if sink.received() != 0 {
		t.Fatal("flushed before deadline")
	}

	at = at.Add(5 * time.Second)
	b.flushIfDue()
	if sink.received() != 1 {
		t.Fatalf("sink received %d events after deadline, want 1", sink.received())
	}
}

func TestConcurrentSinksAllReceive(t *testing.T) {
	a := &recordingSink{name: "a"}
	c := &recordingSink{name: "b"}
	b := New(5, time.Hour, a, c)
	b.sleep = func(time.Duration) {}

	for _, e := range enrichedN(5) {
		b.Add(e)
	}
	if a.received() != 5 || c.received() != 5 {
		t.Errorf("sinks received %d/%d events, want 5/5", a.received(), c.received())
	}
}

func TestSinkRetryWithBackoff(t *testing.T) {
	sink := &recordingSink{name: "flaky", fail: 2}
	var delays []time.Duration
	b := New(3, time.Hour, sink)
	b.sleep = func(d time.Duration) { delays = append(delays, d) }

	for _, e := range enrichedN(3) {
		b.Add(e)
	}
	if sink.received() != 3 {
		t.Fatalf("sink received %d events after retries, want 3", sink.received())
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("backoff delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestSinkRetryExhaustsBackoffSchedule(t *testing.T) {
	// Three consecutive failures still leave one attempt: the write
	// succeeds on the fourth try after sleeping 1s, 2s, and 4s.
	sink := &recordingSink{name: "flaky", fail: 3}
	var delays []time.Duration
	b := New(3, time.Hour, sink)
	b.sleep = func(d time.Duration) { delays = append(delays, d) }

	for _, e := range enrichedN(3) {
		b.Add(e)
	}
	if sink.received() != 3 {
		t.Fatalf("sink received %d events after full backoff, want 3", sink.received())
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("backoff delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	dead := &recordingSink{name: "dead", fail: 10}
	live := &recordingSink{name: "live"}
	b := New(2, time.Hour, dead, live)
	b.sleep = func(time.Duration) {}

	for _, e := range enrichedN(2) {
		b.Add(e)
	}
	if live.received() != 2 {
		t.Errorf("healthy sink received %d events, want 2", live.received())
	}
	if dead.received() != 0 {
		t.Errorf("dead sink unexpectedly received %d events", dead.received())
	}
}

func TestStopFlushesRemainder(t *testing.T) {
	sink := &recordingSink{name: "a"}
	b := New(100, time.Hour, sink)
	b.sleep = func(time.Duration) {}
	b.Start()

	for _, e := range enrichedN(7) {
		b.Add(e)
	}
	b.Stop()
	if sink.received() != 7 {
		t.Errorf("sink received %d events after Stop, want 7", sink.received())
	}
}
