package alerting

import (
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/ident"
)

const (
	// DuplicateWindow suppresses repeats of the same threat fingerprint.
	DuplicateWindow = 300 * time.Second

	// FloodLimit is the per (threat_type, source) alert budget.
	FloodLimit = 10

	// FloodWindow is the rolling reset boundary for flood counters.
	FloodWindow = time.Hour
)

type floodCounter struct {
	count   int
	startAt time.Time
}

// Suppressor short-circuits duplicate and flapping alerts. Safe for
// concurrent use.
type Suppressor struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time     // fingerprint -> last alert
	floods   map[string]*floodCounter // type|source -> rolling counter

	dupWindow   time.Duration
	floodLimit  int
	floodWindow time.Duration

	now ident.Clock
}

// NewSuppressor returns an empty Suppressor with the default windows.
func NewSuppressor() *Suppressor {
	return NewSuppressorWith(0, 0, 0)
}

// NewSuppressorWith returns a Suppressor with tuned windows and budget.
// Zero values take the defaults.
func NewSuppressorWith(dupWindow time.Duration, floodLimit int, floodWindow time.Duration) *Suppressor {
	if dupWindow <= 0 {
		dupWindow = DuplicateWindow
	}
	if floodLimit <= 0 {
		floodLimit = FloodLimit
	}
	if floodWindow <= 0 {
		floodWindow = FloodWindow
	}
	return &Suppressor{
		lastSeen:    make(map[string]time.Time),
		floods:      make(map[string]*floodCounter),
		dupWindow:   dupWindow,
		floodLimit:  floodLimit,
		floodWindow: floodWindow,
		now:         ident.SystemClock,
	}
}

// Check records the alert and reports whether it must be suppressed,
// with the reason: "duplicate" inside the fingerprint window, or
// "flood" once a (threat_type, source) pair exceeds its rolling budget.
func (s *Suppressor) Check(fingerprint, threatType, source string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	if last, ok := s.lastSeen[fingerprint]; ok && now.Sub(last) < s.dupWindow {
		return "duplicate", true
	}
	s.lastSeen[fingerprint] = now

	key := threatType + "|" + source
	fc, ok := s.floods[key]
	if !ok || now.Sub(fc.startAt) >= s.floodWindow {
		fc = &floodCounter{startAt: now}
		s.floods[key] = fc
	}
	fc.count++
	if fc.count > s.floodLimit {
		return "flood", true
	}
	return "", false
}

// Stats reports the tracked fingerprint and flood-counter sizes.
func (s *Suppressor) Stats() (fingerprints, counters int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastSeen), len(s.floods)
}

// Sweep drops fingerprint entries and flood counters past their windows.
// The daemon runs this periodically.
func (s *Suppressor) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for fp, last := range s.lastSeen {
		if now.Sub(last) >= s.dupWindow {
			delete(s.lastSeen, fp)
			removed++
		}
	}
	for key, fc := range s.floods {
		if now.Sub(fc.startAt) >= s.floodWindow {
			delete(s.floods, key)
			removed++
		}
	}
	return removed
}
