// Package ident provides event identity: ULID event IDs, SHA-256
// fingerprints over a canonical event encoding, and an injectable clock
// shared by components that need deterministic time in tests.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sentrymesh/sentry/internal/domain"
)

// Clock returns the current time. Components hold one of these so tests
// can substitute a fixed or stepping clock.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// ─── Event IDs ──────────────────────────────────────────────────────────────

// Generator mints lexically sortable event IDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     Clock
}

// NewGenerator returns a Generator seeded from the given clock.
func NewGenerator(now Clock) *Generator {
	if now == nil {
		now = SystemClock
	}
	source := rand.New(rand.NewSource(now().UnixNano()))
	return &Generator{
		entropy: ulid.Monotonic(source, 0),
		now:     now,
	}
}

// NewID returns a new ULID string. IDs minted by one Generator sort in
// creation order even within the same millisecond.
func (g *Generator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// ─── Fingerprints ───────────────────────────────────────────────────────────

// canonicalEvent is the fingerprint encoding of a raw event. JSON
// marshaling sorts map keys, which gives the deterministic form.
type canonicalEvent struct {
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
}

// Fingerprint computes the SHA-256 identity of a raw event over its
// canonical encoding. Identical events always fingerprint identically.
func Fingerprint(e domain.RawEvent) string {
	canonical := canonicalEvent{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Source:    e.Source,
		Kind:      string(e.Kind),
		Payload:   e.Payload,
		Metadata:  e.Metadata,
	}
	// Maps of any can always marshal here: payloads arrive via JSON decode.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashData computes the SHA-256 integrity hash over a string map in
// canonical (sorted-key) form. Used for forensic evidence records.
func HashData(data map[string]string) string {
	encoded, _ := json.Marshal(data)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
