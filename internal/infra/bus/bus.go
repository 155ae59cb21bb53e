// Package bus is the in-process publish/subscribe fabric. Publication is
// fire-and-forget: each subscriber owns a bounded queue that drops its
// oldest entry under pressure, so a slow consumer never stalls the
// publisher or its peers.
package bus

import (
	"sync"
	"time"

	"github.com/sentrymesh/sentry/internal/ident"
	"github.com/sentrymesh/sentry/internal/infra/metrics"
)

const (
	// DefaultQueueCap bounds each subscriber queue.
	DefaultQueueCap = 1000

	// dedupCap bounds the rolling set of seen event IDs.
	dedupCap = 10_000
)

// ─── Events ─────────────────────────────────────────────────────────────────

// Event is one published message.
type Event struct {
	ID          string
	Topic       string
	Payload     any
	PublishedAt time.Time
}

// Well-known topics.
const (
	TopicThreatDetected     = "threat_detected"
	TopicAssessmentComplete = "assessment_complete"
	TopicAnomalyDetected    = "anomaly_detected"
	TopicIncidentOpened     = "incident_opened"
	TopicModelDeployed      = "model_deployed"
)

// ─── Subscriptions ──────────────────────────────────────────────────────────

// Subscription is one subscriber's bounded view of a topic.
type Subscription struct {
	topic string
	ch    chan Event
}

// C returns the delivery channel. Events arrive in publication order;
// entries dropped under pressure leave the remaining order intact.
func (s *Subscription) C() <-chan Event { return s.ch }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// ─── Bus ────────────────────────────────────────────────────────────────────

// Bus fans events out per topic. Safe for concurrent use.
type Bus struct {
	mu       sync.Mutex
	topics   map[string][]*Subscription
	queueCap int

	// Rolling ID dedup: map for membership, ring for age order.
	seen      map[string]struct{}
	seenRing  []string
	seenIdx   int
	seenFull  bool
	published int64

	gen *ident.Generator
	now ident.Clock
}

// New creates a Bus; queueCap <= 0 takes the default.
func New(queueCap int) *Bus {
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	now := ident.SystemClock
	return &Bus{
		topics:   make(map[string][]*Subscription),
		queueCap: queueCap,
		seen:     make(map[string]struct{}, dedupCap),
		seenRing: make([]string, dedupCap),
		gen:      ident.NewGenerator(now),
		now:      now,
	}
}

// Subscribe registers a new subscriber on a topic.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan Event, b.queueCap)}
	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.topics[sub.topic] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers an event to every subscriber of the topic and returns
// its ID. A repeated ID within the rolling dedup window is ignored and
// the empty string returned. Never blocks.
func (b *Bus) Publish(topic string, payload any) string {
	return b.PublishID(b.gen.NewID(), topic, payload)
}

// PublishID publishes with a caller-chosen event ID.
func (b *Bus) PublishID(id, topic string, payload any) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.seen[id]; dup {
		return ""
	}
	b.rememberLocked(id)
	b.published++
	metrics.BusPublished.WithLabelValues(topic).Inc()

	ev := Event{ID: id, Topic: topic, Payload: payload, PublishedAt: b.now()}
	for _, sub := range b.topics[topic] {
		select {
		case sub.ch <- ev:
		default:
			// Queue full: drop the oldest, keep the newest.
			select {
			case <-sub.ch:
				metrics.BusDropped.WithLabelValues(topic).Inc()
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
	return id
}

// rememberLocked records an ID, evicting the oldest past the dedup cap.
func (b *Bus) rememberLocked(id string) {
	if old := b.seenRing[b.seenIdx]; b.seenFull && old != "" {
		delete(b.seen, old)
	}
	b.seen[id] = struct{}{}
	b.seenRing[b.seenIdx] = id
	b.seenIdx++
	if b.seenIdx >= len(b.seenRing) {
		b.seenIdx = 0
		b.seenFull = true
	}
}

// Published returns the count of accepted (non-duplicate) publications.
func (b *Bus) Published() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// SubscriberCount returns the number of subscribers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
