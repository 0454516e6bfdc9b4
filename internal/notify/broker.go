package notify

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultCapacity bounds the in-memory ring of recent announcements.
	DefaultCapacity = 50

	// subscriberBuffer is the per-subscription channel depth. A subscriber
	// that falls further behind than this loses deliveries rather than
	// stalling the publisher.
	subscriberBuffer = 16
)

// Broker fans announcements out to all registered subscriptions and keeps a
// bounded ring of the most recent ones for initial page loads. All state is
// guarded by a single mutex; publish rate from a physical-world detector is
// low enough that finer locking buys nothing.
type Broker struct {
	mu       sync.Mutex
	capacity int
	recent   []Announcement
	subs     map[string]chan Announcement
	closed   bool
}

// NewBroker creates a Broker retaining up to capacity recent announcements.
// capacity <= 0 falls back to DefaultCapacity.
func NewBroker(capacity int) *Broker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broker{
		capacity: capacity,
		subs:     make(map[string]chan Announcement),
	}
}

// Publish appends the announcement to the ring (evicting the oldest when
// full) and delivers a copy to every current subscription. The send is
// non-blocking: a full subscriber channel drops that delivery so one stalled
// client never delays the others. Publish never fails; eviction and drops
// are routine, not errors.
func (b *Broker) Publish(a Announcement) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.recent = append(b.recent, a)
	if len(b.recent) > b.capacity {
		b.recent = b.recent[len(b.recent)-b.capacity:]
	}

	for id, ch := range b.subs {
		select {
		case ch <- a:
		default:
			slog.Debug("subscriber behind, dropping delivery",
				"subscription_id", id,
				"announcement_id", a.ID)
		}
	}
}

// Subscribe registers a new subscription and returns its identifier and
// receive channel. Only announcements published after this call are seen;
// there is no backlog replay — a client that was offline reconciles via the
// event archive, not the live feed.
func (b *Broker) Subscribe() (string, <-chan Announcement) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Announcement, subscriberBuffer)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch

	slog.Debug("subscription registered", "subscription_id", id, "subscribers", len(b.subs))
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel. Idempotent:
// unknown or already-removed ids are a no-op.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	// Sends only happen under the same lock, so closing here cannot race
	// a concurrent Publish.
	close(ch)

	slog.Debug("subscription removed", "subscription_id", id, "subscribers", len(b.subs))
}

// Recent returns up to n of the most recent announcements, newest first.
// n <= 0 returns everything buffered.
func (b *Broker) Recent(n int) []Announcement {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}

	out := make([]Announcement, n)
	for i := 0; i < n; i++ {
		out[i] = b.recent[len(b.recent)-1-i]
	}
	return out
}

// Count returns the number of buffered announcements.
func (b *Broker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.recent)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close removes and closes every subscription. Used on process shutdown so
// streaming handlers unblock promptly. Publish and Subscribe become no-ops
// afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// NewID returns a broker-assigned announcement identifier, used when the
// producer did not supply one.
func NewID() string {
	return uuid.New().String()
}
