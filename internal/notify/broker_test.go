package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func announcement(id string) Announcement {
	return Announcement{
		ID:                id,
		ObjectTypes:       []string{"knife"},
		ConfidencePercent: 87,
		Message:           "Detected knife near entrance",
		Timestamp:         time.Now(),
		EventReference:    "evt-" + id,
	}
}

func TestBroker_Subscribe_ReceivesPublishedAnnouncement(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(announcement("a1"))

	select {
	case got := <-ch:
		assert.Equal(t, "a1", got.ID)
		assert.Equal(t, float64(87), got.ConfidencePercent)
		assert.Equal(t, "evt-a1", got.EventReference)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for announcement")
	}
}

func TestBroker_Subscribe_NoBacklogReplay(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	b.Publish(announcement("before"))

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(announcement("after"))

	got := <-ch
	assert.Equal(t, "after", got.ID)
	assert.Empty(t, ch, "only announcements published after Subscribe must be delivered")
}

func TestBroker_Publish_PreservesOrderPerSubscriber(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < 10; i++ {
		b.Publish(announcement(fmt.Sprintf("a%d", i)))
	}

	for i := 0; i < 10; i++ {
		got := <-ch
		assert.Equal(t, fmt.Sprintf("a%d", i), got.ID)
	}
}

func TestBroker_Publish_RingNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	b := NewBroker(50)
	for i := 0; i < 1000; i++ {
		b.Publish(announcement(fmt.Sprintf("a%d", i)))
	}

	assert.Equal(t, 50, b.Count())

	recent := b.Recent(0)
	require.Len(t, recent, 50)
	assert.Equal(t, "a999", recent[0].ID, "newest first")
	assert.Equal(t, "a950", recent[49].ID, "the 50 most recent survive")
}

func TestBroker_Recent_NewestFirstLimited(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	for i := 0; i < 5; i++ {
		b.Publish(announcement(fmt.Sprintf("a%d", i)))
	}

	recent := b.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "a4", recent[0].ID)
	assert.Equal(t, "a2", recent[2].ID)
}

func TestBroker_Publish_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	slowID, slow := b.Subscribe()
	defer b.Unsubscribe(slowID)
	fastID, fast := b.Subscribe()
	defer b.Unsubscribe(fastID)

	// Never drained: overflows the slow channel well past its buffer.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Publish(announcement(fmt.Sprintf("a%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	// The healthy subscriber still got the earliest deliveries in order.
	got := <-fast
	assert.Equal(t, "a0", got.ID)
	assert.NotEmpty(t, slow)
}

func TestBroker_Publish_TwoSubscribersBothReceive(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id2)

	b.Publish(announcement("shared"))

	got1 := <-ch1
	got2 := <-ch2
	assert.Equal(t, got1, got2, "both subscribers see the identical payload")

	// Disconnecting one must not affect the other.
	b.Unsubscribe(id1)
	b.Publish(announcement("solo"))
	got2 = <-ch2
	assert.Equal(t, "solo", got2.ID)
}

func TestBroker_Unsubscribe_Idempotent(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	id, _ := b.Subscribe()

	b.Unsubscribe(id)
	b.Unsubscribe(id)
	b.Unsubscribe("no-such-subscription")

	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroker_Unsubscribe_RemovesBeforeNextPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	for i := 0; i < 20; i++ {
		b.Publish(announcement(fmt.Sprintf("a%d", i)))
	}

	_, open := <-ch
	assert.False(t, open, "channel closed on unsubscribe, no further deliveries")
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroker_Close_ClosesAllSubscriptions(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Close()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)

	// Publish and Subscribe after Close are harmless no-ops.
	b.Publish(announcement("late"))
	_, ch3 := b.Subscribe()
	_, open = <-ch3
	assert.False(t, open)
}
