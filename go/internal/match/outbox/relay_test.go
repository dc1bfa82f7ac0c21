package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("bus unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) snapshot() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.published...)
}

func testRelayConfig() RelayConfig {
	return RelayConfig{
		BufferSize:     4,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		FlushTimeout:   time.Second,
	}
}

func TestRelayPublishesInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	relay := NewRelay(pub, testRelayConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	for _, typ := range []string{EventSessionCreated, EventRoundRevealed, EventSessionClosed} {
		evt, err := NewEvent("room-1", typ, map[string]string{"sessionId": "room-1"}, time.Now())
		require.NoError(t, err)
		relay.Enqueue(evt)
	}

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	got := pub.snapshot()
	assert.Equal(t, EventSessionCreated, got[0].EventType)
	assert.Equal(t, EventSessionClosed, got[2].EventType)
}

func TestRelayRetriesTransientFailures(t *testing.T) {
	pub := &recordingPublisher{failFirst: 2}
	relay := NewRelay(pub, testRelayConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	evt, err := NewEvent("room-1", EventSessionCreated, SessionCreatedPayload{SessionID: "room-1"}, time.Now())
	require.NoError(t, err)
	relay.Enqueue(evt)

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, evt.ID, pub.snapshot()[0].ID)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	relay := NewRelay(&recordingPublisher{}, testRelayConfig())

	for i := 0; i < 10; i++ {
		relay.Enqueue(Event{EventType: EventRoundRevealed})
	}
	assert.Equal(t, 4, relay.Pending())
}

func TestRunFlushesOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	relay := NewRelay(pub, testRelayConfig())
	relay.Enqueue(Event{EventType: EventSessionClosed, Payload: []byte(`{}`)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	relay.Run(ctx)

	assert.Len(t, pub.snapshot(), 1)
}

func TestNewEventMarshalsPayload(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	evt, err := NewEvent("room-9", EventSessionClosed, SessionClosedPayload{SessionID: "room-9", Reason: ReasonReaped}, now)
	require.NoError(t, err)

	var p SessionClosedPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, ReasonReaped, p.Reason)
	assert.Equal(t, now, evt.CreatedAt)
	assert.NotEmpty(t, evt.ID.String())
}
