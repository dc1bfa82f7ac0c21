package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyBus struct {
	recordingPublisher
	connected bool
}

func (b *flakyBus) Connected() bool { return b.connected }

func TestHealthRequiresRunningRelay(t *testing.T) {
	relay := NewRelay(LogPublisher{}, testRelayConfig())
	checker := NewHealthChecker(relay, LogPublisher{}, time.Minute)

	status := checker.Check(time.Now())
	assert.False(t, status.Healthy)
	assert.Nil(t, status.BusConnected)
	assert.Contains(t, status.Errors, "relay not active")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)
	require.Eventually(t, relay.Running, time.Second, 5*time.Millisecond)

	status = checker.Check(time.Now())
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Errors)
}

func TestHealthReportsBusConnectivity(t *testing.T) {
	bus := &flakyBus{connected: false}
	relay := NewRelay(bus, testRelayConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)
	require.Eventually(t, relay.Running, time.Second, 5*time.Millisecond)

	checker := NewHealthChecker(relay, bus, time.Minute)
	status := checker.Check(time.Now())
	require.NotNil(t, status.BusConnected)
	assert.False(t, *status.BusConnected)
	assert.False(t, status.Healthy)

	bus.connected = true
	assert.True(t, checker.Check(time.Now()).Healthy)
}

func TestHealthDetectsStall(t *testing.T) {
	pub := &recordingPublisher{}
	relay := NewRelay(pub, testRelayConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go relay.Run(ctx)

	evt, err := NewEvent("room-1", EventSessionCreated, SessionCreatedPayload{SessionID: "room-1"}, time.Now())
	require.NoError(t, err)
	relay.Enqueue(evt)
	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	// Stop publishing and leave an event behind
	cancel()
	require.Eventually(t, func() bool { return !relay.Running() }, time.Second, 5*time.Millisecond)
	relay.Enqueue(evt)

	checker := NewHealthChecker(relay, pub, time.Minute)
	published, last := relay.Stats()
	assert.Equal(t, uint64(1), published)

	status := checker.Check(last.Add(2 * time.Minute))
	assert.False(t, status.Healthy)
	assert.Equal(t, 1, status.PendingEvents)
	assert.Len(t, status.Errors, 2)
}

func TestHealthHandler(t *testing.T) {
	relay := NewRelay(LogPublisher{}, testRelayConfig())
	checker := NewHealthChecker(relay, LogPublisher{}, time.Minute)

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/outbox", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.RelayActive)
}
