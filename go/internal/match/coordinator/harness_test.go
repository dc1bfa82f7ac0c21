package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/outbox"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu   sync.Mutex
	msgs map[string][]events.Message
}

func newFakeSender() *fakeSender {
	return &fakeSender{msgs: make(map[string][]events.Message)}
}

func (s *fakeSender) Send(connID string, msg events.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[connID] = append(s.msgs[connID], msg)
	return nil
}

func (s *fakeSender) all(connID string) []events.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Message(nil), s.msgs[connID]...)
}

func (s *fakeSender) count(connID string, typ events.Type) int {
	n := 0
	for _, m := range s.all(connID) {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func (s *fakeSender) last(connID string, typ events.Type) (events.Message, bool) {
	msgs := s.all(connID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == typ {
			return msgs[i], true
		}
	}
	return events.Message{}, false
}

type fakeSink struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (s *fakeSink) Enqueue(evt outbox.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *fakeSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type harness struct {
	t      *testing.T
	clock  *clockwork.FakeClock
	sender *fakeSender
	sink   *fakeSink
	coord  *Coordinator
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{
		t:      t,
		clock:  clockwork.NewFakeClockAt(t0),
		sender: newFakeSender(),
		sink:   &fakeSink{},
	}
	n := 0
	h.coord = New(cfg, h.sender,
		WithClock(h.clock),
		WithEventSink(h.sink),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("room-%d", n)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// both tickers registered
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, h.clock.BlockUntilContext(waitCtx, 2))
	return h
}

func (h *harness) sync() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.coord.Sync(ctx))
}

func (h *harness) connect(ids ...string) {
	h.t.Helper()
	for _, id := range ids {
		h.coord.Connect(id)
	}
	h.sync()
}

func (h *harness) disconnect(id string) {
	h.t.Helper()
	h.coord.Disconnect(id)
	h.sync()
}

// send decodes a raw client frame and hands it to the coordinator
func (h *harness) send(connID, frame string) {
	h.t.Helper()
	cmd, err := events.Decode([]byte(frame))
	require.NoError(h.t, err, frame)
	h.coord.Handle(connID, cmd)
	h.sync()
}

func (h *harness) stats() Stats {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := h.coord.Stats(ctx)
	require.NoError(h.t, err)
	return s
}

// advance moves the fake clock and lets fired timers reach the loop
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.sync()
}

// pair connects a and b and matches them, a first
func (h *harness) pair(a, b string, mode string) {
	h.t.Helper()
	h.connect(a, b)
	h.send(a, fmt.Sprintf(`{"type":"join-queue","data":{"displayName":"%s","mode":"%s"}}`, a, mode))
	h.send(b, fmt.Sprintf(`{"type":"join-queue","data":{"displayName":"%s","mode":"%s"}}`, b, mode))
}

// startRound readies both players in the current round and moves past the pre-roll
func (h *harness) startRound(a, b, signal string) {
	h.t.Helper()
	frame := fmt.Sprintf(`{"type":"%s"}`, signal)
	h.send(a, frame)
	h.send(b, frame)
	h.advance(DefaultConfig().Rules.Preroll)
}

func (h *harness) submit(connID string, score float64) {
	h.t.Helper()
	h.send(connID, fmt.Sprintf(`{"type":"submit-result","data":{"artifact":"img-%s","score":%v}}`, connID, score))
}

// payload re-decodes a message's data into v
func payload[T any](t *testing.T, msg events.Message) T {
	t.Helper()
	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
