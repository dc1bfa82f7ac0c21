// Package coordinator owns every piece of mutable matchmaking state: the
// waiting queue, the session table, the connection registry and the rate
// counters. All of it is touched only by the goroutine running Run. Transport
// goroutines and timers talk to it by posting closures onto its inbox.
package coordinator

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/metrics"
	"github.com/m-maciver/split-the-g/go/internal/match/outbox"
	"github.com/m-maciver/split-the-g/go/internal/match/queue"
	"github.com/m-maciver/split-the-g/go/internal/match/ratelimit"
	"github.com/m-maciver/split-the-g/go/internal/match/registry"
	"github.com/m-maciver/split-the-g/go/internal/match/sched"
	"github.com/m-maciver/split-the-g/go/internal/match/session"
)

// ErrStopped is returned by calls made after Run has returned
var ErrStopped = errors.New("coordinator stopped")

// Sender delivers an outbound message to one connection. It must not block.
type Sender interface {
	Send(connID string, msg events.Message) error
}

// EventSink receives lifecycle events. It must not block.
type EventSink interface {
	Enqueue(event outbox.Event)
}

// Config holds the timing constants and limits
type Config struct {
	Rules             session.Rules
	GracePeriod       time.Duration
	MaxSessionAge     time.Duration
	ReapInterval      time.Duration
	RatePurgeInterval time.Duration
	RateRules         map[ratelimit.Category]ratelimit.Rule
	ICEServers        []events.ICEServer
	InboxSize         int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Rules:             session.DefaultRules(),
		GracePeriod:       10 * time.Second,
		MaxSessionAge:     30 * time.Minute,
		ReapInterval:      time.Minute,
		RatePurgeInterval: time.Minute,
		RateRules:         ratelimit.DefaultRules(),
		ICEServers: []events.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		InboxSize: 1024,
	}
}

type Option func(*Coordinator)

// WithClock replaces the real clock, typically with a clockwork.FakeClock
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithEventSink publishes lifecycle events to sink
func WithEventSink(sink EventSink) Option {
	return func(c *Coordinator) {
		c.sink = sink
	}
}

// WithIDGenerator replaces the session id generator
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) {
		c.newID = newID
	}
}

type Coordinator struct {
	config Config
	clock  clockwork.Clock
	sender Sender
	sink   EventSink
	newID  func() string

	inbox   chan func()
	stopped chan struct{}

	// owned by the Run goroutine
	sched    *sched.Scheduler
	queue    *queue.Queue
	registry *registry.Registry
	governor *ratelimit.Governor
	rooms    map[string]*session.Room
}

// New creates a coordinator. Nothing is processed until Run is called.
func New(cfg Config, sender Sender, opts ...Option) *Coordinator {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultConfig().InboxSize
	}
	c := &Coordinator{
		config:   cfg,
		clock:    clockwork.NewRealClock(),
		sender:   sender,
		newID:    func() string { return uuid.New().String() },
		inbox:    make(chan func(), cfg.InboxSize),
		stopped:  make(chan struct{}),
		queue:    queue.New(),
		registry: registry.New(),
		governor: ratelimit.NewGovernor(cfg.RateRules),
		rooms:    make(map[string]*session.Room),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sched = sched.New(c.clock, c.post)
	return c
}

// Run processes events until ctx is cancelled. It must be called exactly once.
func (c *Coordinator) Run(ctx context.Context) error {
	reap := c.clock.NewTicker(c.config.ReapInterval)
	defer reap.Stop()
	purge := c.clock.NewTicker(c.config.RatePurgeInterval)
	defer purge.Stop()
	defer close(c.stopped)

	log.Info().
		Dur("grace_period", c.config.GracePeriod).
		Dur("max_session_age", c.config.MaxSessionAge).
		Msg("coordinator started")

	for {
		select {
		case <-ctx.Done():
			c.exec(c.shutdown)
			log.Info().Msg("coordinator stopped")
			return nil
		case fn := <-c.inbox:
			c.exec(fn)
		case <-reap.Chan():
			c.exec(c.reapStale)
		case <-purge.Chan():
			c.exec(c.purgeRates)
		}
	}
}

// exec runs one event. A panic is logged and the loop carries on.
func (c *Coordinator) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CoordinatorPanics.Inc()
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("recovered panic in coordinator event")
		}
		c.refreshGauges()
	}()
	fn()
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.stopped:
	}
}

// do runs fn on the loop and waits for it
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case c.inbox <- wrapped:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect registers a new transport connection and greets it with its handle
func (c *Coordinator) Connect(connID string) {
	c.post(func() {
		c.registry.Add(connID, c.clock.Now())
		c.send(connID, events.NewMessage(events.TypeConnected, events.ConnectedPayload{ConnectionID: connID}))
		log.Debug().Str("connection_id", connID).Msg("connection registered")
	})
}

// Handle queues a decoded client command
func (c *Coordinator) Handle(connID string, cmd events.Command) {
	c.post(func() {
		c.dispatch(connID, cmd)
	})
}

// Disconnect reports that the transport for connID is gone
func (c *Coordinator) Disconnect(connID string) {
	c.post(func() {
		c.disconnect(connID)
	})
}

// Sync returns once every event posted before it has been processed
func (c *Coordinator) Sync(ctx context.Context) error {
	return c.do(ctx, func() {})
}

// Stats are read-only counters for health reporting
type Stats struct {
	Connections   int `json:"connections"`
	QueueLength   int `json:"queueLength"`
	Sessions      int `json:"sessions"`
	BoundHandles  int `json:"boundHandles"`
	RateCounters  int `json:"rateCounters"`
	PendingTimers int `json:"pendingTimers"`
}

func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.do(ctx, func() {
		s = Stats{
			Connections:  c.registry.Len(),
			QueueLength:  c.queue.Len(),
			Sessions:     len(c.rooms),
			BoundHandles: c.registry.Bound(),
			RateCounters: c.governor.Len(),
		}
		for _, room := range c.rooms {
			if room.HasDeadline() {
				s.PendingTimers++
			}
			for i := 0; i < 2; i++ {
				if room.HasGrace(i) {
					s.PendingTimers++
				}
			}
		}
	})
	return s, err
}

// ICEServers returns the relay-server descriptors handed to clients
func (c *Coordinator) ICEServers() []events.ICEServer {
	return c.config.ICEServers
}

func (c *Coordinator) refreshGauges() {
	metrics.ActiveSessions.Set(float64(len(c.rooms)))
	metrics.QueueLength.Set(float64(c.queue.Len()))
	metrics.LiveConnections.Set(float64(c.registry.Len()))
}

func (c *Coordinator) send(connID string, msg events.Message) {
	if err := c.sender.Send(connID, msg); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", connID).
			Str("event_type", string(msg.Type)).
			Msg("outbound message dropped")
	}
}

func (c *Coordinator) sendError(connID, code, message string) {
	c.send(connID, events.NewError(code, message))
}

func (c *Coordinator) broadcast(room *session.Room, msg events.Message) {
	for i := 0; i < 2; i++ {
		c.send(room.ConnID(i), msg)
	}
}

func (c *Coordinator) emit(sessionID, eventType string, payload any) {
	if c.sink == nil {
		return
	}
	evt, err := outbox.NewEvent(sessionID, eventType, payload, c.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to build lifecycle event")
		return
	}
	c.sink.Enqueue(evt)
}

// shutdown closes every open session without notifying clients; the
// transport is going away with the process.
func (c *Coordinator) shutdown() {
	for _, room := range c.rooms {
		c.teardown(room, outbox.ReasonShutdown)
	}
}
