package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/metrics"
)

type RelayConfig struct {
	BufferSize     int
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	FlushTimeout   time.Duration // how long Run keeps publishing buffered events after cancellation
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BufferSize:     1024,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		FlushTimeout:   2 * time.Second,
	}
}

// Relay buffers lifecycle events and publishes them from its own goroutine
type Relay struct {
	publisher Publisher
	config    RelayConfig
	events    chan Event

	running       atomic.Bool
	published     atomic.Uint64
	lastPublished atomic.Int64 // unix nanos
}

func NewRelay(publisher Publisher, cfg RelayConfig) *Relay {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultRelayConfig().BufferSize
	}
	return &Relay{
		publisher: publisher,
		config:    cfg,
		events:    make(chan Event, cfg.BufferSize),
	}
}

// Enqueue never blocks. When the buffer is full the event is dropped.
func (r *Relay) Enqueue(event Event) {
	select {
	case r.events <- event:
	default:
		metrics.OutboxDropped.WithLabelValues("buffer_full").Inc()
		log.Warn().
			Str("event_type", event.EventType).
			Str("session_id", event.SessionID).
			Msg("outbox buffer full, dropping event")
	}
}

// Pending is the number of buffered events
func (r *Relay) Pending() int {
	return len(r.events)
}

// Stats returns the number of events published and when the last one went out
func (r *Relay) Stats() (uint64, time.Time) {
	var last time.Time
	if ns := r.lastPublished.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return r.published.Load(), last
}

// Running reports whether Run is active
func (r *Relay) Running() bool {
	return r.running.Load()
}

// Run publishes events until ctx is cancelled, then flushes what is buffered
func (r *Relay) Run(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	log.Info().Int("buffer_size", r.config.BufferSize).Msg("outbox relay started")

	for {
		select {
		case <-ctx.Done():
			r.flush()
			log.Info().Msg("outbox relay stopped")
			return
		case event := <-r.events:
			r.publish(ctx, event)
		}
	}
}

func (r *Relay) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.FlushTimeout)
	defer cancel()

	for {
		select {
		case event := <-r.events:
			r.publish(ctx, event)
		default:
			return
		}
	}
}

func (r *Relay) publish(ctx context.Context, event Event) {
	operation := func() error {
		return r.publisher.Publish(ctx, event)
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(r.config.InitialBackoff),
				backoff.WithMaxInterval(r.config.MaxBackoff),
			),
			r.config.MaxRetries,
		),
		ctx,
	)

	err := backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		metrics.OutboxRetries.Inc()
		log.Warn().
			Err(err).
			Str("event_id", event.ID.String()).
			Dur("next_attempt_in", d).
			Msg("failed to publish event, retrying")
	})
	if err != nil {
		metrics.OutboxDropped.WithLabelValues("publish_failed").Inc()
		log.Error().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Msg("failed to publish event")
		return
	}
	metrics.OutboxPublished.Inc()
	r.published.Add(1)
	r.lastPublished.Store(time.Now().UnixNano())
}

// LogPublisher writes events to the log instead of a bus
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	log.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("session_id", event.SessionID).
		RawJSON("payload", event.Payload).
		Msg("lifecycle event")
	return nil
}
