package coordinator

import (
	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/outbox"
	"github.com/m-maciver/split-the-g/go/internal/match/session"
)

// reapStale force-closes sessions older than MaxSessionAge whatever their state
func (c *Coordinator) reapStale() {
	now := c.clock.Now()

	var stale []*session.Room
	for _, room := range c.rooms {
		if now.Sub(room.CreatedAt) > c.config.MaxSessionAge {
			stale = append(stale, room)
		}
	}

	for _, room := range stale {
		c.broadcast(room, events.NewMessage(events.TypeOpponentLeft, nil))
		c.teardown(room, outbox.ReasonReaped)
	}
	if len(stale) > 0 {
		log.Info().Int("reaped", len(stale)).Int("remaining", len(c.rooms)).Msg("stale sessions reclaimed")
	}
}

func (c *Coordinator) purgeRates() {
	if n := c.governor.Purge(c.clock.Now()); n > 0 {
		log.Debug().Int("purged", n).Int("remaining", c.governor.Len()).Msg("rate counters purged")
	}
}
