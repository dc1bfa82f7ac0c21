package coordinator

import (
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/metrics"
	"github.com/m-maciver/split-the-g/go/internal/match/outbox"
	"github.com/m-maciver/split-the-g/go/internal/match/session"
)

const maxNameRunes = 24

var defaultNames = [2]string{"Player 1", "Player 2"}

func (c *Coordinator) joinQueue(connID string, cmd events.JoinQueue) {
	if _, bound := c.registry.RoomOf(connID); bound {
		c.reject(connID, errAlreadyInSession)
		return
	}

	c.registry.SetProfile(connID, cleanName(cmd.DisplayName), cmd.Mode)
	position := c.queue.Enqueue(connID)
	c.send(connID, events.NewMessage(events.TypeQueueJoined, events.QueueJoinedPayload{Position: position}))

	log.Debug().Str("connection_id", connID).Int("position", position).Msg("joined queue")

	for {
		first, second, ok := c.queue.DequeuePair()
		if !ok {
			return
		}
		c.createSession(first, second)
	}
}

func (c *Coordinator) createSession(first, second string) {
	room := session.New(c.newID(),
		c.seatFor(first, defaultNames[0]),
		c.seatFor(second, defaultNames[1]),
		c.config.Rules,
		c.clock.Now(),
	)
	c.rooms[room.ID] = room
	c.registry.Bind(first, room.ID)
	c.registry.Bind(second, room.ID)

	for i := 0; i < 2; i++ {
		self, opp := room.Slot(i), room.Slot(session.Opponent(i))
		c.send(self.ConnID, events.NewMessage(events.TypeMatched, events.MatchedPayload{
			SessionID:              room.ID,
			SelfID:                 self.ConnID,
			OpponentID:             opp.ConnID,
			IsInitiator:            i == 0,
			Mode:                   string(room.Mode),
			OpponentMode:           string(opp.Mode),
			OpponentName:           opp.Name,
			OpponentReferenceImage: opp.ReferenceImage,
		}))
	}

	metrics.SessionsCreated.WithLabelValues(string(room.Mode)).Inc()
	log.Info().
		Str("session_id", room.ID).
		Str("player1_id", first).
		Str("player2_id", second).
		Str("mode", string(room.Mode)).
		Msg("session created")

	c.emit(room.ID, outbox.EventSessionCreated, outbox.SessionCreatedPayload{
		SessionID: room.ID,
		Player1ID: first,
		Player2ID: second,
		Mode:      string(room.Mode),
	})
}

// seatFor moves a queued connection's attributes into a session seat
func (c *Coordinator) seatFor(connID, fallbackName string) session.Seat {
	attrs, _ := c.registry.Get(connID)
	name := attrs.DisplayName
	if name == "" {
		name = fallbackName
	}
	return session.Seat{
		ConnID:         connID,
		Name:           name,
		Mode:           session.ParseMode(attrs.Mode),
		ReferenceImage: c.registry.TakeReferenceImage(connID),
	}
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= maxNameRunes {
		return name
	}
	return strings.TrimSpace(string([]rune(name)[:maxNameRunes]))
}
