package coordinator

import (
	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/session"
)

// relay forwards a negotiation message verbatim to the sender's opponent.
// If the opponent is unreachable the message is dropped.
func (c *Coordinator) relay(connID string, cmd events.Negotiation) {
	room, i, err := c.seat(connID)
	if err != nil {
		c.reject(connID, err)
		return
	}
	c.send(room.ConnID(session.Opponent(i)), events.NewMessage(cmd.Kind, events.RelayPayload{
		Payload: cmd.Payload,
		From:    connID,
	}))
}

func (c *Coordinator) negotiationConfig(connID string) {
	c.send(connID, events.NewMessage(events.TypeNegotiationConfig, events.NegotiationConfigPayload{
		ICEServers: c.config.ICEServers,
	}))
}
