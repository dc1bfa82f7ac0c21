package coordinator

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/metrics"
	"github.com/m-maciver/split-the-g/go/internal/match/ratelimit"
	"github.com/m-maciver/split-the-g/go/internal/match/session"
)

var (
	errAlreadyInSession = errors.New("connection already occupies a session")
	errNotInSession     = errors.New("connection is not in a session")
)

// rateCategories maps limited message types to their governor category
var rateCategories = map[events.Type]ratelimit.Category{
	events.TypeJoinQueue:      ratelimit.CategoryQueueJoin,
	events.TypeReadySignal:    ratelimit.CategoryReadySignal,
	events.TypeNextRoundReady: ratelimit.CategoryReadySignal,
	events.TypeSubmitResult:   ratelimit.CategoryResultSubmit,
	events.TypeRematchRequest: ratelimit.CategoryRematchRequest,
}

func (c *Coordinator) dispatch(connID string, cmd events.Command) {
	if !c.registry.Live(connID) {
		log.Debug().
			Str("connection_id", connID).
			Str("event_type", string(cmd.Type())).
			Msg("ignoring message from unregistered connection")
		return
	}

	if cat, ok := rateCategories[cmd.Type()]; ok && !c.governor.Allow(cat, connID, c.clock.Now()) {
		metrics.RateLimited.WithLabelValues(string(cat)).Inc()
		c.sendError(connID, events.CodeRateLimited, "too many requests, slow down")
		return
	}

	switch cmd := cmd.(type) {
	case events.JoinQueue:
		c.joinQueue(connID, cmd)
	case events.LeaveQueue:
		c.queue.Remove(connID)
	case events.Negotiation:
		c.relay(connID, cmd)
	case events.ReadySignal:
		c.ready(connID)
	case events.SubmitReferenceImage:
		c.referenceImage(connID, cmd)
	case events.SubmitResult:
		c.submit(connID, cmd)
	case events.RematchRequest:
		c.requestRematch(connID)
	case events.RematchAccept:
		c.acceptRematch(connID)
	case events.RematchDecline:
		c.declineRematch(connID)
	case events.NextRoundReady:
		c.nextRoundReady(connID)
	case events.LeaveSession:
		c.leaveSession(connID)
	case events.RejoinSession:
		c.rejoin(connID, cmd)
	case events.GetNegotiationConfig:
		c.negotiationConfig(connID)
	default:
		c.sendError(connID, events.CodeBadRequest, "unsupported message type")
	}
}

// seat resolves the room and slot index occupied by connID
func (c *Coordinator) seat(connID string) (*session.Room, int, error) {
	roomID, ok := c.registry.RoomOf(connID)
	if !ok {
		return nil, -1, errNotInSession
	}
	room, ok := c.rooms[roomID]
	if !ok {
		c.registry.Unbind(connID)
		return nil, -1, errNotInSession
	}
	i, ok := room.SlotIndex(connID)
	if !ok {
		return nil, -1, errNotInSession
	}
	return room, i, nil
}

// reject reports a failed request to its originator only
func (c *Coordinator) reject(connID string, err error) {
	code := events.CodeState
	switch {
	case errors.Is(err, session.ErrArtifactTooLarge), errors.Is(err, session.ErrPremature):
		code = events.CodeValidation
	case errors.Is(err, errAlreadyInSession):
		code = events.CodeAlreadyInSession
	case errors.Is(err, errNotInSession), errors.Is(err, session.ErrUnknownConnection):
		code = events.CodeNotInSession
	}
	log.Debug().Err(err).Str("connection_id", connID).Str("code", code).Msg("request rejected")
	c.sendError(connID, code, err.Error())
}
