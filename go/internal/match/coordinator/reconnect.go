package coordinator

import (
	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/metrics"
	"github.com/m-maciver/split-the-g/go/internal/match/outbox"
	"github.com/m-maciver/split-the-g/go/internal/match/session"
)

// Rejoin failure reasons
const (
	reasonAlreadyInSession = "connection already occupies a session"
	reasonUnknownSession   = "session not found"
	reasonStaleConnection  = "previous connection is not part of this session"
)

func (c *Coordinator) disconnect(connID string) {
	if !c.registry.Live(connID) {
		return
	}
	c.registry.Remove(connID)
	c.queue.Remove(connID)
	c.governor.Forget(connID)

	room, i, err := c.seat(connID)
	if err != nil {
		log.Debug().Str("connection_id", connID).Msg("connection closed")
		return
	}

	c.send(room.ConnID(session.Opponent(i)), events.NewMessage(events.TypeOpponentDisconnected, nil))

	roomID := room.ID
	room.ArmGrace(i, c.sched.After(c.config.GracePeriod, func() {
		c.graceExpired(roomID, i, connID)
	}))

	log.Info().
		Str("session_id", roomID).
		Str("connection_id", connID).
		Dur("grace_period", c.config.GracePeriod).
		Msg("player disconnected, holding slot")
}

// graceExpired ends the session unless the slot was remapped in the meantime
func (c *Coordinator) graceExpired(roomID string, slot int, staleID string) {
	room, ok := c.rooms[roomID]
	if !ok || room.ConnID(slot) != staleID {
		return
	}
	room.ClearGrace(slot)
	c.send(room.ConnID(session.Opponent(slot)), events.NewMessage(events.TypeOpponentLeft, nil))
	c.teardown(room, outbox.ReasonGraceExpired)
}

func (c *Coordinator) rejoin(connID string, cmd events.RejoinSession) {
	if _, bound := c.registry.RoomOf(connID); bound {
		c.rejoinFailed(connID, reasonAlreadyInSession)
		return
	}
	room, ok := c.rooms[cmd.SessionID]
	if !ok {
		c.rejoinFailed(connID, reasonUnknownSession)
		return
	}
	oldID := cmd.PreviousConnectionID
	if _, ok := room.SlotIndex(oldID); !ok {
		c.rejoinFailed(connID, reasonStaleConnection)
		return
	}

	c.queue.Remove(connID)
	i, err := room.Remap(oldID, connID)
	if err != nil {
		c.rejoinFailed(connID, reasonStaleConnection)
		return
	}
	c.registry.Rebind(oldID, connID)

	metrics.Rejoins.WithLabelValues("success").Inc()
	log.Info().
		Str("session_id", room.ID).
		Str("previous_connection_id", oldID).
		Str("connection_id", connID).
		Msg("player rejoined")

	c.send(connID, events.NewMessage(events.TypeRejoinSuccess, events.RejoinSuccessPayload{
		SessionID:    room.ID,
		CurrentState: string(room.CurrentState(c.clock.Now())),
		Snapshot:     snapshot(room, i),
	}))
	c.send(room.ConnID(session.Opponent(i)), events.NewMessage(events.TypeOpponentReconnected,
		events.OpponentReconnectedPayload{OpponentID: connID}))
}

func (c *Coordinator) rejoinFailed(connID, reason string) {
	metrics.Rejoins.WithLabelValues("failed").Inc()
	c.send(connID, events.NewMessage(events.TypeRejoinFailed, events.RejoinFailedPayload{Reason: reason}))
}

// snapshot is the view slot i needs to rebuild its local state
func snapshot(room *session.Room, i int) events.SessionSnapshot {
	self, opp := room.Slot(i), room.Slot(session.Opponent(i))
	snap := events.SessionSnapshot{
		SelfID:      self.ConnID,
		OpponentID:  opp.ConnID,
		IsInitiator: i == 0,
		Mode:        string(room.Mode),
		Round:       room.Round,
		Ready: map[string]bool{
			self.ConnID: self.Ready,
			opp.ConnID:  opp.Ready,
		},
		Submitted: map[string]bool{
			self.ConnID: self.Result.Submitted,
			opp.ConnID:  opp.Result.Submitted,
		},
	}
	if room.Mode == session.ModeSeries {
		snap.SeriesScores = map[string]int{
			self.ConnID: self.SeriesScore,
			opp.ConnID:  opp.SeriesScore,
		}
	}
	if !room.CountdownStart.IsZero() {
		snap.CountdownStartTime = room.CountdownStart.UnixMilli()
		snap.DurationMs = room.Rules().ActivityDuration.Milliseconds()
	}
	if !room.DeadlineAt.IsZero() {
		snap.DeadlineTime = room.DeadlineAt.UnixMilli()
	}
	return snap
}
