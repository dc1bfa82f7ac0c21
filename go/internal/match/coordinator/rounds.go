package coordinator

import (
	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/metrics"
	"github.com/m-maciver/split-the-g/go/internal/match/outbox"
	"github.com/m-maciver/split-the-g/go/internal/match/session"
)

func (c *Coordinator) ready(connID string) {
	room, i, err := c.seat(connID)
	if err != nil {
		c.reject(connID, err)
		return
	}
	changed, started := room.SetReady(i, c.clock.Now())
	if !changed {
		return
	}
	c.broadcastReady(room)
	if started {
		c.broadcastActivityStart(room)
	}
}

func (c *Coordinator) nextRoundReady(connID string) {
	room, i, err := c.seat(connID)
	if err != nil {
		c.reject(connID, err)
		return
	}
	changed, started, err := room.NextRoundReady(i, c.clock.Now())
	if err != nil {
		c.reject(connID, err)
		return
	}
	if !changed {
		return
	}
	c.broadcastReady(room)
	if started {
		c.broadcastActivityStart(room)
	}
}

func (c *Coordinator) broadcastReady(room *session.Room) {
	ready := make(map[string]bool, 2)
	for i := 0; i < 2; i++ {
		s := room.Slot(i)
		ready[s.ConnID] = s.Ready
	}
	c.broadcast(room, events.NewMessage(events.TypeReadyState, events.ReadyStatePayload{Ready: ready}))
}

func (c *Coordinator) broadcastActivityStart(room *session.Room) {
	c.broadcast(room, events.NewMessage(events.TypeActivityStart, events.ActivityStartPayload{
		CountdownStartTime: room.CountdownStart.UnixMilli(),
		DurationMs:         room.Rules().ActivityDuration.Milliseconds(),
		Round:              room.Round,
	}))
	log.Info().
		Str("session_id", room.ID).
		Int("round", room.Round).
		Time("countdown_start", room.CountdownStart).
		Msg("countdown started")
}

func (c *Coordinator) referenceImage(connID string, cmd events.SubmitReferenceImage) {
	if len(cmd.Artifact) > c.config.Rules.MaxArtifactBytes {
		c.reject(connID, session.ErrArtifactTooLarge)
		return
	}
	room, i, err := c.seat(connID)
	if err != nil {
		// held until the connection is paired
		c.registry.SetReferenceImage(connID, cmd.Artifact)
		return
	}
	if err := room.SetReferenceImage(i, cmd.Artifact); err != nil {
		c.reject(connID, err)
		return
	}
	c.send(room.ConnID(session.Opponent(i)), events.NewMessage(events.TypeOpponentReferenceImage,
		events.ReferenceImagePayload{Artifact: cmd.Artifact}))
}

func (c *Coordinator) submit(connID string, cmd events.SubmitResult) {
	room, i, err := c.seat(connID)
	if err != nil {
		c.reject(connID, err)
		return
	}
	out, err := room.Submit(i, cmd.Artifact, cmd.Score, c.clock.Now())
	if err != nil {
		c.reject(connID, err)
		return
	}

	if out.StartDeadline {
		roomID := room.ID
		room.ArmDeadline(c.sched.After(room.Rules().ResultDeadline, func() {
			c.deadlineExpired(roomID)
		}))
	}

	deadline := events.DeadlinePayload{DeadlineTime: out.Deadline.UnixMilli()}
	c.send(connID, events.NewMessage(events.TypeSubmitAck, deadline))
	c.send(room.ConnID(session.Opponent(i)), events.NewMessage(events.TypeOpponentSubmitted, deadline))

	if out.Reveal != nil {
		c.reveal(room, out.Reveal)
	}
}

func (c *Coordinator) deadlineExpired(roomID string) {
	room, ok := c.rooms[roomID]
	if !ok {
		return
	}
	out, ok := room.Forfeit()
	if !ok {
		return
	}
	for _, r := range out.Results {
		if r.Forfeited {
			metrics.Forfeits.Inc()
		}
	}
	log.Info().Str("session_id", roomID).Int("round", out.Round).Msg("result deadline expired")
	c.reveal(room, out)
}

func (c *Coordinator) reveal(room *session.Room, out *session.Outcome) {
	results := make(map[string]events.ResultView, 2)
	scores := make(map[string]float64, 2)
	forfeit := false
	for i, r := range out.Results {
		results[out.ConnIDs[i]] = events.ResultView{
			Artifact:  r.Artifact,
			Score:     r.Score,
			Forfeited: r.Forfeited,
		}
		scores[out.ConnIDs[i]] = r.Score
		forfeit = forfeit || r.Forfeited
	}

	payload := events.RevealPayload{
		Round:     out.Round,
		Results:   results,
		WinnerID:  slotID(out.ConnIDs, out.Winner),
		Player1ID: out.ConnIDs[0],
		Player2ID: out.ConnIDs[1],
	}
	if s := out.Series; s != nil {
		payload.Series = &events.SeriesView{
			Round: s.Round,
			Scores: map[string]int{
				out.ConnIDs[0]: s.Scores[0],
				out.ConnIDs[1]: s.Scores[1],
			},
			SeriesOver:   s.Over,
			SeriesWinner: slotID(out.ConnIDs, s.Winner),
		}
	}
	c.broadcast(room, events.NewMessage(events.TypeReveal, payload))

	metrics.RoundsRevealed.Inc()
	log.Info().
		Str("session_id", room.ID).
		Int("round", out.Round).
		Int("winner_slot", out.Winner).
		Bool("forfeit", forfeit).
		Msg("round revealed")

	c.emit(room.ID, outbox.EventRoundRevealed, outbox.RoundRevealedPayload{
		SessionID:  room.ID,
		Round:      out.Round,
		Scores:     scores,
		WinnerID:   payload.WinnerID,
		Forfeit:    forfeit,
		SeriesOver: out.Series != nil && out.Series.Over,
	})
}

// slotID returns the handle in slot i, or nil for a tie
func slotID(ids [2]string, i int) *string {
	if i < 0 || i > 1 {
		return nil
	}
	id := ids[i]
	return &id
}

func (c *Coordinator) requestRematch(connID string) {
	room, i, err := c.seat(connID)
	if err != nil {
		c.reject(connID, err)
		return
	}
	accepted, err := room.RequestRematch(i)
	if err != nil {
		c.reject(connID, err)
		return
	}
	if accepted {
		c.rematchAccepted(room)
		return
	}
	c.send(room.ConnID(session.Opponent(i)), events.NewMessage(events.TypeRematchRequested,
		events.FromPayload{From: connID}))
}

func (c *Coordinator) acceptRematch(connID string) {
	room, i, err := c.seat(connID)
	if err != nil {
		c.reject(connID, err)
		return
	}
	if err := room.AcceptRematch(i); err != nil {
		c.reject(connID, err)
		return
	}
	c.rematchAccepted(room)
}

func (c *Coordinator) rematchAccepted(room *session.Room) {
	c.broadcast(room, events.NewMessage(events.TypeRematchAccepted, nil))
	log.Info().Str("session_id", room.ID).Msg("rematch accepted")
}

func (c *Coordinator) declineRematch(connID string) {
	room, i, err := c.seat(connID)
	if err != nil {
		c.reject(connID, err)
		return
	}
	if err := room.DeclineRematch(i); err != nil {
		c.reject(connID, err)
		return
	}
	c.send(room.ConnID(session.Opponent(i)), events.NewMessage(events.TypeRematchDeclined, nil))
	c.teardown(room, outbox.ReasonDeclined)
}

func (c *Coordinator) leaveSession(connID string) {
	room, i, err := c.seat(connID)
	if err != nil {
		c.reject(connID, err)
		return
	}
	c.send(room.ConnID(session.Opponent(i)), events.NewMessage(events.TypeOpponentLeft, nil))
	c.teardown(room, outbox.ReasonLeft)
}

// teardown closes room, cancels its timers and drops it from every index
func (c *Coordinator) teardown(room *session.Room, reason string) {
	room.Close()
	delete(c.rooms, room.ID)
	for i := 0; i < 2; i++ {
		id := room.ConnID(i)
		if bound, ok := c.registry.RoomOf(id); ok && bound == room.ID {
			c.registry.Unbind(id)
		}
	}

	age := c.clock.Since(room.CreatedAt)
	metrics.SessionsClosed.WithLabelValues(reason).Inc()
	log.Info().
		Str("session_id", room.ID).
		Str("reason", reason).
		Dur("age", age).
		Msg("session closed")

	c.emit(room.ID, outbox.EventSessionClosed, outbox.SessionClosedPayload{
		SessionID: room.ID,
		Reason:    reason,
		Round:     room.Round,
		AgeMs:     age.Milliseconds(),
	})
}
