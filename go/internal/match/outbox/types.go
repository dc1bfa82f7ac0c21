// Package outbox publishes session lifecycle events to an event bus.
//
// The coordinator loop must never block on the network, so it hands events to
// a Relay with a non-blocking Enqueue and a separate goroutine publishes them.
// Events are best effort: nothing is persisted and a full buffer drops.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventSessionCreated = "SessionCreated"
	EventRoundRevealed  = "RoundRevealed"
	EventSessionClosed  = "SessionClosed"
)

// Close reasons carried by SessionClosed
const (
	ReasonLeft         = "left"
	ReasonDeclined     = "declined"
	ReasonGraceExpired = "grace_expired"
	ReasonReaped       = "reaped"
	ReasonShutdown     = "shutdown"
)

type Event struct {
	ID        uuid.UUID
	SessionID string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type SessionCreatedPayload struct {
	SessionID string `json:"sessionId"`
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
	Mode      string `json:"mode"`
}

type RoundRevealedPayload struct {
	SessionID  string             `json:"sessionId"`
	Round      int                `json:"round"`
	Scores     map[string]float64 `json:"scores"`
	WinnerID   *string            `json:"winnerId"`
	Forfeit    bool               `json:"forfeit"`
	SeriesOver bool               `json:"seriesOver,omitempty"`
}

type SessionClosedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
	Round     int    `json:"round"`
	AgeMs     int64  `json:"ageMs"`
}

// NewEvent marshals payload into a fresh event
func NewEvent(sessionID, eventType string, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: now,
	}, nil
}
