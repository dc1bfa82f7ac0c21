package events

import "encoding/json"

// Type is the name carried in every message envelope
type Type string

// Inbound message types
const (
	TypeJoinQueue            Type = "join-queue"
	TypeLeaveQueue           Type = "leave-queue"
	TypeNegotiationOffer     Type = "negotiation-offer"
	TypeNegotiationAnswer    Type = "negotiation-answer"
	TypeNetworkCandidate     Type = "network-candidate"
	TypeReadySignal          Type = "ready-signal"
	TypeSubmitReferenceImage Type = "submit-reference-image"
	TypeSubmitResult         Type = "submit-result"
	TypeRematchRequest       Type = "rematch-request"
	TypeRematchAccept        Type = "rematch-accept"
	TypeRematchDecline       Type = "rematch-decline"
	TypeNextRoundReady       Type = "next-round-ready"
	TypeLeaveSession         Type = "leave-session"
	TypeRejoinSession        Type = "rejoin-session"
	TypeGetNegotiationConfig Type = "get-negotiation-config"
)

// Outbound message types
const (
	TypeConnected              Type = "connected"
	TypeQueueJoined            Type = "queue-joined"
	TypeMatched                Type = "matched"
	TypeReadyState             Type = "ready-state"
	TypeActivityStart          Type = "activity-start"
	TypeOpponentReferenceImage Type = "opponent-reference-image"
	TypeSubmitAck              Type = "submit-ack"
	TypeOpponentSubmitted      Type = "opponent-submitted"
	TypeReveal                 Type = "reveal"
	TypeRematchRequested       Type = "rematch-requested"
	TypeRematchAccepted        Type = "rematch-accepted"
	TypeRematchDeclined        Type = "rematch-declined"
	TypeOpponentDisconnected   Type = "opponent-disconnected"
	TypeOpponentReconnected    Type = "opponent-reconnected"
	TypeOpponentLeft           Type = "opponent-left"
	TypeRejoinSuccess          Type = "rejoin-success"
	TypeRejoinFailed           Type = "rejoin-failed"
	TypeNegotiationConfig      Type = "negotiation-config"
	TypeError                  Type = "error"
)

// Envelope is the raw {type, data} frame as read off the wire
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame. Data is marshalled as-is.
type Message struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// NewMessage builds an outbound message
func NewMessage(t Type, data any) Message {
	return Message{Type: t, Data: data}
}

// IsNegotiation reports whether t is one of the relayed peer-connection negotiation types
func IsNegotiation(t Type) bool {
	switch t {
	case TypeNegotiationOffer, TypeNegotiationAnswer, TypeNetworkCandidate:
		return true
	}
	return false
}
