package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed is returned when a frame is not a valid envelope
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for envelope types the server does not accept
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalidPayload is returned when required fields are missing or invalid
	ErrInvalidPayload = errors.New("invalid payload")
)

// Command is a decoded, validated inbound message
type Command interface {
	Type() Type
}

type JoinQueue struct {
	DisplayName string
	Mode        string
}

type LeaveQueue struct{}

// Negotiation is any of the three relayed peer-connection messages
type Negotiation struct {
	Kind    Type
	Payload json.RawMessage
}

type ReadySignal struct{}

type SubmitReferenceImage struct {
	Artifact string
}

type SubmitResult struct {
	Artifact string
	Score    float64
}

type RematchRequest struct{}

type RematchAccept struct{}

type RematchDecline struct{}

type NextRoundReady struct{}

type LeaveSession struct{}

type RejoinSession struct {
	SessionID            string
	PreviousConnectionID string
}

type GetNegotiationConfig struct{}

func (JoinQueue) Type() Type            { return TypeJoinQueue }
func (LeaveQueue) Type() Type           { return TypeLeaveQueue }
func (n Negotiation) Type() Type        { return n.Kind }
func (ReadySignal) Type() Type          { return TypeReadySignal }
func (SubmitReferenceImage) Type() Type { return TypeSubmitReferenceImage }
func (SubmitResult) Type() Type         { return TypeSubmitResult }
func (RematchRequest) Type() Type       { return TypeRematchRequest }
func (RematchAccept) Type() Type        { return TypeRematchAccept }
func (RematchDecline) Type() Type       { return TypeRematchDecline }
func (NextRoundReady) Type() Type       { return TypeNextRoundReady }
func (LeaveSession) Type() Type         { return TypeLeaveSession }
func (RejoinSession) Type() Type        { return TypeRejoinSession }
func (GetNegotiationConfig) Type() Type { return TypeGetNegotiationConfig }

// wire shapes, kept private so only validated commands leave this package
type joinQueueData struct {
	DisplayName string `json:"displayName"`
	Mode        string `json:"mode"`
}

type negotiationData struct {
	Payload json.RawMessage `json:"payload"`
}

type artifactData struct {
	Artifact string `json:"artifact"`
}

type submitResultData struct {
	Artifact string   `json:"artifact"`
	Score    *float64 `json:"score"`
}

type rejoinData struct {
	SessionID            string `json:"sessionId"`
	PreviousConnectionID string `json:"previousConnectionId"`
}

// Decode parses a raw frame into a typed Command
func Decode(raw []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope validates an already-split envelope
func DecodeEnvelope(env Envelope) (Command, error) {
	switch env.Type {
	case TypeJoinQueue:
		var d joinQueueData
		if err := unmarshalOptional(env.Data, &d); err != nil {
			return nil, err
		}
		mode := strings.ToLower(strings.TrimSpace(d.Mode))
		if mode != "" && mode != "single" && mode != "series" {
			return nil, fmt.Errorf("%w: unsupported mode %q", ErrInvalidPayload, d.Mode)
		}
		return JoinQueue{DisplayName: d.DisplayName, Mode: mode}, nil

	case TypeLeaveQueue:
		return LeaveQueue{}, nil

	case TypeNegotiationOffer, TypeNegotiationAnswer, TypeNetworkCandidate:
		var d negotiationData
		if err := unmarshalRequired(env.Data, &d); err != nil {
			return nil, err
		}
		if len(d.Payload) == 0 || string(d.Payload) == "null" {
			return nil, fmt.Errorf("%w: payload is required", ErrInvalidPayload)
		}
		return Negotiation{Kind: env.Type, Payload: d.Payload}, nil

	case TypeReadySignal:
		return ReadySignal{}, nil

	case TypeSubmitReferenceImage:
		var d artifactData
		if err := unmarshalRequired(env.Data, &d); err != nil {
			return nil, err
		}
		return SubmitReferenceImage{Artifact: d.Artifact}, nil

	case TypeSubmitResult:
		var d submitResultData
		if err := unmarshalRequired(env.Data, &d); err != nil {
			return nil, err
		}
		if d.Score == nil {
			return nil, fmt.Errorf("%w: score is required", ErrInvalidPayload)
		}
		return SubmitResult{Artifact: d.Artifact, Score: *d.Score}, nil

	case TypeRematchRequest:
		return RematchRequest{}, nil
	case TypeRematchAccept:
		return RematchAccept{}, nil
	case TypeRematchDecline:
		return RematchDecline{}, nil
	case TypeNextRoundReady:
		return NextRoundReady{}, nil
	case TypeLeaveSession:
		return LeaveSession{}, nil

	case TypeRejoinSession:
		var d rejoinData
		if err := unmarshalRequired(env.Data, &d); err != nil {
			return nil, err
		}
		if d.SessionID == "" || d.PreviousConnectionID == "" {
			return nil, fmt.Errorf("%w: sessionId and previousConnectionId are required", ErrInvalidPayload)
		}
		return RejoinSession{SessionID: d.SessionID, PreviousConnectionID: d.PreviousConnectionID}, nil

	case TypeGetNegotiationConfig:
		return GetNegotiationConfig{}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
}

func unmarshalOptional(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func unmarshalRequired(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: data is required", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
