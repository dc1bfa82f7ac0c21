package events

import "encoding/json"

// Payload types shared between the coordinator and the gateway.
// Timestamps are unix milliseconds so browser clients can compare them with Date.now().

// ConnectedPayload greets a new connection with its handle
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

// QueueJoinedPayload acknowledges join-queue
type QueueJoinedPayload struct {
	Position int `json:"position"`
}

// MatchedPayload is sent to each side of a new session
type MatchedPayload struct {
	SessionID              string `json:"sessionId"`
	SelfID                 string `json:"selfId"`
	OpponentID             string `json:"opponentId"`
	IsInitiator            bool   `json:"isInitiator"`
	Mode                   string `json:"mode"`
	OpponentMode           string `json:"opponentMode"`
	OpponentName           string `json:"opponentName"`
	OpponentReferenceImage string `json:"opponentReferenceImage,omitempty"`
}

// RelayPayload carries an opaque negotiation blob between peers
type RelayPayload struct {
	Payload json.RawMessage `json:"payload"`
	From    string          `json:"from,omitempty"`
}

// ReadyStatePayload broadcasts both ready flags keyed by connection id
type ReadyStatePayload struct {
	Ready map[string]bool `json:"ready"`
}

// ActivityStartPayload is the shared countdown anchor
type ActivityStartPayload struct {
	CountdownStartTime int64 `json:"countdownStartTime"`
	DurationMs         int64 `json:"durationMs"`
	Round              int   `json:"round"`
}

// ReferenceImagePayload forwards a pre-activity artifact to the opponent
type ReferenceImagePayload struct {
	Artifact string `json:"artifact"`
}

// DeadlinePayload is used by submit-ack and opponent-submitted
type DeadlinePayload struct {
	DeadlineTime int64 `json:"deadlineTime"`
}

// ResultView is one slot's result as shown in reveal
type ResultView struct {
	Artifact  string  `json:"artifact,omitempty"`
	Score     float64 `json:"score"`
	Forfeited bool    `json:"forfeited,omitempty"`
}

// SeriesView is attached to reveal in series mode
type SeriesView struct {
	Round        int            `json:"round"`
	Scores       map[string]int `json:"scores"`
	SeriesOver   bool           `json:"seriesOver"`
	SeriesWinner *string        `json:"seriesWinner"`
}

// RevealPayload is the outcome of a round
type RevealPayload struct {
	Round     int                   `json:"round"`
	Results   map[string]ResultView `json:"results"`
	WinnerID  *string               `json:"winnerId"`
	Player1ID string                `json:"player1Id"`
	Player2ID string                `json:"player2Id"`
	Series    *SeriesView           `json:"series,omitempty"`
}

// FromPayload names the connection that triggered a notification
type FromPayload struct {
	From string `json:"from"`
}

// OpponentReconnectedPayload tells the remaining player the opponent's new handle
type OpponentReconnectedPayload struct {
	OpponentID string `json:"opponentId"`
}

// SessionSnapshot lets a rejoining client rebuild its local view
type SessionSnapshot struct {
	SelfID             string          `json:"selfId"`
	OpponentID         string          `json:"opponentId"`
	IsInitiator        bool            `json:"isInitiator"`
	Mode               string          `json:"mode"`
	Round              int             `json:"round"`
	Ready              map[string]bool `json:"ready"`
	Submitted          map[string]bool `json:"submitted"`
	SeriesScores       map[string]int  `json:"seriesScores,omitempty"`
	CountdownStartTime int64           `json:"countdownStartTime,omitempty"`
	DurationMs         int64           `json:"durationMs,omitempty"`
	DeadlineTime       int64           `json:"deadlineTime,omitempty"`
}

// RejoinSuccessPayload acknowledges a valid rejoin
type RejoinSuccessPayload struct {
	SessionID    string          `json:"sessionId"`
	CurrentState string          `json:"currentState"`
	Snapshot     SessionSnapshot `json:"snapshot"`
}

// RejoinFailedPayload tells the client to abandon its local session state
type RejoinFailedPayload struct {
	Reason string `json:"reason"`
}

// ICEServer is one relay-server descriptor for peer-connection setup
type ICEServer struct {
	URLs       []string `json:"urls" yaml:"urls"`
	Username   string   `json:"username,omitempty" yaml:"username"`
	Credential string   `json:"credential,omitempty" yaml:"credential"`
}

// NegotiationConfigPayload answers get-negotiation-config
type NegotiationConfigPayload struct {
	ICEServers []ICEServer `json:"iceServers"`
}

// Error codes carried by ErrorPayload
const (
	CodeBadRequest       = "bad_request"
	CodeValidation       = "validation"
	CodeRateLimited      = "rate_limited"
	CodeState            = "state"
	CodeAlreadyInSession = "already_in_session"
	CodeNotInSession     = "not_in_session"
)

// ErrorPayload is only ever sent to the originator of the failed request
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// NewError builds an error message
func NewError(code, message string) Message {
	return NewMessage(TypeError, ErrorPayload{Message: message, Code: code})
}
