package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Command
		wantErr error
	}{
		{
			name: "join queue with name and mode",
			raw:  `{"type":"join-queue","data":{"displayName":"Ana","mode":"Series"}}`,
			want: JoinQueue{DisplayName: "Ana", Mode: "series"},
		},
		{
			name: "join queue without data",
			raw:  `{"type":"join-queue"}`,
			want: JoinQueue{},
		},
		{
			name:    "join queue with unknown mode",
			raw:     `{"type":"join-queue","data":{"mode":"best-of-7"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name: "submit result",
			raw:  `{"type":"submit-result","data":{"artifact":"data:image/png;base64,AA==","score":92.5}}`,
			want: SubmitResult{Artifact: "data:image/png;base64,AA==", Score: 92.5},
		},
		{
			name:    "submit result without score",
			raw:     `{"type":"submit-result","data":{"artifact":"x"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name: "rejoin",
			raw:  `{"type":"rejoin-session","data":{"sessionId":"s1","previousConnectionId":"c1"}}`,
			want: RejoinSession{SessionID: "s1", PreviousConnectionID: "c1"},
		},
		{
			name:    "rejoin missing previous id",
			raw:     `{"type":"rejoin-session","data":{"sessionId":"s1"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "negotiation without payload",
			raw:     `{"type":"negotiation-offer","data":{}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "unknown type",
			raw:     `{"type":"cheat","data":{}}`,
			wantErr: ErrUnknownType,
		},
		{
			name:    "not json",
			raw:     `hello`,
			wantErr: ErrMalformed,
		},
		{
			name:    "missing type",
			raw:     `{"data":{}}`,
			wantErr: ErrMalformed,
		},
		{
			name: "leave session",
			raw:  `{"type":"leave-session"}`,
			want: LeaveSession{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeNegotiationKeepsPayloadVerbatim(t *testing.T) {
	raw := `{"type":"network-candidate","data":{"payload":{"candidate":"candidate:1 1 udp 2122260223 10.0.0.2 54400 typ host","sdpMid":"0"}}}`

	cmd, err := Decode([]byte(raw))
	require.NoError(t, err)

	n, ok := cmd.(Negotiation)
	require.True(t, ok)
	assert.Equal(t, TypeNetworkCandidate, n.Type())
	assert.JSONEq(t, `{"candidate":"candidate:1 1 udp 2122260223 10.0.0.2 54400 typ host","sdpMid":"0"}`, string(n.Payload))
}

func TestMessageMarshal(t *testing.T) {
	msg := NewMessage(TypeQueueJoined, QueueJoinedPayload{Position: 2})
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"queue-joined","data":{"position":2}}`, string(data))

	data, err = json.Marshal(NewMessage(TypeOpponentLeft, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"opponent-left"}`, string(data))
}
