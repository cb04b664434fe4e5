package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studyhall/studyhall/internal/types"
)

func TestClientMessageUnmarshal(t *testing.T) {
	tcases := []struct {
		name  string
		raw   string
		check func(t *testing.T, msg ClientMessage)
	}{
		{
			name: "subscribe",
			raw:  `{"id":1,"subscribe":{"room_id":"abc"}}`,
			check: func(t *testing.T, msg ClientMessage) {
				require.NotNil(t, msg.Subscribe)
				assert.Equal(t, "abc", msg.Subscribe.RoomId)
				assert.Equal(t, 1, msg.Id)
			},
		},
		{
			name: "send with explicit type",
			raw:  `{"id":2,"send":{"room_id":"abc","content":"hi","message_type":"FOCUS_START"}}`,
			check: func(t *testing.T, msg ClientMessage) {
				require.NotNil(t, msg.Send)
				assert.Equal(t, "hi", msg.Send.Content)
				assert.Equal(t, types.MessageTypeFocusStart, msg.Send.MessageType)
			},
		},
		{
			name: "join",
			raw:  `{"join":{"room_id":"abc"}}`,
			check: func(t *testing.T, msg ClientMessage) {
				require.NotNil(t, msg.Join)
				assert.Nil(t, msg.Subscribe)
				assert.Nil(t, msg.Send)
			},
		},
		{
			name: "no command",
			raw:  `{"id":9}`,
			check: func(t *testing.T, msg ClientMessage) {
				assert.Nil(t, msg.Subscribe)
				assert.Nil(t, msg.Unsubscribe)
				assert.Nil(t, msg.Send)
				assert.Nil(t, msg.Join)
				assert.Nil(t, msg.Leave)
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var msg ClientMessage
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &msg))
			tc.check(t, msg)
		})
	}
}

func TestResponseConstructors(t *testing.T) {
	tcases := []struct {
		name         string
		msg          *ServerMessage
		expectedCode int
		expectedErr  string
	}{
		{"ok", NoErrOK(1, map[string]any{"room_id": "abc"}), 200, ""},
		{"accepted", NoErrAccepted(2), 202, ""},
		{"room not found", ErrRoomNotFound(3), 404, "room not found"},
		{"internal error", ErrInternalError(4), 500, "internal server error"},
		{"service unavailable", ErrServiceUnavailable(5), 503, "service unavailable"},
		{"invalid message", ErrInvalidMessage(6), 400, "invalid message format"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotNil(t, tc.msg.Response)
			assert.Equal(t, tc.expectedCode, tc.msg.Response.ResponseCode)
			assert.Equal(t, tc.expectedErr, tc.msg.Response.Error)
			assert.False(t, tc.msg.Timestamp.IsZero())
		})
	}
}

func TestErrInvalidMessage_idHandling(t *testing.T) {
	assert.Equal(t, 6, ErrInvalidMessage(6).Id)
	assert.Zero(t, ErrInvalidMessage(0).Id)
}
