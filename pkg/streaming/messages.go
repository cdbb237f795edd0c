package streaming

import (
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/tarkov-map/tracker/pkg/core"
)

// Message type constants of the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypePosition     = "position"
	TypeEvent        = "event"
	TypeStatus       = "status"
	TypeHello        = "hello"
	TypeCommand      = "command"
	TypeCommandReply = "command_reply"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a recording session.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// HelloPayload is sent to a stream client right after it connects.
type HelloPayload struct {
	MapID    string   `json:"mapId"`
	Commands []string `json:"commands"`
}

// CommandPayload is a control command sent by a stream client.
type CommandPayload struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// CommandReplyPayload answers a CommandPayload.
type CommandReplyPayload struct {
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(Envelope{Type: msgType, Payload: raw})
}

// PositionPayload is a published position.
type PositionPayload = core.TrackedPosition

// Unmarshal decodes an Envelope and, when out is non-nil, its payload.
func Unmarshal(data []byte, out any) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return env, err
	}
	if out != nil && len(env.Payload) > 0 {
		if err := sonic.Unmarshal(env.Payload, out); err != nil {
			return env, err
		}
	}
	return env, nil
}
