package convo

import (
	"encoding/json"
	"fmt"
)

const (
	ProtocolVersion = 1

	inboundConnect     = "connect"
	inboundSubscribe   = "subscribe"
	inboundUnsubscribe = "unsubscribe"
	inboundSend        = "send"

	outboundMessage = "message"
	outboundError   = "error"
)

// Inbound is the frame envelope client -> server.
type Inbound struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	Destination string `json:"destination,omitempty"`
	Data        any    `json:"data,omitempty"`
}

// Outbound is the frame envelope server -> client. Pushed messages carry the
// destination they were published on so the client can route them.
type Outbound struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       *Error          `json:"error,omitempty"`
}

// ConnectPayload initiates the session. The token is the bearer credential
// issued by the auth endpoints.
type ConnectPayload struct {
	Protocol int    `json:"protocol,omitempty"`
	Token    string `json:"token,omitempty"`
	User     string `json:"user,omitempty"`
}

// Error describes a protocol error frame.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}

// Destination naming mirrors the Convo server's routes and must match it
// exactly for interop.
const (
	roomTopicPrefix   = "/topic/room/"
	typingTopicPrefix = "/topic/typing/"
)

func roomTopic(roomID int64) string   { return fmt.Sprintf("%s%d", roomTopicPrefix, roomID) }
func typingTopic(roomID int64) string { return fmt.Sprintf("%s%d", typingTopicPrefix, roomID) }
func chatDest(roomID int64) string    { return fmt.Sprintf("/app/chat/%d", roomID) }
func typingDest(roomID int64) string  { return fmt.Sprintf("/app/typing/%d", roomID) }
func joinDest(roomID int64) string    { return fmt.Sprintf("/app/join/%d", roomID) }
func leaveDest(roomID int64) string   { return fmt.Sprintf("/app/leave/%d", roomID) }
