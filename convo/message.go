package convo

import (
	"encoding/json"
	"time"

	"github.com/jameselner/convo-client-go/convo/internal"
	"github.com/jameselner/convo-client-go/convo/rest"
)

// MessageType classifies a message on a room's topics.
type MessageType string

const (
	MessageChat       MessageType = "CHAT"
	MessageJoin       MessageType = "JOIN"
	MessageLeave      MessageType = "LEAVE"
	MessageTyping     MessageType = "TYPING"
	MessageStopTyping MessageType = "STOP_TYPING"
	MessageOracle     MessageType = "ORACLE"
	MessageSystem     MessageType = "SYSTEM"
)

// Message is one entry in a room's message stream. The ID is assigned by the
// server when the message is persisted; join/leave notices and typing events
// are never persisted and carry no ID.
type Message struct {
	ID             int64       `json:"id,omitempty"`
	ChatRoomID     int64       `json:"chatRoomId"`
	SenderID       int64       `json:"senderId,omitempty"`
	SenderUsername string      `json:"senderUsername"`
	SenderAvatar   string      `json:"senderAvatar,omitempty"`
	Content        string      `json:"content,omitempty"`
	Type           MessageType `json:"type"`
	Timestamp      Timestamp   `json:"timestamp,omitzero"`
	Edited         bool        `json:"edited,omitempty"`
	ReadByCount    int         `json:"readByCount,omitempty"`
}

// Timestamp wraps time.Time so the server's wire formats decode directly into
// a structured time value.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	ts, err := internal.ParseWireTime(s)
	if err != nil {
		return err
	}
	t.Time = ts
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(internal.WireTimeLayout))
}

// messageFromHistory converts a history DTO into a Message. Timestamps are
// already normalized by the rest package decoder.
func messageFromHistory(m rest.ChatMessage) Message {
	return Message{
		ID:             m.ID,
		ChatRoomID:     m.ChatRoomID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		SenderAvatar:   m.SenderAvatar,
		Content:        m.Content,
		Type:           MessageType(m.Type),
		Timestamp:      Timestamp{m.Timestamp.Time},
		Edited:         m.Edited,
		ReadByCount:    m.ReadByCount,
	}
}
