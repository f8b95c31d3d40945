package rest

import (
	"encoding/json"
	"time"

	"github.com/jameselner/convo-client-go/convo/internal"
)

// Time decodes the server's wire timestamp formats (zoneless ISO local
// date-time or RFC3339).
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
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

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(internal.WireTimeLayout))
}

// Authentication types

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse contains the bearer token returned after successful
// authentication.
type TokenResponse struct {
	Token string `json:"token"`
}

// Room types

// RoomType represents the type of a room.
type RoomType string

const (
	RoomTypePublic  RoomType = "PUBLIC"
	RoomTypePrivate RoomType = "PRIVATE"
	RoomTypeDirect  RoomType = "DIRECT_MESSAGE"
)

// RoomInfo represents room metadata.
type RoomInfo struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        RoomType `json:"type"`
	CreatedAt   Time     `json:"createdAt"`
	MemberCount int      `json:"memberCount"`
}

// CreateRoomRequest is the request body for creating or updating a room.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Message history types

// ChatMessage is the message DTO shared by the history, search, and oracle
// endpoints.
type ChatMessage struct {
	ID             int64  `json:"id,omitempty"`
	ChatRoomID     int64  `json:"chatRoomId"`
	SenderID       int64  `json:"senderId,omitempty"`
	SenderUsername string `json:"senderUsername"`
	SenderAvatar   string `json:"senderAvatar,omitempty"`
	Content        string `json:"content,omitempty"`
	Type           string `json:"type"`
	Timestamp      Time   `json:"timestamp"`
	Edited         bool   `json:"edited,omitempty"`
	ReadByCount    int    `json:"readByCount,omitempty"`
}

// PagedMessages is one page of room history. Content is newest-first within
// the page; Number is the zero-based page index.
type PagedMessages struct {
	Content       []ChatMessage `json:"content"`
	TotalElements int64         `json:"totalElements"`
	TotalPages    int           `json:"totalPages"`
	Size          int           `json:"size"`
	Number        int           `json:"number"`
}

// OracleRequest is the request body for asking the oracle in a room.
type OracleRequest struct {
	Question string `json:"question,omitempty"`
}

// StatusRequest updates the user's presence status.
type StatusRequest struct {
	Status string `json:"status"` // ONLINE or OFFLINE
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
