package types

import (
	"time"
)

// MessageType classifies a persisted chat message.
type MessageType string

const (
	MessageTypeChat        MessageType = "CHAT"
	MessageTypeUserJoin    MessageType = "USER_JOIN"
	MessageTypeUserLeave   MessageType = "USER_LEAVE"
	MessageTypeSystem      MessageType = "SYSTEM"
	MessageTypeFocusStart  MessageType = "FOCUS_START"
	MessageTypeBreakStart  MessageType = "BREAK_START"
	MessageTypeRoomDeleted MessageType = "ROOM_DELETED"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeChat, MessageTypeUserJoin, MessageTypeUserLeave,
		MessageTypeSystem, MessageTypeFocusStart, MessageTypeBreakStart,
		MessageTypeRoomDeleted:
		return true
	}
	return false
}

// BroadcastType classifies an event published to a room topic or a
// user's private queue.
type BroadcastType string

const (
	BroadcastNewMessage  BroadcastType = "NEW_MESSAGE"
	BroadcastUserJoin    BroadcastType = "USER_JOIN"
	BroadcastUserLeave   BroadcastType = "USER_LEAVE"
	BroadcastRoomDeleted BroadcastType = "ROOM_DELETED"
	BroadcastError       BroadcastType = "ERROR"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id          int       `json:"id"`
	ExternalId  string    `json:"external_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerId     int       `json:"owner_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id                int64       `json:"id"`
	RoomId            string      `json:"room_id"`
	UserId            int         `json:"user_id,omitempty"`
	Username          string      `json:"username,omitempty"`
	Content           string      `json:"content"`
	MessageType       MessageType `json:"message_type"`
	IsEdited          bool        `json:"is_edited,omitempty"`
	OriginalMessageId int64       `json:"original_message_id,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// ChatEvent is the payload fanned out to room subscribers and, for
// errors, to a single user's private queue.
type ChatEvent struct {
	MessageId     int64             `json:"message_id,omitempty"`
	RoomId        string            `json:"room_id"`
	UserId        int               `json:"user_id,omitempty"`
	DisplayName   string            `json:"display_name,omitempty"`
	Content       string            `json:"content"`
	MessageType   MessageType       `json:"message_type"`
	Timestamp     time.Time         `json:"timestamp"`
	BroadcastType BroadcastType     `json:"broadcast_type"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
