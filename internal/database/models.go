package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          int
	ExternalId  string
	Name        string
	Description string
	OwnerId     int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChatRoom is the 1:1 chat record for a room. It outlives the parent
// room row so message history survives room deletion; once IsActive is
// false it is never reactivated.
type ChatRoom struct {
	RoomId            int
	LastMessageAt     sql.NullTime
	TotalMessageCount int64
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ChatMessage struct {
	Id                int64
	RoomId            int
	AuthorId          sql.NullInt64
	Content           string
	MessageType       string
	IsEdited          bool
	OriginalMessageId sql.NullInt64
	CreatedAt         time.Time
	DeletedAt         sql.NullTime
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string
	Description string
	OwnerId     int
	ExternalId  string
}

type CreateMessageParams struct {
	RoomId      int
	AuthorId    int
	Content     string
	MessageType string
}

// MessageCursor points at the last row of the previous page. Both
// fields come from that row; the pair is unique because ids are never
// reissued.
type MessageCursor struct {
	LastMessageId int64
	LastCreatedAt time.Time
}

type MessagePage struct {
	Messages []ChatMessage
	HasNext  bool
}
