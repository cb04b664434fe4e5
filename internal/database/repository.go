package database

import (
	"errors"
	"time"
)

var (
	// ErrNotFound covers both a missing row and a row the caller is not
	// allowed to touch; callers must not treat it as success.
	ErrNotFound = errors.New("not found")
	// ErrRoomInactive marks writes against a deactivated chat room.
	ErrRoomInactive = errors.New("chat room is inactive")
)

type StudyHallRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	DeleteRoom(roomId int) error

	GetChatRoom(roomId int) (ChatRoom, error)
	TouchChatRoom(roomId int, lastMessageAt time.Time) error
	DeactivateChatRoom(roomId int) error
	ReconcileChatRoomCounters() error

	CreateMessage(params CreateMessageParams) (ChatMessage, error)
	ListMessages(roomId int, cursor *MessageCursor, limit int) (MessagePage, error)
	ListMessagesSince(roomId int, since time.Time) ([]ChatMessage, error)
	GetLatestMessage(roomId int) (ChatMessage, error)
	CountMessages(roomId int) (int64, error)
	SoftDeleteMessage(roomId int, messageId int64, authorId int) error
	SoftDeleteMessagesByRoom(roomId int) (int64, error)
	PurgeSoftDeletedBefore(cutoff time.Time) (int64, error)
}
