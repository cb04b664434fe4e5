package server

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/stats"
	"github.com/studyhall/studyhall/internal/types"
)

const maxContentLength = 2000

var (
	ErrEmptyContent       = errors.New("message content is empty")
	ErrContentTooLong     = fmt.Errorf("message content exceeds %d characters", maxContentLength)
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrUnknownSender      = errors.New("sender account not found")
)

// ChatOrchestrator implements the chat operations: validate, persist,
// bump counters, broadcast. Failures never reach the room topic; a
// failed user send produces exactly one private error event for the
// sender.
type ChatOrchestrator struct {
	db          database.StudyHallRepository
	broadcaster *Broadcaster
	log         *log.Logger
	stats       stats.StatsProvider
}

func NewChatOrchestrator(db database.StudyHallRepository, b *Broadcaster, logger *log.Logger, su stats.StatsProvider) *ChatOrchestrator {
	return &ChatOrchestrator{
		db:          db,
		broadcaster: b,
		log:         logger,
		stats:       su,
	}
}

// SendUserMessage handles a user-authored send. On any failure the
// sender gets a private error event and nothing is broadcast to the
// room.
func (o *ChatOrchestrator) SendUserMessage(roomId, content string, messageType types.MessageType, user types.User) (*types.ChatEvent, error) {
	if messageType == "" {
		messageType = types.MessageTypeChat
	}

	ev, err := o.persistAndBroadcast(roomId, content, messageType, broadcastTypeFor(messageType), user, true)
	if err != nil {
		o.log.Printf("send message to %q from user %d: %v", roomId, user.Id, err)
		o.notifySendError(roomId, user, err)
		return nil, err
	}

	return ev, nil
}

// AnnounceJoin persists and broadcasts a USER_JOIN message. Failures
// are logged only; joins are lower severity than user-authored sends.
func (o *ChatOrchestrator) AnnounceJoin(roomId string, user types.User) error {
	content := fmt.Sprintf("%s joined the room", user.Username)
	_, err := o.persistAndBroadcast(roomId, content, types.MessageTypeUserJoin, types.BroadcastUserJoin, user, false)
	return err
}

// AnnounceLeave persists and broadcasts a USER_LEAVE message.
func (o *ChatOrchestrator) AnnounceLeave(roomId string, user types.User) error {
	content := fmt.Sprintf("%s left the room", user.Username)
	_, err := o.persistAndBroadcast(roomId, content, types.MessageTypeUserLeave, types.BroadcastUserLeave, user, false)
	return err
}

// persistAndBroadcast is the shared transactional unit: resolve and
// check the chat room, persist, bump counters best-effort, broadcast.
// resolveAuthor re-reads the author record for user-authored content so
// a stale identity fails before anything is written.
func (o *ChatOrchestrator) persistAndBroadcast(roomId, content string, messageType types.MessageType, broadcastType types.BroadcastType, user types.User, resolveAuthor bool) (*types.ChatEvent, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxContentLength {
		return nil, ErrContentTooLong
	}
	if !messageType.Valid() {
		return nil, ErrInvalidMessageType
	}

	room, err := o.db.GetRoomByExternalId(roomId)
	if err != nil {
		return nil, fmt.Errorf("resolve room: %w", err)
	}

	chatRoom, err := o.db.GetChatRoom(room.Id)
	if err != nil {
		return nil, fmt.Errorf("resolve chat room: %w", err)
	}
	if !chatRoom.IsActive {
		return nil, database.ErrRoomInactive
	}

	author := user
	if resolveAuthor {
		account, err := o.db.GetAccountById(user.Id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, ErrUnknownSender
			}
			return nil, fmt.Errorf("resolve author: %w", err)
		}
		author = types.User{Id: account.Id, Username: account.Username, EmailAddress: account.EmailAddress}
	}

	msg, err := o.db.CreateMessage(database.CreateMessageParams{
		RoomId:      room.Id,
		AuthorId:    author.Id,
		Content:     content,
		MessageType: string(messageType),
	})
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	o.stats.Incr(stats.MessagesPersisted)

	// counters are eventually consistent; the janitor reconciles drift
	if err := o.db.TouchChatRoom(room.Id, msg.CreatedAt); err != nil {
		o.log.Printf("touch chat room %d: %v", room.Id, err)
	}

	ev := &types.ChatEvent{
		MessageId:     msg.Id,
		RoomId:        roomId,
		UserId:        author.Id,
		DisplayName:   author.Username,
		Content:       msg.Content,
		MessageType:   messageType,
		Timestamp:     msg.CreatedAt,
		BroadcastType: broadcastType,
	}

	o.broadcaster.PublishToRoom(roomId, ev)

	return ev, nil
}

// notifySendError publishes one ERROR event on the sender's private
// queue. Other room participants see nothing.
func (o *ChatOrchestrator) notifySendError(roomId string, user types.User, err error) {
	o.broadcaster.PublishToUser(user.Id, &types.ChatEvent{
		RoomId:        roomId,
		Content:       sendErrorText(err),
		MessageType:   types.MessageTypeSystem,
		Timestamp:     Now(),
		BroadcastType: types.BroadcastError,
	})
}

// sendErrorText maps failures to client-visible text. Validation
// problems are actionable and spelled out; everything else stays
// generic.
func sendErrorText(err error) string {
	switch {
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrContentTooLong),
		errors.Is(err, ErrInvalidMessageType), errors.Is(err, ErrUnknownSender):
		return err.Error()
	case errors.Is(err, database.ErrNotFound):
		return "room not found"
	case errors.Is(err, database.ErrRoomInactive):
		return "room is no longer active"
	default:
		return "failed to send message"
	}
}

func broadcastTypeFor(messageType types.MessageType) types.BroadcastType {
	switch messageType {
	case types.MessageTypeUserJoin:
		return types.BroadcastUserJoin
	case types.MessageTypeUserLeave:
		return types.BroadcastUserLeave
	case types.MessageTypeRoomDeleted:
		return types.BroadcastRoomDeleted
	default:
		return types.BroadcastNewMessage
	}
}
