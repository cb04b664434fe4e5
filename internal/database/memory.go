package database

import (
	"database/sql"
	"sort"
	"sync"
	"time"
)

// MemStudyHallRepository is an in-memory StudyHallRepository mirroring
// the Postgres predicates row for row. It backs behavioural tests that
// need real pagination and soft-delete semantics without a database.
type MemStudyHallRepository struct {
	mu            sync.Mutex
	nextAccountId int
	nextRoomId    int
	nextMessageId int64
	accounts      map[int]User
	rooms         map[int]Room
	chatRooms     map[int]ChatRoom
	messages      []ChatMessage
}

func NewMemStudyHallRepository() *MemStudyHallRepository {
	return &MemStudyHallRepository{
		accounts:  make(map[int]User),
		rooms:     make(map[int]Room),
		chatRooms: make(map[int]ChatRoom),
	}
}

func (m *MemStudyHallRepository) Ping() error { return nil }

func (m *MemStudyHallRepository) CreateAccount(params CreateAccountParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAccountId++
	now := time.Now().UTC()
	u := User{
		Id:           m.nextAccountId,
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.accounts[u.Id] = u
	return u, nil
}

func (m *MemStudyHallRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.accounts[params.UserId]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Username = params.Username
	u.PasswordHash = params.PasswordHash
	u.UpdatedAt = time.Now().UTC()
	m.accounts[u.Id] = u
	return u, nil
}

func (m *MemStudyHallRepository) GetAccountById(accountId int) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.accounts[accountId]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemStudyHallRepository) GetAccountByEmail(email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.accounts {
		if u.EmailAddress == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *MemStudyHallRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRoomId++
	now := time.Now().UTC()
	room := Room{
		Id:          m.nextRoomId,
		ExternalId:  params.ExternalId,
		Name:        params.Name,
		Description: params.Description,
		OwnerId:     params.OwnerId,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.rooms[room.Id] = room
	m.chatRooms[room.Id] = ChatRoom{
		RoomId:    room.Id,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return room, nil
}

func (m *MemStudyHallRepository) GetRoomByExternalId(externalId string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rooms {
		if r.ExternalId == externalId {
			if cr, ok := m.chatRooms[r.Id]; ok {
				r.IsActive = cr.IsActive
			}
			return r, nil
		}
	}
	return Room{}, ErrNotFound
}

func (m *MemStudyHallRepository) DeleteRoom(roomId int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.softDeleteRoomMessagesLocked(roomId)
	if cr, ok := m.chatRooms[roomId]; ok {
		cr.IsActive = false
		cr.UpdatedAt = time.Now().UTC()
		m.chatRooms[roomId] = cr
	}
	delete(m.rooms, roomId)
	return nil
}

func (m *MemStudyHallRepository) GetChatRoom(roomId int) (ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cr, ok := m.chatRooms[roomId]
	if !ok {
		return ChatRoom{}, ErrNotFound
	}
	return cr, nil
}

func (m *MemStudyHallRepository) TouchChatRoom(roomId int, lastMessageAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cr, ok := m.chatRooms[roomId]
	if !ok {
		return nil
	}
	cr.LastMessageAt = sql.NullTime{Time: lastMessageAt, Valid: true}
	cr.TotalMessageCount++
	cr.UpdatedAt = time.Now().UTC()
	m.chatRooms[roomId] = cr
	return nil
}

func (m *MemStudyHallRepository) DeactivateChatRoom(roomId int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cr, ok := m.chatRooms[roomId]
	if !ok {
		return nil
	}
	cr.IsActive = false
	cr.UpdatedAt = time.Now().UTC()
	m.chatRooms[roomId] = cr
	return nil
}

func (m *MemStudyHallRepository) ReconcileChatRoomCounters() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, cr := range m.chatRooms {
		if !cr.IsActive {
			continue
		}
		var count int64
		var last sql.NullTime
		for _, msg := range m.messages {
			if msg.RoomId != id || msg.DeletedAt.Valid {
				continue
			}
			count++
			if !last.Valid || msg.CreatedAt.After(last.Time) {
				last = sql.NullTime{Time: msg.CreatedAt, Valid: true}
			}
		}
		cr.TotalMessageCount = count
		cr.LastMessageAt = last
		m.chatRooms[id] = cr
	}
	return nil
}

func (m *MemStudyHallRepository) CreateMessage(params CreateMessageParams) (ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	messageType := params.MessageType
	if messageType == "" {
		messageType = "CHAT"
	}

	m.nextMessageId++
	msg := ChatMessage{
		Id:          m.nextMessageId,
		RoomId:      params.RoomId,
		AuthorId:    sql.NullInt64{Int64: int64(params.AuthorId), Valid: params.AuthorId != 0},
		Content:     params.Content,
		MessageType: messageType,
		CreatedAt:   time.Now().UTC(),
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

// sortsAfter reports whether a sorts strictly after b in
// (created_at DESC, id DESC) order, i.e. a is older.
func sortsAfter(a, b ChatMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Id < b.Id
}

func (m *MemStudyHallRepository) ListMessages(roomId int, cursor *MessageCursor, limit int) (MessagePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = defaultPageSize
	}

	matches := make([]ChatMessage, 0, limit)
	for _, msg := range m.messages {
		if msg.RoomId != roomId || msg.DeletedAt.Valid {
			continue
		}
		if cursor != nil && !sortsAfter(msg, ChatMessage{Id: cursor.LastMessageId, CreatedAt: cursor.LastCreatedAt}) {
			continue
		}
		matches = append(matches, msg)
	}

	sort.Slice(matches, func(i, j int) bool {
		return sortsAfter(matches[j], matches[i])
	})

	page := MessagePage{Messages: matches}
	if len(matches) > limit {
		page.Messages = matches[:limit]
		page.HasNext = true
	}
	return page, nil
}

func (m *MemStudyHallRepository) ListMessagesSince(roomId int, since time.Time) ([]ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := make([]ChatMessage, 0)
	for _, msg := range m.messages {
		if msg.RoomId != roomId || msg.DeletedAt.Valid || !msg.CreatedAt.After(since) {
			continue
		}
		matches = append(matches, msg)
	}

	sort.Slice(matches, func(i, j int) bool {
		return sortsAfter(matches[i], matches[j])
	})
	return matches, nil
}

func (m *MemStudyHallRepository) GetLatestMessage(roomId int) (ChatMessage, error) {
	page, err := m.ListMessages(roomId, nil, 1)
	if err != nil {
		return ChatMessage{}, err
	}
	if len(page.Messages) == 0 {
		return ChatMessage{}, ErrNotFound
	}
	return page.Messages[0], nil
}

func (m *MemStudyHallRepository) CountMessages(roomId int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, msg := range m.messages {
		if msg.RoomId == roomId && !msg.DeletedAt.Valid {
			count++
		}
	}
	return count, nil
}

func (m *MemStudyHallRepository) SoftDeleteMessage(roomId int, messageId int64, authorId int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, msg := range m.messages {
		if msg.Id != messageId || msg.RoomId != roomId || msg.DeletedAt.Valid {
			continue
		}
		if !msg.AuthorId.Valid || msg.AuthorId.Int64 != int64(authorId) {
			continue
		}
		m.messages[i].DeletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		return nil
	}
	return ErrNotFound
}

func (m *MemStudyHallRepository) SoftDeleteMessagesByRoom(roomId int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.softDeleteRoomMessagesLocked(roomId), nil
}

func (m *MemStudyHallRepository) softDeleteRoomMessagesLocked(roomId int) int64 {
	var affected int64
	now := time.Now().UTC()
	for i, msg := range m.messages {
		if msg.RoomId == roomId && !msg.DeletedAt.Valid {
			m.messages[i].DeletedAt = sql.NullTime{Time: now, Valid: true}
			affected++
		}
	}
	return affected
}

func (m *MemStudyHallRepository) PurgeSoftDeletedBefore(cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected int64
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.DeletedAt.Valid && msg.DeletedAt.Time.Before(cutoff) {
			affected++
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
	return affected, nil
}
