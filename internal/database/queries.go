package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultPageSize = 20

const messageColumns = "id, room_id, author_id, content, message_type, is_edited, original_message_id, created_at"

func (db *PgStudyHallRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgStudyHallRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email, created_at, updated_at",
		params.UserId,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgStudyHallRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return user, err
}

func (db *PgStudyHallRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return user, err
}

// CreateRoom inserts the room and its chat room record in one
// transaction so a room can never exist without its chat record.
func (db *PgStudyHallRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO rooms (name, external_id, description, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) "+
			"RETURNING id, external_id, name, description, owner_id, created_at, updated_at",
		params.Name,
		params.ExternalId,
		params.Description,
		params.OwnerId,
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	_, err = tx.Exec(
		"INSERT INTO chat_rooms (room_id, is_active, created_at, updated_at) VALUES ($1, true, $2, $2)",
		room.Id,
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	room.IsActive = true
	return room, nil
}

func (db *PgStudyHallRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT r.id, r.external_id, r.name, r.description, r.owner_id, cr.is_active, r.created_at, r.updated_at "+
			"FROM rooms r JOIN chat_rooms cr ON cr.room_id = r.id "+
			"WHERE r.external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.OwnerId,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}

	return room, err
}

// DeleteRoom cascades a room deletion: soft-delete the room's messages,
// deactivate its chat room, then remove the room row. Messages go first
// so a crash mid-transaction can only leave the chat room flag stale,
// never undeleted messages in a flagged-off room.
func (db *PgStudyHallRepository) DeleteRoom(roomId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		"UPDATE chat_messages SET deleted_at = $2 WHERE room_id = $1 AND deleted_at IS NULL",
		roomId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"UPDATE chat_rooms SET is_active = false, updated_at = $2 WHERE room_id = $1",
		roomId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM rooms WHERE id = $1", roomId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgStudyHallRepository) GetChatRoom(roomId int) (ChatRoom, error) {
	row := db.conn.QueryRow(
		"SELECT room_id, last_message_at, total_message_count, is_active, created_at, updated_at "+
			"FROM chat_rooms WHERE room_id = $1 LIMIT 1",
		roomId,
	)

	var cr ChatRoom
	err := row.Scan(
		&cr.RoomId,
		&cr.LastMessageAt,
		&cr.TotalMessageCount,
		&cr.IsActive,
		&cr.CreatedAt,
		&cr.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatRoom{}, ErrNotFound
	}

	return cr, err
}

func (db *PgStudyHallRepository) TouchChatRoom(roomId int, lastMessageAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE chat_rooms SET last_message_at = $2, total_message_count = total_message_count + 1, updated_at = $3 "+
			"WHERE room_id = $1",
		roomId,
		lastMessageAt,
		time.Now().UTC(),
	)

	return err
}

func (db *PgStudyHallRepository) DeactivateChatRoom(roomId int) error {
	_, err := db.conn.Exec(
		"UPDATE chat_rooms SET is_active = false, updated_at = $2 WHERE room_id = $1",
		roomId,
		time.Now().UTC(),
	)

	return err
}

// ReconcileChatRoomCounters recomputes the denormalized counters from
// true counts. The counters are bumped outside the message-insert
// transaction, so they drift; this brings them back.
func (db *PgStudyHallRepository) ReconcileChatRoomCounters() error {
	_, err := db.conn.Exec(
		"UPDATE chat_rooms cr SET " +
			"total_message_count = (SELECT count(*) FROM chat_messages m WHERE m.room_id = cr.room_id AND m.deleted_at IS NULL), " +
			"last_message_at = (SELECT max(created_at) FROM chat_messages m WHERE m.room_id = cr.room_id AND m.deleted_at IS NULL), " +
			"updated_at = now() " +
			"WHERE cr.is_active",
	)

	return err
}

func (db *PgStudyHallRepository) CreateMessage(params CreateMessageParams) (ChatMessage, error) {
	messageType := params.MessageType
	if messageType == "" {
		messageType = "CHAT"
	}

	// author_id is NULL for pure system-generated content.
	authorId := sql.NullInt64{Int64: int64(params.AuthorId), Valid: params.AuthorId != 0}

	res := db.conn.QueryRow(
		"INSERT INTO chat_messages (room_id, author_id, content, message_type, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING "+messageColumns,
		params.RoomId,
		authorId,
		params.Content,
		messageType,
		time.Now().UTC(),
	)

	var msg ChatMessage
	err := res.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.AuthorId,
		&msg.Content,
		&msg.MessageType,
		&msg.IsEdited,
		&msg.OriginalMessageId,
		&msg.CreatedAt,
	)

	return msg, err
}

// ListMessages returns one keyset page ordered (created_at DESC, id DESC).
// With a cursor, a row qualifies iff it sorts strictly after the cursor
// row in that order; rows inserted during a scroll always sort before the
// cursor and can never shift or duplicate fetched pages. One extra row is
// fetched to compute HasNext without a count query.
func (db *PgStudyHallRepository) ListMessages(roomId int, cursor *MessageCursor, limit int) (MessagePage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	var query string
	var args []any

	if cursor != nil {
		query = "SELECT " + messageColumns + " FROM chat_messages " +
			"WHERE room_id = $1 AND deleted_at IS NULL " +
			"AND (created_at < $2 OR (created_at = $2 AND id < $3)) " +
			"ORDER BY created_at DESC, id DESC LIMIT $4"
		args = []any{roomId, cursor.LastCreatedAt, cursor.LastMessageId, limit + 1}
	} else {
		query = "SELECT " + messageColumns + " FROM chat_messages " +
			"WHERE room_id = $1 AND deleted_at IS NULL " +
			"ORDER BY created_at DESC, id DESC LIMIT $2"
		args = []any{roomId, limit + 1}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0, limit)
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.AuthorId,
			&msg.Content,
			&msg.MessageType,
			&msg.IsEdited,
			&msg.OriginalMessageId,
			&msg.CreatedAt,
		); err != nil {
			return MessagePage{}, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return MessagePage{}, fmt.Errorf("iterate messages: %w", err)
	}

	page := MessagePage{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		page.HasNext = true
	}

	return page, nil
}

func (db *PgStudyHallRepository) ListMessagesSince(roomId int, since time.Time) ([]ChatMessage, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM chat_messages "+
			"WHERE room_id = $1 AND deleted_at IS NULL AND created_at > $2 "+
			"ORDER BY created_at ASC, id ASC",
		roomId,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages since: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0)
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.AuthorId,
			&msg.Content,
			&msg.MessageType,
			&msg.IsEdited,
			&msg.OriginalMessageId,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgStudyHallRepository) GetLatestMessage(roomId int) (ChatMessage, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM chat_messages "+
			"WHERE room_id = $1 AND deleted_at IS NULL "+
			"ORDER BY created_at DESC, id DESC LIMIT 1",
		roomId,
	)

	var msg ChatMessage
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.AuthorId,
		&msg.Content,
		&msg.MessageType,
		&msg.IsEdited,
		&msg.OriginalMessageId,
		&msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatMessage{}, ErrNotFound
	}

	return msg, err
}

func (db *PgStudyHallRepository) CountMessages(roomId int) (int64, error) {
	row := db.conn.QueryRow(
		"SELECT count(*) FROM chat_messages WHERE room_id = $1 AND deleted_at IS NULL",
		roomId,
	)

	var count int64
	err := row.Scan(&count)

	return count, err
}

// SoftDeleteMessage marks a message deleted iff it exists in the room,
// belongs to the author, and is not already deleted. The ownership check
// and the update are one conditional statement, so two racing deletes
// cannot both succeed.
func (db *PgStudyHallRepository) SoftDeleteMessage(roomId int, messageId int64, authorId int) error {
	res, err := db.conn.Exec(
		"UPDATE chat_messages SET deleted_at = $4 "+
			"WHERE id = $1 AND room_id = $2 AND author_id = $3 AND deleted_at IS NULL",
		messageId,
		roomId,
		authorId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgStudyHallRepository) SoftDeleteMessagesByRoom(roomId int) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE chat_messages SET deleted_at = $2 WHERE room_id = $1 AND deleted_at IS NULL",
		roomId,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// PurgeSoftDeletedBefore hard-deletes rows soft-deleted before cutoff.
// Retention sweep only; never called on the interactive path.
func (db *PgStudyHallRepository) PurgeSoftDeletedBefore(cutoff time.Time) (int64, error) {
	res, err := db.conn.Exec(
		"DELETE FROM chat_messages WHERE deleted_at IS NOT NULL AND deleted_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
