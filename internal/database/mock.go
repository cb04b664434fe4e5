package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStudyHallRepository struct {
	mock.Mock
}

func (m *MockStudyHallRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockStudyHallRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStudyHallRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStudyHallRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStudyHallRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStudyHallRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStudyHallRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStudyHallRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockStudyHallRepository) GetChatRoom(roomId int) (ChatRoom, error) {
	args := m.Called(roomId)
	return args.Get(0).(ChatRoom), args.Error(1)
}
func (m *MockStudyHallRepository) TouchChatRoom(roomId int, lastMessageAt time.Time) error {
	args := m.Called(roomId, lastMessageAt)
	return args.Error(0)
}
func (m *MockStudyHallRepository) DeactivateChatRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockStudyHallRepository) ReconcileChatRoomCounters() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockStudyHallRepository) CreateMessage(params CreateMessageParams) (ChatMessage, error) {
	args := m.Called(params)
	return args.Get(0).(ChatMessage), args.Error(1)
}
func (m *MockStudyHallRepository) ListMessages(roomId int, cursor *MessageCursor, limit int) (MessagePage, error) {
	args := m.Called(roomId, cursor, limit)
	return args.Get(0).(MessagePage), args.Error(1)
}
func (m *MockStudyHallRepository) ListMessagesSince(roomId int, since time.Time) ([]ChatMessage, error) {
	args := m.Called(roomId, since)
	return args.Get(0).([]ChatMessage), args.Error(1)
}
func (m *MockStudyHallRepository) GetLatestMessage(roomId int) (ChatMessage, error) {
	args := m.Called(roomId)
	return args.Get(0).(ChatMessage), args.Error(1)
}
func (m *MockStudyHallRepository) CountMessages(roomId int) (int64, error) {
	args := m.Called(roomId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStudyHallRepository) SoftDeleteMessage(roomId int, messageId int64, authorId int) error {
	args := m.Called(roomId, messageId, authorId)
	return args.Error(0)
}
func (m *MockStudyHallRepository) SoftDeleteMessagesByRoom(roomId int) (int64, error) {
	args := m.Called(roomId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStudyHallRepository) PurgeSoftDeletedBefore(cutoff time.Time) (int64, error) {
	args := m.Called(cutoff)
	return args.Get(0).(int64), args.Error(1)
}
