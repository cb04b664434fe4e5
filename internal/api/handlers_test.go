package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/studyhall/studyhall/internal/config"
	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/server"
	"github.com/studyhall/studyhall/internal/stats"
	"github.com/studyhall/studyhall/internal/testutil"
	"github.com/studyhall/studyhall/internal/types"
)

func newTestApp(t *testing.T, repo database.StudyHallRepository) *StudyHallApp {
	t.Helper()

	su := &stats.MockStatsProvider{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	cs, err := server.NewChatServer(testutil.TestLogger(t), repo, nil, su)
	require.NoError(t, err)

	cfg := &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: []byte("test-signing-key"),
	}

	return NewStudyHallApp(http.NewServeMux(), testutil.TestLogger(t), cs, repo, su, cfg)
}

func authedRequest(method, target string, body *bytes.Buffer, userId int) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(WithUserId(req.Context(), userId))
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{name: "healthy"},
		{name: "db down", mockErr: errors.New("db error")},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStudyHallRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.healthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "OK", rr.Body.String())
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Username:     "studier",
		EmailAddress: "studier@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	tcases := []struct {
		name         string
		body         any
		mockUser     *database.User
		mockErr      error
		expectedCode int
	}{
		{
			name: "creates an account",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			mockUser:     &expectedUser,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "missing username",
			body:         RegisterRequest{Email: expectedUser.EmailAddress, Password: "password"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "missing email",
			body:         RegisterRequest{Username: expectedUser.Username, Password: "password"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "missing password",
			body:         RegisterRequest{Username: expectedUser.Username, Email: expectedUser.EmailAddress},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "storage failure",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			mockUser:     &database.User{},
			mockErr:      errors.New("db error"),
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStudyHallRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.mockUser != nil {
				mockRepo.On("CreateAccount", mock.AnythingOfType("database.CreateAccountParams")).
					Return(*tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)

			buf := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buf).Encode(tc.body))
			rr := httptest.NewRecorder()
			app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", buf))

			assert.Equal(t, tc.expectedCode, rr.Code)

			if tc.expectedCode == http.StatusCreated {
				var user types.User
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
				assert.Equal(t, expectedUser.Id, user.Id)
				assert.Equal(t, expectedUser.Username, user.Username)
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	passwdHash, err := hashPassword("password")
	require.NoError(t, err)

	dbUser := database.User{
		Id:           1,
		Username:     "studier",
		EmailAddress: "studier@example.com",
		PasswordHash: passwdHash,
	}

	tcases := []struct {
		name         string
		body         any
		mockErr      error
		expectedCode int
		expectCookie bool
	}{
		{
			name:         "successful login",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "password"},
			expectedCode: http.StatusOK,
			expectCookie: true,
		},
		{
			name:         "wrong password",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "wrong"},
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "unknown account",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "password"},
			mockErr:      database.ErrNotFound,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "missing fields",
			body:         LoginRequest{},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStudyHallRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.expectedCode != http.StatusBadRequest {
				mockUser := dbUser
				if tc.mockErr != nil {
					mockUser = database.User{}
				}
				mockRepo.On("GetAccountByEmail", dbUser.EmailAddress).Return(mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)

			buf := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buf).Encode(tc.body))
			rr := httptest.NewRecorder()
			app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", buf))

			assert.Equal(t, tc.expectedCode, rr.Code)

			cookie := findCookie(rr, tokenCookieKey)
			if tc.expectCookie {
				require.NotNil(t, cookie)
				userId, err := app.extractUserIdFromToken(cookie.Value)
				require.NoError(t, err)
				assert.Equal(t, dbUser.Id, userId)
			} else {
				assert.Nil(t, cookie)
			}
		})
	}
}

func TestSessionHandler(t *testing.T) {
	mockRepo := &database.MockStudyHallRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "studier"}, nil).Once()

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	app.session(rr, authedRequest(http.MethodGet, "/api/auth/session", nil, 1))

	assert.Equal(t, http.StatusOK, rr.Code)

	var user types.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, 1, user.Id)
}

func TestLogoutHandler(t *testing.T) {
	app := newTestApp(t, &database.MockStudyHallRepository{})
	rr := httptest.NewRecorder()
	app.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)

	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now()))
}

func TestCreateRoomHandler(t *testing.T) {
	mockRepo := &database.MockStudyHallRepository{}
	defer mockRepo.AssertExpectations(t)

	expectedRoom := database.Room{
		Id:         1,
		ExternalId: "room-ext-id",
		Name:       "deep work",
		OwnerId:    1,
		IsActive:   true,
	}
	mockRepo.On("CreateRoom", database.CreateRoomParams{
		Name:       "deep work",
		OwnerId:    1,
		ExternalId: "room-ext-id",
	}).Return(expectedRoom, nil).Once()

	app := newTestApp(t, mockRepo)
	app.generateShortId = func() (string, error) { return "room-ext-id", nil }

	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(CreateRoomRequest{Name: "deep work"}))
	rr := httptest.NewRecorder()
	app.createRoom(rr, authedRequest(http.MethodPost, "/api/rooms", buf, 1))

	assert.Equal(t, http.StatusCreated, rr.Code)

	var room types.Room
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
	assert.Equal(t, expectedRoom.ExternalId, room.ExternalId)
	assert.True(t, room.IsActive)
}

func TestCreateRoomHandler_missingName(t *testing.T) {
	app := newTestApp(t, &database.MockStudyHallRepository{})

	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(CreateRoomRequest{}))
	rr := httptest.NewRecorder()
	app.createRoom(rr, authedRequest(http.MethodPost, "/api/rooms", buf, 1))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteRoomHandler(t *testing.T) {
	room := database.Room{Id: 1, ExternalId: "room-ext-id", OwnerId: 1}

	tcases := []struct {
		name         string
		userId       int
		target       string
		roomErr      error
		deleteErr    error
		expectDelete bool
		expectedCode int
	}{
		{
			name:         "owner deletes room",
			userId:       1,
			target:       "/api/rooms?id=room-ext-id",
			expectDelete: true,
			expectedCode: http.StatusNoContent,
		},
		{
			name:         "non-owner is refused",
			userId:       2,
			target:       "/api/rooms?id=room-ext-id",
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "missing id",
			userId:       1,
			target:       "/api/rooms",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unknown room",
			userId:       1,
			target:       "/api/rooms?id=room-ext-id",
			roomErr:      database.ErrNotFound,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "storage failure",
			userId:       1,
			target:       "/api/rooms?id=room-ext-id",
			deleteErr:    errors.New("db error"),
			expectDelete: true,
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStudyHallRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.expectedCode != http.StatusBadRequest {
				mockRoom := room
				if tc.roomErr != nil {
					mockRoom = database.Room{}
				}
				mockRepo.On("GetRoomByExternalId", "room-ext-id").Return(mockRoom, tc.roomErr).Once()
			}
			if tc.expectDelete {
				mockRepo.On("DeleteRoom", room.Id).Return(tc.deleteErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.deleteRoom(rr, authedRequest(http.MethodDelete, tc.target, nil, tc.userId))

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestListMessagesHandler(t *testing.T) {
	room := database.Room{Id: 7, ExternalId: "room-ext-id"}
	now := time.Now().UTC().Round(time.Millisecond)

	page := database.MessagePage{
		Messages: []database.ChatMessage{
			{Id: 3, RoomId: 7, Content: "third", MessageType: "CHAT", CreatedAt: now},
			{Id: 2, RoomId: 7, Content: "second", MessageType: "CHAT", CreatedAt: now.Add(-time.Minute)},
		},
		HasNext: true,
	}

	mockRepo := &database.MockStudyHallRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetRoomByExternalId", "room-ext-id").Return(room, nil).Once()
	mockRepo.On("ListMessages", room.Id, (*database.MessageCursor)(nil), 2).Return(page, nil).Once()

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	app.listMessages(rr, authedRequest(http.MethodGet, "/api/messages?room_id=room-ext-id&page_size=2", nil, 1))

	require.Equal(t, http.StatusOK, rr.Code)

	var resp MessagePageResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, int64(3), resp.Messages[0].Id)
	assert.Equal(t, "room-ext-id", resp.Messages[0].RoomId)
	assert.True(t, resp.HasNext)
	require.NotNil(t, resp.NextCursor)
	assert.Equal(t, int64(2), resp.NextCursor.LastMessageId)
	assert.True(t, resp.NextCursor.LastCreatedAt.Equal(now.Add(-time.Minute)))
}

func TestListMessagesHandler_cursor(t *testing.T) {
	room := database.Room{Id: 7, ExternalId: "room-ext-id"}
	lastCreated := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mockRepo := &database.MockStudyHallRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetRoomByExternalId", "room-ext-id").Return(room, nil).Once()
	mockRepo.On("ListMessages", room.Id, mock.MatchedBy(func(c *database.MessageCursor) bool {
		return c != nil && c.LastMessageId == 42 && c.LastCreatedAt.Equal(lastCreated)
	}), 50).Return(database.MessagePage{}, nil).Once()

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	target := fmt.Sprintf("/api/messages?room_id=room-ext-id&last_message_id=42&last_created_at=%s",
		lastCreated.Format(time.RFC3339Nano))
	app.listMessages(rr, authedRequest(http.MethodGet, target, nil, 1))

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestListMessagesHandler_badRequests(t *testing.T) {
	room := database.Room{Id: 7, ExternalId: "room-ext-id"}

	tcases := []struct {
		name       string
		target     string
		expectRoom bool
	}{
		{name: "missing room id", target: "/api/messages"},
		{name: "bad page size", target: "/api/messages?room_id=room-ext-id&page_size=abc", expectRoom: true},
		{name: "zero page size", target: "/api/messages?room_id=room-ext-id&page_size=0", expectRoom: true},
		{name: "cursor missing timestamp", target: "/api/messages?room_id=room-ext-id&last_message_id=42", expectRoom: true},
		{name: "cursor missing id", target: "/api/messages?room_id=room-ext-id&last_created_at=2026-08-01T12:00:00Z", expectRoom: true},
		{name: "bad cursor timestamp", target: "/api/messages?room_id=room-ext-id&last_message_id=42&last_created_at=yesterday", expectRoom: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStudyHallRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.expectRoom {
				mockRepo.On("GetRoomByExternalId", "room-ext-id").Return(room, nil).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.listMessages(rr, authedRequest(http.MethodGet, tc.target, nil, 1))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestListMessagesSinceHandler(t *testing.T) {
	room := database.Room{Id: 7, ExternalId: "room-ext-id"}
	since := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mockRepo := &database.MockStudyHallRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetRoomByExternalId", "room-ext-id").Return(room, nil).Once()
	mockRepo.On("ListMessagesSince", room.Id, mock.MatchedBy(func(ts time.Time) bool {
		return ts.Equal(since)
	})).Return([]database.ChatMessage{
		{Id: 10, RoomId: 7, Content: "newer", MessageType: "CHAT", CreatedAt: since.Add(time.Minute)},
	}, nil).Once()

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	target := fmt.Sprintf("/api/messages/since?room_id=room-ext-id&since=%s", since.Format(time.RFC3339Nano))
	app.listMessagesSince(rr, authedRequest(http.MethodGet, target, nil, 1))

	require.Equal(t, http.StatusOK, rr.Code)

	var msgs []types.Message
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(10), msgs[0].Id)
}

func TestLatestMessageHandler(t *testing.T) {
	room := database.Room{Id: 7, ExternalId: "room-ext-id"}

	tcases := []struct {
		name         string
		mockErr      error
		expectedCode int
	}{
		{name: "has messages", expectedCode: http.StatusOK},
		{name: "empty room", mockErr: database.ErrNotFound, expectedCode: http.StatusNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStudyHallRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("GetRoomByExternalId", "room-ext-id").Return(room, nil).Once()
			mockRepo.On("GetLatestMessage", room.Id).
				Return(database.ChatMessage{Id: 5, RoomId: 7, Content: "latest", MessageType: "CHAT"}, tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.latestMessage(rr, authedRequest(http.MethodGet, "/api/messages/latest?room_id=room-ext-id", nil, 1))

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestCountMessagesHandler(t *testing.T) {
	room := database.Room{Id: 7, ExternalId: "room-ext-id"}

	mockRepo := &database.MockStudyHallRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetRoomByExternalId", "room-ext-id").Return(room, nil).Once()
	mockRepo.On("CountMessages", room.Id).Return(int64(42), nil).Once()

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	app.countMessages(rr, authedRequest(http.MethodGet, "/api/messages/count?room_id=room-ext-id", nil, 1))

	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, int64(42), resp["count"])
}

func TestDeleteMessageHandler(t *testing.T) {
	room := database.Room{Id: 7, ExternalId: "room-ext-id"}

	tcases := []struct {
		name         string
		target       string
		mockErr      error
		expectCall   bool
		expectedCode int
	}{
		{
			name:         "author deletes own message",
			target:       "/api/messages?room_id=room-ext-id&message_id=5",
			expectCall:   true,
			expectedCode: http.StatusNoContent,
		},
		{
			name:         "not owned or already deleted",
			target:       "/api/messages?room_id=room-ext-id&message_id=5",
			mockErr:      database.ErrNotFound,
			expectCall:   true,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "missing message id",
			target:       "/api/messages?room_id=room-ext-id",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "bad message id",
			target:       "/api/messages?room_id=room-ext-id&message_id=abc",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStudyHallRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.expectCall {
				mockRepo.On("GetRoomByExternalId", "room-ext-id").Return(room, nil).Once()
				mockRepo.On("SoftDeleteMessage", room.Id, int64(5), 1).Return(tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.deleteMessage(rr, authedRequest(http.MethodDelete, tc.target, nil, 1))

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestUpdateAccountHandler(t *testing.T) {
	tcases := []struct {
		name         string
		body         any
		expectUpdate bool
		expectedCode int
	}{
		{
			name:         "updates username and password",
			body:         UpdateAccountRequest{Username: "renamed", Password: "newpassword"},
			expectUpdate: true,
			expectedCode: http.StatusOK,
		},
		{
			name:         "missing username",
			body:         UpdateAccountRequest{Password: "newpassword"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "missing password",
			body:         UpdateAccountRequest{Username: "renamed"},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockStudyHallRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.expectUpdate {
				mockRepo.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "studier"}, nil).Once()
				mockRepo.On("UpdateAccount", mock.MatchedBy(func(p database.UpdateAccountParams) bool {
					return p.UserId == 1 && p.Username == "renamed" && p.PasswordHash != ""
				})).Return(database.User{Id: 1, Username: "renamed"}, nil).Once()
			}

			app := newTestApp(t, mockRepo)

			buf := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buf).Encode(tc.body))
			rr := httptest.NewRecorder()
			app.updateAccount(rr, authedRequest(http.MethodPut, "/api/auth/account", buf, 1))

			assert.Equal(t, tc.expectedCode, rr.Code)

			if tc.expectedCode == http.StatusOK {
				var user types.User
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
				assert.Equal(t, "renamed", user.Username)
			}
		})
	}
}
