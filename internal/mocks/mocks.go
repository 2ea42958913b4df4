package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collab-service/internal/models"
	"collab-service/internal/rooms"
)

type RoomServiceMock struct {
	mock.Mock
}

func (m *RoomServiceMock) ListRooms(ctx context.Context, user int) ([]models.ChatRoom, error) {
	args := m.Called(ctx, user)
	var list []models.ChatRoom
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatRoom)
	}
	return list, args.Error(1)
}

func (m *RoomServiceMock) Get(ctx context.Context, caller, roomID int) (models.ChatRoom, error) {
	args := m.Called(ctx, caller, roomID)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) GetOrCreateDirect(ctx context.Context, caller, target int) (models.ChatRoom, error) {
	args := m.Called(ctx, caller, target)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) CreateGroup(ctx context.Context, caller int, in rooms.CreateGroupInput) (models.ChatRoom, error) {
	args := m.Called(ctx, caller, in)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

func (m *RoomServiceMock) MarkRead(ctx context.Context, caller, roomID int) error {
	args := m.Called(ctx, caller, roomID)
	return args.Error(0)
}

func (m *RoomServiceMock) AddMembers(ctx context.Context, caller, roomID int, userIDs []int) ([]int, error) {
	args := m.Called(ctx, caller, roomID, userIDs)
	var added []int
	if val := args.Get(0); val != nil {
		added = val.([]int)
	}
	return added, args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Append(ctx context.Context, caller int, in models.AppendInput) (models.ChatMessage, error) {
	args := m.Called(ctx, caller, in)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) Page(ctx context.Context, caller, roomID, limit, offset int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, caller, roomID, limit, offset)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageServiceMock) Get(ctx context.Context, caller, roomID, messageID int) (models.ChatMessage, error) {
	args := m.Called(ctx, caller, roomID, messageID)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) Edit(ctx context.Context, caller, roomID, messageID int, content string) (models.ChatMessage, error) {
	args := m.Called(ctx, caller, roomID, messageID, content)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

type ConnectionServiceMock struct {
	mock.Mock
}

func (m *ConnectionServiceMock) SendRequest(ctx context.Context, caller, target int, connType models.ConnectionType) (models.Connection, error) {
	args := m.Called(ctx, caller, target, connType)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionServiceMock) Respond(ctx context.Context, caller, connectionID int, decision models.ConnectionState) (models.Connection, error) {
	args := m.Called(ctx, caller, connectionID, decision)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionServiceMock) Cancel(ctx context.Context, caller, connectionID int) (models.Connection, error) {
	args := m.Called(ctx, caller, connectionID)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionServiceMock) Status(ctx context.Context, user, other int) (models.ConnectionView, error) {
	args := m.Called(ctx, user, other)
	var view models.ConnectionView
	if val := args.Get(0); val != nil {
		view = val.(models.ConnectionView)
	}
	return view, args.Error(1)
}

func (m *ConnectionServiceMock) List(ctx context.Context, caller int, state models.ConnectionState) ([]models.UserConnection, error) {
	args := m.Called(ctx, caller, state)
	var list []models.UserConnection
	if val := args.Get(0); val != nil {
		list = val.([]models.UserConnection)
	}
	return list, args.Error(1)
}

type PresenceServiceMock struct {
	mock.Mock
}

func (m *PresenceServiceMock) SetStatus(ctx context.Context, userID int, status models.PresenceStatus, roomID *int) (models.UserPresence, error) {
	args := m.Called(ctx, userID, status, roomID)
	var p models.UserPresence
	if val := args.Get(0); val != nil {
		p = val.(models.UserPresence)
	}
	return p, args.Error(1)
}

func (m *PresenceServiceMock) Touch(ctx context.Context, userID int) (models.UserPresence, error) {
	args := m.Called(ctx, userID)
	var p models.UserPresence
	if val := args.Get(0); val != nil {
		p = val.(models.UserPresence)
	}
	return p, args.Error(1)
}

func (m *PresenceServiceMock) Get(ctx context.Context, userID int) (models.UserPresence, error) {
	args := m.Called(ctx, userID)
	var p models.UserPresence
	if val := args.Get(0); val != nil {
		p = val.(models.UserPresence)
	}
	return p, args.Error(1)
}

type UserServiceMock struct {
	mock.Mock
}

func (m *UserServiceMock) Search(ctx context.Context, viewer int, query string, limit int) ([]models.UserForCollaboration, error) {
	args := m.Called(ctx, viewer, query, limit)
	var users []models.UserForCollaboration
	if val := args.Get(0); val != nil {
		users = val.([]models.UserForCollaboration)
	}
	return users, args.Error(1)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}
