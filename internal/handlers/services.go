package handlers

import (
	"context"

	"collab-service/internal/models"
	"collab-service/internal/rooms"
)

type RoomService interface {
	ListRooms(ctx context.Context, user int) ([]models.ChatRoom, error)
	Get(ctx context.Context, caller, roomID int) (models.ChatRoom, error)
	GetOrCreateDirect(ctx context.Context, caller, target int) (models.ChatRoom, error)
	CreateGroup(ctx context.Context, caller int, in rooms.CreateGroupInput) (models.ChatRoom, error)
	MarkRead(ctx context.Context, caller, roomID int) error
	AddMembers(ctx context.Context, caller, roomID int, userIDs []int) ([]int, error)
}

type MessageService interface {
	Append(ctx context.Context, caller int, in models.AppendInput) (models.ChatMessage, error)
	Page(ctx context.Context, caller, roomID, limit, offset int) ([]models.ChatMessage, error)
	Get(ctx context.Context, caller, roomID, messageID int) (models.ChatMessage, error)
	Edit(ctx context.Context, caller, roomID, messageID int, content string) (models.ChatMessage, error)
}

type ConnectionService interface {
	SendRequest(ctx context.Context, caller, target int, connType models.ConnectionType) (models.Connection, error)
	Respond(ctx context.Context, caller, connectionID int, decision models.ConnectionState) (models.Connection, error)
	Cancel(ctx context.Context, caller, connectionID int) (models.Connection, error)
	Status(ctx context.Context, user, other int) (models.ConnectionView, error)
	List(ctx context.Context, caller int, state models.ConnectionState) ([]models.UserConnection, error)
}

type PresenceService interface {
	SetStatus(ctx context.Context, userID int, status models.PresenceStatus, roomID *int) (models.UserPresence, error)
	Touch(ctx context.Context, userID int) (models.UserPresence, error)
	Get(ctx context.Context, userID int) (models.UserPresence, error)
}

type UserService interface {
	Search(ctx context.Context, viewer int, query string, limit int) ([]models.UserForCollaboration, error)
}
