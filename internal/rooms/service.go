// Package rooms is the room directory: listings with unread counts, direct rooms gated on
// accepted connections, and shared rooms.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

// ConnectionChecker answers whether two users are connected.
type ConnectionChecker interface {
	IsConnected(ctx context.Context, a, b int) (bool, error)
}

// Announcer posts system messages into a room.
type Announcer interface {
	AppendSystem(ctx context.Context, roomID, actorID int, content string) (models.ChatMessage, error)
}

// Auditor records domain actions.
type Auditor interface {
	Action(ctx context.Context, action string, actorID int, attrs map[string]any)
}

// Service manages rooms and memberships.
type Service struct {
	rooms       repositories.RoomRepository
	profiles    repositories.ProfileRepository
	connections ConnectionChecker
	announcer   Announcer
	audit       Auditor
	now         func() time.Time
}

// NewService builds a Service. announcer and audit may be nil.
func NewService(rooms repositories.RoomRepository, profiles repositories.ProfileRepository, connections ConnectionChecker, announcer Announcer, audit Auditor) *Service {
	return &Service{
		rooms:       rooms,
		profiles:    profiles,
		connections: connections,
		announcer:   announcer,
		audit:       audit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListRooms returns the user's rooms ordered by latest activity.
func (s *Service) ListRooms(ctx context.Context, user int) ([]models.ChatRoom, error) {
	rooms, err := s.rooms.ListRoomsForUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if rooms == nil {
		rooms = []models.ChatRoom{}
	}
	s.hydrateLatest(ctx, rooms)
	return rooms, nil
}

// Get returns one room the caller belongs to.
func (s *Service) Get(ctx context.Context, caller, roomID int) (models.ChatRoom, error) {
	room, err := s.rooms.GetRoom(ctx, roomID, caller)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.ChatRoom{}, apperr.New(apperr.KindNotFound, "room not found")
	}
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("get room: %w", err)
	}
	rooms := []models.ChatRoom{room}
	s.hydrateLatest(ctx, rooms)
	return rooms[0], nil
}

// GetOrCreateDirect returns the direct room with target, creating it on first use.
// The pair must have an accepted connection.
func (s *Service) GetOrCreateDirect(ctx context.Context, caller, target int) (models.ChatRoom, error) {
	if caller == target {
		return models.ChatRoom{}, apperr.New(apperr.KindInvalidArgument, "cannot open a direct room with yourself")
	}
	connected, err := s.connections.IsConnected(ctx, caller, target)
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("check connection: %w", err)
	}
	if !connected {
		return models.ChatRoom{}, apperr.ErrNotConnected
	}

	room, created, err := s.rooms.CreateOrGetDirectRoom(ctx, caller, target)
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("direct room: %w", err)
	}
	if created {
		s.action(ctx, "room.direct_created", caller, map[string]any{"room_id": room.ID, "other_user_id": target})
	}
	rooms := []models.ChatRoom{room}
	s.hydrateLatest(ctx, rooms)
	return rooms[0], nil
}

// CreateGroupInput describes a shared room.
type CreateGroupInput struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	IsPrivate   bool            `json:"is_private"`
	Type        models.RoomType `json:"type,omitempty"`
}

// CreateGroup creates a shared room owned by caller.
func (s *Service) CreateGroup(ctx context.Context, caller int, in CreateGroupInput) (models.ChatRoom, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.ChatRoom{}, apperr.New(apperr.KindInvalidArgument, "room name is required")
	}
	roomType := in.Type
	if roomType == "" {
		roomType = models.RoomGroup
	}
	if roomType != models.RoomGroup && roomType != models.RoomCollaboration {
		return models.ChatRoom{}, apperr.New(apperr.KindInvalidArgument, "invalid room type %q", in.Type)
	}

	room, err := s.rooms.CreateRoom(ctx, models.NewRoom{
		Name:        name,
		Description: in.Description,
		Type:        roomType,
		IsPrivate:   in.IsPrivate,
		CreatedBy:   caller,
	})
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("create room: %w", err)
	}
	s.action(ctx, "room.created", caller, map[string]any{"room_id": room.ID, "room_type": string(roomType)})
	return room, nil
}

// MarkRead resets the caller's unread count for a room.
func (s *Service) MarkRead(ctx context.Context, caller, roomID int) error {
	err := s.rooms.MarkRead(ctx, roomID, caller, s.now())
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return apperr.ErrNotAMember
	}
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// AddMembers invites users connected with caller into a shared room.
// It returns the ids that were actually added.
func (s *Service) AddMembers(ctx context.Context, caller, roomID int, userIDs []int) ([]int, error) {
	member, err := s.rooms.GetMember(ctx, roomID, caller)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return nil, apperr.ErrNotAMember
	}
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member.Role != models.RoleOwner && member.Role != models.RoleAdmin {
		return nil, apperr.New(apperr.KindUnauthorized, "only owners and admins can add members")
	}
	room, err := s.rooms.GetRoom(ctx, roomID, caller)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room.Type == models.RoomDirect {
		return nil, apperr.New(apperr.KindInvalidArgument, "direct rooms have fixed members")
	}

	invitees := make([]int, 0, len(userIDs))
	seen := map[int]struct{}{}
	for _, id := range userIDs {
		if id == caller {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		connected, err := s.connections.IsConnected(ctx, caller, id)
		if err != nil {
			return nil, fmt.Errorf("check connection: %w", err)
		}
		if !connected {
			return nil, apperr.New(apperr.KindNotConnected, "user %d is not connected with you", id)
		}
		invitees = append(invitees, id)
	}
	if len(invitees) == 0 {
		return []int{}, nil
	}

	added, err := s.rooms.AddMembers(ctx, roomID, invitees, models.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("add members: %w", err)
	}
	if added == nil {
		added = []int{}
	}
	s.announceJoins(ctx, roomID, caller, added)
	if len(added) > 0 {
		s.action(ctx, "room.members_added", caller, map[string]any{"room_id": roomID, "user_ids": added})
	}
	return added, nil
}

// IsMember reports whether user belongs to the room.
func (s *Service) IsMember(ctx context.Context, roomID, user int) (bool, error) {
	return s.rooms.IsMember(ctx, roomID, user)
}

// RoomIDsForUser lists every room the user belongs to.
func (s *Service) RoomIDsForUser(ctx context.Context, user int) ([]int, error) {
	return s.rooms.RoomIDsForUser(ctx, user)
}

func (s *Service) announceJoins(ctx context.Context, roomID, actor int, added []int) {
	if s.announcer == nil || len(added) == 0 {
		return
	}
	names := s.names(ctx, added)
	for _, id := range added {
		if _, err := s.announcer.AppendSystem(ctx, roomID, actor, names[id]+" joined"); err != nil {
			log.Printf("rooms announce join failed room_id=%d user_id=%d: %v", roomID, id, err)
		}
	}
}

func (s *Service) names(ctx context.Context, ids []int) map[int]string {
	names := make(map[int]string, len(ids))
	for _, id := range ids {
		names[id] = fmt.Sprintf("User %d", id)
	}
	if s.profiles == nil {
		return names
	}
	profiles, err := s.profiles.BulkProfiles(ctx, ids)
	if err != nil {
		log.Printf("rooms profile lookup failed: %v", err)
		return names
	}
	for _, p := range profiles {
		if name := p.Name(); name != "" {
			names[p.UserID] = name
		}
	}
	return names
}

// hydrateLatest fills latest-message sender names in place.
func (s *Service) hydrateLatest(ctx context.Context, rooms []models.ChatRoom) {
	var ids []int
	for _, r := range rooms {
		if r.LatestMessage != nil {
			ids = append(ids, r.LatestMessage.SenderID)
		}
	}
	if len(ids) == 0 || s.profiles == nil {
		return
	}
	profiles, err := s.profiles.BulkProfiles(ctx, ids)
	if err != nil {
		log.Printf("rooms profile lookup failed: %v", err)
		return
	}
	byID := make(map[int]string, len(profiles))
	for _, p := range profiles {
		byID[p.UserID] = p.Name()
	}
	for i := range rooms {
		if lm := rooms[i].LatestMessage; lm != nil {
			lm.SenderName = byID[lm.SenderID]
		}
	}
}

func (s *Service) action(ctx context.Context, action string, actor int, attrs map[string]any) {
	if s.audit != nil {
		s.audit.Action(ctx, action, actor, attrs)
	}
}
