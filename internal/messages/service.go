// Package messages is the facade over each room's append-only message log.
package messages

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
	"collab-service/internal/observability"
	"collab-service/internal/repositories"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Notifier fans realtime events out to room subscribers.
type Notifier interface {
	Broadcast(ctx context.Context, ev models.Event) error
}

// Stream receives stored messages for downstream fan-out.
type Stream interface {
	MessageCreated(ctx context.Context, msg models.ChatMessage) error
}

// Service appends, pages and edits messages.
type Service struct {
	messages repositories.MessageRepository
	rooms    repositories.RoomRepository
	profiles repositories.ProfileRepository
	notifier Notifier
	stream   Stream
	now      func() time.Time
}

// NewService builds a Service. notifier and stream may be nil.
func NewService(messages repositories.MessageRepository, rooms repositories.RoomRepository, profiles repositories.ProfileRepository, notifier Notifier, stream Stream) *Service {
	return &Service{
		messages: messages,
		rooms:    rooms,
		profiles: profiles,
		notifier: notifier,
		stream:   stream,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Append stores a message from caller and notifies the room.
func (s *Service) Append(ctx context.Context, caller int, in models.AppendInput) (models.ChatMessage, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return models.ChatMessage{}, apperr.ErrEmptyContent
	}
	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageText
	}
	if !msgType.Valid() || msgType == models.MessageSystem {
		return models.ChatMessage{}, apperr.New(apperr.KindInvalidArgument, "invalid message type %q", in.Type)
	}
	if err := s.requireMember(ctx, in.RoomID, caller); err != nil {
		return models.ChatMessage{}, err
	}

	return s.store(ctx, models.NewMessage{
		RoomID:   in.RoomID,
		SenderID: caller,
		Content:  in.Content,
		Type:     msgType,
		ReplyTo:  in.ReplyTo,
		Metadata: in.Metadata,
	})
}

// AppendSystem posts a room-level announcement attributed to actorID.
func (s *Service) AppendSystem(ctx context.Context, roomID, actorID int, content string) (models.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return models.ChatMessage{}, apperr.ErrEmptyContent
	}
	return s.store(ctx, models.NewMessage{
		RoomID:   roomID,
		SenderID: actorID,
		Content:  content,
		Type:     models.MessageSystem,
	})
}

func (s *Service) store(ctx context.Context, in models.NewMessage) (models.ChatMessage, error) {
	msg, err := s.messages.CreateMessage(ctx, in)
	switch {
	case errors.Is(err, repositories.ErrMessageNotFound):
		return models.ChatMessage{}, apperr.New(apperr.KindNotFound, "reply target not found in room")
	case errors.Is(err, repositories.ErrRoomNotFound):
		return models.ChatMessage{}, apperr.New(apperr.KindNotFound, "room not found")
	case err != nil:
		return models.ChatMessage{}, fmt.Errorf("append message: %w", err)
	}
	observability.IncMessageAppended(string(msg.Type))

	if hydrated, err := s.hydrate(ctx, []models.ChatMessage{msg}); err == nil {
		msg = hydrated[0]
	}
	s.notify(ctx, models.MessageEvent(models.EventMessageInserted, msg.RoomID, msg.ID))
	if s.stream != nil {
		if err := s.stream.MessageCreated(ctx, msg); err != nil {
			observability.IncKafkaPublishError()
			log.Printf("messages stream publish failed room_id=%d message_id=%d: %v", msg.RoomID, msg.ID, err)
		}
	}
	return msg, nil
}

// Page returns up to limit messages of a room, oldest first within the page.
// offset counts back from the newest message.
func (s *Service) Page(ctx context.Context, caller, roomID, limit, offset int) ([]models.ChatMessage, error) {
	if err := s.requireMember(ctx, roomID, caller); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.messages.ListMessages(ctx, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("page messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return s.hydrate(ctx, msgs)
}

// Get returns one hydrated message of a room.
func (s *Service) Get(ctx context.Context, caller, roomID, messageID int) (models.ChatMessage, error) {
	if err := s.requireMember(ctx, roomID, caller); err != nil {
		return models.ChatMessage{}, err
	}
	msg, err := s.messages.GetMessage(ctx, roomID, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.ChatMessage{}, apperr.New(apperr.KindNotFound, "message not found")
	}
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("get message: %w", err)
	}
	hydrated, err := s.hydrate(ctx, []models.ChatMessage{msg})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return hydrated[0], nil
}

// Edit replaces the content of the caller's own message.
func (s *Service) Edit(ctx context.Context, caller, roomID, messageID int, content string) (models.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return models.ChatMessage{}, apperr.ErrEmptyContent
	}
	current, err := s.Get(ctx, caller, roomID, messageID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if current.Type == models.MessageSystem {
		return models.ChatMessage{}, apperr.New(apperr.KindInvalidArgument, "system messages cannot be edited")
	}
	if current.SenderID != caller {
		return models.ChatMessage{}, apperr.New(apperr.KindUnauthorized, "only the sender can edit")
	}

	msg, err := s.messages.UpdateContent(ctx, roomID, messageID, content, s.now())
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("edit message: %w", err)
	}
	if hydrated, err := s.hydrate(ctx, []models.ChatMessage{msg}); err == nil {
		msg = hydrated[0]
	}
	s.notify(ctx, models.MessageEvent(models.EventMessageUpdated, roomID, msg.ID))
	return msg, nil
}

func (s *Service) requireMember(ctx context.Context, roomID, userID int) error {
	ok, err := s.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return apperr.ErrNotAMember
	}
	return nil
}

// hydrate fills sender fields with one profile lookup.
func (s *Service) hydrate(ctx context.Context, msgs []models.ChatMessage) ([]models.ChatMessage, error) {
	if len(msgs) == 0 || s.profiles == nil {
		return msgs, nil
	}
	seen := make(map[int]struct{}, len(msgs))
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	profiles, err := s.profiles.BulkProfiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load senders: %w", err)
	}
	byID := make(map[int]models.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.UserID] = p
	}
	for i := range msgs {
		if p, ok := byID[msgs[i].SenderID]; ok {
			msgs[i].SenderName = p.Name()
			msgs[i].SenderPhoto = p.PhotoURL
		}
	}
	return msgs, nil
}

func (s *Service) notify(ctx context.Context, ev models.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Broadcast(ctx, ev); err != nil {
		log.Printf("messages notify failed room_id=%d kind=%s: %v", ev.RoomID, ev.Kind, err)
	}
}
