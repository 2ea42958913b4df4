package repositories

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"collab-service/internal/models"
)

// MemoryStore keeps connections, rooms, messages and profiles in process memory.
// It is used by the memory store mode and by tests; one mutex serializes every operation,
// which gives the same atomicity the SQL implementation gets from transactions.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	connSeq     int
	connections map[int]*models.Connection

	roomSeq int
	rooms   map[int]*memoryRoom
	direct  map[[2]int]int

	msgSeq   int
	messages map[int]*models.ChatMessage
	byRoom   map[int][]int

	profiles map[int]models.Profile
}

type memoryRoom struct {
	room     models.ChatRoom
	latestID int
	members  map[int]*models.RoomMember
}

// NewMemoryStore builds an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryStoreWithClock builds an empty store using now for timestamps.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		now:         now,
		connections: make(map[int]*models.Connection),
		rooms:       make(map[int]*memoryRoom),
		direct:      make(map[[2]int]int),
		messages:    make(map[int]*models.ChatMessage),
		byRoom:      make(map[int][]int),
		profiles:    make(map[int]models.Profile),
	}
}

// PutProfile inserts or replaces a profile in the mirror.
func (s *MemoryStore) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// --- connections ---

// GetConnection fetches a connection by id.
func (s *MemoryStore) GetConnection(ctx context.Context, connectionID int) (models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[connectionID]
	if !ok {
		return models.Connection{}, ErrConnectionNotFound
	}
	return *conn, nil
}

// ListConnectionsBetween returns every record of the unordered pair.
func (s *MemoryStore) ListConnectionsBetween(ctx context.Context, userID int, otherID int) ([]models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairLocked(userID, otherID), nil
}

func (s *MemoryStore) pairLocked(userID, otherID int) []models.Connection {
	var out []models.Connection
	for _, conn := range s.connections {
		if conn.Involves(userID) && conn.Involves(otherID) {
			out = append(out, *conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListConnectionsForUser returns every record involving the user, newest first.
func (s *MemoryStore) ListConnectionsForUser(ctx context.Context, userID int) ([]models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Connection
	for _, conn := range s.connections {
		if conn.Involves(userID) {
			out = append(out, *conn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// RequestConnection stores a pending request after guard approves the pair's records.
func (s *MemoryStore) RequestConnection(ctx context.Context, requesterID int, addresseeID int, connType models.ConnectionType, guard RequestGuard) (models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.pairLocked(requesterID, addresseeID)
	if err := guard(existing); err != nil {
		return models.Connection{}, err
	}

	now := s.now()
	for _, rec := range existing {
		if rec.Type != connType {
			continue
		}
		conn := s.connections[rec.ID]
		conn.RequesterID = requesterID
		conn.AddresseeID = addresseeID
		conn.State = models.StatePending
		conn.UpdatedAt = now
		conn.RespondedAt = nil
		return *conn, nil
	}

	s.connSeq++
	conn := &models.Connection{
		ID:          s.connSeq,
		RequesterID: requesterID,
		AddresseeID: addresseeID,
		Type:        connType,
		State:       models.StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.connections[conn.ID] = conn
	return *conn, nil
}

// TransitionConnection moves a record from one state to another if it is still in from.
func (s *MemoryStore) TransitionConnection(ctx context.Context, connectionID int, from models.ConnectionState, to models.ConnectionState) (models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[connectionID]
	if !ok {
		return models.Connection{}, ErrConnectionNotFound
	}
	if conn.State != from {
		return models.Connection{}, ErrStaleState
	}
	now := s.now()
	conn.State = to
	conn.UpdatedAt = now
	if from == models.StatePending && to != models.StateCancelled {
		conn.RespondedAt = &now
	}
	return *conn, nil
}

// --- rooms ---

// CreateRoom creates a shared room with its creator as owner.
func (s *MemoryStore) CreateRoom(ctx context.Context, room models.NewRoom) (models.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := room.Name
	r := s.newRoomLocked(room.Type, room.IsPrivate, room.CreatedBy)
	r.room.Name = &name
	r.room.Description = room.Description
	r.members[room.CreatedBy] = &models.RoomMember{RoomID: r.room.ID, UserID: room.CreatedBy, Role: models.RoleOwner, JoinedAt: r.room.CreatedAt}
	return s.viewLocked(r, room.CreatedBy), nil
}

func (s *MemoryStore) newRoomLocked(roomType models.RoomType, private bool, createdBy int) *memoryRoom {
	s.roomSeq++
	now := s.now()
	r := &memoryRoom{
		room: models.ChatRoom{
			ID:             s.roomSeq,
			Type:           roomType,
			IsPrivate:      private,
			CreatedBy:      createdBy,
			CreatedAt:      now,
			LastActivityAt: now,
		},
		members: make(map[int]*models.RoomMember),
	}
	s.rooms[r.room.ID] = r
	return r
}

// CreateOrGetDirectRoom returns the direct room of the pair, creating it if needed.
func (s *MemoryStore) CreateOrGetDirectRoom(ctx context.Context, userID int, otherID int) (models.ChatRoom, bool, error) {
	if userID == otherID {
		return models.ChatRoom{}, false, errors.New("cannot create direct room with self")
	}
	low, high := orderedPair(userID, otherID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.direct[[2]int{low, high}]; ok {
		return s.viewLocked(s.rooms[id], userID), false, nil
	}
	r := s.newRoomLocked(models.RoomDirect, true, userID)
	for _, id := range []int{low, high} {
		r.members[id] = &models.RoomMember{RoomID: r.room.ID, UserID: id, Role: models.RoleMember, JoinedAt: r.room.CreatedAt}
	}
	s.direct[[2]int{low, high}] = r.room.ID
	return s.viewLocked(r, userID), true, nil
}

// viewLocked projects a room for viewer, computing summary and unread count.
func (s *MemoryStore) viewLocked(r *memoryRoom, viewer int) models.ChatRoom {
	room := r.room
	room.ParticipantCount = len(r.members)
	if member, ok := r.members[viewer]; ok {
		room.LastReadAt = member.LastReadAt
		for _, id := range s.byRoom[r.room.ID] {
			msg := s.messages[id]
			if msg.ID > member.LastReadMessageID && msg.SenderID != viewer && msg.Type != models.MessageSystem {
				room.UnreadCount++
			}
		}
	}
	if latest, ok := s.messages[r.latestID]; ok {
		room.LatestMessage = &models.MessageSummary{
			ID:        latest.ID,
			SenderID:  latest.SenderID,
			Content:   latest.Content,
			Type:      latest.Type,
			CreatedAt: latest.CreatedAt,
		}
	}
	return room
}

// GetRoom fetches a room as seen by a member.
func (s *MemoryStore) GetRoom(ctx context.Context, roomID int, viewerID int) (models.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	if _, member := r.members[viewerID]; !member {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	return s.viewLocked(r, viewerID), nil
}

// ListRoomsForUser returns the user's rooms, most recently active first.
func (s *MemoryStore) ListRoomsForUser(ctx context.Context, userID int) ([]models.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatRoom
	for _, r := range s.rooms {
		if _, ok := r.members[userID]; ok {
			out = append(out, s.viewLocked(r, userID))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// RoomIDsForUser lists the ids of every room the user belongs to.
func (s *MemoryStore) RoomIDsForUser(ctx context.Context, userID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, r := range s.rooms {
		if _, ok := r.members[userID]; ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// GetMember fetches one membership row.
func (s *MemoryStore) GetMember(ctx context.Context, roomID int, userID int) (models.RoomMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return models.RoomMember{}, ErrMemberNotFound
	}
	member, ok := r.members[userID]
	if !ok {
		return models.RoomMember{}, ErrMemberNotFound
	}
	return *member, nil
}

// IsMember checks membership.
func (s *MemoryStore) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	_, err := s.GetMember(ctx, roomID, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return false, nil
	}
	return err == nil, err
}

// AddMembers inserts memberships, skipping users already present, and returns the ids added.
func (s *MemoryStore) AddMembers(ctx context.Context, roomID int, userIDs []int, role models.MemberRole) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	var added []int
	for _, id := range userIDs {
		if _, exists := r.members[id]; exists {
			continue
		}
		r.members[id] = &models.RoomMember{RoomID: roomID, UserID: id, Role: role, JoinedAt: s.now()}
		added = append(added, id)
	}
	sort.Ints(added)
	return added, nil
}

// MarkRead moves the member's read marker to the room's latest message.
func (s *MemoryStore) MarkRead(ctx context.Context, roomID int, userID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return ErrMemberNotFound
	}
	member, ok := r.members[userID]
	if !ok {
		return ErrMemberNotFound
	}
	readAt := at
	member.LastReadAt = &readAt
	if ids := s.byRoom[roomID]; len(ids) > 0 {
		member.LastReadMessageID = ids[len(ids)-1]
	}
	return nil
}

// --- messages ---

// CreateMessage appends a message and advances the room's latest-message pointer.
func (s *MemoryStore) CreateMessage(ctx context.Context, msg models.NewMessage) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[msg.RoomID]
	if !ok {
		return models.ChatMessage{}, ErrRoomNotFound
	}
	var replyContent *string
	if msg.ReplyTo != nil {
		parent, ok := s.messages[*msg.ReplyTo]
		if !ok || parent.RoomID != msg.RoomID {
			return models.ChatMessage{}, ErrMessageNotFound
		}
		content := parent.Content
		replyContent = &content
	}

	s.msgSeq++
	metadata := msg.Metadata
	if metadata == nil {
		metadata = models.Metadata{}
	}
	stored := &models.ChatMessage{
		ID:           s.msgSeq,
		RoomID:       msg.RoomID,
		SenderID:     msg.SenderID,
		Content:      msg.Content,
		Type:         msg.Type,
		CreatedAt:    s.now(),
		ReplyTo:      msg.ReplyTo,
		ReplyContent: replyContent,
		Metadata:     metadata,
	}
	s.messages[stored.ID] = stored
	s.byRoom[msg.RoomID] = append(s.byRoom[msg.RoomID], stored.ID)
	r.latestID = stored.ID
	r.room.LastActivityAt = stored.CreatedAt
	return *stored, nil
}

// GetMessage retrieves a single message of a room.
func (s *MemoryStore) GetMessage(ctx context.Context, roomID int, messageID int) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMessageLocked(roomID, messageID)
}

func (s *MemoryStore) getMessageLocked(roomID, messageID int) (models.ChatMessage, error) {
	msg, ok := s.messages[messageID]
	if !ok || msg.RoomID != roomID {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	out := *msg
	if out.ReplyTo != nil {
		if parent, ok := s.messages[*out.ReplyTo]; ok {
			content := parent.Content
			out.ReplyContent = &content
		}
	}
	return out, nil
}

// ListMessages returns a page of messages, newest first.
func (s *MemoryStore) ListMessages(ctx context.Context, roomID int, limit int, offset int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.ChatMessage, 0, len(s.byRoom[roomID]))
	for _, id := range s.byRoom[roomID] {
		msg, _ := s.getMessageLocked(roomID, id)
		all = append(all, msg)
	}
	sort.Slice(all, func(i, j int) bool { return all[j].Less(all[i]) })

	if offset >= len(all) {
		return []models.ChatMessage{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// UpdateContent rewrites a message body and stamps the edit time.
func (s *MemoryStore) UpdateContent(ctx context.Context, roomID int, messageID int, content string, editedAt time.Time) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.RoomID != roomID {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	edited := editedAt
	msg.Content = content
	msg.EditedAt = &edited
	return s.getMessageLocked(roomID, messageID)
}

// --- profiles ---

// BulkProfiles fetches the profiles of the given users.
func (s *MemoryStore) BulkProfiles(ctx context.Context, userIDs []int) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Profile, 0, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// SearchProfiles matches username or display name case-insensitively.
func (s *MemoryStore) SearchProfiles(ctx context.Context, query string, excludeID int, limit int) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.Profile
	for _, p := range s.profiles {
		if p.UserID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(p.Username), q) || strings.Contains(strings.ToLower(p.DisplayName), q) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ ConnectionRepository = (*MemoryStore)(nil)
	_ RoomRepository       = (*MemoryStore)(nil)
	_ MessageRepository    = (*MemoryStore)(nil)
	_ ProfileRepository    = (*MemoryStore)(nil)

	_ ConnectionRepository = (*ConnectionRepo)(nil)
	_ RoomRepository       = (*RoomRepo)(nil)
	_ MessageRepository    = (*MessageRepo)(nil)
	_ ProfileRepository    = (*ProfileRepo)(nil)
)
