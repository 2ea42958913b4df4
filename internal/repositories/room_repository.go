package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"collab-service/internal/models"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrMemberNotFound = errors.New("room member not found")
)

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room models.NewRoom) (models.ChatRoom, error)
	CreateOrGetDirectRoom(ctx context.Context, userID int, otherID int) (models.ChatRoom, bool, error)
	GetRoom(ctx context.Context, roomID int, viewerID int) (models.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID int) ([]models.ChatRoom, error)
	RoomIDsForUser(ctx context.Context, userID int) ([]int, error)
	GetMember(ctx context.Context, roomID int, userID int) (models.RoomMember, error)
	IsMember(ctx context.Context, roomID int, userID int) (bool, error)
	AddMembers(ctx context.Context, roomID int, userIDs []int, role models.MemberRole) ([]int, error)
	MarkRead(ctx context.Context, roomID int, userID int, at time.Time) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// roomRow is the flattened listing row including the latest message columns.
type roomRow struct {
	models.ChatRoom
	LatestID        sql.NullInt64  `db:"latest_id"`
	LatestSenderID  sql.NullInt64  `db:"latest_sender_id"`
	LatestContent   sql.NullString `db:"latest_content"`
	LatestType      sql.NullString `db:"latest_type"`
	LatestCreatedAt sql.NullTime   `db:"latest_created_at"`
}

func (row roomRow) toRoom() models.ChatRoom {
	room := row.ChatRoom
	if row.LatestID.Valid {
		room.LatestMessage = &models.MessageSummary{
			ID:        int(row.LatestID.Int64),
			SenderID:  int(row.LatestSenderID.Int64),
			Content:   row.LatestContent.String,
			Type:      models.MessageType(row.LatestType.String),
			CreatedAt: row.LatestCreatedAt.Time,
		}
	}
	return room
}

const roomSelect = `SELECT r.id, r.name, r.description, r.room_type, r.is_private, r.created_by, r.created_at, r.last_activity_at,
        rm.last_read_at,
        (SELECT COUNT(*) FROM room_members m WHERE m.room_id = r.id) AS participant_count,
        (SELECT COUNT(*) FROM messages msg
            WHERE msg.room_id = r.id
            AND msg.id > rm.last_read_message_id
            AND msg.sender_id <> rm.user_id
            AND msg.message_type <> 'system') AS unread_count,
        lm.id AS latest_id, lm.sender_id AS latest_sender_id, lm.content AS latest_content,
        lm.message_type AS latest_type, lm.created_at AS latest_created_at
    FROM rooms r
    INNER JOIN room_members rm ON rm.room_id = r.id AND rm.user_id = $1
    LEFT JOIN messages lm ON lm.id = r.latest_message_id`

// CreateRoom creates a shared room with its creator as owner.
func (r *RoomRepo) CreateRoom(ctx context.Context, room models.NewRoom) (models.ChatRoom, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatRoom{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var roomID int
	if err = tx.QueryRowxContext(ctx, `INSERT INTO rooms (name, description, room_type, is_private, created_by)
        VALUES ($1, $2, $3, $4, $5) RETURNING id`, room.Name, room.Description, room.Type, room.IsPrivate, room.CreatedBy).
		Scan(&roomID); err != nil {
		return models.ChatRoom{}, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3)`, roomID, room.CreatedBy, models.RoleOwner); err != nil {
		return models.ChatRoom{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.ChatRoom{}, err
	}
	return r.GetRoom(ctx, roomID, room.CreatedBy)
}

// CreateOrGetDirectRoom returns the direct room of the pair, creating it if needed.
// The boolean result reports whether the room was created by this call.
func (r *RoomRepo) CreateOrGetDirectRoom(ctx context.Context, userID int, otherID int) (models.ChatRoom, bool, error) {
	if userID == otherID {
		return models.ChatRoom{}, false, errors.New("cannot create direct room with self")
	}
	participants := []int{userID, otherID}
	sort.Ints(participants)
	low, high := participants[0], participants[1]

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatRoom{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	created := true
	var roomID int
	err = tx.QueryRowxContext(ctx, `INSERT INTO rooms (room_type, is_private, created_by, direct_low, direct_high)
        VALUES ($1, TRUE, $2, $3, $4)
        ON CONFLICT (direct_low, direct_high) WHERE room_type = 'direct' DO NOTHING
        RETURNING id`, models.RoomDirect, userID, low, high).Scan(&roomID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = false
		if err = tx.GetContext(ctx, &roomID, `SELECT id FROM rooms WHERE room_type = 'direct' AND direct_low=$1 AND direct_high=$2`, low, high); err != nil {
			return models.ChatRoom{}, false, err
		}
	case err != nil:
		return models.ChatRoom{}, false, err
	default:
		for _, id := range participants {
			if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3)`, roomID, id, models.RoleMember); err != nil {
				return models.ChatRoom{}, false, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return models.ChatRoom{}, false, err
	}
	room, err := r.GetRoom(ctx, roomID, userID)
	return room, created, err
}

// GetRoom fetches a room as seen by a member.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int, viewerID int) (models.ChatRoom, error) {
	var row roomRow
	err := r.db.GetContext(ctx, &row, roomSelect+` WHERE r.id = $2`, viewerID, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	if err != nil {
		return models.ChatRoom{}, err
	}
	return row.toRoom(), nil
}

// ListRoomsForUser returns the user's rooms, most recently active first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int) ([]models.ChatRoom, error) {
	rows, err := r.db.QueryxContext(ctx, roomSelect+` ORDER BY r.last_activity_at DESC, r.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ChatRoom
	for rows.Next() {
		var row roomRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		result = append(result, row.toRoom())
	}
	return result, rows.Err()
}

// RoomIDsForUser lists the ids of every room the user belongs to.
func (r *RoomRepo) RoomIDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT room_id FROM room_members WHERE user_id=$1 ORDER BY room_id`, userID)
	return ids, err
}

// GetMember fetches one membership row.
func (r *RoomRepo) GetMember(ctx context.Context, roomID int, userID int) (models.RoomMember, error) {
	var member models.RoomMember
	err := r.db.GetContext(ctx, &member, `SELECT room_id, user_id, role, last_read_at, last_read_message_id, joined_at
        FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoomMember{}, ErrMemberNotFound
	}
	return member, err
}

// IsMember checks membership.
func (r *RoomRepo) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// AddMembers inserts memberships, skipping users already present, and returns the ids added.
func (r *RoomRepo) AddMembers(ctx context.Context, roomID int, userIDs []int, role models.MemberRole) ([]int, error) {
	var added []int
	err := r.db.SelectContext(ctx, &added, `INSERT INTO room_members (room_id, user_id, role)
        SELECT $1, u, $3 FROM UNNEST($2::int[]) AS u
        ON CONFLICT (room_id, user_id) DO NOTHING
        RETURNING user_id`, roomID, pq.Array(userIDs), role)
	if err != nil {
		return nil, err
	}
	sort.Ints(added)
	return added, nil
}

// MarkRead moves the member's read marker to the room's latest message.
func (r *RoomRepo) MarkRead(ctx context.Context, roomID int, userID int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE room_members
        SET last_read_at=$3,
            last_read_message_id=COALESCE((SELECT MAX(id) FROM messages WHERE room_id=$1), 0)
        WHERE room_id=$1 AND user_id=$2`, roomID, userID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}
