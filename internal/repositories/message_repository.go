package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"collab-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.ChatMessage, error)
	GetMessage(ctx context.Context, roomID int, messageID int) (models.ChatMessage, error)
	ListMessages(ctx context.Context, roomID int, limit int, offset int) ([]models.ChatMessage, error)
	UpdateContent(ctx context.Context, roomID int, messageID int, content string, editedAt time.Time) (models.ChatMessage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageSelect = `SELECT m.id, m.room_id, m.sender_id, m.content, m.message_type, m.created_at, m.edited_at,
        m.reply_to, parent.content AS reply_content, m.metadata
    FROM messages m
    LEFT JOIN messages parent ON parent.id = m.reply_to`

// CreateMessage appends a message and advances the room's latest-message pointer in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.ChatMessage, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatMessage{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if msg.ReplyTo != nil {
		var exists bool
		if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1 AND room_id=$2)`, *msg.ReplyTo, msg.RoomID); err != nil {
			return models.ChatMessage{}, err
		}
		if !exists {
			err = ErrMessageNotFound
			return models.ChatMessage{}, err
		}
	}

	var id int
	var createdAt time.Time
	if err = tx.QueryRowxContext(ctx, `INSERT INTO messages (room_id, sender_id, content, message_type, reply_to, metadata)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		msg.RoomID, msg.SenderID, msg.Content, msg.Type, msg.ReplyTo, msg.Metadata).Scan(&id, &createdAt); err != nil {
		return models.ChatMessage{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE rooms SET latest_message_id=$2, last_activity_at=$3 WHERE id=$1`, msg.RoomID, id, createdAt); err != nil {
		return models.ChatMessage{}, err
	}

	var stored models.ChatMessage
	if err = tx.GetContext(ctx, &stored, messageSelect+` WHERE m.id=$1`, id); err != nil {
		return models.ChatMessage{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.ChatMessage{}, err
	}
	return stored, nil
}

// GetMessage retrieves a single message of a room.
func (r *MessageRepo) GetMessage(ctx context.Context, roomID int, messageID int) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.GetContext(ctx, &msg, messageSelect+` WHERE m.id=$1 AND m.room_id=$2`, messageID, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns a page of messages, newest first.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID int, limit int, offset int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, messageSelect+`
        WHERE m.room_id=$1
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $2 OFFSET $3`, roomID, limit, offset)
	return msgs, err
}

// UpdateContent rewrites a message body and stamps the edit time.
func (r *MessageRepo) UpdateContent(ctx context.Context, roomID int, messageID int, content string, editedAt time.Time) (models.ChatMessage, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET content=$3, edited_at=$4 WHERE id=$1 AND room_id=$2`, messageID, roomID, content, editedAt)
	if err != nil {
		return models.ChatMessage{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.ChatMessage{}, err
	}
	if count == 0 {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	return r.GetMessage(ctx, roomID, messageID)
}
