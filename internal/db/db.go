package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens a postgres connection pool for dsn.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
        user_id INT PRIMARY KEY,
        username TEXT NOT NULL,
        display_name TEXT NOT NULL DEFAULT '',
        photo_url TEXT,
        bio TEXT,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS profiles_username_idx ON profiles (lower(username));`,
	`CREATE TABLE IF NOT EXISTS connections (
        id SERIAL PRIMARY KEY,
        requester_id INT NOT NULL,
        addressee_id INT NOT NULL,
        user_low INT NOT NULL,
        user_high INT NOT NULL,
        connection_type TEXT NOT NULL DEFAULT 'friend',
        status TEXT NOT NULL DEFAULT 'pending',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        responded_at TIMESTAMPTZ,
        CHECK (requester_id <> addressee_id),
        UNIQUE (user_low, user_high, connection_type)
    );`,
	`CREATE INDEX IF NOT EXISTS connections_requester_idx ON connections (requester_id);`,
	`CREATE INDEX IF NOT EXISTS connections_addressee_idx ON connections (addressee_id);`,
	`CREATE TABLE IF NOT EXISTS rooms (
        id SERIAL PRIMARY KEY,
        name TEXT,
        description TEXT,
        room_type TEXT NOT NULL,
        is_private BOOLEAN NOT NULL DEFAULT FALSE,
        created_by INT NOT NULL,
        direct_low INT,
        direct_high INT,
        latest_message_id INT,
        last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS rooms_direct_pair_idx ON rooms (direct_low, direct_high) WHERE room_type = 'direct';`,
	`CREATE TABLE IF NOT EXISTS room_members (
        room_id INT NOT NULL REFERENCES rooms(id),
        user_id INT NOT NULL,
        role TEXT NOT NULL DEFAULT 'member',
        last_read_at TIMESTAMPTZ,
        last_read_message_id INT NOT NULL DEFAULT 0,
        joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (room_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS room_members_user_idx ON room_members (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id SERIAL PRIMARY KEY,
        room_id INT NOT NULL REFERENCES rooms(id),
        sender_id INT NOT NULL,
        content TEXT NOT NULL,
        message_type TEXT NOT NULL DEFAULT 'text',
        reply_to INT REFERENCES messages(id),
        metadata JSONB NOT NULL DEFAULT '{}',
        edited_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS messages_room_order_idx ON messages (room_id, created_at DESC, id DESC);`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	log.Println("database migrations applied")
	return nil
}
