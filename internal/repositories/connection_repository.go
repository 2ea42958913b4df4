package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"collab-service/internal/models"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrStaleState is returned when a compare-and-set transition finds a different state.
	ErrStaleState = errors.New("connection state changed concurrently")
)

// RequestGuard inspects every record of a pair, under lock, before a request is stored.
type RequestGuard func(existing []models.Connection) error

// ConnectionRepository abstracts connection persistence.
type ConnectionRepository interface {
	GetConnection(ctx context.Context, connectionID int) (models.Connection, error)
	ListConnectionsBetween(ctx context.Context, userID int, otherID int) ([]models.Connection, error)
	ListConnectionsForUser(ctx context.Context, userID int) ([]models.Connection, error)
	RequestConnection(ctx context.Context, requesterID int, addresseeID int, connType models.ConnectionType, guard RequestGuard) (models.Connection, error)
	TransitionConnection(ctx context.Context, connectionID int, from models.ConnectionState, to models.ConnectionState) (models.Connection, error)
}

// ConnectionRepo is a sqlx implementation of ConnectionRepository.
type ConnectionRepo struct {
	db *sqlx.DB
}

// NewConnectionRepo constructs a ConnectionRepo.
func NewConnectionRepo(db *sqlx.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

const connectionColumns = `id, requester_id, addressee_id, connection_type, status, created_at, updated_at, responded_at`

func orderedPair(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetConnection fetches a connection by id.
func (r *ConnectionRepo) GetConnection(ctx context.Context, connectionID int) (models.Connection, error) {
	var conn models.Connection
	err := r.db.GetContext(ctx, &conn, `SELECT `+connectionColumns+` FROM connections WHERE id=$1`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Connection{}, ErrConnectionNotFound
	}
	return conn, err
}

// ListConnectionsBetween returns every record of the unordered pair.
func (r *ConnectionRepo) ListConnectionsBetween(ctx context.Context, userID int, otherID int) ([]models.Connection, error) {
	low, high := orderedPair(userID, otherID)
	var conns []models.Connection
	err := r.db.SelectContext(ctx, &conns, `SELECT `+connectionColumns+` FROM connections WHERE user_low=$1 AND user_high=$2 ORDER BY id`, low, high)
	return conns, err
}

// ListConnectionsForUser returns every record involving the user, newest first.
func (r *ConnectionRepo) ListConnectionsForUser(ctx context.Context, userID int) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.SelectContext(ctx, &conns, `SELECT `+connectionColumns+` FROM connections
        WHERE requester_id=$1 OR addressee_id=$1
        ORDER BY updated_at DESC, id DESC`, userID)
	return conns, err
}

// RequestConnection stores a pending request after guard approves the pair's current records.
// The pair rows are locked for the duration of the guard; a concurrent first insert for the
// same pair trips the unique index and is retried once so the guard sees the winner.
func (r *ConnectionRepo) RequestConnection(ctx context.Context, requesterID int, addresseeID int, connType models.ConnectionType, guard RequestGuard) (models.Connection, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		conn, err := r.requestOnce(ctx, requesterID, addresseeID, connType, guard)
		if isUniqueViolation(err) {
			lastErr = err
			continue
		}
		return conn, err
	}
	return models.Connection{}, fmt.Errorf("request connection: %w", lastErr)
}

func (r *ConnectionRepo) requestOnce(ctx context.Context, requesterID int, addresseeID int, connType models.ConnectionType, guard RequestGuard) (conn models.Connection, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Connection{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	low, high := orderedPair(requesterID, addresseeID)
	var existing []models.Connection
	if err = tx.SelectContext(ctx, &existing, `SELECT `+connectionColumns+` FROM connections WHERE user_low=$1 AND user_high=$2 ORDER BY id FOR UPDATE`, low, high); err != nil {
		return models.Connection{}, err
	}
	if err = guard(existing); err != nil {
		return models.Connection{}, err
	}

	var current *models.Connection
	for i := range existing {
		if existing[i].Type == connType {
			current = &existing[i]
		}
	}

	if current != nil {
		err = tx.GetContext(ctx, &conn, `UPDATE connections
            SET requester_id=$2, addressee_id=$3, status=$4, updated_at=NOW(), responded_at=NULL
            WHERE id=$1
            RETURNING `+connectionColumns, current.ID, requesterID, addresseeID, models.StatePending)
	} else {
		err = tx.GetContext(ctx, &conn, `INSERT INTO connections (requester_id, addressee_id, user_low, user_high, connection_type, status)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING `+connectionColumns, requesterID, addresseeID, low, high, connType, models.StatePending)
	}
	if err != nil {
		return models.Connection{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Connection{}, err
	}
	return conn, nil
}

// TransitionConnection moves a record from one state to another if it is still in from.
func (r *ConnectionRepo) TransitionConnection(ctx context.Context, connectionID int, from models.ConnectionState, to models.ConnectionState) (models.Connection, error) {
	var conn models.Connection
	var respondedAt *time.Time
	if from == models.StatePending && to != models.StateCancelled {
		now := time.Now().UTC()
		respondedAt = &now
	}
	err := r.db.GetContext(ctx, &conn, `UPDATE connections
        SET status=$3, updated_at=NOW(), responded_at=COALESCE($4, responded_at)
        WHERE id=$1 AND status=$2
        RETURNING `+connectionColumns, connectionID, from, to, respondedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetConnection(ctx, connectionID); getErr != nil {
			return models.Connection{}, getErr
		}
		return models.Connection{}, ErrStaleState
	}
	return conn, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
