package presence

import (
	"context"
	"sync"

	"collab-service/internal/models"
)

// Store persists the last reported presence per user.
type Store interface {
	Put(ctx context.Context, p models.UserPresence) error
	// Get returns false when the user has no row.
	Get(ctx context.Context, userID int) (models.UserPresence, bool, error)
	// BulkGet omits users without a row.
	BulkGet(ctx context.Context, userIDs []int) (map[int]models.UserPresence, error)
}

// MemoryStore keeps presence rows in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[int]models.UserPresence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int]models.UserPresence)}
}

func (s *MemoryStore) Put(ctx context.Context, p models.UserPresence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.UserID] = p
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID int) (models.UserPresence, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[userID]
	return p, ok, nil
}

func (s *MemoryStore) BulkGet(ctx context.Context, userIDs []int) (map[int]models.UserPresence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]models.UserPresence, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.rows[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
