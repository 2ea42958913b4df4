package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"collab-service/internal/models"
)

const keyPrefix = "presence:user:"

func presenceKey(userID int) string {
	return keyPrefix + strconv.Itoa(userID)
}

// RedisStore keeps presence rows as JSON strings with a TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps rdb. Rows expire after ttl so abandoned users eventually vanish.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// OpenRedis parses a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Printf("redis connected addr=%s", opts.Addr)
	return rdb, nil
}

func (s *RedisStore) Put(ctx context.Context, p models.UserPresence) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, presenceKey(p.UserID), raw, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, userID int) (models.UserPresence, bool, error) {
	raw, err := s.rdb.Get(ctx, presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.UserPresence{}, false, nil
	}
	if err != nil {
		return models.UserPresence{}, false, err
	}
	var p models.UserPresence
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.UserPresence{}, false, fmt.Errorf("decode presence: %w", err)
	}
	return p, true, nil
}

func (s *RedisStore) BulkGet(ctx context.Context, userIDs []int) (map[int]models.UserPresence, error) {
	out := make(map[int]models.UserPresence, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var p models.UserPresence
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			log.Printf("presence decode failed user_id=%d: %v", userIDs[i], err)
			continue
		}
		out[userIDs[i]] = p
	}
	return out, nil
}
