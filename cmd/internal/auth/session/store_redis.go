package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over Redis.
//
// English design notes:
// - The client is owned by the caller; this store must NOT close it.
// - One key per session ("ptw:session:<id>"), JSON value, TTL-expired.
// - Touch uses EXPIRE to slide the window; Redis reports whether the key
//   still existed, which is exactly the liveness answer we need.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore with the default key prefix.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("session: nil redis client")
	}
	return &RedisStore{client: client, prefix: "ptw:session:"}, nil
}

func (s *RedisStore) key(sessionID string) string { return s.prefix + sessionID }

func (s *RedisStore) Create(ctx context.Context, sessionID string, rec Record, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	return s.client.Set(ctx, s.key(sessionID), b, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (Record, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.key(sessionID))
	ttlCmd := pipe.PTTL(ctx, s.key(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrSessionNotFound
		}
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(getCmd.Val()), &rec); err != nil {
		return Record{}, fmt.Errorf("session: unmarshal record: %w", err)
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		rec.ExpiresAt = time.Now().Add(ttl)
	}
	return rec, nil
}

func (s *RedisStore) Touch(ctx context.Context, sessionID string, ttl time.Duration) error {
	ok, err := s.client.Expire(ctx, s.key(sessionID), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
