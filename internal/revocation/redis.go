package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "session:"

type redisEntry struct {
	Value    string `json:"value"`
	StoredAt int64  `json:"stored_at"`
}

// RedisStore relies on native key expiry, so an expired entry cannot come back.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(subject string) string { return s.prefix + subject }

func (s *RedisStore) Put(ctx context.Context, subject, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, subject)
	}
	data, err := json.Marshal(redisEntry{Value: value, StoredAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("revocation: encode entry: %w", err)
	}
	return s.client.Set(ctx, s.key(subject), data, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, subject string) (string, error) {
	data, err := s.client.Get(ctx, s.key(subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	var e redisEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("revocation: decode entry: %w", err)
	}
	return e.Value, nil
}

func (s *RedisStore) Delete(ctx context.Context, subject string) error {
	return s.client.Del(ctx, s.key(subject)).Err()
}

// Ping checks connectivity; used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
