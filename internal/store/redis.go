package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	unreadCacheTTL = 5 * time.Minute
	dedupTTL       = 24 * time.Hour
)

// RedisStore handles Redis operations for rate limiting, webhook
// deduplication and cached counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that needs pipelines.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// rateLimitKey returns the key for a caller's rate limit counter.
func rateLimitKey(caller string) string {
	return fmt.Sprintf("ratelimit:%s", caller)
}

// CheckRateLimit checks if a caller has exceeded the rate limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, caller string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(caller)).Int()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments the rate limit counter.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, caller string, window time.Duration) error {
	key := rateLimitKey(caller)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	return err
}

// notifyDedupKey returns the key marking a payment notification as sent.
func notifyDedupKey(transactionRef string) string {
	return fmt.Sprintf("paynotify:%s", transactionRef)
}

// MarkNotified records that the unlock notification for a transaction was
// emitted. Returns false if it was already recorded, so duplicate provider
// deliveries do not re-notify.
func (s *RedisStore) MarkNotified(ctx context.Context, transactionRef string) (bool, error) {
	return s.client.SetNX(ctx, notifyDedupKey(transactionRef), "1", dedupTTL).Result()
}

// unreadKey returns the key for a user's cached unread count.
func unreadKey(userID string) string {
	return fmt.Sprintf("unread:%s", userID)
}

// GetCachedUnread returns the cached unread count, or -1 on a miss.
func (s *RedisStore) GetCachedUnread(ctx context.Context, userID string) (int, error) {
	count, err := s.client.Get(ctx, unreadKey(userID)).Int()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return count, nil
}

// SetCachedUnread stores the unread count with a short TTL.
func (s *RedisStore) SetCachedUnread(ctx context.Context, userID string, count int) error {
	return s.client.Set(ctx, unreadKey(userID), count, unreadCacheTTL).Err()
}

// InvalidateUnread drops the cached unread count after a send or mark-read.
func (s *RedisStore) InvalidateUnread(ctx context.Context, userIDs ...string) error {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKey(id)
	}
	return s.client.Del(ctx, keys...).Err()
}
