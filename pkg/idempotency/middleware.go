package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers processed Kafka messages for ttl. Keys are scoped to a
// consumer group so services sharing one Redis do not suppress each
// other's deliveries.
type Store struct {
	rdb   *redis.Client
	group string
	ttl   time.Duration
}

func NewStore(rdb *redis.Client, group string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, group: group, ttl: ttl}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%s:%d:%d", s.group, topic, partition, offset)
}

// Seen marks key as processed and reports whether it already was.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return !ok, nil
}
