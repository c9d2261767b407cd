package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock not acquired in time")

// Takes every key or none.
var acquireScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	if redis.call("EXISTS", key) == 1 then
		return 0
	end
end
for i, key in ipairs(KEYS) do
	redis.call("SET", key, ARGV[1], "PX", ARGV[2])
end
return 1
`)

// Deletes only the keys still holding our token.
var releaseScript = redis.NewScript(`
local n = 0
for i, key in ipairs(KEYS) do
	if redis.call("GET", key) == ARGV[1] then
		n = n + redis.call("DEL", key)
	end
end
return n
`)

// OrderLock serializes reconciliation passes touching the same order or the
// same variants across service instances.
type OrderLock struct {
	log   *slog.Logger
	rdb   *redis.Client
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
}

func NewOrderLock(log *slog.Logger, rdb *redis.Client, ttl, wait time.Duration) *OrderLock {
	return &OrderLock{log: log, rdb: rdb, ttl: ttl, wait: wait, retry: 50 * time.Millisecond}
}

func (l *OrderLock) WithLock(ctx context.Context, orderID string, variantIDs []string, fn func(ctx context.Context) error) error {
	keys := lockKeys(orderID, variantIDs)
	token := uuid.NewString()

	if err := l.acquire(ctx, keys, token); err != nil {
		return fmt.Errorf("lock order %s: %w", orderID, err)
	}
	defer func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, keys, token).Err(); err != nil {
			l.log.Error("lock release failed", "order_id", orderID, "err", err)
		}
	}()

	// The pass must finish before the keys expire.
	ctx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(ctx)
}

func (l *OrderLock) acquire(ctx context.Context, keys []string, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := acquireScript.Run(ctx, l.rdb, keys, token, l.ttl.Milliseconds()).Int()
		if err != nil {
			return err
		}
		if ok == 1 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// lockKeys is sorted so overlapping callers see the same key order.
func lockKeys(orderID string, variantIDs []string) []string {
	seen := make(map[string]struct{}, len(variantIDs))
	keys := make([]string, 0, len(variantIDs)+1)
	for _, id := range variantIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, "lock:variant:"+id)
	}
	sort.Strings(keys)
	return append([]string{"lock:order:" + orderID}, keys...)
}
