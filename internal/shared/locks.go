package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates the resource is locked by another unit of work.
var ErrLockHeld = errors.New("resource lock held")

// Locker serializes units of work per resource key using Redis.
type Locker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewLocker constructs a Locker with posting-sized defaults.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client, ttl: 30 * time.Second, retries: 20, backoff: 50 * time.Millisecond}
}

// TransactionLockKey builds the lock key guarding lifecycle transitions.
func TransactionLockKey(txID uuid.UUID) string {
	return fmt.Sprintf("ledger:tx:%s:lock", txID)
}

// ProductLockKey builds the lock key guarding a product's cost layers.
func ProductLockKey(productID int64) string {
	return fmt.Sprintf("ledger:product:%d:lock", productID)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the lock, retrying briefly, and returns a release func.
// The release is ownership-checked so an expired lock is never stolen back.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if attempt >= l.retries {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
