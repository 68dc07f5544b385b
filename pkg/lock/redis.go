package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "docsearch:lock:"
	defaultTTL    = 30 * time.Second
	defaultRetry  = 50 * time.Millisecond
)

// ErrNotHeld is returned by Extend when the key is not held by this locker.
var ErrNotHeld = errors.New("lock not held")

// RedisLocker is a Locker shared by every instance talking to the same Redis.
// It uses SETNX with a TTL so a crashed holder cannot block a key forever.
// Locks taken with Lock are refreshed every ttl/3 until released, so a long
// upsert keeps its lease; only a holder that stops running loses it.
type RedisLocker struct {
	client  redis.Cmdable
	ownerID string
	prefix  string
	ttl     time.Duration
	retry   time.Duration
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets how long a lock survives without being released.
func WithTTL(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithRetryInterval sets the polling interval while a key is held elsewhere.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithPrefix sets the Redis key prefix.
func WithPrefix(p string) RedisOption {
	return func(l *RedisLocker) { l.prefix = p }
}

// NewRedisLocker creates a RedisLocker with a unique owner ID.
func NewRedisLocker(client redis.Cmdable, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:  client,
		ownerID: generateOwnerID(),
		prefix:  defaultPrefix,
		ttl:     defaultTTL,
		retry:   defaultRetry,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// generateOwnerID returns hostname:pid:uuid.
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString())
}

// OwnerID returns the identifier written into held keys.
func (l *RedisLocker) OwnerID() string { return l.ownerID }

// releaseScript deletes the key only while we still own it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// extendScript refreshes the TTL only while we still own the key.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// TryLock makes a single acquisition attempt.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, l.ownerID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Lock polls until key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.hold(key), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// hold keeps key's lease alive until the returned unlock is called.
func (l *RedisLocker) hold(key string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		every := max(l.ttl/3, time.Millisecond)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), every)
				err := l.Extend(ctx, key, l.ttl)
				cancel()
				if errors.Is(err, ErrNotHeld) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = l.Unlock(context.Background(), key)
		})
	}
}

// Extend resets the TTL of a key held by this locker.
func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.prefix + key}, l.ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("extend lock %s: %w", key, ErrNotHeld)
	}
	return nil
}

// Unlock releases key if this locker still holds it. Releasing an expired or
// foreign lock is a no-op.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, l.ownerID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
