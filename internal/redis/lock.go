package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultLockTTL = 5 * time.Second

var (
	ErrLockNotAcquired = errors.New("physician lock not acquired")
)

// Locker serialises the conflict check and the write for one physician.
type Locker interface {
	WithPhysicianLock(ctx context.Context, physicianID string, fn func(ctx context.Context) error) error
}

type LockOptions struct {
	TTL         time.Duration // how long the key lives if the holder dies
	RetryDelay  time.Duration // pause between SETNX attempts
	MaxAttempts int           // attempts before giving up with ErrLockNotAcquired
}

type redisPhysicianLocker struct {
	client *redis.Client
	opts   LockOptions
}

// NewRedisPhysicianLocker creates a locker that uses a per physician Redis key
func NewRedisPhysicianLocker(client *redis.Client, opts LockOptions) Locker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	// a zero TTL would cancel every critical section and leave keys without expiry
	if opts.TTL <= 0 {
		opts.TTL = DefaultLockTTL
	}
	return &redisPhysicianLocker{
		client: client,
		opts:   opts,
	}
}

func lockKey(physicianID string) string {
	return fmt.Sprintf("lock:physician:%s", physicianID)
}

func (l *redisPhysicianLocker) WithPhysicianLock(ctx context.Context, physicianID string, fn func(ctx context.Context) error) error {
	key := lockKey(physicianID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release must run even when ctx was cancelled mid-section
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.opts.TTL)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisPhysicianLocker) acquire(ctx context.Context, key, token string) error {
	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire physician lock: %w", err)
		}
		if ok {
			return nil
		}
		if attempt >= l.opts.MaxAttempts {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.RetryDelay):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPhysicianLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release physician lock: %w", err)
	}
	return nil
}
