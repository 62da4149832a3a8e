package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

var _ followup.Locker = (*RedisLocker)(nil)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockConfig tunes RedisLocker
type LockConfig struct {
	TTL          time.Duration // lock expiry; must exceed the longest step dispatch
	Wait         time.Duration // how long Acquire keeps trying; zero tries once
	PollInterval time.Duration
}

// DefaultLockConfig holds a lock for up to 5 minutes and waits 10 seconds for it
func DefaultLockConfig() LockConfig {
	return LockConfig{
		TTL:          5 * time.Minute,
		Wait:         10 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// RedisLocker is a followup.Locker shared by every instance using the same Redis
type RedisLocker struct {
	client  *Client
	cfg     LockConfig
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewRedisLocker creates a distributed locker
func NewRedisLocker(client *Client, cfg LockConfig, log logger.Logger, m *metrics.Metrics) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLockConfig().TTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultLockConfig().PollInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisLocker{client: client, cfg: cfg, logger: log, metrics: m}
}

// Acquire takes the key with SET NX PX, retrying until Wait elapses
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(l.cfg.Wait)
	for {
		ok, err := l.client.Redis.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, domain.NewInternalError(fmt.Errorf("failed to acquire lock %s: %w", key, err))
		}
		if ok {
			l.metrics.RecordLock("redis", true)
			return l.releaser(key, token), nil
		}

		if !time.Now().Add(l.cfg.PollInterval).Before(deadline) {
			l.metrics.RecordLock("redis", false)
			return nil, domain.NewConflictError(fmt.Sprintf("%s is locked", key))
		}

		timer := time.NewTimer(l.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.metrics.RecordLock("redis", false)
			return nil, domain.NewConflictError(fmt.Sprintf("%s is locked", key))
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// detached from the caller context
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client.Redis, []string{key}, token).Err(); err != nil {
				l.logger.Warn("Failed to release lock", "key", key, "error", err)
			}
		})
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
