package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

// Limiter counts failed logins per (role, key) and per client IP using
// fixed-window Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a [Limiter] backed by the given Redis client. Keys are
// namespaced under prefix.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "gotp:rl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// CheckLogin returns ErrRateLimited when the key or the IP has used up its
// failure budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, role, key, ip string) error {
	if err := l.checkCounter(ctx, l.loginKey(role, key)); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}

	return nil
}

// RecordFailure counts one failed login for the key and IP.
func (l *Limiter) RecordFailure(ctx context.Context, role, key, ip string) error {
	if _, err := l.incrementWithTTL(ctx, l.loginKey(role, key)); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}

	return nil
}

// ResetLogin clears the key counter after a successful login or a password
// reset. The IP counter is left to expire.
func (l *Limiter) ResetLogin(ctx context.Context, role, key string) error {
	if err := l.redis.Del(ctx, l.loginKey(role, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the failure count for a key. Missing keys count as zero.
func (l *Limiter) Failures(ctx context.Context, role, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginKey(role, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) loginKey(role, key string) string {
	return l.prefix + ":login:" + role + ":" + key
}

func (l *Limiter) ipKey(ip string) string {
	return l.prefix + ":ip:" + ip
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
