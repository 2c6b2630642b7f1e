package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/config"
)

// Limiter defines the interface for rate limiting operations
type Limiter interface {
	// Allow reports whether one more request fits in key's current window.
	Allow(ctx context.Context, key string, rule Rule) (bool, error)

	// AllowN consumes n requests at once.
	AllowN(ctx context.Context, key string, n int, rule Rule) (bool, error)

	// Reset clears the current window for key.
	Reset(ctx context.Context, key string, rule Rule) error

	// GetRemaining returns the number of requests left in the current window.
	GetRemaining(ctx context.Context, key string, rule Rule) (int, error)
}

// Rule is a limit of Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// WindowLimiter counts requests per fixed window in Redis. The counter for
// a window is a single INCRBY key that expires shortly after the window ends.
type WindowLimiter struct {
	client   redis.Cmdable
	logger   *zap.Logger
	failOpen bool // allow requests when Redis is unavailable
	now      func() time.Time
}

func NewWindowLimiter(client redis.Cmdable, logger *zap.Logger, failOpen bool) *WindowLimiter {
	return &WindowLimiter{
		client:   client,
		logger:   logger,
		failOpen: failOpen,
		now:      time.Now,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	return l.AllowN(ctx, key, 1, rule)
}

func (l *WindowLimiter) AllowN(ctx context.Context, key string, n int, rule Rule) (bool, error) {
	bucketKey := l.bucketKey(key, rule.Window)

	pipe := l.client.TxPipeline()
	incr := pipe.IncrBy(ctx, bucketKey, int64(n))
	pipe.Expire(ctx, bucketKey, rule.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing request",
				zap.String("key", key),
				zap.Error(err),
			)
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incr.Val()
	allowed := count <= int64(rule.Limit)
	if !allowed {
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
			zap.Duration("window", rule.Window),
		)
	}
	return allowed, nil
}

func (l *WindowLimiter) Reset(ctx context.Context, key string, rule Rule) error {
	if err := l.client.Del(ctx, l.bucketKey(key, rule.Window)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %s: %w", key, err)
	}
	return nil
}

func (l *WindowLimiter) GetRemaining(ctx context.Context, key string, rule Rule) (int, error) {
	count, err := l.client.Get(ctx, l.bucketKey(key, rule.Window)).Int64()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining requests: %w", err)
	}
	return max(rule.Limit-int(count), 0), nil
}

func (l *WindowLimiter) bucketKey(key string, window time.Duration) string {
	if window <= 0 {
		window = time.Minute
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, l.now().UnixNano()/int64(window))
}

// Endpoint names the rate limited route groups.
type Endpoint string

const (
	EndpointRegister Endpoint = "register"
	EndpointLogin    Endpoint = "login"
	EndpointAPI      Endpoint = "api"
)

// RuleFor returns the per-minute rule configured for endpoint.
func RuleFor(endpoint Endpoint, cfg config.RateLimitConfig) Rule {
	switch endpoint {
	case EndpointRegister:
		return Rule{Limit: cfg.RegisterPerMinute, Window: time.Minute}
	case EndpointLogin:
		return Rule{Limit: cfg.LoginPerMinute, Window: time.Minute}
	case EndpointAPI:
		return Rule{Limit: cfg.APIPerMinute, Window: time.Minute}
	default:
		return Rule{Limit: 100, Window: time.Minute}
	}
}
