// Package ratelimit provides the Redis-backed fixed-window request
// limiter used by the HTTP layer. It is the outer throttle per client IP;
// account lockout is an independent second layer underneath it.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"keygate/config"
	"keygate/internal/domain/lifecycle"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Limiter answers whether one more request from key is allowed within the
// given window.
type Limiter interface {
	// Allow counts the request and reports whether it fits the limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type redisLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// Params defines the required parameters
type Params struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
	Logger *slog.Logger
}

// New creates the Redis client and the limiter on top of it.
func New(params Params) (Limiter, error) {
	opts := &redis.Options{}
	if params.Config.Redis != nil {
		opts.Addr = params.Config.Redis.Addr
		opts.Password = params.Config.Redis.Password
		opts.DB = params.Config.Redis.DB
	}

	client := redis.NewClient(opts)

	params.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			ctx, cancel := context.WithTimeout(startCtx, lifecycle.DefaultTimeout)
			defer cancel()

			return client.Ping(ctx).Err()
		},
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})

	return NewRedisLimiter(client, params.Logger), nil
}

// NewRedisLimiter builds a limiter over an existing client. Split out so
// tests can supply a miniredis-backed client.
func NewRedisLimiter(client *redis.Client, logger *slog.Logger) Limiter {
	return &redisLimiter{client: client, logger: logger}
}

// Allow implements a fixed window: INCR the key, set its expiry on first
// hit, reject once the count exceeds the limit. On Redis failure the
// limiter fails open; availability wins over throttling accuracy here.
func (l *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	count, err := l.client.Incr(ctx, "ratelimit:"+key).Result()
	if err != nil {
		l.warn(ctx, "rate limiter unavailable, failing open", err)

		return true, nil
	}

	if count == 1 {
		if err := l.client.Expire(ctx, "ratelimit:"+key, window).Err(); err != nil {
			l.warn(ctx, "rate limiter expire failed", err)
		}
	}

	return count <= int64(limit), nil
}

func (l *redisLimiter) warn(ctx context.Context, msg string, err error) {
	if l.logger == nil {
		return
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, msg, slog.String("error", err.Error()))
}
