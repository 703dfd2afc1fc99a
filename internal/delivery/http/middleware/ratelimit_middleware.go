package middleware

import (
	"log/slog"

	"keygate/config"
	deliverycontext "keygate/internal/delivery/context"
	"keygate/internal/infra/ratelimit"

	"github.com/labstack/echo/v4"

	domainerrors "keygate/internal/domain/errors"
)

// RateLimitMiddleware applies per-IP request ceilings to endpoint groups
// before any handler runs. This is the outer throttle; account lockout is
// an independent second layer underneath it.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	cfg     *config.RateLimitConfig
	logger  *slog.Logger
}

// NewRateLimitMiddleware is the constructor for RateLimitMiddleware.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, cfg *config.Config, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		cfg:     cfg.RateLimit,
		logger:  logger,
	}
}

// Login throttles credential-guessing surfaces.
func (m *RateLimitMiddleware) Login() echo.MiddlewareFunc {
	return m.scope("login", func(cfg *config.RateLimitConfig) config.RateLimitPolicy { return cfg.Login })
}

// Register throttles account creation.
func (m *RateLimitMiddleware) Register() echo.MiddlewareFunc {
	return m.scope("register", func(cfg *config.RateLimitConfig) config.RateLimitPolicy { return cfg.Register })
}

// Reset throttles the mail-driven reset and recovery flows.
func (m *RateLimitMiddleware) Reset() echo.MiddlewareFunc {
	return m.scope("reset", func(cfg *config.RateLimitConfig) config.RateLimitPolicy { return cfg.Reset })
}

// Refresh throttles token rotation.
func (m *RateLimitMiddleware) Refresh() echo.MiddlewareFunc {
	return m.scope("refresh", func(cfg *config.RateLimitConfig) config.RateLimitPolicy { return cfg.Refresh })
}

// General throttles everything else.
func (m *RateLimitMiddleware) General() echo.MiddlewareFunc {
	return m.scope("general", func(cfg *config.RateLimitConfig) config.RateLimitPolicy { return cfg.General })
}

func (m *RateLimitMiddleware) scope(name string, pick func(*config.RateLimitConfig) config.RateLimitPolicy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.cfg == nil {
				return next(c)
			}
			policy := pick(m.cfg)

			key := name + ":" + c.RealIP()
			allowed, err := m.limiter.Allow(c.Request().Context(), key, policy.Limit, policy.Window)
			if err != nil {
				// The limiter fails open on store trouble; an error here is
				// unexpected but never blocks the request.
				m.logger.Warn("Rate limit check failed",
					slog.String("scope", name),
					slog.String("request_id", deliverycontext.GetRequestID(c)),
					slog.Any("error", err),
				)

				return next(c)
			}
			if !allowed {
				return domainerrors.ErrRateLimited
			}

			return next(c)
		}
	}
}
