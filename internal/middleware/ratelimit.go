package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/config"
	"github.com/prospectlens/api/pkg/response"
)

type RateLimiter struct {
	redis  *redis.Client
	cfg    config.RateLimitConfig
	logger *zap.Logger
}

func NewRateLimiter(redisClient *redis.Client, cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{redis: redisClient, cfg: cfg, logger: logger}
}

// Limit allows maxRequests per window for each caller, falling back to the
// client IP for anonymous requests. A non-positive max disables the limit.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxRequests <= 0 {
			return c.Next()
		}
		subject := "user:" + GetUserID(c)
		if subject == "user:" {
			subject = "ip:" + c.IP()
		}
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, subject)
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request but log the error
			rl.logger.Warn("Rate limit check failed", zap.String("key", key), zap.Error(err))
			return c.Next()
		}
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))
		return c.Next()
	}
}

func (rl *RateLimiter) CreateLimit() fiber.Handler {
	return rl.Limit("create", rl.cfg.CreatePerHour, time.Hour)
}

func (rl *RateLimiter) DiscoverLimit() fiber.Handler {
	return rl.Limit("discover", rl.cfg.DiscoverPerHour, time.Hour)
}

func (rl *RateLimiter) AdvantagesLimit() fiber.Handler {
	return rl.Limit("advantages", rl.cfg.AdvantagesPerHour, time.Hour)
}

func (rl *RateLimiter) PlanLimit() fiber.Handler {
	return rl.Limit("plan", rl.cfg.PlanPerHour, time.Hour)
}

func (rl *RateLimiter) ExportLimit() fiber.Handler {
	return rl.Limit("export", rl.cfg.ExportPerHour, time.Hour)
}
