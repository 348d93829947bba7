package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitKey picks the bucket a request is counted against.
type RateLimitKey func(c *fiber.Ctx) string

// ByPhone buckets unauthenticated requests by the phone in the body, or the client IP.
func ByPhone(c *fiber.Ctx) string {
	var req struct {
		Phone string `json:"phone"`
	}
	_ = c.BodyParser(&req)
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		return phone
	}
	return c.IP()
}

// BySubject buckets authenticated requests by user.
func BySubject(c *fiber.Ctx) string {
	if id := UserID(c); id != "" {
		return id
	}
	return c.IP()
}

// RateLimit allows maxPerMin requests per bucket and scope in a fixed one-minute
// window. It fails open when Redis is absent or erroring.
func RateLimit(cache *redis.Client, scope string, maxPerMin int, key RateLimitKey) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		bucket := "rl:" + scope + ":" + key(c)
		cnt, err := cache.Incr(c.UserContext(), bucket).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), bucket, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
