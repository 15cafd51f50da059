package ratelimit

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/common"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/ratelimit"
)

// Identifier derives the rate-limit key for a request. Authenticated callers
// are counted per credential so parallel clients behind one NAT do not starve
// each other; anonymous callers are counted per address.
func Identifier(ctx *fiber.Ctx) string {
	if auth := ctx.Get(fiber.HeaderAuthorization); auth != "" {
		return common.HashSHA256(auth)
	}
	return ctx.IP()
}

// Check returns a guard stage enforcing the given limiter class. Denied
// requests get a 429 with Retry-After; every response carries the
// X-RateLimit headers.
func Check(limiter *ratelimit.Limiter, class ratelimit.Class) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		result := limiter.Limit(ctx.Context(), Identifier(ctx), class)

		ctx.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		ctx.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		ctx.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return fiber.ErrTooManyRequests
		}
		return nil
	}
}

// New wraps Check as route middleware.
func New(limiter *ratelimit.Limiter, class ratelimit.Class) fiber.Handler {
	check := Check(limiter, class)
	return func(ctx *fiber.Ctx) error {
		if err := check(ctx); err != nil {
			return err
		}
		return ctx.Next()
	}
}
