package middleware

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mingafix/mingafix/internal/observability"
	"github.com/mingafix/mingafix/internal/ratelimit"
)

// RateLimiterConfig holds configuration for the per-user rate limiter
type RateLimiterConfig struct {
	Limiter  *ratelimit.Limiter
	Policy   ratelimit.Policy
	Endpoint string // endpoint label used in counter keys and metrics
	Metrics  *observability.Metrics
}

// UserID returns the caller identity resolved by RateLimitByUser, or ""
// when the middleware has not run.
func UserID(c *fiber.Ctx) string {
	return toString(c.Locals("user_id"))
}

// ResolveUserID extracts the caller identity from the request: the
// X-User-ID header first, then a user_id/userId field in the body.
func ResolveUserID(c *fiber.Ctx) string {
	if id := c.Get("X-User-ID"); id != "" {
		return id
	}

	// Multipart and urlencoded submissions carry the field as a form value
	if id := c.FormValue("user_id"); id != "" {
		return id
	}
	if id := c.FormValue("userId"); id != "" {
		return id
	}

	if len(c.Body()) > 0 {
		var body struct {
			UserID  string `json:"user_id"`
			UserID2 string `json:"userId"`
		}
		if err := json.Unmarshal(c.Body(), &body); err == nil {
			if body.UserID != "" {
				return body.UserID
			}
			if body.UserID2 != "" {
				return body.UserID2
			}
		}
	}

	return ""
}

// RateLimitByUser returns a middleware that admits at most Policy.Max
// requests per user per window. Requests without a resolvable user
// identity are rejected before counting.
func RateLimitByUser(cfg RateLimiterConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := ResolveUserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"code":    "USER_ID_REQUIRED",
				"message": "User identification is required",
			})
		}

		c.Locals("user_id", userID)

		decision := cfg.Limiter.Admit(c.Context(), userID, cfg.Endpoint, cfg.Policy)

		c.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			if cfg.Metrics != nil {
				cfg.Metrics.RecordRateLimitRejection(cfg.Endpoint)
			}
			retryAfter := int(decision.RetryAfter.Seconds() + 0.5)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"code":        "RATE_LIMIT_EXCEEDED",
				"message":     "Too many reports, please wait before submitting again",
				"retry_after": retryAfter,
			})
		}

		return c.Next()
	}
}
