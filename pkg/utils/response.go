package utils

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// RateLimited writes a 429 with a Retry-After header in whole seconds.
func RateLimited(c *fiber.Ctx, retryAfter time.Duration, message string) error {
	seconds := int64(retryAfter / time.Second)
	if retryAfter%time.Second != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(seconds, 10))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"success":           false,
		"error":             message,
		"retryAfterSeconds": seconds,
	})
}
