package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses the handler left alone.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}
		if ttl := cacheControlFor(c.Path()); ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}

// cacheControlFor picks a policy by path. Completed runs never change, but a
// queued run will, so single runs get a short TTL and rely on the ETag.
func cacheControlFor(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready":
		return "public, max-age=10"
	case path == "/metrics":
		return "no-cache"
	case path == "/v1/detections":
		return "private, max-age=0"
	case strings.HasPrefix(path, "/v1/detections/") && strings.HasSuffix(path, "/features"):
		return "private, max-age=60"
	case strings.HasPrefix(path, "/v1/detections/"):
		return "private, max-age=5"
	case path == "/v1/tiles":
		return "public, max-age=3600"
	case strings.HasPrefix(path, "/docs"):
		return "public, max-age=300"
	}
	return ""
}
