package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/geodetect/internal/pkg/metrics"
)

const (
	defaultRouteTimeout     = 15 * time.Second
	defaultDetectionTimeout = 150 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware(legacyRoutes))

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	detect := deps.DetectionTimeout
	if detect <= 0 {
		detect = defaultDetectionTimeout
	}
	quick := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, defaultRouteTimeout) }
	slow := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, detect) }

	v1 := app.Group("/v1")
	v1.Post("/bbox", quick(BBoxHandler(deps)))
	v1.Get("/tiles", quick(TilesHandler(deps)))

	v1.Post("/detections/text", slow(DetectTextHandler(deps)))
	v1.Post("/detections/points", slow(DetectPointsHandler(deps)))
	v1.Post("/detections", quick(SubmitDetectionHandler(deps)))
	v1.Get("/detections", quick(ListDetectionsHandler(deps)))
	v1.Get("/detections/:id", quick(GetDetectionHandler(deps)))
	v1.Get("/detections/:id/features", quick(DetectionFeaturesHandler(deps)))

	v1.Post("/results/reduce", quick(ReduceHandler(deps)))

	v1.Post("/prompts/points", quick(AddPromptPointHandler(deps)))
	v1.Delete("/prompts/points", quick(RemovePromptPointHandler(deps)))

	app.Post("/api/v1/predict", slow(LegacyPredictHandler(deps)))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.SpecPath)

	// WebSocket relay of detection events
	app.Use("/ws", func(c *fiber.Ctx) error {
		if deps.NATS == nil {
			return newError(c, fiber.StatusServiceUnavailable, "unavailable", "event stream not configured")
		}
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
