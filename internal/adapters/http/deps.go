package http

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geodetect/internal/adapters/postgres"
	"github.com/samirrijal/geodetect/internal/adapters/valkey"
	"github.com/samirrijal/geodetect/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Detections *usecases.DetectionService
	Prompts    *usecases.PromptService
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache

	// DetectionTimeout bounds the synchronous detection routes. Zero means 150s.
	DetectionTimeout time.Duration
	// Version is reported by the health endpoint.
	Version string
	// SpecPath locates the OpenAPI document served under /docs.
	SpecPath string
}
