package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/geodetect/internal/adapters/http"
	natsadapter "github.com/samirrijal/geodetect/internal/adapters/nats"
	"github.com/samirrijal/geodetect/internal/adapters/postgres"
	"github.com/samirrijal/geodetect/internal/adapters/predict"
	"github.com/samirrijal/geodetect/internal/adapters/valkey"
	"github.com/samirrijal/geodetect/internal/core/ports"
	"github.com/samirrijal/geodetect/internal/core/usecases"
	"github.com/samirrijal/geodetect/internal/pkg/config"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
	"github.com/samirrijal/geodetect/internal/pkg/logging"
	"github.com/samirrijal/geodetect/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("geodetect-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache and NATS are optional: without them duplicate suppression and
	// asynchronous submission are disabled.
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	predictor := predict.New(predict.Options{
		TextURL:        cfg.Predict.TextURL,
		PointURL:       cfg.Predict.PointURL,
		Timeout:        cfg.Predict.Timeout,
		MaxRetries:     cfg.Predict.MaxRetries,
		InitialBackoff: cfg.Predict.InitialBackoff,
	})

	detections := usecases.NewDetectionService(
		postgres.NewDetectionRepo(db), predictor, events, cacheSvc, detectionConfig(cfg))

	deps := &http.Dependencies{
		Detections:       detections,
		Prompts:          usecases.NewPromptService(geospatial.DefaultEpsilon),
		DB:               db,
		DetectionTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Version:          version,
	}
	if cache != nil {
		deps.Cache = cache
	}
	if pub != nil {
		deps.NATS = pub.Conn()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		AppName:      "GeoDetect API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Detections can run for minutes; give them the request timeout to finish.
	drain := time.Duration(cfg.Server.RequestTimeout) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), drain)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func detectionConfig(cfg *config.Config) usecases.DetectionConfig {
	return usecases.DetectionConfig{
		MinZoom:          cfg.Detection.MinZoom,
		MaxZoom:          cfg.Detection.MaxZoom,
		DefaultZoom:      cfg.Detection.DefaultZoom,
		MaxTiles:         cfg.Detection.MaxTiles,
		BoxThreshold:     cfg.Detection.BoxThreshold,
		TextThreshold:    cfg.Detection.TextThreshold,
		DedupWindow:      cfg.Detection.DedupWindow,
		ResultTTL:        cfg.Detection.ResultTTL,
		ResponseMercator: geospatial.IsWebMercatorCRS(cfg.Predict.ResponseCRS),
	}
}
