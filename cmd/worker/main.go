package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/geodetect/internal/adapters/nats"
	"github.com/samirrijal/geodetect/internal/adapters/postgres"
	"github.com/samirrijal/geodetect/internal/adapters/predict"
	"github.com/samirrijal/geodetect/internal/adapters/valkey"
	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/core/ports"
	"github.com/samirrijal/geodetect/internal/core/usecases"
	"github.com/samirrijal/geodetect/internal/pkg/config"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
	"github.com/samirrijal/geodetect/internal/pkg/logging"
	"github.com/samirrijal/geodetect/internal/pkg/telemetry"
	"github.com/samirrijal/geodetect/internal/workflows"
)

// The worker consumes detection.requested events from JetStream, starts a
// DetectionWorkflow per run, and hosts the Temporal worker that executes it.
func main() {
	cfg, err := config.Load("geodetect-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
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

	var cacheSvc ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	predictor := predict.New(predict.Options{
		TextURL:        cfg.Predict.TextURL,
		PointURL:       cfg.Predict.PointURL,
		Timeout:        cfg.Predict.Timeout,
		MaxRetries:     cfg.Predict.MaxRetries,
		InitialBackoff: cfg.Predict.InitialBackoff,
	})

	detections := usecases.NewDetectionService(postgres.NewDetectionRepo(db), predictor, pub, cacheSvc,
		usecases.DetectionConfig{
			MinZoom:          cfg.Detection.MinZoom,
			MaxZoom:          cfg.Detection.MaxZoom,
			DefaultZoom:      cfg.Detection.DefaultZoom,
			MaxTiles:         cfg.Detection.MaxTiles,
			BoxThreshold:     cfg.Detection.BoxThreshold,
			TextThreshold:    cfg.Detection.TextThreshold,
			DedupWindow:      cfg.Detection.DedupWindow,
			ResultTTL:        cfg.Detection.ResultTTL,
			ResponseMercator: geospatial.IsWebMercatorCRS(cfg.Predict.ResponseCRS),
		})

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer tc.Close()

	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.DetectionWorkflow)
	w.RegisterActivity(&workflows.DetectionActivities{Detections: detections})
	if err := w.Start(); err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer w.Stop()

	var starter ports.WorkflowStarter = workflows.NewStarter(tc, cfg.Temporal.TaskQueue)
	err = sub.SubscribeDetectionRequests(ctx, func(ctx context.Context, run *domain.DetectionRun) error {
		logging.FromContext(ctx).Info("starting detection workflow", "run_id", run.ID, "kind", run.Kind)
		return starter.StartDetection(ctx, run.ID)
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	slog.Info("detection worker started", "task_queue", cfg.Temporal.TaskQueue)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutting down worker", "signal", sig.String())
}
