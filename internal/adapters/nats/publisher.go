package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geodetect/internal/core/domain"
)

// Subjects carried by the DETECTIONS stream.
const (
	SubjectRequested = "detection.requested."
	SubjectCompleted = "detection.completed."
	SubjectFailed    = "detection.failed."
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStream(js); err != nil {
		return nil, err
	}

	return &Publisher{conn: conn, js: js}, nil
}

func ensureStream(js nats.JetStreamContext) error {
	cfg := &nats.StreamConfig{
		Name:      "DETECTIONS",
		Subjects:  []string{"detection.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// PublishDetectionRequested queues a run for the worker.
func (p *Publisher) PublishDetectionRequested(ctx context.Context, run *domain.DetectionRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectRequested+string(run.Kind), data,
		nats.Context(ctx), nats.MsgId("req-"+run.ID))
	return err
}

func (p *Publisher) PublishDetectionCompleted(ctx context.Context, event *domain.DetectionEvent) error {
	return p.publishEvent(ctx, SubjectCompleted, event)
}

func (p *Publisher) PublishDetectionFailed(ctx context.Context, event *domain.DetectionEvent) error {
	return p.publishEvent(ctx, SubjectFailed, event)
}

func (p *Publisher) publishEvent(ctx context.Context, prefix string, event *domain.DetectionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(prefix+string(event.Kind), data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
