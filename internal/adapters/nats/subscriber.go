package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/pkg/logging"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber connects to NATS and makes sure the stream exists.
func NewSubscriber(url string) (*Subscriber, error) {
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
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeDetectionRequests delivers queued runs to handler. A handler error
// naks the message for redelivery.
func (s *Subscriber) SubscribeDetectionRequests(ctx context.Context, handler func(ctx context.Context, run *domain.DetectionRun) error) error {
	sub, err := s.js.Subscribe(SubjectRequested+">", func(msg *nats.Msg) {
		var run domain.DetectionRun
		if err := json.Unmarshal(msg.Data, &run); err != nil {
			logging.FromContext(ctx).Error("drop malformed detection request", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &run); err != nil {
			logging.FromContext(ctx).Warn("detection request handler failed", "run_id", run.ID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("detection-worker"),
		nats.ManualAck(),
		nats.MaxDeliver(5),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeDetectionEvents delivers completion and failure events. Events
// are informational, so delivery starts with new messages only.
func (s *Subscriber) SubscribeDetectionEvents(ctx context.Context, handler func(ctx context.Context, event *domain.DetectionEvent) error) error {
	for _, subject := range []string{SubjectCompleted + ">", SubjectFailed + ">"} {
		sub, err := s.js.Subscribe(subject, func(msg *nats.Msg) {
			var event domain.DetectionEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				_ = msg.Term()
				return
			}
			if err := handler(ctx, &event); err != nil {
				_ = msg.Nak()
				return
			}
			_ = msg.Ack()
		},
			nats.DeliverNew(),
			nats.ManualAck(),
		)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
