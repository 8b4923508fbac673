package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/geodetect/internal/adapters/nats"
	"github.com/samirrijal/geodetect/internal/core/domain"
)

func runNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return srv, nc
}

func publishEvent(t *testing.T, nc *nats.Conn, subject string, ev domain.DetectionEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := nc.Publish(subject+string(ev.Kind), data); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func collect(ch <-chan []byte, quiet time.Duration) []domain.DetectionEvent {
	var out []domain.DetectionEvent
	for {
		select {
		case data := <-ch:
			var ev domain.DetectionEvent
			if err := json.Unmarshal(data, &ev); err == nil {
				out = append(out, ev)
			}
		case <-time.After(quiet):
			return out
		}
	}
}

func TestEventRelay_DefaultForwardsEverything(t *testing.T) {
	srv, nc := runNATS(t)
	got := make(chan []byte, 16)
	relay := newEventRelay(nc, func(b []byte) error { got <- b; return nil })
	defer relay.close()
	if err := relay.subscribeAll(); err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	pub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()
	publishEvent(t, pub, natsadapter.SubjectCompleted, domain.DetectionEvent{RunID: "a", Kind: domain.KindText})
	publishEvent(t, pub, natsadapter.SubjectFailed, domain.DetectionEvent{RunID: "b", Kind: domain.KindPoints})
	_ = pub.Flush()

	if events := collect(got, 300*time.Millisecond); len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
}

func TestEventRelay_RunFilterNarrows(t *testing.T) {
	srv, nc := runNATS(t)
	got := make(chan []byte, 16)
	relay := newEventRelay(nc, func(b []byte) error { got <- b; return nil })
	defer relay.close()
	if err := relay.subscribeAll(); err != nil {
		t.Fatal(err)
	}
	if err := relay.subscribe(wsMessage{Action: "subscribe", RunID: "wanted"}); err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	pub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()
	publishEvent(t, pub, natsadapter.SubjectCompleted, domain.DetectionEvent{RunID: "other", Kind: domain.KindText})
	publishEvent(t, pub, natsadapter.SubjectCompleted, domain.DetectionEvent{RunID: "wanted", Kind: domain.KindText})
	publishEvent(t, pub, natsadapter.SubjectFailed, domain.DetectionEvent{RunID: "other", Kind: domain.KindPoints})
	_ = pub.Flush()

	events := collect(got, 300*time.Millisecond)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d: %+v", len(events), events)
	}
	if events[0].RunID != "wanted" {
		t.Errorf("expected run wanted, got %q", events[0].RunID)
	}
}

func TestEventRelay_Unsubscribe(t *testing.T) {
	_, nc := runNATS(t)
	relay := newEventRelay(nc, func([]byte) error { return nil })
	defer relay.close()

	m := wsMessage{Action: "subscribe", Channel: "completed", RunID: "r1"}
	if err := relay.subscribe(m); err != nil {
		t.Fatal(err)
	}
	if len(relay.subs) != 1 {
		t.Fatalf("expected 1 subscription after narrowing, got %d", len(relay.subs))
	}
	if n := relay.unsubscribe(m); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if n := relay.unsubscribe(m); n != 0 {
		t.Errorf("expected nothing left to remove, got %d", n)
	}
}
