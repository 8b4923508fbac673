package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/geodetect/internal/adapters/nats"
	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to detection events.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "completed" | "failed" | "all" (default: all)
	Kind    string `json:"kind"`    // "text" | "points" ("" = both)
	RunID   string `json:"run_id"`  // only relay events of this run (optional)
}

// wsSubjects maps a subscription request to NATS subjects.
func wsSubjects(m wsMessage) ([]string, bool) {
	kind := m.Kind
	if kind == "" {
		kind = "*"
	} else if kind != string(domain.KindText) && kind != string(domain.KindPoints) {
		return nil, false
	}
	switch m.Channel {
	case "", "all":
		return []string{natsadapter.SubjectCompleted + kind, natsadapter.SubjectFailed + kind}, true
	case "completed":
		return []string{natsadapter.SubjectCompleted + kind}, true
	case "failed":
		return []string{natsadapter.SubjectFailed + kind}, true
	}
	return nil, false
}

// eventRelay tracks the NATS subscriptions of one client. A new relay
// forwards every event; the first explicit subscribe replaces that default
// set, so a run_id filter narrows the stream instead of adding to it.
type eventRelay struct {
	nc       *nats.Conn
	send     func([]byte) error
	subs     map[string]*nats.Subscription
	narrowed bool
}

func newEventRelay(nc *nats.Conn, send func([]byte) error) *eventRelay {
	return &eventRelay{nc: nc, send: send, subs: make(map[string]*nats.Subscription)}
}

func (r *eventRelay) handler(runID string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if runID != "" {
			var ev domain.DetectionEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.RunID != runID {
				return
			}
		}
		_ = r.send(msg.Data)
	}
}

// subscribeAll installs the default subscription to every event.
func (r *eventRelay) subscribeAll() error {
	return r.add(wsMessage{})
}

func (r *eventRelay) subscribe(m wsMessage) error {
	if !r.narrowed {
		r.narrowed = true
		r.close()
	}
	return r.add(m)
}

func (r *eventRelay) add(m wsMessage) error {
	subjects, _ := wsSubjects(m)
	for _, subject := range subjects {
		key := subject + "|" + m.RunID
		if _, exists := r.subs[key]; exists {
			continue
		}
		s, err := r.nc.Subscribe(subject, r.handler(m.RunID))
		if err != nil {
			return err
		}
		r.subs[key] = s
	}
	return nil
}

// unsubscribe drops the subscriptions matching m and returns how many there were.
func (r *eventRelay) unsubscribe(m wsMessage) int {
	subjects, _ := wsSubjects(m)
	var n int
	for _, subject := range subjects {
		key := subject + "|" + m.RunID
		if s, exists := r.subs[key]; exists {
			_ = s.Unsubscribe()
			delete(r.subs, key)
			n++
		}
	}
	return n
}

func (r *eventRelay) close() {
	for key, s := range r.subs {
		_ = s.Unsubscribe()
		delete(r.subs, key)
	}
}

// WebSocketHandler relays detection completion events from NATS to the
// client. Every connection starts subscribed to all events; the first
// {"action":"subscribe","channel":"completed","run_id":"..."} replaces that
// with the requested subjects.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		log := slog.Default().With("remote_addr", c.RemoteAddr().String())
		log.Info("ws client connected")

		var mu sync.Mutex
		writeRaw := func(data []byte) error {
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			return writeRaw(data)
		}

		relay := newEventRelay(nc, writeRaw)
		defer relay.close()
		if err := relay.subscribeAll(); err != nil {
			log.Error("ws default subscribe failed", "error", err)
			return
		}

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			subjects, ok := wsSubjects(m)
			if !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel or kind"})
				continue
			}

			switch m.Action {
			case "subscribe":
				if err := relay.subscribe(m); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]interface{}{"status": "subscribed", "subjects": subjects, "run_id": m.RunID})

			case "unsubscribe":
				if relay.unsubscribe(m) == 0 {
					_ = writeJSON(map[string]string{"error": "not subscribed"})
					continue
				}
				_ = writeJSON(map[string]interface{}{"status": "unsubscribed", "subjects": subjects, "run_id": m.RunID})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		log.Info("ws client disconnected")
	}
}
