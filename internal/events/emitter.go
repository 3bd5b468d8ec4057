package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Sink publishes BranchEvents; satisfied by *Emitter and by NoopSink for
// callers that don't need a live event stream.
type Sink interface {
	Publish(ev BranchEvent)
}

// NoopSink discards every event. Useful as a Manager default and in tests.
type NoopSink struct{}

func (NoopSink) Publish(BranchEvent) {}

// queueDepth bounds how many undelivered events a single subscriber will
// buffer before Publish starts dropping for it. Kept small: a slow
// subscriber should lose events, not make Publish block (spec.md §4.10).
const queueDepth = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// subscriber is one connected WebSocket client's outbound queue and the
// goroutine draining it onto the wire.
type subscriber struct {
	id   string
	out  chan []byte
	conn *websocket.Conn
}

// Emitter fans BranchEvents out to every subscribed WebSocket client.
// Publish never blocks the caller: a full subscriber queue causes that
// event to be dropped for that subscriber only, logged, and otherwise
// ignored (spec.md §4.10, "dropping an event never blocks or fails a
// lifecycle operation").
type Emitter struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	logger      *log.Logger
}

// NewEmitter constructs an Emitter with no subscribers. logger may be nil,
// in which case drops and connection errors are discarded silently.
func NewEmitter(logger *log.Logger) *Emitter {
	return &Emitter{subscribers: make(map[string]*subscriber), logger: logger}
}

func (e *Emitter) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Upgrade promotes an incoming HTTP request to a WebSocket connection and
// registers it as a subscriber under id, replacing any previous
// subscriber with the same id. The returned goroutine owns the connection
// until it closes or Unsubscribe is called.
func (e *Emitter) Upgrade(w http.ResponseWriter, r *http.Request, id string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	e.register(id, conn)
	return nil
}

func (e *Emitter) register(id string, conn *websocket.Conn) {
	sub := &subscriber{id: id, out: make(chan []byte, queueDepth), conn: conn}

	e.mu.Lock()
	if old, ok := e.subscribers[id]; ok {
		close(old.out)
		_ = old.conn.Close()
	}
	e.subscribers[id] = sub
	e.mu.Unlock()

	go e.drain(sub)
}

func (e *Emitter) drain(sub *subscriber) {
	defer func() {
		e.mu.Lock()
		if e.subscribers[sub.id] == sub {
			delete(e.subscribers, sub.id)
		}
		e.mu.Unlock()
		_ = sub.conn.Close()
	}()

	for payload := range sub.out {
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			e.logf("events: write to subscriber %s failed: %v", sub.id, err)
			return
		}
	}
}

// Unsubscribe closes and removes the subscriber registered under id, if any.
func (e *Emitter) Unsubscribe(id string) {
	e.mu.Lock()
	sub, ok := e.subscribers[id]
	if ok {
		delete(e.subscribers, id)
	}
	e.mu.Unlock()
	if ok {
		close(sub.out)
	}
}

// Publish serializes ev and fans it out to every current subscriber,
// dropping it for any subscriber whose queue is full. It never returns an
// error: a lifecycle operation's outcome must never depend on whether
// anyone is listening.
func (e *Emitter) Publish(ev BranchEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logf("events: marshal %s event for branch %s failed: %v", ev.Kind(), ev.BranchID(), err)
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sub := range e.subscribers {
		select {
		case sub.out <- payload:
		default:
			e.logf("events: dropping %s event for branch %s, subscriber %s queue full", ev.Kind(), ev.BranchID(), sub.id)
		}
	}
}

// SubscriberCount reports how many clients are currently attached, mostly
// for tests and diagnostics.
func (e *Emitter) SubscriberCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers)
}
