// Package sse pushes note and entity changes to browsers as Server-Sent Events.
//
// Every resource change (note.created, entity.updated, ...) is delivered as-is.
// Each change also implies an aggregate event: graph.updated for notes,
// directory.updated for entities. Aggregates are rate limited per name so a
// bulk import does not make every editor reload its candidates hundreds of
// times.
package sse

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/almanac/internal/models"
)

const (
	defaultThrottle  = 2 * time.Second
	defaultHeartbeat = 25 * time.Second
	clientBuffer     = 64

	aggregateGraph     = "graph.updated"
	aggregateDirectory = "directory.updated"
)

// Event is one message to broadcast. Data is encoded as JSON.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type change struct {
	event     Event
	aggregate string
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets how often idle streams receive a keep-alive comment.
// Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// Broker fans events out to subscribed clients.
//
// A single goroutine owns the client set, the aggregate timestamps and the
// event sequence; the exported methods only talk to it over channels.
type Broker struct {
	throttle  time.Duration
	heartbeat time.Duration

	subscribe   chan chan []byte
	unsubscribe chan chan []byte
	events      chan change
	count       chan chan int

	quit    chan struct{}
	done    chan struct{}
	closing atomic.Bool
}

// NewBroker starts a broker. Aggregate events of the same name are sent at
// most once per throttle; a non-positive throttle uses two seconds.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = defaultThrottle
	}
	b := &Broker{
		throttle:    throttle,
		heartbeat:   defaultHeartbeat,
		subscribe:   make(chan chan []byte),
		unsubscribe: make(chan chan []byte),
		events:      make(chan change, 256),
		count:       make(chan chan int),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	go b.loop()
	return b
}

// hub is the state owned by the broker goroutine.
type hub struct {
	clients  map[chan []byte]struct{}
	lastSent map[string]time.Time
	seq      uint64
}

// frame encodes ev in the text/event-stream format with the next sequence id.
func (h *hub) frame(ev Event) ([]byte, bool) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, false
	}
	h.seq++
	buf := make([]byte, 0, len(data)+len(ev.Type)+32)
	buf = append(buf, "id: "...)
	buf = strconv.AppendUint(buf, h.seq, 10)
	buf = append(buf, "\nevent: "...)
	buf = append(buf, ev.Type...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	return buf, true
}

// send delivers ev to every client. A client whose buffer is full misses it.
func (h *hub) send(ev Event) {
	msg, ok := h.frame(ev)
	if !ok {
		return
	}
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// due reports whether the aggregate name may be sent at now, and records it.
func (h *hub) due(name string, now time.Time, every time.Duration) bool {
	if now.Sub(h.lastSent[name]) < every {
		return false
	}
	h.lastSent[name] = now
	return true
}

func (b *Broker) loop() {
	defer close(b.done)
	h := &hub{
		clients:  make(map[chan []byte]struct{}),
		lastSent: make(map[string]time.Time),
	}
	for {
		select {
		case <-b.quit:
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-b.subscribe:
			h.clients[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case c := <-b.events:
			h.send(c.event)
			if c.aggregate != "" && h.due(c.aggregate, time.Now(), b.throttle) {
				h.send(Event{Type: c.aggregate, Data: struct{}{}})
			}
		case resp := <-b.count:
			resp <- len(h.clients)
		}
	}
}

// Close stops the broker and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closing.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a client. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closing.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribe <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closing.Load() {
		return
	}
	select {
	case b.unsubscribe <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of subscribed clients.
func (b *Broker) ClientCount() int {
	if b.closing.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.count <- resp:
	case <-b.done:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// Publish broadcasts ev without an aggregate.
func (b *Broker) Publish(ev Event) {
	b.enqueue(change{event: ev})
}

// PublishNoteEvent sends note.<kind> for path, followed by a throttled
// graph.updated. Kinds other than created, updated and deleted are dropped.
func (b *Broker) PublishNoteEvent(kind, path string) {
	if !knownKind(kind) {
		return
	}
	b.enqueue(change{
		event:     Event{Type: "note." + kind, Data: map[string]string{"path": path}},
		aggregate: aggregateGraph,
	})
}

// PublishEntityEvent sends entity.<kind> carrying e, followed by a throttled
// directory.updated.
func (b *Broker) PublishEntityEvent(kind string, e models.Entity) {
	if !knownKind(kind) {
		return
	}
	b.enqueue(change{
		event:     Event{Type: "entity." + kind, Data: e},
		aggregate: aggregateDirectory,
	})
}

func (b *Broker) enqueue(c change) {
	if b.closing.Load() {
		return
	}
	select {
	case b.events <- c:
	case <-b.done:
	}
}

func knownKind(kind string) bool {
	return kind == "created" || kind == "updated" || kind == "deleted"
}

// ServeHTTP streams events to one client until it disconnects or the
// broker closes (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-ch:
			if !open {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
