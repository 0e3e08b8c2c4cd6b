// Package sse streams flow change notifications to connected editors as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeFlowCreated  = "flow.created"
	TypeFlowUpdated  = "flow.updated"
	TypeFlowDeleted  = "flow.deleted"
	TypeFlowRun      = "flow.run"
	TypeFlowsUpdated = "flows.updated"
)

// replaySize is how many past frames a reconnecting client can catch up on.
const replaySize = 128

// Event is one message for every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// frame is an encoded event with its sequence number.
type frame struct {
	seq uint64
	raw []byte
}

type subscription struct {
	ch    chan []byte
	after uint64 // replay frames with seq > after; 0 disables replay
}

// Broker fans events out to SSE clients. One goroutine owns the client set,
// the replay ring and the list throttle; the exported methods talk to it over
// channels.
type Broker struct {
	listMin   time.Duration
	heartbeat time.Duration

	subs   chan subscription
	unsubs chan chan []byte
	events chan Event
	counts chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. listThrottle bounds how often flows.updated is
// sent; zero means two seconds.
func NewBroker(listThrottle time.Duration) *Broker {
	if listThrottle <= 0 {
		listThrottle = 2 * time.Second
	}
	b := &Broker{
		listMin:   listThrottle,
		heartbeat: 15 * time.Second,
		subs:      make(chan subscription),
		unsubs:    make(chan chan []byte),
		events:    make(chan Event, 256),
		counts:    make(chan chan int),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	var (
		clients  = make(map[chan []byte]struct{})
		ring     = make([]frame, 0, replaySize)
		seq      uint64
		lastList time.Time
	)

	send := func(ev Event) {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{seq: seq, raw: encode(seq, ev.Type, data)}
		if len(ring) == replaySize {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, f)
		for ch := range clients {
			select {
			case ch <- f.raw:
			default: // slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case s := <-b.subs:
			clients[s.ch] = struct{}{}
			if s.after == 0 {
				continue
			}
			for _, f := range ring {
				if f.seq <= s.after {
					continue
				}
				select {
				case s.ch <- f.raw:
				default:
				}
			}

		case ch := <-b.unsubs:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.events:
			send(ev)
			if !isFlowChange(ev.Type) {
				continue
			}
			if now := time.Now(); now.Sub(lastList) >= b.listMin {
				lastList = now
				send(Event{Type: TypeFlowsUpdated, Data: struct{}{}})
			}

		case resp := <-b.counts:
			resp <- len(clients)
		}
	}
}

func isFlowChange(t string) bool {
	return t == TypeFlowCreated || t == TypeFlowUpdated || t == TypeFlowDeleted
}

func encode(seq uint64, typ string, data []byte) []byte {
	buf := make([]byte, 0, len(data)+len(typ)+32)
	buf = append(buf, "id: "...)
	buf = strconv.AppendUint(buf, seq, 10)
	buf = append(buf, "\nevent: "...)
	buf = append(buf, typ...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	return append(buf, "\n\n"...)
}

// Close stops the broker and closes every client channel. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. Frames newer than lastEventID are replayed
// first when they are still buffered; pass 0 for a fresh client.
func (b *Broker) Subscribe(lastEventID uint64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subs <- subscription{ch: ch, after: lastEventID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubs <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.counts <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues an event for every client.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- ev:
	case <-b.stopped:
	}
}

// PublishFlowEvent announces a change to one flow. kind is created, updated
// or deleted; anything else is ignored. A throttled flows.updated follows.
func (b *Broker) PublishFlowEvent(kind, id string) {
	t := "flow." + kind
	if !isFlowChange(t) {
		return
	}
	b.Publish(Event{Type: t, Data: map[string]string{"id": id}})
}

// RunEvent is the payload of a flow.run event.
type RunEvent struct {
	ID     string `json:"id"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PublishRun reports the outcome of a run.
func (b *Broker) PublishRun(id string, status int, err error) {
	ev := RunEvent{ID: id, Status: status}
	if err != nil {
		ev.Error = err.Error()
	}
	b.Publish(Event{Type: TypeFlowRun, Data: ev})
}

// ServeHTTP streams events to one client. A Last-Event-ID header resumes
// from the replay buffer. Idle streams get a comment every heartbeat.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
		}
		flusher.Flush()
	}
}
