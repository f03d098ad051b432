// Package sse streams live inspection events to dashboard clients over
// Server-Sent Events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/plantops/inspectd/internal/session"
)

// writeTimeout bounds a single client write so one stale connection cannot
// hold up a broadcast.
const writeTimeout = 2 * time.Second

// client is one connected event stream.
type client struct {
	id      string
	writer  http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

// Broadcaster fans session events out to every connected client. It
// implements the engine's event callback via Publish.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*client
	nextID  int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[string]*client)}
}

// Publish sends one session event to all connected clients. Events are
// delivered as named SSE events, e.g. `event: item_recorded`.
func (b *Broadcaster) Publish(ev session.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to encode session event")
		return
	}
	b.send(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, payload))
}

func (b *Broadcaster) send(message string) {
	b.mu.RLock()
	targets := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	dead := make(chan string, len(targets))
	var wg sync.WaitGroup
	for _, c := range targets {
		select {
		case <-c.done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			b.write(c, message, dead)
		}(c)
	}
	wg.Wait()
	close(dead)

	for id := range dead {
		b.drop(id)
	}
}

// write pushes one message to one client, giving up after writeTimeout.
func (b *Broadcaster) write(c *client, message string, dead chan<- string) {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if _, err := c.writer.Write([]byte(message)); err != nil {
			log.Debug().Str("client", c.id).Err(err).Msg("SSE write failed")
			dead <- c.id
			return
		}
		c.flusher.Flush()
	}()

	select {
	case <-finished:
	case <-time.After(writeTimeout):
		log.Warn().Str("client", c.id).Msg("SSE write timed out")
		dead <- c.id
	case <-c.done:
	}
}

func (b *Broadcaster) add(w http.ResponseWriter) (*client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	c := &client{
		id:      fmt.Sprintf("client-%d", b.nextID),
		writer:  w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("client", c.id).Int("total", total).Msg("SSE client connected")
	return c, nil
}

func (b *Broadcaster) drop(id string) {
	b.mu.Lock()
	c, exists := b.clients[id]
	if exists {
		delete(b.clients, id)
	}
	total := len(b.clients)
	b.mu.Unlock()

	if exists {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		log.Debug().Str("client", id).Int("total", total).Msg("SSE client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request to an event stream and blocks until the
// client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	c, err := b.add(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.drop(c.id)

	fmt.Fprintf(w, "event: connected\ndata: {\"client\":\"%s\"}\n\n", c.id)
	c.flusher.Flush()

	<-r.Context().Done()
}
