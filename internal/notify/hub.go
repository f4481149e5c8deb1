// Package notify streams topic events to websocket clients.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-course/internal/course"
)

const (
	defaultBuffer = 16
	writeTimeout  = 5 * time.Second
)

// Hub fans course events out to connected subscribers. It implements
// course.EventLogger so it can sit next to the persistent event log.
type Hub struct {
	buffer int

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	events    chan course.Event
	closeSlow func()
}

// NewHub creates a hub whose subscribers may fall at most buffer events
// behind before they are disconnected.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		buffer:      buffer,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// LogEvent publishes event to every subscriber without blocking.
func (h *Hub) LogEvent(event course.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subscribers {
		select {
		case s.events <- event:
		default:
			go s.closeSlow()
		}
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request and streams events as JSON until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	err = h.stream(r.Context(), conn)
	if errors.Is(err, context.Canceled) ||
		websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		slog.Info("progress subscriber closed", "error", err)
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn) error {
	s := &subscriber{
		events: make(chan course.Event, h.buffer),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
		},
	}
	h.add(s)
	defer h.remove(s)

	ctx = conn.CloseRead(ctx)
	for {
		select {
		case event := <-s.events:
			if err := write(ctx, conn, event); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	h.mu.Unlock()
}

func write(ctx context.Context, conn *websocket.Conn, event course.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}
