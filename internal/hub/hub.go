// Package hub keeps the registry of live realtime subscriptions and fans
// encoded events out to all of them.
package hub

import (
	"context"
	"expvar"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultQueueSize = 64

const (
	StateOpen int32 = iota
	StateClosing
	StateClosed
)

var (
	eventsDelivered = expvar.NewInt("realtime_events_delivered_total")
	eventsDropped   = expvar.NewInt("realtime_subscribers_dropped_total")
)

// Client is one live subscription. Its queue is drained by exactly one
// writer goroutine owned by the transport.
type Client struct {
	ID         string
	send       chan []byte
	state      atomic.Int32
	overflowed atomic.Bool
}

// Messages is closed once the client has been unregistered.
func (c *Client) Messages() <-chan []byte {
	return c.send
}

func (c *Client) State() int32 {
	return c.state.Load()
}

// Overflowed reports whether the client was dropped because its queue filled
// up, as opposed to a normal unregister.
func (c *Client) Overflowed() bool {
	return c.overflowed.Load()
}

type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	queueSize int
	logger    *zap.Logger
}

func New(queueSize int, logger *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:   make(map[string]*Client),
		queueSize: queueSize,
		logger:    logger,
	}
	return h
}

func (h *Hub) Register() *Client {
	client := &Client{ID: uuid.NewString(), send: make(chan []byte, h.queueSize)}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	h.logger.Debug("subscriber registered", zap.String("client_id", client.ID))
	return client
}

// Unregister removes the client and closes its queue. Safe to call more than
// once and from any goroutine.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	client.state.Store(StateClosing)
	delete(h.clients, client.ID)
	close(client.send)
	client.state.Store(StateClosed)
	h.logger.Debug("subscriber unregistered", zap.String("client_id", client.ID))
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver queues payload for every open client and returns how many accepted
// it. A client whose queue is full is disconnected; it must reconnect and
// re-fetch state.
func (h *Hub) Deliver(payload []byte) int {
	var overflow []*Client
	delivered := 0

	h.mu.RLock()
	for _, client := range h.clients {
		if client.state.Load() != StateOpen {
			continue
		}
		select {
		case client.send <- payload:
			delivered++
		default:
			client.overflowed.Store(true)
			client.state.Store(StateClosing)
			overflow = append(overflow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range overflow {
		h.logger.Warn("subscriber queue full, disconnecting", zap.String("client_id", client.ID), zap.Int("queue_size", h.queueSize))
		eventsDropped.Add(1)
		h.Unregister(client)
	}
	eventsDelivered.Add(int64(delivered))
	return delivered
}

// Publish encodes event and delivers it to the local subscriptions.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	h.Deliver(payload)
	return nil
}

// CloseAll unregisters every client, ending all writer goroutines.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()
	for _, client := range clients {
		h.Unregister(client)
	}
}
