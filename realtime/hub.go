package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/cppla/geopost/utils"
)

const deliverBuffer = 256

// Hub tracks the connected clients of this process and fans events out to them.
// All membership changes go through Run, so the client set needs no lock.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	deliver    chan Event

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	count     atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan Event, deliverBuffer),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Run processes registrations and deliveries until ctx is cancelled or Close is called.
// Every remaining client is disconnected on exit.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
				h.count.Store(int64(len(h.clients)))
			}
		case evt := <-h.deliver:
			h.broadcast(evt)
		}
	}
}

func (h *Hub) broadcast(evt Event) {
	msg, err := json.Marshal(evt)
	if err != nil {
		utils.Sugar.Errorw("encode realtime event", "event", evt.Event, "error", err)
		return
	}
	for c := range h.clients {
		if !c.enqueue(msg) {
			utils.Sugar.Warnw("dropping slow realtime client", "client", c.ID)
			delete(h.clients, c)
		}
	}
	h.count.Store(int64(len(h.clients)))
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	h.count.Store(0)
	close(h.stopped)
}

// Register adds c to the fan-out set. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// Unregister removes c and closes its outbound queue.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Deliver queues evt for every client connected to this process.
func (h *Hub) Deliver(evt Event) {
	select {
	case h.deliver <- evt:
	case <-h.stopped:
	}
}

// Clients returns the number of currently registered clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Close stops Run, which disconnects every client. Safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
