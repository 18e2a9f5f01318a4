package gateway

import (
	"sync"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
)

const subscriberBuffer = 64

// Hub fans a session's interactions out to its websocket subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan models.Interaction]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan models.Interaction]struct{})}
}

// Subscribe registers a listener. The returned channel is closed when the hub
// closes, when unsubscribe is called, or when the listener falls too far behind.
func (h *Hub) Subscribe() (<-chan models.Interaction, func()) {
	ch := make(chan models.Interaction, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.drop(ch)
	}
}

// Publish delivers i to every subscriber without blocking.
func (h *Hub) Publish(i models.Interaction) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- i:
		default:
			h.drop(ch)
		}
	}
}

// Close disconnects every subscriber. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subs {
		h.drop(ch)
	}
}

func (h *Hub) drop(ch chan models.Interaction) {
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}
