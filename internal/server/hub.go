package server

import (
	"sync"

	"github.com/fyrsmithlabs/marketd/internal/marketplace"
)

// subscriberBuffer is how many events a feed subscriber may fall behind
// before events are dropped for it.
const subscriberBuffer = 64

// Hub fans orchestrator events out to any number of feed subscribers. It
// implements marketplace.Sink. A slow subscriber loses events rather than
// backpressuring the run.
type Hub struct {
	metrics *Metrics // may be nil

	mu   sync.Mutex
	subs map[chan marketplace.Event]struct{}
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		metrics: metrics,
		subs:    make(map[chan marketplace.Event]struct{}),
	}
}

// Emit delivers e to every subscriber without blocking.
func (h *Hub) Emit(e marketplace.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			if h.metrics != nil {
				h.metrics.sseDropped.Inc()
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called exactly once; the channel is closed by it.
func (h *Hub) Subscribe() (<-chan marketplace.Event, func()) {
	ch := make(chan marketplace.Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.sseSubscribers.Inc()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Close under the lock so Emit can never send on a
			// closed channel.
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()

			if h.metrics != nil {
				h.metrics.sseSubscribers.Dec()
			}
		})
	}
	return ch, cancel
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
