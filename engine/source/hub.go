package source

import (
	"context"
	"sync"

	"github.com/mwantia/mdquery/data"
)

// Hub fans changes out to every subscriber whose prefixes cover the changed key.
// Sinks are called on the publishing goroutine, in publish order.
type Hub struct {
	mu     sync.Mutex
	emit   sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

type subscriber struct {
	prefixes []string
	sink     func(Change)
	errc     chan error
	done     chan struct{}
	once     sync.Once
}

func (s *subscriber) finish(err error) {
	s.once.Do(func() {
		if err != nil {
			s.errc <- err
		}
		close(s.errc)
		close(s.done)
	})
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers sink until ctx is canceled or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context, prefixes []string, sink func(Change)) (<-chan error, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, data.ErrSourceClosed
	}

	id := h.nextID
	h.nextID++

	sub := &subscriber{
		prefixes: prefixes,
		sink:     sink,
		errc:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	h.subs[id] = sub

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
			return
		}

		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()

		sub.finish(nil)
	}()

	return sub.errc, nil
}

// Publish delivers change to every matching subscriber.
// Sinks must not publish to the same hub.
func (h *Hub) Publish(change Change) {
	h.emit.Lock()
	defer h.emit.Unlock()

	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if InScope(change.Key, sub.prefixes) {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.sink(change)
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Close ends every subscription, reporting err to subscribers when not nil.
func (h *Hub) Close(err error) {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.finish(err)
	}
}

// Reopen allows new subscriptions after Close.
func (h *Hub) Reopen() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = false
}
