package bridge

import (
	"sync"
	"sync/atomic"
)

// Callback is a conduit delivering payloads raised on any goroutine to one
// handler running on a Loop, exactly once per accepted Dispatch and in
// dispatch order.
type Callback[T any] struct {
	loop    *Loop
	handler func(T)

	mu       sync.Mutex
	released bool
	running  bool
	pending  int
	idle     *sync.Cond

	onRelease func()
	settled   chan struct{}
	once      sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Acquire binds handler to loop. onRelease, if set, runs exactly once after
// Release when no delivery is queued or executing anymore.
func Acquire[T any](loop *Loop, handler func(T), onRelease func()) (*Callback[T], error) {
	if loop == nil || handler == nil {
		return nil, ErrInvalid
	}
	if loop.Closed() {
		return nil, ErrLoopClosed
	}

	c := &Callback[T]{
		loop:      loop,
		handler:   handler,
		onRelease: onRelease,
		settled:   make(chan struct{}),
	}
	c.idle = sync.NewCond(&c.mu)
	return c, nil
}

// Dispatch enqueues payload for the handler. It never blocks and returns false
// if the event was dropped because the conduit is released or the loop closed.
func (c *Callback[T]) Dispatch(payload T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		c.dropped.Add(1)
		return false
	}

	// The lock is held while posting so posts keep the order of Dispatch calls.
	c.pending++
	err := c.loop.post(task{
		run:  func() { c.deliver(payload) },
		drop: c.abandon,
	})
	if err != nil {
		c.pending--
		c.dropped.Add(1)
		return false
	}

	return true
}

func (c *Callback[T]) deliver(payload T) {
	c.mu.Lock()
	if c.released {
		c.pending--
		c.dropped.Add(1)
		settle := c.settledLocked()
		c.mu.Unlock()

		if settle {
			c.finalize()
		}
		return
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.pending--
		settle := c.settledLocked()
		c.idle.Broadcast()
		c.mu.Unlock()

		c.delivered.Add(1)
		if settle {
			c.finalize()
		}
	}()

	c.handler(payload)
}

func (c *Callback[T]) abandon() {
	c.mu.Lock()
	c.pending--
	c.dropped.Add(1)
	settle := c.settledLocked()
	c.mu.Unlock()

	if settle {
		c.finalize()
	}
}

func (c *Callback[T]) settledLocked() bool {
	return c.released && c.pending == 0 && !c.running
}

func (c *Callback[T]) finalize() {
	c.once.Do(func() {
		close(c.settled)
		if c.onRelease != nil {
			c.onRelease()
		}
	})
}

// Release stops the conduit. Once it returns no further Dispatch is accepted,
// no queued delivery will start and no handler of this conduit is executing;
// queued ones are abandoned when the loop reaches them. Called from the loop
// goroutine it does not wait, so a handler may release its own conduit.
// Release is idempotent.
func (c *Callback[T]) Release() {
	c.mu.Lock()
	c.released = true
	if c.running && !c.loop.OnLoop() {
		for c.running {
			c.idle.Wait()
		}
	}
	settle := c.settledLocked()
	c.mu.Unlock()

	if settle {
		c.finalize()
	}
}

// Settled is closed once the conduit is released and fully drained.
func (c *Callback[T]) Settled() <-chan struct{} {
	return c.settled
}

// Pending returns the number of accepted events not yet delivered or abandoned.
func (c *Callback[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending
}

func (c *Callback[T]) Delivered() uint64 {
	return c.delivered.Load()
}

func (c *Callback[T]) Dropped() uint64 {
	return c.dropped.Load()
}
