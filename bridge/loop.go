package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mwantia/mdquery/log"
)

type task struct {
	run  func()
	drop func()
}

// Loop is a single-goroutine callback-execution context with an unbounded FIFO.
type Loop struct {
	mu      sync.Mutex
	queue   []task
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	running bool

	// Goroutine currently draining the queue, zero while none is.
	owner atomic.Uint64

	logger *log.Logger
}

type LoopOption func(*Loop)

// WithLoopLogger sets the logger used to report recovered handler panics.
func WithLoopLogger(logger *log.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: log.Discard(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Start runs the loop on its own goroutine until Close is called.
func (l *Loop) Start() {
	go l.Run(context.Background())
}

// Run drains the queue on the calling goroutine until ctx is done or the loop is closed.
// Only one Run may be active per loop.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("%w: loop already running", ErrInvalid)
	}
	l.running = true
	l.owner.Store(goroutineID())
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.owner.Store(0)
		l.running = false
		closed := l.closed
		l.mu.Unlock()

		if closed {
			l.abandon()
		}
	}()

	for {
		t, ok := l.next()
		if ok {
			l.execute(t)
			continue
		}

		select {
		case <-l.wake:
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) next() (task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || len(l.queue) == 0 {
		return task{}, false
	}

	t := l.queue[0]
	l.queue[0] = task{}
	l.queue = l.queue[1:]

	return t, true
}

func (l *Loop) execute(t task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic in loop handler: %v", r)
		}
	}()

	t.run()
}

// abandon drops every queued task after Close.
func (l *Loop) abandon() {
	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, t := range pending {
		if t.drop != nil {
			t.drop()
		}
	}
}

func (l *Loop) post(t task) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.queue = append(l.queue, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return nil
}

// Post enqueues fn for execution on the loop. It never blocks.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return ErrInvalid
	}

	return l.post(task{run: fn})
}

// Invoke runs fn on the loop and waits for it to return.
// Calling Invoke from a handler running on the same loop deadlocks until ctx is done.
func (l *Loop) Invoke(ctx context.Context, fn func()) error {
	if fn == nil {
		return ErrInvalid
	}

	finished := make(chan struct{})
	dropped := make(chan struct{})

	err := l.post(task{
		run: func() {
			defer close(finished)
			fn()
		},
		drop: func() {
			close(dropped)
		},
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-dropped:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.queue)
}

// Close stops accepting work. Queued tasks are abandoned by the running loop,
// or immediately if no loop is running. Close is idempotent.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	running := l.running
	close(l.done)
	l.mu.Unlock()

	if !running {
		l.abandon()
	}
}

// OnLoop reports whether the caller is running on the loop goroutine,
// i.e. from inside a handler.
func (l *Loop) OnLoop() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goroutineID()
}

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}
