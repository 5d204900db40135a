package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitSettled[T any](t *testing.T, cb *Callback[T]) {
	t.Helper()

	select {
	case <-cb.Settled():
	case <-time.After(time.Second):
		t.Fatalf("Timed out waiting for callback to settle")
	}
}

func TestAcquire_InvalidArguments(t *testing.T) {
	loop := NewLoop()

	if _, err := Acquire[int](nil, func(int) {}, nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected ErrInvalid for nil loop, got %v", err)
	}
	if _, err := Acquire[int](loop, nil, nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected ErrInvalid for nil handler, got %v", err)
	}

	loop.Close()
	if _, err := Acquire(loop, func(int) {}, nil); !errors.Is(err, ErrLoopClosed) {
		t.Fatalf("Expected ErrLoopClosed, got %v", err)
	}
}

func TestCallback_PreservesDispatchOrder(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	cb, err := Acquire(loop, func(v int) {
		mu.Lock()
		got = append(got, v)
		n := len(got)
		mu.Unlock()
		if n == 500 {
			close(done)
		}
	}, nil)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	go func() {
		for i := range 500 {
			cb.Dispatch(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("Expected %d at position %d, got %d", i, i, v)
		}
	}
	if cb.Delivered() != 500 || cb.Dropped() != 0 {
		t.Fatalf("Unexpected counters: delivered=%d dropped=%d", cb.Delivered(), cb.Dropped())
	}
}

func TestCallback_HandlersNeverOverlap(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Close()

	var active, overlaps, total atomic.Int32
	handler := func(int) {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(50 * time.Microsecond)
		active.Add(-1)
		total.Add(1)
	}

	first, _ := Acquire(loop, handler, nil)
	second, _ := Acquire(loop, handler, nil)

	var wg sync.WaitGroup
	for _, cb := range []*Callback[int]{first, second} {
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 25 {
					cb.Dispatch(i)
				}
			}()
		}
	}
	wg.Wait()

	if err := loop.Invoke(t.Context(), func() {}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if total.Load() != 200 {
		t.Fatalf("Expected 200 deliveries, got %d", total.Load())
	}
	if overlaps.Load() != 0 {
		t.Fatalf("Expected serialized handlers, got %d overlaps", overlaps.Load())
	}
}

func TestCallback_ReleaseAbandonsQueued(t *testing.T) {
	loop := NewLoop()
	defer loop.Close()

	var calls, releases atomic.Int32
	cb, err := Acquire(loop, func(int) { calls.Add(1) }, func() { releases.Add(1) })
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	for i := range 3 {
		if !cb.Dispatch(i) {
			t.Fatalf("Expected dispatch %d to be accepted", i)
		}
	}
	if cb.Pending() != 3 {
		t.Fatalf("Expected 3 pending, got %d", cb.Pending())
	}

	cb.Release()
	cb.Release()
	if cb.Dispatch(4) {
		t.Fatalf("Expected dispatch after release to be dropped")
	}

	loop.Start()
	waitSettled(t, cb)

	if calls.Load() != 0 {
		t.Fatalf("Expected no handler calls after release, got %d", calls.Load())
	}
	if releases.Load() != 1 {
		t.Fatalf("Expected release hook once, got %d", releases.Load())
	}
	if cb.Dropped() != 4 || cb.Pending() != 0 {
		t.Fatalf("Unexpected counters: dropped=%d pending=%d", cb.Dropped(), cb.Pending())
	}
}

func TestCallback_ReleaseInsideHandler(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Close()

	var calls atomic.Int32
	var cb *Callback[int]
	cb, err := Acquire(loop, func(int) {
		calls.Add(1)
		cb.Release()
	}, nil)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	cb.Dispatch(1)
	cb.Dispatch(2)
	waitSettled(t, cb)

	if calls.Load() != 1 {
		t.Fatalf("Expected exactly one call, got %d", calls.Load())
	}
}

func TestCallback_ReleaseWaitsForRunningHandler(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Close()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var running atomic.Bool
	var hooked atomic.Bool

	cb, err := Acquire(loop, func(int) {
		running.Store(true)
		close(entered)
		<-proceed
		running.Store(false)
	}, func() { hooked.Store(true) })
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	cb.Dispatch(1)
	<-entered

	returned := make(chan struct{})
	go func() {
		cb.Release()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatalf("Expected Release to wait for the running handler")
	case <-time.After(50 * time.Millisecond):
	}
	if hooked.Load() {
		t.Fatalf("Expected release hook to wait for running handler")
	}

	close(proceed)
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("Release did not return after the handler finished")
	}
	if running.Load() {
		t.Fatalf("Release returned while the handler was still executing")
	}

	waitSettled(t, cb)
	if !hooked.Load() {
		t.Fatalf("Expected release hook after handler returned")
	}
}

func TestCallback_ReleaseFromOtherHandler(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Close()

	var calls atomic.Int32
	target, err := Acquire(loop, func(int) { calls.Add(1) }, nil)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	done := make(chan struct{})
	releaser, err := Acquire(loop, func(int) {
		target.Release()
		close(done)
	}, nil)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	releaser.Dispatch(1)
	target.Dispatch(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Release from a handler on the same loop blocked")
	}
	waitSettled(t, target)
	if calls.Load() != 0 {
		t.Fatalf("Expected queued delivery abandoned, got %d calls", calls.Load())
	}
}

func TestCallback_LoopCloseAbandons(t *testing.T) {
	loop := NewLoop()

	var calls atomic.Int32
	cb, _ := Acquire(loop, func(int) { calls.Add(1) }, nil)
	cb.Dispatch(1)
	cb.Dispatch(2)

	loop.Close()
	if cb.Pending() != 0 || cb.Dropped() != 2 {
		t.Fatalf("Expected queued events abandoned, pending=%d dropped=%d", cb.Pending(), cb.Dropped())
	}
	if cb.Dispatch(3) {
		t.Fatalf("Expected dispatch on closed loop to fail")
	}

	cb.Release()
	waitSettled(t, cb)
	if calls.Load() != 0 {
		t.Fatalf("Expected no calls, got %d", calls.Load())
	}
}
