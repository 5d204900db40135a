// Package mdquery runs metadata queries as sessions with lifecycle control: a
// one-shot delivery of the initial result set and an independent live watch,
// both delivered serialized and in order on a callback loop.
package mdquery

import (
	"context"
	"fmt"
	"sync"

	"github.com/mwantia/mdquery/bridge"
	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine"
	"github.com/mwantia/mdquery/log"
	"github.com/mwantia/mdquery/metrics"
)

// Service creates native query handles. *engine.Engine implements it.
type Service interface {
	NewQuery(ctx context.Context, spec engine.QuerySpec) (engine.Handle, error)
}

// Stats counts what happened to the notifications of a session.
type Stats struct {
	ResultsDispatched uint64
	ResultsDropped    uint64
	UpdatesDispatched uint64
	UpdatesDropped    uint64
}

// Query is a single query session. All methods are safe for concurrent use.
type Query struct {
	mu sync.Mutex

	service  Service
	spec     engine.QuerySpec
	loop     *bridge.Loop
	ownsLoop bool
	logger   *log.Logger
	metrics  *metrics.Metrics

	handle     engine.Handle
	runState   RunState
	watchState WatchState
	closed     bool

	result         *bridge.Callback[[]*Item]
	resultObserver engine.ObserverID
	update         *bridge.Callback[*UpdateBatch]
	updateObserver engine.ObserverID

	stats Stats
}

// New prepares a session for predicate. Nothing is registered with the service
// until Start or Watch is called.
func New(service Service, predicate string, opts ...Option) (*Query, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: nil service", ErrInvalid)
	}

	options := newDefaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	q := &Query{
		service: service,
		spec: engine.QuerySpec{
			Predicate:      predicate,
			Scopes:         options.Scopes,
			MaxResultCount: options.MaxResultCount,
		},
		loop:    options.Loop,
		logger:  options.Logger,
		metrics: options.Metrics,
	}

	if q.logger == nil {
		q.logger = log.Discard()
	}

	if q.loop == nil {
		q.loop = bridge.NewLoop(bridge.WithLoopLogger(q.logger))
		q.loop.Start()
		q.ownsLoop = true
	}

	return q, nil
}

func (q *Query) Predicate() string {
	return q.spec.Predicate
}

func (q *Query) RunState() RunState {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.runState
}

func (q *Query) WatchState() WatchState {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.watchState
}

func (q *Query) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.stats
}

// handleLocked returns the native handle, creating it on first use.
func (q *Query) handleLocked() (engine.Handle, error) {
	if q.handle != nil {
		return q.handle, nil
	}

	handle, err := q.service.NewQuery(context.Background(), q.spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNativeRegistration, err)
	}

	q.handle = handle
	return handle, nil
}

// detachHandleLocked gives up the handle if neither the run nor the watch needs it.
// The caller stops the returned handle after unlocking.
func (q *Query) detachHandleLocked() engine.Handle {
	if q.runState.active() || q.watchState == WatchWatching {
		return nil
	}

	handle := q.handle
	q.handle = nil
	return handle
}

// Start runs the query and calls onFirstResult once with the initial result set.
func (q *Query) Start(onFirstResult func([]*Item)) error {
	if onFirstResult == nil {
		return fmt.Errorf("%w: nil callback", ErrInvalid)
	}

	q.mu.Lock()
	if q.closed || q.runState != RunCreated {
		state := q.runState
		q.mu.Unlock()
		return fmt.Errorf("%w: start in state '%s'", ErrInvalidState, state)
	}

	handle, err := q.handleLocked()
	if err != nil {
		q.mu.Unlock()
		return err
	}

	result, err := bridge.Acquire(q.loop, onFirstResult, func() {
		q.logger.Debug("Result callback of '%s' settled", q.spec.Predicate)
	})
	if err != nil {
		stale := q.detachHandleLocked()
		q.mu.Unlock()
		stopHandle(stale)
		return fmt.Errorf("%w: %w", ErrNativeRegistration, err)
	}

	q.result = result
	q.runState = RunRunning
	q.mu.Unlock()

	q.metrics.QueryStarted()

	// Registration happens unlocked: the handle may be posting to the watch
	// observer, which needs the mutex.
	id, err := handle.AddObserver(engine.DidFinishGathering, q.onFinish)
	if err == nil {
		err = handle.Execute(context.Background())
	}

	q.mu.Lock()
	if err != nil {
		var stale engine.Handle
		reverted := q.result == result
		if reverted {
			q.result = nil
			q.runState = RunCreated
			stale = q.detachHandleLocked()
		}
		q.mu.Unlock()

		if reverted {
			q.metrics.QueryStopped()
		}

		result.Release()
		if id != 0 {
			handle.RemoveObserver(id)
		}
		stopHandle(stale)
		return fmt.Errorf("%w: %w", ErrNativeRegistration, err)
	}

	if q.result != result {
		// Stopped while registering
		q.mu.Unlock()
		handle.RemoveObserver(id)
		return nil
	}

	q.resultObserver = id
	q.mu.Unlock()

	q.logger.Debug("Started query '%s'", q.spec.Predicate)

	// A watch may have executed the handle already and missed nothing but us.
	if handle.GatheringComplete() {
		q.finish(handle.Results())
	}

	return nil
}

func (q *Query) onFinish(event *engine.Event) {
	q.finish(event.Results)
}

func (q *Query) finish(results []*data.Metadata) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.runState != RunRunning || q.result == nil {
		q.stats.ResultsDropped++
		q.metrics.Dropped(metrics.KindResult)
		q.logger.Debug("Dropped gathering result of '%s' in state '%s'", q.spec.Predicate, q.runState)
		return
	}

	q.runState = RunFinished
	if !q.result.Dispatch(newItems(results)) {
		q.stats.ResultsDropped++
		q.metrics.Dropped(metrics.KindResult)
		q.logger.Debug("Result callback of '%s' refused delivery", q.spec.Predicate)
		return
	}

	q.stats.ResultsDispatched++
	q.metrics.Dispatched(metrics.KindResult)
}

// Stop ends the initial query. It is a no-op before Start and after Stop.
func (q *Query) Stop() {
	q.mu.Lock()
	if !q.runState.active() {
		q.mu.Unlock()
		return
	}

	q.runState = RunStopped
	result, id := q.result, q.resultObserver
	q.result, q.resultObserver = nil, 0
	handle := q.handle
	stale := q.detachHandleLocked()
	q.mu.Unlock()

	q.metrics.QueryStopped()
	q.logger.Debug("Stopped query '%s'", q.spec.Predicate)

	result.Release()
	if id != 0 && handle != nil {
		handle.RemoveObserver(id)
	}
	stopHandle(stale)
}

// Watch subscribes onUpdate to live changes of the result set. It may be called
// in any run state and executes the query if Start has not.
func (q *Query) Watch(onUpdate func(*UpdateBatch)) error {
	if onUpdate == nil {
		return fmt.Errorf("%w: nil callback", ErrInvalid)
	}

	q.mu.Lock()
	if q.closed || q.watchState != WatchInactive {
		state := q.watchState
		q.mu.Unlock()
		return fmt.Errorf("%w: watch in state '%s'", ErrInvalidState, state)
	}

	handle, err := q.handleLocked()
	if err != nil {
		q.mu.Unlock()
		return err
	}

	update, err := bridge.Acquire(q.loop, onUpdate, func() {
		q.logger.Debug("Update callback of '%s' settled", q.spec.Predicate)
	})
	if err != nil {
		stale := q.detachHandleLocked()
		q.mu.Unlock()
		stopHandle(stale)
		return fmt.Errorf("%w: %w", ErrNativeRegistration, err)
	}

	q.update = update
	q.watchState = WatchWatching
	q.mu.Unlock()

	q.metrics.WatchStarted()

	id, err := handle.AddObserver(engine.DidUpdate, q.onUpdate)
	if err == nil {
		err = handle.Execute(context.Background())
	}

	q.mu.Lock()
	if err != nil {
		var stale engine.Handle
		reverted := q.update == update
		if reverted {
			q.update = nil
			q.watchState = WatchInactive
			stale = q.detachHandleLocked()
		}
		q.mu.Unlock()

		if reverted {
			q.metrics.WatchStopped()
		}

		update.Release()
		if id != 0 {
			handle.RemoveObserver(id)
		}
		stopHandle(stale)
		return fmt.Errorf("%w: %w", ErrNativeRegistration, err)
	}

	if q.update != update {
		q.mu.Unlock()
		handle.RemoveObserver(id)
		return nil
	}

	q.updateObserver = id
	q.mu.Unlock()

	q.logger.Debug("Watching query '%s'", q.spec.Predicate)
	return nil
}

func (q *Query) onUpdate(event *engine.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.watchState != WatchWatching || q.update == nil {
		q.stats.UpdatesDropped++
		q.metrics.Dropped(metrics.KindUpdate)
		q.logger.Debug("Dropped update of '%s' in watch state '%s'", q.spec.Predicate, q.watchState)
		return
	}

	batch := &UpdateBatch{
		Added:   newItems(event.Added),
		Changed: newItems(event.Changed),
		Removed: newItems(event.Removed),
	}

	if !q.update.Dispatch(batch) {
		q.stats.UpdatesDropped++
		q.metrics.Dropped(metrics.KindUpdate)
		q.logger.Debug("Update callback of '%s' refused delivery", q.spec.Predicate)
		return
	}

	q.stats.UpdatesDispatched++
	q.metrics.Dispatched(metrics.KindUpdate)
}

// StopWatch ends the live subscription. It is a no-op unless watching.
func (q *Query) StopWatch() {
	q.mu.Lock()
	if q.watchState != WatchWatching {
		q.mu.Unlock()
		return
	}

	q.watchState = WatchStopped
	update, id := q.update, q.updateObserver
	q.update, q.updateObserver = nil, 0
	handle := q.handle
	stale := q.detachHandleLocked()
	q.mu.Unlock()

	q.metrics.WatchStopped()
	q.logger.Debug("Stopped watching query '%s'", q.spec.Predicate)

	update.Release()
	if id != 0 && handle != nil {
		handle.RemoveObserver(id)
	}
	stopHandle(stale)
}

// Close stops the query and the watch, releases the native handle and closes
// the callback loop if the session owns it. Start and Watch fail afterwards.
func (q *Query) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true

	wasRunning := q.runState.active()
	wasWatching := q.watchState == WatchWatching
	q.runState = RunStopped
	q.watchState = WatchStopped

	result, update := q.result, q.update
	q.result, q.update = nil, nil
	q.resultObserver, q.updateObserver = 0, 0

	handle := q.handle
	q.handle = nil
	q.mu.Unlock()

	if wasRunning {
		q.metrics.QueryStopped()
	}
	if wasWatching {
		q.metrics.WatchStopped()
	}

	if result != nil {
		result.Release()
	}
	if update != nil {
		update.Release()
	}

	// Stopping the handle drops every observer and waits for an in-flight one.
	stopHandle(handle)

	if q.ownsLoop {
		q.loop.Close()
	}

	q.logger.Debug("Closed query '%s'", q.spec.Predicate)
}

func stopHandle(handle engine.Handle) {
	if handle != nil {
		handle.Stop()
	}
}
