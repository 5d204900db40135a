package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine/predicate"
	"github.com/mwantia/mdquery/engine/source"
)

// Handle is a compiled query owned by a single caller.
type Handle interface {
	// Execute starts gathering on an engine goroutine. Executing twice is a no-op.
	Execute(ctx context.Context) error
	// AddObserver registers obs for notification n.
	AddObserver(n Notification, obs Observer) (ObserverID, error)
	// RemoveObserver unregisters id and returns once no call of it is in flight.
	RemoveObserver(id ObserverID)
	// GatheringComplete reports whether DidFinishGathering has been posted.
	GatheringComplete() bool
	// Results returns the current result set in key order.
	Results() []*data.Metadata
	// Stop ends gathering and live updates and drops every observer.
	Stop()
}

type query struct {
	engine   *Engine
	pred     *predicate.Predicate
	prefixes []string
	center   *center

	mu       sync.Mutex
	executed bool
	stopped  bool
	gathered bool
	cancel   context.CancelFunc
	done     chan struct{}
	snapshot []*data.Metadata

	// results is only touched by the run goroutine
	results *resultSet

	pendingMu sync.Mutex
	pending   []source.Change
	wake      chan struct{}
}

func newQuery(e *Engine, pred *predicate.Predicate, prefixes []string, limit int) *query {
	return &query{
		engine:   e,
		pred:     pred,
		prefixes: prefixes,
		center:   newCenter(),
		done:     make(chan struct{}),
		results:  newResultSet(limit),
		wake:     make(chan struct{}, 1),
	}
}

func (q *query) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}
	if q.executed {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	q.executed = true
	q.cancel = cancel

	go q.run(runCtx)
	return nil
}

func (q *query) AddObserver(n Notification, obs Observer) (ObserverID, error) {
	if n != DidFinishGathering && n != DidUpdate {
		return 0, fmt.Errorf("%w: %d", ErrUnknownNotification, n)
	}
	if obs == nil {
		return 0, fmt.Errorf("engine: nil observer: %w", data.ErrInvalid)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return 0, ErrStopped
	}

	return q.center.add(n, obs), nil
}

func (q *query) RemoveObserver(id ObserverID) {
	q.center.remove(id)
}

func (q *query) GatheringComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.gathered
}

func (q *query) Results() []*data.Metadata {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*data.Metadata, len(q.snapshot))
	for i, meta := range q.snapshot {
		out[i] = meta.Clone()
	}
	return out
}

func (q *query) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	executed, cancel := q.executed, q.cancel
	q.mu.Unlock()

	q.center.clear()
	if executed {
		cancel()
		<-q.done
	}

	q.engine.forget(q)
}

func (q *query) run(ctx context.Context) {
	defer close(q.done)

	logger := q.engine.logger
	feed := q.subscribe(ctx)

	matches, err := q.scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("Failed to gather '%s': %v", q.pred, err)
	}

	q.results.fill(matches)
	results := q.publish(true)

	logger.Debug("Gathered %d items for '%s'", len(results), q.pred)
	q.center.post(&Event{
		Notification: DidFinishGathering,
		Results:      results,
	})

	q.live(ctx, feed)
}

// publish refreshes the snapshot served by Results and returns a copy of it.
func (q *query) publish(gathered bool) []*data.Metadata {
	snapshot := q.results.snapshot()

	q.mu.Lock()
	q.snapshot = snapshot
	if gathered {
		q.gathered = true
	}
	q.mu.Unlock()

	out := make([]*data.Metadata, len(snapshot))
	for i, meta := range snapshot {
		out[i] = meta.Clone()
	}
	return out
}

func (q *query) scan(ctx context.Context) ([]*data.Metadata, error) {
	if len(q.prefixes) == 0 {
		return nil, nil
	}

	items, err := q.engine.source.Scan(ctx, q.prefixes)
	if err != nil {
		return nil, err
	}

	matches := make([]*data.Metadata, 0, len(items))
	for _, meta := range items {
		if q.match(meta) {
			matches = append(matches, meta)
		}
	}
	return matches, nil
}

func (q *query) match(meta *data.Metadata) bool {
	return meta != nil && source.InScope(meta.Key, q.prefixes) && q.pred.Match(attributes{meta: meta})
}

func (q *query) sink(change source.Change) {
	q.pendingMu.Lock()
	q.pending = append(q.pending, change)
	q.pendingMu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *query) subscribe(ctx context.Context) <-chan error {
	if len(q.prefixes) == 0 || !q.engine.source.GetCapabilities().Contains(source.CapabilityWatch) {
		return nil
	}

	feed, err := q.engine.source.Watch(ctx, q.prefixes, q.sink)
	if err == nil {
		return feed
	}

	return q.restart(ctx, err, false)
}

// restart resubscribes with exponential backoff. After a successful restart
// the result set is reconciled with a fresh scan when reconcile is set.
func (q *query) restart(ctx context.Context, cause error, reconcile bool) <-chan error {
	logger := q.engine.logger
	logger.Warn("Change feed of source '%s' failed: %v", q.engine.source.Name(), cause)

	for attempt := range q.engine.restartRetries {
		delay := q.engine.restartDelay * time.Duration(1<<attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		feed, err := q.engine.source.Watch(ctx, q.prefixes, q.sink)
		if err != nil {
			logger.Warn("Restart %d of change feed failed: %v", attempt+1, err)
			continue
		}

		if reconcile {
			q.reconcile(ctx)
		}
		return feed
	}

	logger.Error("Giving up on change feed of source '%s' after %d attempts", q.engine.source.Name(), q.engine.restartRetries)
	return nil
}

func (q *query) live(ctx context.Context, feed <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-feed:
			if ctx.Err() != nil {
				return
			}
			if !ok {
				err = fmt.Errorf("feed ended: %w", data.ErrSourceUnavailable)
			}
			feed = q.restart(ctx, err, true)
		case <-q.wake:
			if !q.coalesce(ctx) {
				return
			}
		}
	}
}

// coalesce waits one batch interval, then posts every change that arrived as one update.
func (q *query) coalesce(ctx context.Context) bool {
	if interval := q.engine.batchInterval; interval > 0 {
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	q.pendingMu.Lock()
	changes := q.pending
	q.pending = nil
	q.pendingMu.Unlock()

	b := newBatch()
	for _, change := range changes {
		q.classify(b, change)
	}

	q.post(b)
	return true
}

func (q *query) classify(b *batch, change source.Change) {
	previous := q.results.items[change.Key]

	matched := change.Kind == source.ChangePut && q.match(change.Metadata)
	next := q.results.apply(change.Key, change.Metadata, matched)

	meta := change.Metadata
	if next == opRemoved {
		meta = previous
	}
	b.record(change.Key, next, meta)

	// Sources may report only the directory when a whole subtree goes away.
	if change.Kind == source.ChangeDelete {
		var descendants []*data.Metadata
		for key, meta := range q.results.items {
			if key != change.Key && data.HasPrefix(key, change.Key) {
				descendants = append(descendants, meta)
			}
		}

		sortByKey(descendants)
		for _, meta := range descendants {
			b.record(meta.Key, q.results.apply(meta.Key, nil, false), meta)
		}
	}
}

// reconcile diffs a fresh scan against the current result set.
func (q *query) reconcile(ctx context.Context) {
	matches, err := q.scan(ctx)
	if err != nil {
		q.engine.logger.Warn("Failed to rescan after restart: %v", err)
		return
	}

	sortByKey(matches)

	b := newBatch()
	seen := make(map[string]struct{}, len(matches))
	for _, meta := range matches {
		seen[meta.Key] = struct{}{}
		b.record(meta.Key, q.results.apply(meta.Key, meta, true), meta)
	}
	for key, meta := range q.results.items {
		if _, ok := seen[key]; !ok {
			b.record(key, q.results.apply(key, nil, false), meta)
		}
	}

	q.post(b)
}

func (q *query) post(b *batch) {
	event := b.event()
	if event == nil {
		return
	}

	q.publish(false)
	q.engine.logger.Debug("Posting update for '%s': %d added, %d changed, %d removed",
		q.pred, len(event.Added), len(event.Changed), len(event.Removed))
	q.center.post(event)
}
