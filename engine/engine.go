// Package engine is the query engine behind mdquery: it compiles a predicate,
// gathers matching items from a source on its own goroutine and then publishes
// live updates for as long as the query is running.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine/predicate"
	"github.com/mwantia/mdquery/engine/source"
	"github.com/mwantia/mdquery/log"
)

var (
	ErrClosed              = errors.New("engine: closed")
	ErrStopped             = errors.New("engine: query stopped")
	ErrUnknownNotification = errors.New("engine: unknown notification")
)

const (
	DefaultBatchInterval  = 100 * time.Millisecond
	DefaultRestartDelay   = 250 * time.Millisecond
	DefaultRestartRetries = 3
)

// QuerySpec describes what a query gathers.
type QuerySpec struct {
	Predicate string
	// Scopes restricts the search, see source.ResolveScopes. Empty means everything.
	Scopes []string
	// MaxResultCount caps the result set, 0 means no limit.
	MaxResultCount int
}

type Engine struct {
	mu sync.Mutex

	source source.Source
	logger *log.Logger

	home           string
	batchInterval  time.Duration
	restartDelay   time.Duration
	restartRetries int

	open    bool
	queries map[*query]struct{}
}

type Option func(*Engine)

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHome sets the prefix the home scope resolves to.
func WithHome(home string) Option {
	return func(e *Engine) {
		e.home = home
	}
}

// WithBatchInterval sets how long live changes are coalesced before an update is posted.
func WithBatchInterval(interval time.Duration) Option {
	return func(e *Engine) {
		e.batchInterval = interval
	}
}

// WithRestart configures how often a failed change feed is restarted and the base delay
// between attempts, which doubles with every attempt.
func WithRestart(retries int, delay time.Duration) Option {
	return func(e *Engine) {
		e.restartRetries = retries
		e.restartDelay = delay
	}
}

func New(src source.Source, opts ...Option) *Engine {
	e := &Engine{
		source:         src,
		logger:         log.Discard(),
		home:           "/",
		batchInterval:  DefaultBatchInterval,
		restartDelay:   DefaultRestartDelay,
		restartRetries: DefaultRestartRetries,
		queries:        make(map[*query]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) Source() source.Source {
	return e.source
}

// Open opens the underlying source. Queries can only be created on an open engine.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open {
		return nil
	}

	if !e.source.GetCapabilities().Contains(source.CapabilityScan) {
		return fmt.Errorf("engine: source '%s' cannot scan: %w", e.source.Name(), data.ErrSourceUnsupported)
	}

	if err := e.source.Open(ctx); err != nil {
		return fmt.Errorf("engine: failed to open source '%s': %w", e.source.Name(), err)
	}

	e.open = true
	e.logger.Debug("Opened source '%s'", e.source.Name())
	return nil
}

// Close stops every query and closes the source.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return nil
	}

	e.open = false
	queries := make([]*query, 0, len(e.queries))
	for q := range e.queries {
		queries = append(queries, q)
	}
	e.mu.Unlock()

	for _, q := range queries {
		q.Stop()
	}

	if err := e.source.Close(ctx); err != nil {
		return fmt.Errorf("engine: failed to close source '%s': %w", e.source.Name(), err)
	}

	e.logger.Debug("Closed source '%s'", e.source.Name())
	return nil
}

// NewQuery compiles spec into a handle. The handle gathers nothing until executed.
func (e *Engine) NewQuery(ctx context.Context, spec QuerySpec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pred, err := predicate.Parse(spec.Predicate)
	if err != nil {
		return nil, err
	}

	if spec.MaxResultCount < 0 {
		return nil, fmt.Errorf("engine: negative max result count %d: %w", spec.MaxResultCount, data.ErrInvalid)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return nil, ErrClosed
	}

	q := newQuery(e, pred, source.ResolveScopes(spec.Scopes, e.home), spec.MaxResultCount)
	e.queries[q] = struct{}{}

	return q, nil
}

// Queries returns the number of handles not yet stopped.
func (e *Engine) Queries() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.queries)
}

func (e *Engine) forget(q *query) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.queries, q)
}
