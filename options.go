package mdquery

import (
	"fmt"

	"github.com/mwantia/mdquery/bridge"
	"github.com/mwantia/mdquery/log"
	"github.com/mwantia/mdquery/metrics"
)

type Options struct {
	Scopes         []string
	MaxResultCount int
	Loop           *bridge.Loop
	Logger         *log.Logger
	Metrics        *metrics.Metrics
}

type Option func(*Options) error

func newDefaultOptions() *Options {
	return &Options{
		Scopes:         []string{ScopeHome},
		MaxResultCount: ResultCountNoLimit,
		Logger:         log.Discard(),
	}
}

func WithScopes(scopes ...string) Option {
	return func(opts *Options) error {
		opts.Scopes = scopes
		return nil
	}
}

func WithMaxResultCount(count int) Option {
	return func(opts *Options) error {
		if count < 0 {
			return fmt.Errorf("%w: max result count %d", ErrInvalid, count)
		}
		opts.MaxResultCount = count
		return nil
	}
}

// WithLoop delivers callbacks on loop instead of a loop owned by the query.
// The caller keeps running and closing it.
func WithLoop(loop *bridge.Loop) Option {
	return func(opts *Options) error {
		if loop == nil {
			return fmt.Errorf("%w: nil loop", ErrInvalid)
		}
		opts.Loop = loop
		return nil
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(opts *Options) error {
		opts.Logger = logger
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *Options) error {
		opts.Metrics = m
		return nil
	}
}
