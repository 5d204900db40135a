// Package source defines the metadata indexes a query engine gathers from.
package source

import (
	"context"

	"github.com/mwantia/mdquery/data"
)

// Source is used as lifecycle entrypoint for every metadata index implementation.
type Source interface {
	// Name returns the identifier name defined for this source
	Name() string
	// Open is part of the lifecycle behaviour and gets called before the first scan.
	Open(ctx context.Context) error
	// Close is part of the lifecycle behaviour and gets called when the engine shuts down.
	Close(ctx context.Context) error

	// GetCapabilities returns a list of capabilities supported by this source.
	GetCapabilities() *Capabilities

	// Scan returns every item at or below one of the given key prefixes.
	Scan(ctx context.Context, prefixes []string) ([]*data.Metadata, error)

	// Watch subscribes sink to changes at or below the given prefixes and returns
	// once the subscription is established. The returned channel yields at most
	// one error when the feed fails and is closed when the feed ends, either
	// because ctx was canceled or because of that failure.
	Watch(ctx context.Context, prefixes []string, sink func(Change)) (<-chan error, error)
}

type ChangeKind int

const (
	ChangePut    ChangeKind = iota // Item created or modified
	ChangeDelete                   // Item removed
)

func (k ChangeKind) String() string {
	switch k {
	case ChangePut:
		return "put"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is a single item mutation observed by a source.
// Metadata is nil for deletions that only know the key.
type Change struct {
	Kind     ChangeKind
	Key      string
	Metadata *data.Metadata
}

// InScope reports whether key lies at or below any of prefixes.
func InScope(key string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if data.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
