package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/data/errors"
	"github.com/mwantia/mdquery/engine/source"
	"github.com/tidwall/btree"
)

// MemorySource keeps every item in an ordered in-memory index.
// Mutations through Put and Delete are published to all watchers.
type MemorySource struct {
	mu     sync.RWMutex
	items  *btree.Map[string, *data.Metadata]
	hub    *source.Hub
	closed bool
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		items: btree.NewMap[string, *data.Metadata](0),
		hub:   source.NewHub(),
	}
}

// Returns the identifier name defined for this source
func (*MemorySource) Name() string {
	return "memory"
}

func (ms *MemorySource) Open(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.closed = false
	ms.hub.Reopen()
	return nil
}

// Close drops every item and ends all watches.
func (ms *MemorySource) Close(ctx context.Context) error {
	ms.mu.Lock()
	ms.items.Clear()
	ms.closed = true
	ms.mu.Unlock()

	ms.hub.Close(errors.SourceClosed(ms.Name()))
	return nil
}

func (*MemorySource) GetCapabilities() *source.Capabilities {
	return &source.Capabilities{
		Capabilities: []source.Capability{
			source.CapabilityScan,
			source.CapabilityWatch,
		},
	}
}

// Put stores a copy of meta, replacing any item with the same key.
func (ms *MemorySource) Put(meta *data.Metadata) error {
	if meta == nil {
		return data.ErrInvalid
	}

	stored := meta.Clone()
	stored.Key = data.CleanKey(stored.Key)

	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return errors.SourceClosed(ms.Name())
	}
	if existing, ok := ms.items.Get(stored.Key); ok && stored.ID == "" {
		stored.ID = existing.ID
	}
	if stored.ID == "" {
		stored.ID = data.NewMetadata(stored.Key, stored.Type, stored.Size).ID
	}
	ms.items.Set(stored.Key, stored)
	ms.mu.Unlock()

	ms.hub.Publish(source.Change{
		Kind:     source.ChangePut,
		Key:      stored.Key,
		Metadata: stored.Clone(),
	})
	return nil
}

// Delete removes the item stored under key.
func (ms *MemorySource) Delete(key string) error {
	key = data.CleanKey(key)

	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return errors.SourceClosed(ms.Name())
	}
	_, ok := ms.items.Delete(key)
	ms.mu.Unlock()

	if !ok {
		return data.ErrNotExist
	}

	ms.hub.Publish(source.Change{
		Kind: source.ChangeDelete,
		Key:  key,
	})
	return nil
}

// Update applies a partial update to the item stored under key.
// Watchers only see a change if the update modified the item; a moved key
// is published as a delete of the old key followed by a put of the new one.
func (ms *MemorySource) Update(key string, update *data.MetadataUpdate) error {
	if update == nil {
		return data.ErrInvalid
	}
	key = data.CleanKey(key)

	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return errors.SourceClosed(ms.Name())
	}
	existing, ok := ms.items.Get(key)
	if !ok {
		ms.mu.Unlock()
		return data.ErrNotExist
	}

	updated := existing.Clone()
	modified, err := update.Apply(updated)
	if err != nil {
		ms.mu.Unlock()
		return err
	}
	if updated.Key != key {
		if _, taken := ms.items.Get(updated.Key); taken {
			ms.mu.Unlock()
			return data.ErrExist
		}
		ms.items.Delete(key)
	}
	ms.items.Set(updated.Key, updated)
	ms.mu.Unlock()

	if !modified {
		return nil
	}
	if updated.Key != key {
		ms.hub.Publish(source.Change{
			Kind: source.ChangeDelete,
			Key:  key,
		})
	}
	ms.hub.Publish(source.Change{
		Kind:     source.ChangePut,
		Key:      updated.Key,
		Metadata: updated.Clone(),
	})
	return nil
}

func (ms *MemorySource) Get(key string) (*data.Metadata, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	meta, ok := ms.items.Get(data.CleanKey(key))
	if !ok {
		return nil, data.ErrNotExist
	}
	return meta.Clone(), nil
}

func (ms *MemorySource) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return ms.items.Len()
}

func (ms *MemorySource) Scan(ctx context.Context, prefixes []string) ([]*data.Metadata, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, errors.SourceClosed(ms.Name())
	}

	result := make([]*data.Metadata, 0)
	for _, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Keys sharing the raw prefix are contiguous; HasPrefix then
		// rejects siblings like "/ab" for prefix "/a".
		pivot := strings.TrimSuffix(prefix, "/")
		ms.items.Ascend(pivot, func(key string, meta *data.Metadata) bool {
			if !strings.HasPrefix(key, pivot) {
				return false
			}
			if data.HasPrefix(key, prefix) {
				result = append(result, meta.Clone())
			}
			return true
		})
	}

	return result, nil
}

func (ms *MemorySource) Watch(ctx context.Context, prefixes []string, sink func(source.Change)) (<-chan error, error) {
	ms.mu.RLock()
	closed := ms.closed
	ms.mu.RUnlock()

	if closed {
		return nil, errors.SourceClosed(ms.Name())
	}

	return ms.hub.Subscribe(ctx, prefixes, sink)
}
