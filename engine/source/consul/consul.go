package consul

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/data/errors"
	"github.com/mwantia/mdquery/engine/source"
)

// ConsulSource stores one JSON encoded metadata record per KV entry.
//
// Watchers run blocking list queries against the configured prefix and diff the
// returned ModifyIndex of every entry against the previous listing. Consul KV has
// a 512KB limit per value, which is far more than a metadata record needs.
type ConsulSource struct {
	mu     sync.RWMutex
	client *api.Client
	kv     *api.KV
	closed bool

	config *ConsulSourceConfig
}

// ConsulSourceConfig contains configuration options for the Consul source
type ConsulSourceConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Prefix for all records in Consul KV (default: "mdquery/")
	Prefix string

	// WaitTime bounds a single blocking query (default: 5m)
	WaitTime time.Duration
}

// NewConsulSource creates a new Consul-backed metadata index
func NewConsulSource(config *ConsulSourceConfig) (*ConsulSource, error) {
	if config == nil {
		config = &ConsulSourceConfig{}
	}

	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}
	if config.Prefix == "" {
		config.Prefix = "mdquery/"
	}
	if !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}
	if config.WaitTime <= 0 {
		config.WaitTime = 5 * time.Minute
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulSource{
		client: client,
		kv:     client.KV(),
		config: config,
	}, nil
}

// Name returns the identifier name defined for this source
func (*ConsulSource) Name() string {
	return "consul"
}

// Open checks that the agent is reachable.
func (cs *ConsulSource) Open(ctx context.Context) error {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.closed {
		return errors.SourceClosed(cs.Name())
	}

	if _, err := cs.client.Status().Leader(); err != nil {
		return errors.SourceUnavailable(err, cs.Name())
	}
	return nil
}

// Close only marks the source closed, the Consul client is stateless.
func (cs *ConsulSource) Close(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.closed = true
	return nil
}

func (*ConsulSource) GetCapabilities() *source.Capabilities {
	return &source.Capabilities{
		Capabilities: []source.Capability{
			source.CapabilityScan,
			source.CapabilityWatch,
		},
	}
}

// buildKey constructs the full Consul KV key from the item key
func (cs *ConsulSource) buildKey(key string) string {
	return cs.config.Prefix + strings.TrimPrefix(data.CleanKey(key), "/")
}

// itemKey reverses buildKey
func (cs *ConsulSource) itemKey(kvKey string) string {
	return data.CleanKey("/" + strings.TrimPrefix(kvKey, cs.config.Prefix))
}

func (cs *ConsulSource) Put(ctx context.Context, meta *data.Metadata) error {
	if meta == nil {
		return data.ErrInvalid
	}

	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.closed {
		return errors.SourceClosed(cs.Name())
	}

	item := meta.Clone()
	item.Key = data.CleanKey(item.Key)
	if item.ID == "" {
		item.ID = data.NewMetadata(item.Key, item.Type, item.Size).ID
	}

	value, err := item.Marshal()
	if err != nil {
		return err
	}

	pair := &api.KVPair{
		Key:   cs.buildKey(item.Key),
		Value: value,
	}
	if _, err := cs.kv.Put(pair, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return errors.SourceUnavailable(err, cs.Name())
	}
	return nil
}

func (cs *ConsulSource) Delete(ctx context.Context, key string) error {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.closed {
		return errors.SourceClosed(cs.Name())
	}

	kvKey := cs.buildKey(key)
	pair, _, err := cs.kv.Get(kvKey, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return errors.SourceUnavailable(err, cs.Name())
	}
	if pair == nil {
		return data.ErrNotExist
	}

	if _, err := cs.kv.Delete(kvKey, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return errors.SourceUnavailable(err, cs.Name())
	}
	return nil
}

func (cs *ConsulSource) Scan(ctx context.Context, prefixes []string) ([]*data.Metadata, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.closed {
		return nil, errors.SourceClosed(cs.Name())
	}

	result := make([]*data.Metadata, 0)
	for _, prefix := range prefixes {
		pairs, _, err := cs.kv.List(cs.buildKey(prefix), (&api.QueryOptions{}).WithContext(ctx))
		if err != nil {
			return nil, errors.SourceUnavailable(err, cs.Name())
		}

		for _, pair := range pairs {
			meta, ok := cs.decode(pair)
			if !ok || !data.HasPrefix(meta.Key, prefix) {
				continue
			}
			result = append(result, meta)
		}
	}

	return result, nil
}

// decode skips entries that do not hold a metadata record, e.g. folder markers.
func (cs *ConsulSource) decode(pair *api.KVPair) (*data.Metadata, bool) {
	if len(pair.Value) == 0 {
		return nil, false
	}

	var meta data.Metadata
	if err := meta.Unmarshal(pair.Value); err != nil {
		return nil, false
	}

	meta.Key = cs.itemKey(pair.Key)
	if meta.Attributes == nil {
		meta.Attributes = make(map[string]string)
	}
	return &meta, true
}

// Watch takes the baseline listing synchronously, so every change after Watch
// returns is reported.
func (cs *ConsulSource) Watch(ctx context.Context, prefixes []string, sink func(source.Change)) (<-chan error, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.closed {
		return nil, errors.SourceClosed(cs.Name())
	}

	pairs, meta, err := cs.kv.List(cs.config.Prefix, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, errors.SourceUnavailable(err, cs.Name())
	}

	w := &watcher{
		cs:       cs,
		prefixes: prefixes,
		sink:     sink,
		index:    meta.LastIndex,
		known:    cs.snapshot(pairs),
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := w.run(ctx); err != nil && ctx.Err() == nil {
			errc <- errors.SourceUnavailable(err, cs.Name())
		}
	}()

	return errc, nil
}

func (cs *ConsulSource) snapshot(pairs api.KVPairs) map[string]uint64 {
	known := make(map[string]uint64, len(pairs))
	for _, pair := range pairs {
		known[pair.Key] = pair.ModifyIndex
	}
	return known
}

type watcher struct {
	cs       *ConsulSource
	prefixes []string
	sink     func(source.Change)
	index    uint64
	known    map[string]uint64
}

func (w *watcher) run(ctx context.Context) error {
	for {
		opts := (&api.QueryOptions{
			WaitIndex: w.index,
			WaitTime:  w.cs.config.WaitTime,
		}).WithContext(ctx)

		pairs, meta, err := w.cs.kv.List(w.cs.config.Prefix, opts)
		if err != nil {
			return err
		}

		// The index may go backwards after a snapshot restore
		if meta.LastIndex < w.index {
			w.index = 0
		} else {
			w.index = meta.LastIndex
		}

		w.diff(pairs)
	}
}

func (w *watcher) diff(pairs api.KVPairs) {
	seen := make(map[string]struct{}, len(pairs))

	for _, pair := range pairs {
		seen[pair.Key] = struct{}{}
		if index, ok := w.known[pair.Key]; ok && index == pair.ModifyIndex {
			continue
		}
		w.known[pair.Key] = pair.ModifyIndex

		meta, ok := w.cs.decode(pair)
		if !ok || !source.InScope(meta.Key, w.prefixes) {
			continue
		}
		w.sink(source.Change{Kind: source.ChangePut, Key: meta.Key, Metadata: meta})
	}

	for kvKey := range w.known {
		if _, ok := seen[kvKey]; ok {
			continue
		}
		delete(w.known, kvKey)

		key := w.cs.itemKey(kvKey)
		if source.InScope(key, w.prefixes) {
			w.sink(source.Change{Kind: source.ChangeDelete, Key: key})
		}
	}
}
