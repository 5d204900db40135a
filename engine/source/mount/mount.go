// Package mount composes several sources into one key space, each source
// mounted at its own key prefix.
package mount

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine/source"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyMounted = errors.New("mount: path already mounted")
	ErrNotMounted     = errors.New("mount: path not mounted")
	ErrMountBusy      = errors.New("mount: path has child mounts")
)

// Info describes a mounted source.
type Info struct {
	Path      string    // Mount point key (e.g. "/Volumes/photos")
	Source    string    // Name of the mounted source
	MountedAt time.Time // When the mount was created
}

type entry struct {
	source source.Source
	info   Info
}

// MountSource routes every key to the source mounted at its longest matching
// prefix. Keys of a mounted source are relative to its mount point.
type MountSource struct {
	mu     sync.RWMutex
	mounts map[string]*entry
}

func NewMountSource() *MountSource {
	return &MountSource{
		mounts: make(map[string]*entry),
	}
}

// Mount attaches src at key prefix p. Sources mounted after Open must be opened
// by the caller.
func (ms *MountSource) Mount(p string, src source.Source) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	p = data.CleanKey(p)
	if _, exists := ms.mounts[p]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyMounted, p)
	}

	ms.mounts[p] = &entry{
		source: src,
		info: Info{
			Path:      p,
			Source:    src.Name(),
			MountedAt: time.Now(),
		},
	}
	return nil
}

// Unmount detaches the source at p without closing it.
func (ms *MountSource) Unmount(p string) (source.Source, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	p = data.CleanKey(p)
	e, exists := ms.mounts[p]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotMounted, p)
	}

	for mountPoint := range ms.mounts {
		if mountPoint != p && data.HasPrefix(mountPoint, p) {
			return nil, fmt.Errorf("%w: %s", ErrMountBusy, p)
		}
	}

	delete(ms.mounts, p)
	return e.source, nil
}

// Mounts returns all mounts ordered by path.
func (ms *MountSource) Mounts() []Info {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	infos := make([]Info, 0, len(ms.mounts))
	for _, e := range ms.mounts {
		infos = append(infos, e.info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})
	return infos
}

func (*MountSource) Name() string {
	return "mount"
}

// Open opens every mounted source. Sources opened before a failure are closed again.
func (ms *MountSource) Open(ctx context.Context) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if len(ms.mounts) == 0 {
		return fmt.Errorf("%w: no mounts configured", ErrNotMounted)
	}

	opened := make([]source.Source, 0, len(ms.mounts))
	for p, e := range ms.mounts {
		if err := e.source.Open(ctx); err != nil {
			for _, src := range opened {
				src.Close(ctx)
			}
			return fmt.Errorf("failed to open mount '%s': %w", p, err)
		}
		opened = append(opened, e.source)
	}

	return nil
}

func (ms *MountSource) Close(ctx context.Context) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var errs data.Errors
	for _, e := range ms.mounts {
		errs.Add(e.source.Close(ctx))
	}
	return errs.Errors()
}

// GetCapabilities reports watch support if any mounted source can watch.
func (ms *MountSource) GetCapabilities() *source.Capabilities {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	caps := &source.Capabilities{
		Capabilities: []source.Capability{source.CapabilityScan},
	}
	for _, e := range ms.mounts {
		if e.source.GetCapabilities().Contains(source.CapabilityWatch) {
			caps.Capabilities = append(caps.Capabilities, source.CapabilityWatch)
			break
		}
	}
	return caps
}

// ownerLocked returns the mount point responsible for key.
func (ms *MountSource) ownerLocked(key string) string {
	best := ""
	found := false
	for mountPoint := range ms.mounts {
		if data.HasPrefix(key, mountPoint) && (!found || len(mountPoint) > len(best)) {
			best = mountPoint
			found = true
		}
	}
	return best
}

type route struct {
	mountPoint string
	source     source.Source
	prefixes   []string
}

// routesLocked maps prefixes to the mount relative prefixes each source has to cover.
func (ms *MountSource) routesLocked(prefixes []string) []*route {
	routes := make([]*route, 0)
	for mountPoint, e := range ms.mounts {
		r := &route{mountPoint: mountPoint, source: e.source}

		for _, prefix := range prefixes {
			switch {
			case data.HasPrefix(mountPoint, prefix):
				// The whole mount lies within prefix
				r.prefixes = []string{"/"}
			case data.HasPrefix(prefix, mountPoint):
				r.prefixes = append(r.prefixes, data.CleanKey(data.ToRelativeKey(prefix, mountPoint)))
			default:
				continue
			}
			if r.prefixes[0] == "/" {
				r.prefixes = r.prefixes[:1]
				break
			}
		}

		if len(r.prefixes) > 0 {
			routes = append(routes, r)
		}
	}
	return routes
}

// toMountKey converts a key of the source mounted at mountPoint.
func toMountKey(mountPoint, key string) string {
	return data.CleanKey(path.Join(mountPoint, key))
}

func (ms *MountSource) Scan(ctx context.Context, prefixes []string) ([]*data.Metadata, error) {
	ms.mu.RLock()
	routes := ms.routesLocked(prefixes)
	ms.mu.RUnlock()

	results := make([][]*data.Metadata, len(routes))

	g, gCtx := errgroup.WithContext(ctx)
	for i, r := range routes {
		g.Go(func() error {
			items, err := r.source.Scan(gCtx, r.prefixes)
			if err != nil {
				return fmt.Errorf("failed to scan mount '%s': %w", r.mountPoint, err)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]*data.Metadata, 0)
	for i, r := range routes {
		for _, item := range results[i] {
			key := toMountKey(r.mountPoint, item.Key)
			// Hidden by a deeper mount
			if ms.ownerLocked(key) != r.mountPoint || !source.InScope(key, prefixes) {
				continue
			}

			meta := item.Clone()
			meta.Key = key
			result = append(result, meta)
		}
	}
	return result, nil
}

// Watch subscribes to every watch capable source covering prefixes. The first
// failing feed ends all of them.
func (ms *MountSource) Watch(ctx context.Context, prefixes []string, sink func(source.Change)) (<-chan error, error) {
	ms.mu.RLock()
	routes := ms.routesLocked(prefixes)
	ms.mu.RUnlock()

	watchCtx, cancel := context.WithCancel(ctx)

	// Sinks of different mounts must not run concurrently
	var emit sync.Mutex

	feeds := make([]<-chan error, 0, len(routes))
	for _, r := range routes {
		if !r.source.GetCapabilities().Contains(source.CapabilityWatch) {
			continue
		}

		mountPoint := r.mountPoint
		errc, err := r.source.Watch(watchCtx, r.prefixes, func(change source.Change) {
			key := toMountKey(mountPoint, change.Key)

			ms.mu.RLock()
			owned := ms.ownerLocked(key) == mountPoint
			ms.mu.RUnlock()

			if !owned || !source.InScope(key, prefixes) {
				return
			}

			change.Key = key
			if change.Metadata != nil {
				change.Metadata = change.Metadata.Clone()
				change.Metadata.Key = key
			}

			emit.Lock()
			defer emit.Unlock()
			sink(change)
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to watch mount '%s': %w", mountPoint, err)
		}
		feeds = append(feeds, errc)
	}

	g, gCtx := errgroup.WithContext(watchCtx)
	g.Go(func() error {
		<-gCtx.Done()
		return nil
	})
	for _, feed := range feeds {
		g.Go(func() error {
			select {
			case err, ok := <-feed:
				if !ok || err == nil {
					err = fmt.Errorf("feed ended: %w", data.ErrSourceUnavailable)
				}
				return err
			case <-gCtx.Done():
				return nil
			}
		})
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer cancel()

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			errc <- err
		}
	}()

	return errc, nil
}
