package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mwantia/mdquery/data"
	mderrors "github.com/mwantia/mdquery/data/errors"
	"github.com/mwantia/mdquery/engine/source"
	"golang.org/x/sync/errgroup"
)

// DefaultScanWorkers bounds the number of prefixes walked concurrently.
const DefaultScanWorkers = 4

// LocalSource indexes a directory tree on the local filesystem. Item keys are
// slash separated paths relative to the root directory.
type LocalSource struct {
	mu      sync.RWMutex
	path    string
	workers int
	closed  bool
}

func NewLocalSource(path string) *LocalSource {
	return &LocalSource{
		path:    filepath.Clean(path),
		workers: DefaultScanWorkers,
	}
}

// Returns the identifier name defined for this source
func (*LocalSource) Name() string {
	return "local"
}

// Open verifies the root exists and is a directory.
func (ls *LocalSource) Open(ctx context.Context) error {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	if ls.closed {
		return mderrors.SourceClosed(ls.Name())
	}

	info, err := os.Stat(ls.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mderrors.SourceUnavailable(data.ErrNotExist, ls.Name())
		}
		return mderrors.SourceUnavailable(err, ls.Name())
	}

	if !info.IsDir() {
		return mderrors.SourceUnavailable(data.ErrInvalid, ls.Name())
	}

	return nil
}

// Close is part of the lifecycle behaviour, the underlying filesystem persists independently.
func (ls *LocalSource) Close(ctx context.Context) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.closed = true
	return nil
}

// GetCapabilities returns a list of capabilities supported by this source.
func (*LocalSource) GetCapabilities() *source.Capabilities {
	return &source.Capabilities{
		Capabilities: []source.Capability{
			source.CapabilityScan,
			source.CapabilityWatch,
		},
	}
}

// resolvePath joins the source path with the item key.
func (ls *LocalSource) resolvePath(key string) string {
	return filepath.Join(ls.path, filepath.FromSlash(data.CleanKey(key)))
}

// toKey reverses resolvePath, reporting false for paths outside the root.
func (ls *LocalSource) toKey(path string) (string, bool) {
	rel, err := filepath.Rel(ls.path, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return data.CleanKey(filepath.ToSlash(rel)), true
}

func (ls *LocalSource) toMetadata(key string, info fs.FileInfo) *data.Metadata {
	var fileType data.FileType
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		fileType = data.FileTypeSymlink
	case info.IsDir() && filepath.Ext(info.Name()) == ".app":
		fileType = data.FileTypeBundle
	case info.IsDir():
		fileType = data.FileTypeDirectory
	default:
		fileType = data.FileTypeFile
	}

	size := info.Size()
	if info.IsDir() {
		size = 0
	}

	meta := data.NewMetadata(key, fileType, size)
	meta.AccessTime = info.ModTime()
	meta.ModifyTime = info.ModTime()
	meta.CreateTime = info.ModTime()
	meta.Attributes["mode"] = info.Mode().Perm().String()

	return meta
}

// Scan walks every prefix concurrently. Prefixes that do not exist yield no items.
func (ls *LocalSource) Scan(ctx context.Context, prefixes []string) ([]*data.Metadata, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	if ls.closed {
		return nil, mderrors.SourceClosed(ls.Name())
	}

	results := make([][]*data.Metadata, len(prefixes))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(ls.workers)

	for i, prefix := range prefixes {
		g.Go(func() error {
			items, err := ls.walk(gCtx, prefix, nil)
			results[i] = items
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]*data.Metadata, 0)
	for _, items := range results {
		result = append(result, items...)
	}
	return result, nil
}

// walk collects every item at or below prefix and calls dir for each directory.
func (ls *LocalSource) walk(ctx context.Context, prefix string, dir func(path string) error) ([]*data.Metadata, error) {
	items := make([]*data.Metadata, 0)

	err := filepath.WalkDir(ls.resolvePath(prefix), func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Vanished or unreadable entries are skipped
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		key, ok := ls.toKey(path)
		if !ok {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}

		items = append(items, ls.toMetadata(key, info))
		if entry.IsDir() && dir != nil {
			return dir(path)
		}
		return nil
	})

	return items, err
}

// Watch registers an fsnotify watch on every directory below prefixes. New
// directories are added as they appear and their contents reported.
func (ls *LocalSource) Watch(ctx context.Context, prefixes []string, sink func(source.Change)) (<-chan error, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	if ls.closed {
		return nil, mderrors.SourceClosed(ls.Name())
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, mderrors.SourceUnavailable(err, ls.Name())
	}

	for _, prefix := range prefixes {
		if _, err := ls.walk(ctx, prefix, watcher.Add); err != nil {
			watcher.Close()
			return nil, mderrors.SourceUnavailable(err, ls.Name())
		}
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				ls.handle(ctx, watcher, event, prefixes, sink)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					errc <- mderrors.SourceUnavailable(err, ls.Name())
					return
				}
			}
		}
	}()

	return errc, nil
}

func (ls *LocalSource) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event, prefixes []string, sink func(source.Change)) {
	key, ok := ls.toKey(event.Name)
	if !ok || !source.InScope(key, prefixes) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		sink(source.Change{Kind: source.ChangeDelete, Key: key})
		return
	}

	info, err := os.Lstat(event.Name)
	if err != nil {
		// Gone before we could stat it
		sink(source.Change{Kind: source.ChangeDelete, Key: key})
		return
	}

	if info.IsDir() && event.Has(fsnotify.Create) {
		// Report the whole new subtree, files may have landed before the watch
		items, _ := ls.walk(ctx, key, watcher.Add)
		for _, item := range items {
			sink(source.Change{Kind: source.ChangePut, Key: item.Key, Metadata: item})
		}
		return
	}

	sink(source.Change{Kind: source.ChangePut, Key: key, Metadata: ls.toMetadata(key, info)})
}
