package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine/source"
)

type TestSourceFactory func(tst *testing.T) (*SQLiteSource, error)

func GetTestSourceFactories() map[string]TestSourceFactory {
	return map[string]TestSourceFactory{
		"memory": func(tst *testing.T) (*SQLiteSource, error) {
			return NewSQLiteSource(":memory:", WithPollInterval(10*time.Millisecond))
		},
		"file": func(tst *testing.T) (*SQLiteSource, error) {
			path := filepath.Join(tst.TempDir(), "index.db")
			return NewSQLiteSource(path, WithPollInterval(10*time.Millisecond))
		},
	}
}

func open(tst *testing.T, factory TestSourceFactory) *SQLiteSource {
	tst.Helper()

	ss, err := factory(tst)
	if err != nil {
		tst.Fatalf("NewSQLiteSource failed: %v", err)
	}
	if err := ss.Open(tst.Context()); err != nil {
		tst.Fatalf("Open failed: %v", err)
	}
	tst.Cleanup(func() {
		_ = ss.Close(context.Background())
	})
	return ss
}

func TestSQLiteSource_PutScan(t *testing.T) {
	for name, factory := range GetTestSourceFactories() {
		t.Run(name, func(tst *testing.T) {
			ss := open(tst, factory)
			ctx := tst.Context()

			for _, key := range []string{"/a", "/a/b.txt", "/a_b/c.txt", "/ab", "/z/y.go"} {
				meta := data.NewFileMetadata(key, 42)
				meta.SetAttribute(data.AttributeVersion, "1.0")
				if err := ss.Put(ctx, meta); err != nil {
					tst.Fatalf("Put failed: %v", err)
				}
			}

			items, err := ss.Scan(ctx, []string{"/a"})
			if err != nil {
				tst.Fatalf("Scan failed: %v", err)
			}
			if len(items) != 2 {
				tst.Fatalf("expected 2 items below /a, got %d", len(items))
			}

			all, err := ss.Scan(ctx, []string{"/"})
			if err != nil {
				tst.Fatalf("Scan failed: %v", err)
			}
			if len(all) != 5 {
				tst.Fatalf("expected 5 items, got %d", len(all))
			}

			meta, err := ss.Get(ctx, "/z/y.go")
			if err != nil {
				tst.Fatalf("Get failed: %v", err)
			}
			if meta.Size != 42 || meta.GetAttribute(data.AttributeVersion, "") != "1.0" || meta.ContentType != data.ContentTypeTextGo {
				tst.Fatalf("unexpected metadata %+v", meta)
			}

			meta.Size = 7
			if err := ss.Put(ctx, meta); err != nil {
				tst.Fatalf("Put failed: %v", err)
			}
			updated, _ := ss.Get(ctx, "/z/y.go")
			if updated.Size != 7 || updated.ID != meta.ID {
				tst.Fatalf("unexpected update %+v", updated)
			}

			if err := ss.Delete(ctx, "/z/y.go"); err != nil {
				tst.Fatalf("Delete failed: %v", err)
			}
			if err := ss.Delete(ctx, "/z/y.go"); !errors.Is(err, data.ErrNotExist) {
				tst.Fatalf("expected ErrNotExist, got %v", err)
			}
		})
	}
}

func TestSQLiteSource_Watch(t *testing.T) {
	for name, factory := range GetTestSourceFactories() {
		t.Run(name, func(tst *testing.T) {
			ss := open(tst, factory)

			// Changes before the watch started are not replayed
			_ = ss.Put(tst.Context(), data.NewFileMetadata("/w/old.txt", 1))

			changes := make(chan source.Change, 8)
			ctx, cancel := context.WithCancel(tst.Context())
			defer cancel()

			errc, err := ss.Watch(ctx, []string{"/w"}, func(c source.Change) { changes <- c })
			if err != nil {
				tst.Fatalf("Watch failed: %v", err)
			}

			_ = ss.Put(tst.Context(), data.NewFileMetadata("/elsewhere.txt", 1))
			_ = ss.Put(tst.Context(), data.NewFileMetadata("/w/new.txt", 1))
			_ = ss.Delete(tst.Context(), "/w/old.txt")

			want := []struct {
				kind source.ChangeKind
				key  string
			}{
				{source.ChangePut, "/w/new.txt"},
				{source.ChangeDelete, "/w/old.txt"},
			}

			for _, w := range want {
				select {
				case c := <-changes:
					if c.Kind != w.kind || c.Key != w.key {
						tst.Fatalf("unexpected change %s %s, want %s %s", c.Kind, c.Key, w.kind, w.key)
					}
					if c.Kind == source.ChangePut && c.Metadata == nil {
						tst.Fatalf("expected metadata with put change")
					}
				case <-time.After(2 * time.Second):
					tst.Fatalf("timed out waiting for %s %s", w.kind, w.key)
				}
			}

			pruned, err := ss.Prune(tst.Context(), 1)
			if err != nil {
				tst.Fatalf("Prune failed: %v", err)
			}
			if pruned != 3 {
				tst.Fatalf("expected 3 pruned entries, got %d", pruned)
			}

			cancel()
			for range errc {
				tst.Fatalf("expected feed to end without error")
			}
		})
	}
}

func TestLikePrefix(t *testing.T) {
	tests := map[string]string{
		"/":     "/%",
		"/a":    "/a/%",
		"/a_b/": `/a\_b/%`,
		"/100%": `/100\%/%`,
	}

	for prefix, want := range tests {
		if got := likePrefix(prefix); got != want {
			t.Errorf("likePrefix(%q) = %q, want %q", prefix, got, want)
		}
	}
}
