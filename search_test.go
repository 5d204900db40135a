package mdquery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwantia/mdquery"
	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine"
	"github.com/mwantia/mdquery/engine/predicate"
	"github.com/mwantia/mdquery/engine/source/memory"
)

func newEngine(tst *testing.T, keys ...string) (*engine.Engine, *memory.MemorySource) {
	tst.Helper()

	ms := memory.NewMemorySource()
	e := engine.New(ms, engine.WithHome("/Users/me"), engine.WithBatchInterval(5*time.Millisecond))
	if err := e.Open(tst.Context()); err != nil {
		tst.Fatalf("Open failed: %v", err)
	}
	tst.Cleanup(func() {
		_ = e.Close(context.Background())
	})

	for _, key := range keys {
		meta := data.NewFileMetadata(key, 100)
		if err := ms.Put(meta); err != nil {
			tst.Fatalf("Put failed: %v", err)
		}
	}
	return e, ms
}

func TestSearch(t *testing.T) {
	e, _ := newEngine(t,
		"/Users/me/notes.txt",
		"/Users/me/photo.png",
		"/Users/other/notes.txt",
		"/System/Volumes/Data/Users/me/todo.txt",
	)

	tests := map[string]struct {
		opts []mdquery.Option
		want []string
	}{
		"Home": {
			want: []string{"/Users/me/notes.txt"},
		},
		"Computer": {
			opts: []mdquery.Option{mdquery.WithScopes(mdquery.ScopeComputer)},
			want: []string{"/System/Volumes/Data/Users/me/todo.txt", "/Users/me/notes.txt", "/Users/other/notes.txt"},
		},
		"Limit": {
			opts: []mdquery.Option{mdquery.WithScopes(mdquery.ScopeComputer), mdquery.WithMaxResultCount(1)},
			want: []string{"/System/Volumes/Data/Users/me/todo.txt"},
		},
		"Network": {
			opts: []mdquery.Option{mdquery.WithScopes(mdquery.ScopeNetwork)},
			want: []string{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(tst *testing.T) {
			items, err := mdquery.Search(tst.Context(), e, `kMDItemFSName == "*.txt"`, test.opts...)
			if err != nil {
				tst.Fatalf("Search failed: %v", err)
			}

			got := paths(items)
			if len(got) != len(test.want) {
				tst.Fatalf("unexpected results %v, want %v", got, test.want)
			}
			for i := range got {
				if got[i] != test.want[i] {
					tst.Fatalf("unexpected results %v, want %v", got, test.want)
				}
			}
		})
	}
}

func TestSearch_Malformed(t *testing.T) {
	e, _ := newEngine(t)

	_, err := mdquery.Search(t.Context(), e, `kMDItemFSName ==`)
	if !errors.Is(err, mdquery.ErrNativeRegistration) || !errors.Is(err, predicate.ErrMalformed) {
		t.Fatalf("expected ErrNativeRegistration wrapping ErrMalformed, got %v", err)
	}
}

func TestSearch_Canceled(t *testing.T) {
	svc := &fakeService{}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := mdquery.Search(ctx, svc, `true`); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQuery_Live(t *testing.T) {
	e, ms := newEngine(t, "/Users/me/a.txt")

	q, err := mdquery.New(e, `kMDItemFSName == "*.txt"`)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer q.Close()

	results := make(chan []*mdquery.Item, 1)
	batches := make(chan *mdquery.UpdateBatch, 8)

	if err := q.Start(func(items []*mdquery.Item) { results <- items }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := q.Watch(func(b *mdquery.UpdateBatch) { batches <- b }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	select {
	case items := <-results:
		if got := paths(items); len(got) != 1 || got[0] != "/Users/me/a.txt" {
			t.Fatalf("unexpected results %v", got)
		}
	case <-time.After(wait):
		t.Fatalf("timed out waiting for first result")
	}

	meta := data.NewFileMetadata("/Users/me/b.txt", 1)
	meta.SetAttribute(data.AttributeVersion, "2.1")
	if err := ms.Put(meta); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	select {
	case b := <-batches:
		if len(b.Added) != 1 || b.Added[0].Path != "/Users/me/b.txt" || b.Added[0].Version != "2.1" {
			t.Fatalf("unexpected batch %+v", b)
		}

		var types []mdquery.UpdateType
		b.Each(func(typ mdquery.UpdateType, items []*mdquery.Item) {
			types = append(types, typ)
		})
		if len(types) != 1 || types[0] != mdquery.UpdateAdd {
			t.Fatalf("unexpected update types %v", types)
		}
	case <-time.After(wait):
		t.Fatalf("timed out waiting for update")
	}

	q.Close()
	if n := e.Queries(); n != 0 {
		t.Fatalf("expected native query to be stopped, %d left", n)
	}
}
