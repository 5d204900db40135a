package local

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine/source"
)

func newTree(t *testing.T) *LocalSource {
	root := t.TempDir()

	files := map[string]string{
		"docs/a.txt":        "alpha",
		"docs/deep/b.md":    "beta",
		"src/main.go":       "package main",
		"Tools.app/Info.md": "bundle",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	ls := NewLocalSource(root)
	if err := ls.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ls.Close(context.Background()) })

	return ls
}

func keys(items []*data.Metadata) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		result = append(result, item.Key)
	}
	sort.Strings(result)
	return result
}

func TestLocal_Scan(t *testing.T) {
	ls := newTree(t)

	tests := map[string]struct {
		prefixes []string
		want     []string
	}{
		"docs":    {[]string{"/docs"}, []string{"/docs", "/docs/a.txt", "/docs/deep", "/docs/deep/b.md"}},
		"file":    {[]string{"/src/main.go"}, []string{"/src/main.go"}},
		"missing": {[]string{"/nope"}, []string{}},
		"several": {[]string{"/src", "/docs/deep"}, []string{"/docs/deep", "/docs/deep/b.md", "/src", "/src/main.go"}},
	}

	for name, tc := range tests {
		t.Run(name, func(tst *testing.T) {
			items, err := ls.Scan(context.Background(), tc.prefixes)
			if err != nil {
				tst.Fatalf("Scan: %v", err)
			}

			got := keys(items)
			if len(got) != len(tc.want) {
				tst.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					tst.Errorf("got %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}

func TestLocal_Metadata(t *testing.T) {
	ls := newTree(t)

	items, err := ls.Scan(context.Background(), []string{"/"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	byKey := make(map[string]*data.Metadata)
	for _, item := range items {
		byKey[item.Key] = item
	}

	if root, ok := byKey["/"]; !ok || !root.IsDir() {
		t.Errorf("expected root directory, got %+v", root)
	}
	if bundle := byKey["/Tools.app"]; bundle == nil || bundle.Type != data.FileTypeBundle {
		t.Errorf("expected bundle, got %+v", bundle)
	}
	if file := byKey["/docs/a.txt"]; file == nil || file.Size != 5 || file.Type != data.FileTypeFile {
		t.Errorf("unexpected file metadata %+v", file)
	}
}

func TestLocal_Watch(t *testing.T) {
	ls := newTree(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changes := make(chan source.Change, 64)
	errc, err := ls.Watch(ctx, []string{"/docs"}, func(c source.Change) { changes <- c })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	await := func(kind source.ChangeKind, key string) {
		t.Helper()
		for {
			select {
			case c := <-changes:
				if c.Kind == kind && c.Key == key {
					return
				}
			case err := <-errc:
				t.Fatalf("watch failed: %v", err)
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %v %s", kind, key)
			}
		}
	}

	// Outside the watched scope
	if err := os.WriteFile(filepath.Join(ls.path, "src", "other.go"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(ls.path, "docs", "deep", "c.txt"), []byte("c"), 0o644); err != nil {
		t.Fatal(err)
	}
	await(source.ChangePut, "/docs/deep/c.txt")

	if err := os.MkdirAll(filepath.Join(ls.path, "docs", "new"), 0o755); err != nil {
		t.Fatal(err)
	}
	await(source.ChangePut, "/docs/new")

	if err := os.WriteFile(filepath.Join(ls.path, "docs", "new", "d.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	await(source.ChangePut, "/docs/new/d.txt")

	if err := os.Remove(filepath.Join(ls.path, "docs", "a.txt")); err != nil {
		t.Fatal(err)
	}
	await(source.ChangeDelete, "/docs/a.txt")

	cancel()
	for range errc {
	}
}
