package mount

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine/source"
	"github.com/mwantia/mdquery/engine/source/memory"
)

type fixture struct {
	root   *memory.MemorySource
	photos *memory.MemorySource
	ms     *MountSource
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		root:   memory.NewMemorySource(),
		photos: memory.NewMemorySource(),
		ms:     NewMountSource(),
	}

	if err := f.ms.Mount("/", f.root); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := f.ms.Mount("/Volumes/photos", f.photos); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := f.ms.Open(t.Context()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.ms.Close(context.Background()) })

	put := func(src *memory.MemorySource, key string) {
		if err := src.Put(data.NewFileMetadata(key, 1)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	put(f.root, "/Users/me/a.txt")
	// Hidden by the photos mount
	put(f.root, "/Volumes/photos/stale.jpg")
	put(f.photos, "/2024/cat.jpg")
	put(f.photos, "/2025/dog.jpg")

	return f
}

func keys(items []*data.Metadata) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		result = append(result, item.Key)
	}
	sort.Strings(result)
	return result
}

func TestMount_Scan(t *testing.T) {
	f := newFixture(t)

	tests := map[string]struct {
		prefixes []string
		want     []string
	}{
		"all":        {[]string{"/"}, []string{"/Users/me/a.txt", "/Volumes/photos/2024/cat.jpg", "/Volumes/photos/2025/dog.jpg"}},
		"volumes":    {[]string{"/Volumes"}, []string{"/Volumes/photos/2024/cat.jpg", "/Volumes/photos/2025/dog.jpg"}},
		"inside":     {[]string{"/Volumes/photos/2024"}, []string{"/Volumes/photos/2024/cat.jpg"}},
		"root only":  {[]string{"/Users"}, []string{"/Users/me/a.txt"}},
		"two mounts": {[]string{"/Users", "/Volumes/photos/2025"}, []string{"/Users/me/a.txt", "/Volumes/photos/2025/dog.jpg"}},
	}

	for name, tc := range tests {
		t.Run(name, func(tst *testing.T) {
			items, err := f.ms.Scan(tst.Context(), tc.prefixes)
			if err != nil {
				tst.Fatalf("Scan: %v", err)
			}

			got := keys(items)
			if len(got) != len(tc.want) {
				tst.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					tst.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestMount_Table(t *testing.T) {
	ms := NewMountSource()

	if err := ms.Open(t.Context()); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Open without mounts: expected ErrNotMounted, got %v", err)
	}

	if err := ms.Mount("/", memory.NewMemorySource()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := ms.Mount("/data/", memory.NewMemorySource()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := ms.Mount("/data", memory.NewMemorySource()); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("expected ErrAlreadyMounted, got %v", err)
	}

	if _, err := ms.Unmount("/"); !errors.Is(err, ErrMountBusy) {
		t.Errorf("expected ErrMountBusy, got %v", err)
	}
	if _, err := ms.Unmount("/nope"); !errors.Is(err, ErrNotMounted) {
		t.Errorf("expected ErrNotMounted, got %v", err)
	}

	infos := ms.Mounts()
	if len(infos) != 2 || infos[0].Path != "/" || infos[1].Path != "/data" || infos[1].Source != "memory" {
		t.Errorf("unexpected mounts %+v", infos)
	}

	if _, err := ms.Unmount("/data"); err != nil {
		t.Errorf("Unmount: %v", err)
	}
	if !ms.GetCapabilities().Contains(source.CapabilityWatch) {
		t.Error("expected watch capability")
	}
}

func TestMount_Watch(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	changes := make(chan source.Change, 16)
	errc, err := f.ms.Watch(ctx, []string{"/Volumes"}, func(c source.Change) { changes <- c })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Out of scope and hidden changes are not reported
	f.root.Put(data.NewFileMetadata("/Users/me/b.txt", 1))
	f.root.Put(data.NewFileMetadata("/Volumes/photos/ghost.jpg", 1))
	f.photos.Put(data.NewFileMetadata("/2025/owl.jpg", 1))
	f.photos.Delete("/2024/cat.jpg")

	want := []source.Change{
		{Kind: source.ChangePut, Key: "/Volumes/photos/2025/owl.jpg"},
		{Kind: source.ChangeDelete, Key: "/Volumes/photos/2024/cat.jpg"},
	}
	for _, w := range want {
		select {
		case c := <-changes:
			if c.Kind != w.Kind || c.Key != w.Key {
				t.Fatalf("got %v %s, want %v %s", c.Kind, c.Key, w.Kind, w.Key)
			}
			if c.Metadata != nil && c.Metadata.Key != c.Key {
				t.Errorf("metadata key %s not translated", c.Metadata.Key)
			}
		case err := <-errc:
			t.Fatalf("watch failed: %v", err)
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}

	// Closing a mounted source fails the combined feed
	f.photos.Close(ctx)
	select {
	case err, ok := <-errc:
		if !ok || !errors.Is(err, data.ErrSourceClosed) {
			t.Fatalf("expected closed source error, got %v (open %v)", err, ok)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for feed failure")
	}
}
