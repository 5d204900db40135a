package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mwantia/mdquery"
	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine"
	"github.com/mwantia/mdquery/engine/source/memory"
)

func items(paths ...string) []*mdquery.Item {
	result := make([]*mdquery.Item, 0, len(paths))
	for _, path := range paths {
		result = append(result, &mdquery.Item{Path: path})
	}
	return result
}

func paths(r *Results) []string {
	result := make([]string, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		result = append(result, r.At(i).Path)
	}
	return result
}

func TestResults_Apply(t *testing.T) {
	var r Results
	r.Reset(items("/c", "/a", "/e"))

	r.Apply(&mdquery.UpdateBatch{
		Added:   items("/b", "/f"),
		Changed: items("/c", "/d"),
		Removed: items("/a", "/x"),
	})

	want := []string{"/b", "/c", "/d", "/e", "/f"}
	got := paths(&r)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEntry_Display(t *testing.T) {
	tests := map[string]struct {
		item *mdquery.Item
		size string
		icon string
	}{
		"dir":   {&mdquery.Item{Name: "src", IsDir: true}, "<DIR>", "📁"},
		"bytes": {&mdquery.Item{Name: "a.txt", Size: 12}, "12 B", "📄"},
		"kilo":  {&mdquery.Item{Name: "main.go", Size: 2048}, "2.0 KB", "💻"},
		"image": {&mdquery.Item{Name: "cat", Size: 3 << 20, ContentType: "image/png"}, "3.0 MB", "🖼️"},
	}

	for name, tc := range tests {
		t.Run(name, func(tst *testing.T) {
			e := &Entry{Item: tc.item}
			if got := e.DisplaySize(); got != tc.size {
				tst.Errorf("DisplaySize() = %q, want %q", got, tc.size)
			}
			if got := e.Icon(); got != tc.icon {
				tst.Errorf("Icon() = %q, want %q", got, tc.icon)
			}
		})
	}
}

func TestModel_StaleGeneration(t *testing.T) {
	m := NewModel(NewSearchAdapter(nil), "true")
	m.generation = 2

	m.Update(resultsMsg{generation: 1, items: items("/old")})
	if m.results.Len() != 0 {
		t.Fatal("stale results were applied")
	}

	m.Update(resultsMsg{generation: 2, items: items("/a", "/b")})
	m.Update(batchMsg{generation: 2, batch: &mdquery.UpdateBatch{Removed: items("/a")}})
	if got := paths(&m.results); len(got) != 1 || got[0] != "/b" {
		t.Errorf("unexpected results %v", got)
	}
	if !m.gathered {
		t.Error("expected gathered")
	}
}

func TestModel_Keys(t *testing.T) {
	m := NewModel(NewSearchAdapter(nil), "true")
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(resultsMsg{generation: 0, items: items("/a", "/b", "/c")})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if m.cursor != 2 {
		t.Errorf("cursor = %d, want 2", m.cursor)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if m.mode != ModeInput {
		t.Fatalf("mode = %v, want input", m.mode)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEscape})
	if m.mode != ModeNormal {
		t.Errorf("mode = %v, want normal", m.mode)
	}

	if m.View() == "" {
		t.Error("empty view")
	}
}

func TestSearchAdapter(t *testing.T) {
	src := memory.NewMemorySource()
	e := engine.New(src, engine.WithHome("/"), engine.WithBatchInterval(10*time.Millisecond))
	if err := e.Open(t.Context()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close(t.Context())

	if err := src.Put(data.NewFileMetadata("/a.go", 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	a := NewSearchAdapter(e)
	defer a.Close()

	// An overtaken reservation is ignored
	old := a.Reserve()
	gen := a.Reserve()
	if err := a.Search(old, "true"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if err := a.Search(gen, `kMDItemFSName == "*.go"`); err != nil {
		t.Fatalf("Search: %v", err)
	}

	msg := a.Wait()()
	results, ok := msg.(resultsMsg)
	if !ok || results.generation != gen || len(results.items) != 1 {
		t.Fatalf("unexpected message %#v", msg)
	}

	gen = a.Reserve()
	if err := a.Search(gen, "kMDItemFSName =="); err == nil {
		t.Error("expected malformed predicate error")
	}
}
