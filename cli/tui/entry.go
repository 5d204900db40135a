package tui

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mwantia/mdquery"
)

// Entry represents a single search result in the TUI
type Entry struct {
	*mdquery.Item
}

// DisplayName returns the name with appropriate indicator
func (e *Entry) DisplayName() string {
	if e.IsDir {
		return e.Name + "/"
	}
	return e.Name
}

// DisplaySize returns human-readable size
func (e *Entry) DisplaySize() string {
	if e.IsDir {
		return "<DIR>"
	}

	const unit = 1024
	if e.Size < unit {
		return fmt.Sprintf("%d B", e.Size)
	}

	div, exp := int64(unit), 0
	for n := e.Size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(e.Size)/float64(div), "KMGTPE"[exp])
}

// DisplayModTime returns formatted modification time
func (e *Entry) DisplayModTime() string {
	return e.LastModifyTime.Format("2006-01-02 15:04:05")
}

// Icon returns an icon based on the item kind
func (e *Entry) Icon() string {
	if e.IsDir {
		return "📁"
	}

	switch {
	case strings.HasPrefix(e.ContentType, "image/"):
		return "🖼️"
	case hasExt(e.Name, ".zip", ".tar", ".gz", ".bz2", ".7z", ".rar"):
		return "📦"
	case hasExt(e.Name, ".go", ".js", ".ts", ".py", ".java", ".c", ".cpp", ".h", ".rs", ".rb", ".php"):
		return "💻"
	default:
		return "📄"
	}
}

func hasExt(name string, exts ...string) bool {
	return slices.Contains(exts, strings.ToLower(filepath.Ext(name)))
}

// Results keeps entries ordered by path while batches are applied.
type Results struct {
	entries []*Entry
}

func (r *Results) Len() int {
	return len(r.entries)
}

func (r *Results) At(i int) *Entry {
	if i < 0 || i >= len(r.entries) {
		return nil
	}
	return r.entries[i]
}

func (r *Results) Reset(items []*mdquery.Item) {
	r.entries = make([]*Entry, 0, len(items))
	for _, item := range items {
		r.entries = append(r.entries, &Entry{Item: item})
	}
	slices.SortFunc(r.entries, func(a, b *Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
}

func (r *Results) find(path string) (int, bool) {
	return slices.BinarySearchFunc(r.entries, path, func(e *Entry, path string) int {
		return strings.Compare(e.Path, path)
	})
}

// Apply merges batch into the results.
func (r *Results) Apply(batch *mdquery.UpdateBatch) {
	batch.Each(func(kind mdquery.UpdateType, items []*mdquery.Item) {
		for _, item := range items {
			i, found := r.find(item.Path)

			switch {
			case kind == mdquery.UpdateRemove:
				if found {
					r.entries = slices.Delete(r.entries, i, i+1)
				}
			case found:
				r.entries[i] = &Entry{Item: item}
			default:
				r.entries = slices.Insert(r.entries, i, &Entry{Item: item})
			}
		}
	})
}
