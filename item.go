package mdquery

import (
	"maps"
	"time"

	"github.com/mwantia/mdquery/data"
)

// Item describes a single search result.
type Item struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	IsDir     bool   `json:"isDir"`

	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`

	CreateTime     time.Time `json:"createTime"`
	LastModifyTime time.Time `json:"lastModifyTime"`
	LastUsedTime   time.Time `json:"lastUsedTime,omitzero"`

	BundleIdentifier string `json:"bundleIdentifier,omitempty"`
	Version          string `json:"version,omitempty"`

	Attributes map[string]string `json:"attributes,omitempty"`
}

func newItem(meta *data.Metadata) *Item {
	return &Item{
		Path:             meta.Key,
		Name:             meta.Name(),
		Extension:        meta.Ext(),
		IsDir:            meta.IsDir(),
		Size:             meta.Size,
		ContentType:      string(meta.ContentType),
		CreateTime:       meta.CreateTime,
		LastModifyTime:   meta.ModifyTime,
		LastUsedTime:     meta.AccessTime,
		BundleIdentifier: meta.GetAttribute(data.AttributeBundleIdentifier, ""),
		Version:          meta.GetAttribute(data.AttributeVersion, ""),
		Attributes:       maps.Clone(meta.Attributes),
	}
}

func newItems(metas []*data.Metadata) []*Item {
	items := make([]*Item, 0, len(metas))
	for _, meta := range metas {
		if meta != nil {
			items = append(items, newItem(meta))
		}
	}
	return items
}

// UpdateType classifies the items of an UpdateBatch.
type UpdateType int

const (
	UpdateAdd UpdateType = iota
	UpdateChange
	UpdateRemove
)

func (t UpdateType) String() string {
	switch t {
	case UpdateAdd:
		return "add"
	case UpdateChange:
		return "change"
	case UpdateRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// UpdateBatch holds the changes of one engine notification.
type UpdateBatch struct {
	Added   []*Item `json:"added,omitempty"`
	Changed []*Item `json:"changed,omitempty"`
	Removed []*Item `json:"removed,omitempty"`
}

// Each calls fn once for every non-empty list, in add, change, remove order.
func (b *UpdateBatch) Each(fn func(UpdateType, []*Item)) {
	if len(b.Added) > 0 {
		fn(UpdateAdd, b.Added)
	}
	if len(b.Changed) > 0 {
		fn(UpdateChange, b.Changed)
	}
	if len(b.Removed) > 0 {
		fn(UpdateRemove, b.Removed)
	}
}

func (b *UpdateBatch) Len() int {
	return len(b.Added) + len(b.Changed) + len(b.Removed)
}
