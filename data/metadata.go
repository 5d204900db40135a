package data

import (
	"encoding/json"
	"maps"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata is the record a source indexes for every item and the engine
// evaluates predicates against.
type Metadata struct {
	// Identity - unique identifier assigned by the indexing source
	ID string `json:"id"`

	// Absolute, slash separated path of the item
	Key string `json:"key"`

	Type FileType `json:"type"`

	// Size in bytes (0 for directories)
	Size int64 `json:"size"`

	ContentType ContentType `json:"content_type,omitempty"`

	AccessTime time.Time `json:"access_time"`
	ModifyTime time.Time `json:"modify_time"`
	CreateTime time.Time `json:"create_time"`

	// Source specific attributes, also addressable from predicates
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewMetadata creates a record for key with fresh timestamps and identifier.
func NewMetadata(key string, fileType FileType, size int64) *Metadata {
	now := time.Now()

	meta := &Metadata{
		ID:         genMetadataID(),
		Key:        CleanKey(key),
		Type:       fileType,
		Size:       size,
		AccessTime: now,
		ModifyTime: now,
		CreateTime: now,
		Attributes: make(map[string]string),
	}

	if fileType == FileTypeDirectory {
		meta.ContentType = ContentTypeFolder
	} else {
		meta.ContentType = GetContentType(key)
	}

	return meta
}

// NewFileMetadata creates new metadata for a regular file.
func NewFileMetadata(key string, size int64) *Metadata {
	return NewMetadata(key, FileTypeFile, size)
}

// NewDirectoryMetadata creates new metadata for a directory.
func NewDirectoryMetadata(key string) *Metadata {
	return NewMetadata(key, FileTypeDirectory, 0)
}

func genMetadataID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Name returns the base name of the item.
func (m *Metadata) Name() string {
	if m.Key == "/" {
		return "/"
	}
	return path.Base(m.Key)
}

// Ext returns the extension without the leading dot, or an empty string.
func (m *Metadata) Ext() string {
	if m.IsDir() {
		return ""
	}
	return strings.TrimPrefix(path.Ext(m.Key), ".")
}

func (m *Metadata) IsDir() bool {
	return m.Type == FileTypeDirectory || m.Type == FileTypeBundle
}

// Clone creates a deep copy, including the attribute map.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}

	clone := *m
	if m.Attributes != nil {
		clone.Attributes = make(map[string]string, len(m.Attributes))
		maps.Copy(clone.Attributes, m.Attributes)
	}

	return &clone
}

// Equal reports whether two records describe the same state of an item.
// AccessTime is ignored since reading an item must not count as a change.
func (m *Metadata) Equal(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}

	return m.Key == other.Key &&
		m.Type == other.Type &&
		m.Size == other.Size &&
		m.ContentType == other.ContentType &&
		m.ModifyTime.Equal(other.ModifyTime) &&
		m.CreateTime.Equal(other.CreateTime) &&
		maps.Equal(m.Attributes, other.Attributes)
}

func (m *Metadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func (m *Metadata) Unmarshal(data []byte) error {
	return json.Unmarshal(data, m)
}
