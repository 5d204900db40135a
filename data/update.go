package data

import (
	"maps"
	"time"
)

// MetadataUpdateMask controls which fields of a record should be updated.
type MetadataUpdateMask int

const (
	MetadataUpdateKey         MetadataUpdateMask = 1 << iota // Update path
	MetadataUpdateType                                       // Update file type
	MetadataUpdateSize                                       // Update size
	MetadataUpdateContentType                                // Update content type
	MetadataUpdateAccessTime                                 // Update access time
	MetadataUpdateAttributes                                 // Update attributes map

	MetadataUpdateAll = ^MetadataUpdateMask(0) // Update all fields
)

// MetadataUpdate represents a partial update to a record.
type MetadataUpdate struct {
	Mask     MetadataUpdateMask `json:"mask"`
	Metadata *Metadata          `json:"metadata"`
}

// Apply applies this update to an existing record and reports whether anything changed.
func (mu *MetadataUpdate) Apply(target *Metadata) (bool, error) {
	if mu.Metadata == nil {
		return false, ErrInvalid
	}

	modified := false

	if mu.Mask&MetadataUpdateKey != 0 && target.Key != mu.Metadata.Key {
		target.Key = CleanKey(mu.Metadata.Key)
		modified = true
	}

	if mu.Mask&MetadataUpdateType != 0 && target.Type != mu.Metadata.Type {
		target.Type = mu.Metadata.Type
		modified = true
	}

	if mu.Mask&MetadataUpdateSize != 0 && target.Size != mu.Metadata.Size {
		target.Size = mu.Metadata.Size
		modified = true
	}

	if mu.Mask&MetadataUpdateContentType != 0 && target.ContentType != mu.Metadata.ContentType {
		target.ContentType = mu.Metadata.ContentType
		modified = true
	}

	// Access time alone never counts as a modification
	if mu.Mask&MetadataUpdateAccessTime != 0 {
		target.AccessTime = mu.Metadata.AccessTime
	}

	if mu.Mask&MetadataUpdateAttributes != 0 && !maps.Equal(target.Attributes, mu.Metadata.Attributes) {
		target.Attributes = make(map[string]string, len(mu.Metadata.Attributes))
		maps.Copy(target.Attributes, mu.Metadata.Attributes)
		modified = true
	}

	// Only update ModifyTime if any form of modification actually happened
	if modified {
		target.ModifyTime = time.Now()
	}

	return modified, nil
}
