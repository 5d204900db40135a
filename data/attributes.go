package data

import "time"

const (
	// Reverse-DNS identifier of application bundles
	AttributeBundleIdentifier = "bundle-identifier"
	// Version number or string
	AttributeVersion = "version"
	// Human readable name, when it differs from the file name
	AttributeDisplayName = "display-name"
	// Content checksum or object etag
	AttributeChecksum = "checksum"
	// Target to symlink
	AttributeSymlinkTarget = "symlink-target"
)

// GetAttribute safely retrieves the attribute with a default value.
func (m *Metadata) GetAttribute(key string, defaultValue string) string {
	if m.Attributes == nil {
		return defaultValue
	}

	if value, exists := m.Attributes[key]; exists {
		return value
	}

	return defaultValue
}

// SetAttribute safely sets attribute, initializing the map if needed.
func (m *Metadata) SetAttribute(key, value string) {
	if m.Attributes == nil {
		m.Attributes = make(map[string]string)
	}

	m.Attributes[key] = value
	m.ModifyTime = time.Now()
}

// DeleteAttribute removes a attribute key.
func (m *Metadata) DeleteAttribute(key string) {
	if m.Attributes != nil {
		delete(m.Attributes, key)
		m.ModifyTime = time.Now()
	}
}

// HasAttribute checks if a attribute key exists.
func (m *Metadata) HasAttribute(key string) bool {
	if m.Attributes == nil {
		return false
	}

	_, exists := m.Attributes[key]
	return exists
}
