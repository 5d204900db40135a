package data

import (
	"path"
	"strings"
)

// CleanKey normalizes a key to an absolute, slash separated path.
func CleanKey(key string) string {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}

	return path.Clean(key)
}

// HasPrefix checks if key lies at or below prefix.
// Both values should be cleaned before calling.
func HasPrefix(key, prefix string) bool {
	// Root matches everything
	if prefix == "" || prefix == "/" {
		return true
	}

	// Exact match
	if key == prefix {
		return true
	}

	return strings.HasPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
}

// ToRelativeKey removes the prefix from key and any leading slashes.
func ToRelativeKey(key, prefix string) string {
	if prefix == "" {
		return strings.TrimPrefix(key, "/")
	}

	if key == prefix {
		return ""
	}

	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}
