// Package storage keeps uploaded document files on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a key has no stored file
	ErrNotFound = errors.New("file not found")

	// ErrInvalidKey is returned for empty keys or keys escaping the base path
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrPermissionDenied is returned when the filesystem refuses access
	ErrPermissionDenied = errors.New("permission denied")
)

const timestampLayout = "20060102-150405"

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
	"image/gif":  ".gif",
}

// Key builds the storage key for an upload: the owner's directory followed by
// <slot>_<yyyyMMdd-HHmmss>_<random>.<ext>
func Key(owner, slot, originalName, mimeType, random string, at time.Time) string {
	name := fmt.Sprintf("%s_%s_%s%s", sanitize(slot), at.UTC().Format(timestampLayout), random, Extension(originalName, mimeType))
	return filepath.Join(sanitize(owner), name)
}

// Extension picks a file extension from the original name, falling back to
// the MIME type
func Extension(originalName, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" && len(ext) <= 6 && sanitize(ext[1:]) == ext[1:] {
		return ext
	}
	base, _, _ := mime.ParseMediaType(mimeType)
	if ext, ok := mimeExtensions[base]; ok {
		return ext
	}
	return ".bin"
}

// sanitize keeps letters, digits, hyphens and underscores
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
