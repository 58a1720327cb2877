package service

import (
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docvault/internal/storage"
)

const (
	// prefixBytes random bytes become the hex storage-name prefix (48 bits).
	prefixBytes       = 6
	maxSanitizedBytes = 200
	fallbackName      = "document.pdf"
)

// randomPrefix returns 12 hex characters drawn from a random UUIDv4.
// The first six bytes of a v4 UUID carry no version or variant bits.
func randomPrefix() string {
	u := uuid.New()
	return hex.EncodeToString(u[:prefixBytes])
}

// storageName builds "<prefix>_<sanitized original>".
func storageName(prefix, original string) string {
	return prefix + "_" + sanitizeFilename(original)
}

// sanitizeFilename replaces every character outside [A-Za-z0-9._-] with '_'
// and caps the length, keeping the extension. The result never contains a
// path separator, so it is safe as a flat file name once prefixed.
func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if storage.IsSafeKeyChar(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()

	if strings.Trim(out, ".") == "" {
		return fallbackName
	}
	if len(out) > maxSanitizedBytes {
		ext := filepath.Ext(out)
		if len(ext) > maxSanitizedBytes/2 {
			ext = ""
		}
		out = out[:maxSanitizedBytes-len(ext)] + ext
	}
	return out
}
