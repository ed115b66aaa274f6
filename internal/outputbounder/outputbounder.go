// Package outputbounder truncates strings and byte streams to declared caps,
// marking truncation so a tool result can carry an honest total_size.
//
// Grounded on original_source/src-tauri/src/repo_tools/safety.rs's
// truncate_string (char-boundary-safe truncation with a truncated flag).
package outputbounder

import "unicode/utf8"

// Bound clips s to at most maxChars runes, at a valid rune boundary, and
// reports whether it truncated plus the untruncated length in runes.
func Bound(s string, maxChars int) (clipped string, truncated bool, totalSize int) {
	totalSize = utf8.RuneCountInString(s)
	if maxChars < 0 {
		maxChars = 0
	}
	if totalSize <= maxChars {
		return s, false, totalSize
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i], true, totalSize
		}
		count++
	}
	return s, false, totalSize
}

// BoundBytes clips b to at most maxBytes bytes, byte-exact (for binary
// content, where a rune boundary has no meaning), reporting whether it
// truncated plus the untruncated length in bytes.
func BoundBytes(b []byte, maxBytes int) (clipped []byte, truncated bool, totalSize int) {
	totalSize = len(b)
	if maxBytes < 0 {
		maxBytes = 0
	}
	if totalSize <= maxBytes {
		return b, false, totalSize
	}
	return b[:maxBytes], true, totalSize
}
