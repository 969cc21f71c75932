package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeHandle strips surrounding whitespace and a leading "@" from a social-media handle.
// Full-width characters pasted from mobile keyboards are folded with NFKC first.
func NormalizeHandle(raw string) string {
	handle := norm.NFKC.String(raw)
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.TrimSpace(handle)
}
