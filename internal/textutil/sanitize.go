package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes name safe to use as one path segment of an archive
// name or upload key. Path separators, colons and asterisks become dashes,
// other shell or filesystem metacharacters are dropped, runs of whitespace
// collapse to a single underscore, and leading dots are removed so the result
// is never hidden. The result may be empty.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSpace := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case r == '/' || r == '\\' || r == ':' || r == '*':
			r = '-'
		case strings.ContainsRune("?\"<>|", r) || unicode.IsControl(r):
			continue
		}
		if pendingSpace {
			b.WriteByte('_')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimLeft(b.String(), ".")
}
