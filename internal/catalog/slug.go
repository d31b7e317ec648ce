package catalog

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"
)

const hexDigits = "0123456789abcdef"

// Slugify derives the lookup key for a catalog entry from its display name:
// trimmed, lowercased, whitespace runs collapsed to "_" and percent-encoded.
func Slugify(name string) (string, error) {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidInput)
	}
	return percentEncode(strings.Join(fields, "_")), nil
}

// ValidSlug reports whether value could have been produced by Slugify.
func ValidSlug(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'A' && c <= 'Z':
			return false
		case isUnreserved(c):
		case c == '%':
			if i+2 >= len(value) || !isHex(value[i+1]) || !isHex(value[i+2]) {
				return false
			}
			i += 2
		default:
			return false
		}
	}
	return true
}

// ParseSlug accepts a slug as stored or in its decoded form and returns the
// stored form. Hex escapes may use either case. Values Slugify could not have
// produced are rejected.
func ParseSlug(value string) (string, error) {
	decoded := strings.TrimSpace(value)
	if unescaped, err := url.PathUnescape(decoded); err == nil {
		decoded = unescaped
	}
	if decoded == "" {
		return "", fmt.Errorf("%w: slug is empty", ErrInvalidInput)
	}
	for _, r := range decoded {
		if unicode.IsSpace(r) || (r >= 'A' && r <= 'Z') {
			return "", fmt.Errorf("%w: malformed slug %q", ErrInvalidInput, value)
		}
	}
	return percentEncode(decoded), nil
}

// percentEncode escapes everything outside the encodeURIComponent unreserved set.
// Hex digits are emitted in lowercase so slugs never carry uppercase ASCII.
func percentEncode(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '!', c == '~', c == '*', c == '\'', c == '(', c == ')':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

// Extension returns the extension of filename including its leading dot, or "".
func Extension(filename string) string {
	ext := path.Ext(strings.TrimSpace(filename))
	if ext == "." {
		return ""
	}
	return ext
}

// StripExtension removes the final extension from filename.
func StripExtension(filename string) string {
	return strings.TrimSuffix(filename, Extension(filename))
}

// SanitizeFilename builds the blob key for an uploaded asset. The preferred name
// falls back to the original filename; it is lowercased, stripped of its extension,
// has whitespace runs replaced by "_" and is re-suffixed with the original extension.
func SanitizeFilename(preferred, original string) string {
	raw := strings.TrimSpace(preferred)
	if raw == "" {
		raw = strings.TrimSpace(path.Base(original))
	}
	base := strings.Join(strings.Fields(StripExtension(strings.ToLower(raw))), "_")
	base = strings.ReplaceAll(base, "/", "_")
	return base + Extension(original)
}
