// Package filename derives a download name from response headers or the request
// URL and reduces it to a filesystem-safe ASCII form.
package filename

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// Default is used by callers that need a name when none could be derived.
	Default = "file.txt"
	// MaxLength is the longest name Sanitize returns.
	MaxLength = 30
)

var dispositionFilenameRe = regexp.MustCompile(`filename="([^"]*)"`)

// FromContentDisposition returns the first quoted filename="..." value of a
// Content-Disposition header, URL-decoded.
func FromContentDisposition(header string) string {
	match := dispositionFilenameRe.FindStringSubmatch(header)
	if match == nil {
		return ""
	}
	return unescape(match[1])
}

// FromURL returns the last path segment of rawURL, URL-decoded. It is empty for
// URLs whose path ends in a slash.
func FromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	escaped := parsed.EscapedPath()
	if i := strings.LastIndex(escaped, "/"); i >= 0 {
		escaped = escaped[i+1:]
	}
	return unescape(escaped)
}

// Derive picks the Content-Disposition name when present, else the URL name.
func Derive(contentDisposition, rawURL string) string {
	if name := FromContentDisposition(contentDisposition); name != "" {
		return name
	}
	return FromURL(rawURL)
}

func unescape(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Sanitize reduces name to the characters [A-Za-z0-9._-], replacing spaces with
// underscores and folding accented letters to their ASCII base. The result is at
// most MaxLength characters; truncated reports whether characters were cut.
// Sanitize never fails and is idempotent.
func Sanitize(name string) (clean string, truncated bool) {
	name = strings.ReplaceAll(name, " ", "_")

	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r > unicode.MaxASCII {
			continue
		}
		if allowed(r) {
			b.WriteRune(r)
		}
	}

	clean = b.String()
	if len(clean) > MaxLength {
		return clean[:MaxLength], true
	}
	return clean, false
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}
