package engine

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// reservedChars are characters OneDrive rejects in path segments.
var reservedChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// whitespaceRuns matches any run of whitespace for collapsing.
var whitespaceRuns = regexp.MustCompile(`\s+`)

// SanitizeFileName makes a user-supplied name safe for use as a remote
// path segment: NFC-normalized, reserved characters replaced with "_",
// whitespace runs collapsed to a single space, leading and trailing
// whitespace trimmed. The function is deterministic and idempotent —
// the sanitized name decides the remote object's path, so the same
// input must always map to the same segment.
func SanitizeFileName(name string) string {
	s := norm.NFC.String(name)
	s = reservedChars.ReplaceAllString(s, "_")
	s = whitespaceRuns.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}
