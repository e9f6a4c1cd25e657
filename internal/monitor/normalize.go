package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// The semantic hash must not move when a page re-renders with a new
// timestamp, a cache-busting script tag, or reflowed whitespace. Everything
// stripped here is presentation noise, not content.
var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	// ISO-8601 with optional fraction and zone.
	isoRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	// Bare 13-digit (ms) and 10-digit (s) epoch numbers. 13 first so a ms
	// stamp is not half-consumed as a 10-digit match.
	epochRe = regexp.MustCompile(`\b(?:\d{13}|\d{10})\b`)
	wsRe    = regexp.MustCompile(`\s+`)
)

// Normalize strips volatile markup from fetched content so incidental
// churn does not register as change.
func Normalize(content []byte) string {
	s := string(content)
	s = scriptRe.ReplaceAllString(s, "")
	s = styleRe.ReplaceAllString(s, "")
	s = commentRe.ReplaceAllString(s, "")
	s = isoRe.ReplaceAllString(s, "")
	s = epochRe.ReplaceAllString(s, "")
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SemanticHash digests normalized content, truncated to 16 hex chars.
// Change detection only; not a security primitive.
func SemanticHash(content []byte) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:8])
}
