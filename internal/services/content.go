package services

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxContentRunes bounds message content when the service is not
// configured otherwise.
const DefaultMaxContentRunes = 4000

// normalizeContent canonicalizes message text so that equality checks in the
// edit path compare what the user sees: CRLF becomes LF, the text is NFC
// composed, and surrounding whitespace is trimmed. Empty or over-long results
// yield ErrInvalidContent.
func normalizeContent(s string, maxRunes int) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidContent
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = norm.NFC.String(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidContent
	}
	if maxRunes <= 0 {
		maxRunes = DefaultMaxContentRunes
	}
	if utf8.RuneCountInString(s) > maxRunes {
		return "", ErrInvalidContent
	}
	return s, nil
}
