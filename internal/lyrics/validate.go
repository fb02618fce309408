package lyrics

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// Sentinel is the marker the model is told to emit when it cannot
	// produce lyrics.
	Sentinel = "NOT_FOUND"

	// MinLength is the minimum length, in characters, of acceptable lyrics.
	MinLength = 50
)

// Validate checks retrieved text against the acceptance rules: non-empty,
// no sentinel, at least MinLength characters, and at least one Japanese
// character. The returned error is a VALIDATION_REJECTED *Error naming the
// first rule that failed.
func Validate(text string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return NewValidationRejected("empty text")
	case strings.Contains(text, Sentinel):
		return NewValidationRejected("model reported " + Sentinel)
	case utf8.RuneCountInString(text) < MinLength:
		return NewValidationRejected(fmt.Sprintf("too short: %d characters, need %d", utf8.RuneCountInString(text), MinLength))
	case !HasJapanese(text):
		return NewValidationRejected("no Japanese characters")
	}
	return nil
}

// HasJapanese reports whether text contains a Hiragana, Katakana or CJK
// ideograph character.
func HasJapanese(text string) bool {
	for _, r := range text {
		if isJapanese(r) {
			return true
		}
	}
	return false
}

func isJapanese(r rune) bool {
	return (r >= 0x3040 && r <= 0x309F) || // Hiragana
		(r >= 0x30A0 && r <= 0x30FF) || // Katakana
		(r >= 0x4E00 && r <= 0x9FAF) // CJK ideographs
}
