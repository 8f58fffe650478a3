package speech

import (
	"strings"
	"unicode/utf8"
)

// MaxTextLength is the maximum number of characters accepted for synthesis.
const MaxTextLength = 5000

// ValidateText checks that text is non-blank and no longer than
// MaxTextLength characters. Length is counted in Unicode code points.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return NewError(ErrorCodeInvalidInput, "Text is required", nil)
	}
	if TextLength(text) > MaxTextLength {
		return NewError(ErrorCodeTextTooLong, "Text too long (max 5000 chars)", nil)
	}
	return nil
}

// TextLength returns the length of text in characters.
func TextLength(text string) int {
	return utf8.RuneCountInString(text)
}
