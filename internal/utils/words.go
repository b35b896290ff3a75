package utils

import (
	"fmt"
	"strings"
)

// MaxWords is the longest selection, in words, that may be sent for explanation.
const MaxWords = 20

// ValidationError reports input rejected locally, before any provider is contacted.
type ValidationError struct {
	Words int
	Max   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Selection too long (%d words). Please select less than %d words.", e.Words, e.Max)
}

// CountWords returns the number of whitespace-delimited tokens in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CheckWordLimit returns a *ValidationError when text has more than max words.
func CheckWordLimit(text string, max int) error {
	if n := CountWords(text); n > max {
		return &ValidationError{Words: n, Max: max}
	}
	return nil
}
