package session

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

const maxSessionNameLen = 128

// ValidateName accepts any name an agent might choose as long as it is
// printable text on a single line.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: session name cannot be empty", ErrInvalidName)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: session name must be valid UTF-8", ErrInvalidName)
	}
	if n := utf8.RuneCountInString(name); n > maxSessionNameLen {
		return fmt.Errorf("%w: session name too long (%d chars, max %d)", ErrInvalidName, n, maxSessionNameLen)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: session name cannot contain control characters or newlines", ErrInvalidName)
		}
	}
	return nil
}
