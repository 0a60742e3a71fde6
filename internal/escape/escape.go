// Package escape turns the backslash notation agents use for keystrokes into
// the bytes written to a terminal.
package escape

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var ErrIncomplete = errors.New("incomplete escape sequence")

var simple = map[byte]byte{
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'a':  0x07,
	'b':  0x08,
	'e':  0x1b,
	'0':  0x00,
	'\\': '\\',
}

// Interpret processes escape sequences in s:
//
//	\xNN      hex byte, e.g. \x03 for Ctrl+C
//	\^X       control character, e.g. \^C (0x03), \^D (0x04), \^[ (ESC)
//	\u{NNNN}  unicode code point
//	\n \r \t \a \b \e \0 \\
//
// Any other escaped character stands for itself (\! becomes !).
func Interpret(s string) (string, error) {
	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		if s[i] != '\\' {
			result.WriteByte(s[i])
			i++
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("%w at end of string", ErrIncomplete)
		}

		c := s[i+1]
		if b, ok := simple[c]; ok {
			result.WriteByte(b)
			i += 2
			continue
		}

		switch c {
		case 'x':
			if i+3 >= len(s) {
				return "", fmt.Errorf("%w: hex escape at position %d", ErrIncomplete, i)
			}
			hex := s[i+2 : i+4]
			val, err := strconv.ParseUint(hex, 16, 8)
			if err != nil {
				return "", fmt.Errorf("invalid hex escape \\x%s at position %d", hex, i)
			}
			result.WriteByte(byte(val))
			i += 4

		case '^':
			if i+2 >= len(s) {
				return "", fmt.Errorf("%w: control escape at position %d", ErrIncomplete, i)
			}
			b, err := control(s[i+2])
			if err != nil {
				return "", fmt.Errorf("%w at position %d", err, i)
			}
			result.WriteByte(b)
			i += 3

		case 'u':
			end := strings.IndexByte(s[i:], '}')
			if i+2 >= len(s) || s[i+2] != '{' || end < 0 {
				return "", fmt.Errorf("%w: unicode escape at position %d, want \\u{NNNN}", ErrIncomplete, i)
			}
			digits := s[i+3 : i+end]
			cp, err := strconv.ParseUint(digits, 16, 32)
			if err != nil || !utf8.ValidRune(rune(cp)) {
				return "", fmt.Errorf("invalid unicode escape \\u{%s} at position %d", digits, i)
			}
			result.WriteRune(rune(cp))
			i += end + 1

		default:
			r, size := utf8.DecodeRuneInString(s[i+1:])
			result.WriteRune(r)
			i += 1 + size
		}
	}

	return result.String(), nil
}

// control maps caret notation to its control byte: @ A-Z [ \ ] ^ _ map to
// 0x00-0x1f and ? maps to DEL.
func control(c byte) (byte, error) {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	switch {
	case c == '?':
		return 0x7f, nil
	case c >= '@' && c <= '_':
		return c - '@', nil
	}
	return 0, fmt.Errorf("invalid control escape \\^%c", c)
}
