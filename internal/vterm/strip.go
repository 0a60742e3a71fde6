// Package vterm turns raw terminal output into plain text.
package vterm

import (
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/vt"
)

const (
	DefaultCols = 200
	maxRows     = 5000
)

// escapeSeq matches OSC strings, CSI sequences, charset designations and
// two-byte ESC sequences.
var escapeSeq = regexp.MustCompile(`\x1b(?:\][^\x07\x1b]*(?:\x07|\x1b\\)|\[[0-?]*[ -/]*[@-~]|[()#][0-9A-Za-z]|[=>@-Z\\\]^_a-z])`)

var cursorAnyPattern = regexp.MustCompile(`\x1b\[\d*;?\d*[HFfGdABCD]`)

// Clean removes escape sequences and control characters from s, applying
// carriage returns as overwrites so progress bars collapse to their final
// state. Lines end in \n.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = escapeSeq.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = overwrite(line)
	}
	return strings.Join(lines, "\n")
}

// overwrite replays a single line the way a terminal draws it: \r returns to
// column zero and later text replaces earlier text.
func overwrite(line string) string {
	if !hasControl(line) {
		return line
	}
	var cells []rune
	col := 0
	for _, r := range line {
		switch {
		case r == '\r':
			col = 0
		case r == '\b':
			if col > 0 {
				col--
			}
		case r == '\t':
			cells, col = put(cells, col, r)
		case r < 0x20 || r == 0x7f:
		default:
			cells, col = put(cells, col, r)
		}
	}
	return string(cells)
}

func hasControl(line string) bool {
	for i := 0; i < len(line); i++ {
		if c := line[i]; (c < 0x20 && c != '\t') || c == 0x7f {
			return true
		}
	}
	return false
}

func put(cells []rune, col int, r rune) ([]rune, int) {
	if col < len(cells) {
		cells[col] = r
	} else {
		cells = append(cells, r)
	}
	return cells, col + 1
}

// Render returns the text a terminal of the given width would show for s.
// Output that moves the cursor is replayed through a VT emulator; anything
// else goes through Clean.
func Render(s string, cols int) string {
	if s == "" {
		return ""
	}
	if cols <= 0 {
		cols = DefaultCols
	}
	if !cursorAnyPattern.MatchString(s) {
		return trimTrailingEmptyLines(Clean(s))
	}

	rows := min(strings.Count(s, "\n")+100, maxRows)
	emu := vt.NewEmulator(cols, rows)

	// The emulator answers terminal queries on its own pipe; nothing reads
	// those answers, so drain them or writes block.
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		io.Copy(io.Discard, emu) //nolint:errcheck
	}()

	// The emulator treats \n as a bare line feed, as a terminal without ONLCR would.
	emu.WriteString(strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n"))
	result := emu.String()
	if pw, ok := emu.InputPipe().(io.Closer); ok {
		pw.Close()
	}
	<-drainDone
	emu.Close()

	result = strings.ReplaceAll(result, "\r\n", "\n")
	result = strings.ReplaceAll(result, "\r", "")
	return trimTrailingEmptyLines(result)
}

func trimTrailingEmptyLines(s string) string {
	lines := strings.Split(s, "\n")
	last := len(lines) - 1
	for last >= 0 && strings.TrimRight(lines[last], " ") == "" {
		last--
	}
	if last < 0 {
		return ""
	}
	return strings.Join(lines[:last+1], "\n")
}
