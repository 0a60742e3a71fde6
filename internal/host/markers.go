package host

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Structured executions are framed by private OSC sequences printed by the
// shell itself:
//
//	ESC ] 777 ; termtools ; start ; <id> BEL
//	ESC ] 777 ; termtools ; end ; <id> ; <exit> BEL
//
// The wrapper types the escape as the four characters \033, so the echoed
// command line never contains a real frame.
const (
	markerPrefix     = "\x1b]777;termtools;"
	markerTerminator = '\a'
	maxMarkerLen     = 128
)

type segmentKind int

const (
	segmentData segmentKind = iota
	segmentStart
	segmentEnd
)

type segment struct {
	kind     segmentKind
	data     []byte
	id       string
	exitCode *int
}

// wrapCommand builds the line typed into the shell for a structured execution.
func wrapCommand(id, commandLine string) string {
	cmd := strings.TrimSpace(commandLine)
	cmd = strings.TrimRight(cmd, "; \t")
	sep := "; "
	if strings.HasSuffix(cmd, "&") {
		sep = " "
	}
	return fmt.Sprintf(`printf '\033]777;termtools;start;%s\007'; %s%sprintf '\033]777;termtools;end;%s;%%d\007' "$?"`,
		id, cmd, sep, id)
}

// markerScanner splits pty output into plain data and marker frames. A frame
// split across reads is held back until it is complete.
type markerScanner struct {
	pending []byte
}

func (s *markerScanner) Scan(chunk []byte) []segment {
	data := chunk
	if len(s.pending) > 0 {
		data = make([]byte, len(s.pending)+len(chunk))
		copy(data, s.pending)
		copy(data[len(s.pending):], chunk)
		s.pending = nil
	}

	var out []segment
	emit := func(p []byte) {
		if len(p) > 0 {
			out = append(out, segment{kind: segmentData, data: p})
		}
	}

	prefix := []byte(markerPrefix)
	for len(data) > 0 {
		i := bytes.Index(data, prefix)
		if i < 0 {
			keep := partialPrefixLen(data)
			emit(data[:len(data)-keep])
			if keep > 0 {
				s.pending = append([]byte(nil), data[len(data)-keep:]...)
			}
			break
		}
		emit(data[:i])

		body := data[i+len(prefix):]
		j := bytes.IndexByte(body, markerTerminator)
		if j < 0 {
			if len(body) > maxMarkerLen {
				emit(data[i : i+1])
				data = data[i+1:]
				continue
			}
			s.pending = append([]byte(nil), data[i:]...)
			break
		}

		if seg, ok := parseMarker(string(body[:j])); ok {
			out = append(out, seg)
		} else {
			emit(data[i : i+len(prefix)+j+1])
		}
		data = body[j+1:]
	}
	return out
}

// Flush returns any held-back bytes as plain data.
func (s *markerScanner) Flush() []byte {
	p := s.pending
	s.pending = nil
	return p
}

func partialPrefixLen(data []byte) int {
	for k := min(len(markerPrefix)-1, len(data)); k > 0; k-- {
		if bytes.HasSuffix(data, []byte(markerPrefix[:k])) {
			return k
		}
	}
	return 0
}

func parseMarker(body string) (segment, bool) {
	parts := strings.Split(body, ";")
	switch {
	case len(parts) == 2 && parts[0] == "start" && parts[1] != "":
		return segment{kind: segmentStart, id: parts[1]}, true
	case len(parts) == 3 && parts[0] == "end" && parts[1] != "":
		seg := segment{kind: segmentEnd, id: parts[1]}
		if code, err := strconv.Atoi(parts[2]); err == nil {
			seg.exitCode = &code
		}
		return seg, true
	}
	return segment{}, false
}
