package host

import (
	"bytes"
	"fmt"
	"io"
)

const (
	primaryAttrs   = "\x1b[?62;1;2;6;7;8;9;15;22c"
	secondaryAttrs = "\x1b[>1;1;0c"
)

// queryResponder answers capability queries programs print while starting up
// (device attributes, cursor position, keyboard and mode reports). Without a
// real terminal on the other end those programs would wait forever. Answers
// go to w, which feeds the program's input, and the queries are removed from
// the output.
type queryResponder struct {
	w io.Writer
}

func newQueryResponder(w io.Writer) *queryResponder {
	return &queryResponder{w: w}
}

// Process returns data without any recognized queries, answering each one.
func (r *queryResponder) Process(data []byte) []byte {
	if bytes.IndexByte(data, 0x1b) < 0 {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if data[i] == 0x1b {
			if n, answer := matchQuery(data[i:]); n > 0 {
				r.w.Write([]byte(answer))
				i += n
				continue
			}
		}
		out = append(out, data[i])
		i++
	}
	return out
}

// matchQuery reports how many bytes of a query start data and what to answer.
func matchQuery(data []byte) (int, string) {
	if len(data) < 3 || data[1] != '[' {
		return 0, ""
	}
	switch {
	case hasPrefix(data, "\x1b[c"):
		return 3, primaryAttrs
	case hasPrefix(data, "\x1b[0c"):
		return 4, primaryAttrs
	case hasPrefix(data, "\x1b[>c"):
		return 4, secondaryAttrs
	case hasPrefix(data, "\x1b[>0c"):
		return 5, secondaryAttrs
	case hasPrefix(data, "\x1b[6n"):
		return 4, "\x1b[1;1R"
	case hasPrefix(data, "\x1b[?u"):
		return 4, "\x1b[?0u"
	}

	// DECRPM: ESC[?<mode>$p, answered as "not recognized".
	if data[2] != '?' {
		return 0, ""
	}
	j := 3
	for j < len(data) && data[j] >= '0' && data[j] <= '9' {
		j++
	}
	if j > 3 && j+1 < len(data) && data[j] == '$' && data[j+1] == 'p' {
		return j + 2, fmt.Sprintf("\x1b[?%s;0$y", data[3:j])
	}
	return 0, ""
}

func hasPrefix(data []byte, prefix string) bool {
	return len(data) >= len(prefix) && string(data[:len(prefix)]) == prefix
}
