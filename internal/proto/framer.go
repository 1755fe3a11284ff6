package proto

import (
	"bytes"
	"strings"
)

// LineTerminator ends every line on the wire.
const LineTerminator = "\r\n"

var terminator = []byte(LineTerminator)

// Framer reassembles terminator-delimited lines from a byte stream that may be
// split at arbitrary points. A Framer belongs to a single connection.
type Framer struct {
	buf []byte
}

// NewFramer creates an empty framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to the pending buffer and returns every complete line it
// now holds, in order. Lines are trimmed; blank lines are dropped. Bytes after
// the last terminator stay buffered for the next call.
func (f *Framer) Feed(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var lines []string
	consumed := 0
	for {
		idx := bytes.Index(f.buf[consumed:], terminator)
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(f.buf[consumed : consumed+idx]))
		consumed += idx + len(terminator)
		if line != "" {
			lines = append(lines, line)
		}
	}

	if consumed > 0 {
		f.buf = append(f.buf[:0], f.buf[consumed:]...)
	}
	return lines
}

// Buffered reports how many bytes are waiting for a terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any partial line.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
