package irc

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DefaultMaxLineLength bounds the bytes buffered for a single unterminated line
const DefaultMaxLineLength = 8192

var crlf = []byte(CRLF)

// Framer reassembles CRLF-terminated lines from arbitrary chunks of a byte
// stream. A Framer is owned by a single reader and is not safe for
// concurrent use.
type Framer struct {
	pending    []byte
	maxPending int
	discarding bool
}

// NewFramer returns a Framer that drops any fragment growing beyond
// maxLineLength bytes without a terminator. A non-positive limit disables
// the check.
func NewFramer(maxLineLength int) *Framer {
	return &Framer{maxPending: maxLineLength}
}

// Feed consumes one chunk and returns the complete lines it finished, in
// arrival order and without their terminators. Bytes after the last
// terminator are kept and prefixed to the next chunk.
func (f *Framer) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	data := chunk
	if len(f.pending) > 0 {
		data = append(f.pending, chunk...)
		f.pending = nil
	}

	var lines []string
	for {
		i := bytes.Index(data, crlf)
		if i < 0 {
			break
		}
		if f.discarding {
			f.discarding = false
		} else {
			lines = append(lines, decodeLine(data[:i]))
		}
		data = data[i+len(crlf):]
	}

	if len(data) == 0 {
		return lines
	}

	if f.maxPending > 0 && len(data) > f.maxPending {
		f.discarding = true
	}
	if f.discarding {
		// Keep a dangling CR so a terminator split across chunks still ends the discard
		if data[len(data)-1] == '\r' {
			f.pending = []byte{'\r'}
		}
		return lines
	}

	f.pending = append([]byte(nil), data...)
	return lines
}

// Buffered returns the number of bytes held for an unterminated line
func (f *Framer) Buffered() int {
	return len(f.pending)
}

// Reset drops any unterminated fragment. A stream that ends without a final
// terminator never yields that fragment as a line.
func (f *Framer) Reset() {
	f.pending = nil
	f.discarding = false
}

// decodeLine converts raw bytes to text, substituting U+FFFD for invalid
// UTF-8 sequences instead of failing.
func decodeLine(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, _, err := transform.String(runes.ReplaceIllFormed(), string(b))
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return s
}
