package server

import (
	"bytes"
	"iter"
)

// LineFramer turns a byte stream into newline-terminated messages. Bytes
// after the last '\n' stay buffered until a later Feed completes them.
// There is no length limit: a peer that never sends '\n' grows the buffer
// without bound.
//
// A LineFramer is not safe for concurrent use.
type LineFramer struct {
	buf []byte
}

// Feed appends data and returns the complete messages now available, in
// arrival order, without their '\n'. Lines are extracted lazily: a consumer
// that stops early leaves the remaining lines buffered.
func (f *LineFramer) Feed(data []byte) iter.Seq[string] {
	f.buf = append(f.buf, data...)
	return func(yield func(string) bool) {
		for {
			i := bytes.IndexByte(f.buf, '\n')
			if i < 0 {
				return
			}
			line := string(f.buf[:i])
			f.buf = f.buf[i+1:]
			if len(f.buf) == 0 {
				f.buf = nil
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Buffered returns the number of bytes held back as an incomplete line.
func (f *LineFramer) Buffered() int {
	return len(f.buf)
}
