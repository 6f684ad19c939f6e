package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// maxLineBytes bounds a single framed message. A remote that streams
// more than this without a newline is treated as broken.
const maxLineBytes = 10 << 20

// SplitLines appends chunk to buf and cuts every complete
// newline-terminated line out of the result. Lines are returned without
// their terminator. rest holds the trailing partial line, if any, and
// must be passed back as buf together with the next chunk.
//
// The result depends only on the concatenation of all chunks, never on
// where the chunk boundaries fall.
func SplitLines(buf, chunk []byte) (lines [][]byte, rest []byte) {
	buf = append(buf, chunk...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, buf[:i])
		buf = buf[i+1:]
	}
	return lines, buf
}

// Decoder turns a byte stream into newline-delimited JSON messages.
// It is independent of any I/O: callers feed it whatever each read
// returned. The zero value is ready to use.
type Decoder struct {
	buf []byte
}

// Feed consumes chunk and returns every message completed by it.
// Whitespace-only lines are skipped. A line that is not valid JSON
// yields a *ProtocolError along with the messages decoded before it;
// the decoder must not be used after an error.
func (d *Decoder) Feed(chunk []byte) ([]json.RawMessage, error) {
	lines, rest := SplitLines(d.buf, chunk)
	d.buf = rest

	var msgs []json.RawMessage
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return msgs, &ProtocolError{Reason: "malformed JSON line", Line: truncateLine(line)}
		}
		msgs = append(msgs, json.RawMessage(bytes.Clone(line)))
	}

	if len(d.buf) > maxLineBytes {
		return msgs, &ProtocolError{Reason: fmt.Sprintf("line exceeds %d bytes", maxLineBytes)}
	}
	return msgs, nil
}

// Buffered returns the number of bytes held for an incomplete line.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
