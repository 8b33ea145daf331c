// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"encoding/json"
	"fmt"
)

// maxValueSize bounds a single top-level value, matching the 64MB frame cap
// used by the binary transport.
const maxValueSize = 64 * 1024 * 1024

// Demuxer splits an unframed byte stream of back-to-back JSON values into
// individual top-level values. It keeps its nesting stack between Write
// calls, so a value may arrive in any number of pieces and a single Write
// may carry many values. Only top-level values reach the callback.
//
// Top-level values must be objects, arrays or strings: bare numbers and
// literals are not self-delimiting on an unframed stream and are rejected.
//
// A Demuxer is not safe for concurrent use.
type Demuxer struct {
	onValue func(json.RawMessage)

	stack    []byte // open '{' and '[' of the current value
	buf      []byte // bytes of the current value
	inString bool
	escaped  bool
	offset   int64
	err      error
}

// NewDemuxer returns a Demuxer that hands each completed top-level value to
// onValue. The slice passed to onValue is owned by the callee.
func NewDemuxer(onValue func(json.RawMessage)) *Demuxer {
	return &Demuxer{onValue: onValue}
}

// Write feeds the next chunk of the stream. Once Write returns an error the
// Demuxer is poisoned and returns the same error forever.
func (d *Demuxer) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	for i, c := range p {
		if err := d.step(c); err != nil {
			d.err = err
			return i, err
		}
		d.offset++
	}
	return len(p), nil
}

// Buffered returns the number of bytes held for an incomplete value.
func (d *Demuxer) Buffered() int {
	return len(d.buf)
}

func (d *Demuxer) step(c byte) error {
	if d.inString {
		d.buf = append(d.buf, c)
		switch {
		case d.escaped:
			d.escaped = false
		case c == '\\':
			d.escaped = true
		case c == '"':
			d.inString = false
			if len(d.stack) == 0 {
				return d.emit()
			}
		}
		return d.checkSize()
	}

	if len(d.stack) == 0 && len(d.buf) == 0 {
		switch c {
		case ' ', '\t', '\n', '\r':
			return nil
		case '{', '[':
			d.stack = append(d.stack, c)
		case '"':
			d.inString = true
		default:
			return d.fail(fmt.Sprintf("unexpected %q outside of a value", c))
		}
		d.buf = append(d.buf, c)
		return nil
	}

	d.buf = append(d.buf, c)
	switch c {
	case '"':
		d.inString = true
	case '{', '[':
		d.stack = append(d.stack, c)
	case '}', ']':
		open := d.stack[len(d.stack)-1]
		if (c == '}' && open != '{') || (c == ']' && open != '[') {
			return d.fail(fmt.Sprintf("unexpected %q closing %q", c, open))
		}
		d.stack = d.stack[:len(d.stack)-1]
		if len(d.stack) == 0 {
			return d.emit()
		}
	}
	return d.checkSize()
}

func (d *Demuxer) checkSize() error {
	if len(d.buf) > maxValueSize {
		return d.fail(fmt.Sprintf("value exceeds %d bytes", maxValueSize))
	}
	return nil
}

func (d *Demuxer) emit() error {
	if !json.Valid(d.buf) {
		return d.fail("malformed value")
	}
	v := make(json.RawMessage, len(d.buf))
	copy(v, d.buf)
	d.buf = d.buf[:0]
	d.onValue(v)
	return nil
}

func (d *Demuxer) fail(msg string) error {
	return &ParseError{Offset: d.offset, Msg: msg}
}
