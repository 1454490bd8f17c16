package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader decodes SSE events from an upstream response body. It buffers
// partial lines between reads, so a frame split across several byte
// deliveries is reassembled into a single event rather than decoded as two
// malformed ones.
type Reader struct {
	scanner *bufio.Scanner

	// current accumulates fields for the event being built in the current scan.
	current   *Event
	hasFields bool
}

// NewReader returns a Reader that decodes SSE events from src.
func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
		current: &Event{},
	}
}

// Next returns the next decoded SSE event. It blocks until a complete event
// is available (terminated by a blank line in the stream).
//
// Next returns nil, nil when the source is exhausted. If the stream ends
// while an event is still being accumulated (no trailing blank line), that
// event is flushed rather than dropped.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		// bufio.ScanLines strips the trailing "\r" of CRLF line endings, so
		// "\r\n\r\n" boundaries decode the same as "\n\n". A stray bare "\r"
		// is trimmed here so it cannot mask a blank line.
		raw := strings.TrimSuffix(r.scanner.Text(), "\r")

		// A blank line signals the end of the current event.
		if raw == "" {
			if r.hasFields {
				ev := r.current
				r.reset()
				return ev, nil
			}

			// Blank line with no accumulated fields: leading blank lines or
			// keep-alive newlines. Skip.
			continue
		}

		// Lines starting with ':' are comments.
		if strings.HasPrefix(raw, ":") {
			continue
		}

		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Source exhausted without a scanner error. Flush a trailing event that
	// never received its blank-line terminator.
	if r.hasFields {
		ev := r.current
		r.reset()
		return ev, nil
	}

	return nil, nil
}

// parseLine processes a single non-empty, non-comment SSE line and
// accumulates the field into the current event.
//
// Per the SSE spec, a line has the form "field:value" where the first
// space after the colon is optional and stripped if present.
func (r *Reader) parseLine(line string) {
	var field, value string

	if before, after, ok := strings.Cut(line, ":"); ok {
		field = before
		value = strings.TrimPrefix(after, " ")
	} else {
		// Line with no colon: the entire line is the field name with an
		// empty value.
		field = line
	}

	switch field {
	case "data":
		if r.hasFields && r.current.Data != "" {
			// Multiple data fields are joined with "\n".
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasFields = true
	case "event":
		r.current.Type = value
		r.hasFields = true
	case "id":
		r.current.ID = value
		r.hasFields = true
	default:
		// "retry" and unknown fields are not relevant for proxy use and are
		// ignored silently per the SSE spec.
	}
}

// reset clears the accumulated event state for the next event.
func (r *Reader) reset() {
	r.current = &Event{}
	r.hasFields = false
}
