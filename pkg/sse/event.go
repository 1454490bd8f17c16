// Package sse provides a minimal SSE (Server-Sent Events) frame decoder for
// the chatedge proxy. It turns the raw byte stream of an upstream LLM
// provider into discrete events, tolerating frames that arrive split across
// multiple byte deliveries and streams that end without a trailing blank
// line.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities; the outgoing client stream is produced by pkg/stream.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single decoded SSE frame, delimited by a blank line
// ("\n\n" or its CRLF equivalent) in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field. It applies to the
	// "data:" lines that follow it until the next blank line. An empty
	// string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
