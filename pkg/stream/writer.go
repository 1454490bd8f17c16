package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Writer emits outgoing chunks as SSE frames ("data: <JSON>\n\n") over one
// client connection. It is safe for concurrent use, drops whitespace-only
// deltas, and is idempotent at close: once the terminal chunk and [DONE]
// marker have been written, every further call is a no-op.
type Writer struct {
	mu     sync.Mutex
	dst    io.Writer
	id     string
	model  string
	closed bool

	// wroteRole tracks whether the assistant role has been announced; it
	// rides on the first delta only.
	wroteRole bool
}

// NewWriter returns a Writer for one client connection. dst is typically the
// write end of the pipe backing the HTTP response body.
func NewWriter(dst io.Writer, model string) *Writer {
	return &Writer{
		dst:   dst,
		id:    "chatcmpl-" + uuid.NewString(),
		model: model,
	}
}

// Delta writes one incremental text chunk. Blank or whitespace-only text is
// dropped so the client never renders empty message fragments.
func (w *Writer) Delta(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	delta := Delta{Content: text}
	if !w.wroteRole {
		delta.Role = "assistant"
		w.wroteRole = true
	}

	return w.writeFrame(w.chunk(delta, nil))
}

// Stop writes the terminal chunk and the [DONE] marker, then closes the
// Writer. Subsequent calls (from any completion path) are no-ops, so
// multiple internal signals cannot double-emit the terminal marker.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	stop := "stop"
	if err := w.writeFrame(w.chunk(Delta{}, &stop)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w.dst, "data: %s\n\n", doneMarker)
	return err
}

// Fail writes a raw error chunk followed by the terminal sequence. The
// client always receives a well-formed stream rather than a broken
// connection.
func (w *Writer) Fail(message string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	err := w.writeFrame(ErrorChunk{Error: ErrorDetail{Message: message, Type: "proxy_error"}})
	w.mu.Unlock()
	if err != nil {
		return err
	}
	return w.Stop()
}

// Closed reports whether the terminal sequence has been written.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// chunk assembles the outgoing envelope around one delta.
func (w *Writer) chunk(delta Delta, finishReason *string) Chunk {
	return Chunk{
		ID:      w.id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   w.model,
		Choices: []Choice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

// writeFrame marshals v and writes it as a single SSE data frame. Callers
// hold w.mu.
func (w *Writer) writeFrame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}
	_, err = fmt.Fprintf(w.dst, "data: %s\n\n", payload)
	return err
}
