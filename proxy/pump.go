package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coriolislabs/chatedge/pkg/classify"
	"github.com/coriolislabs/chatedge/pkg/sse"
	"github.com/coriolislabs/chatedge/pkg/stream"
	"github.com/coriolislabs/chatedge/pkg/upstream"
	"github.com/coriolislabs/chatedge/pkg/utils"
)

// pumpEvent carries one decoded, classified upstream event (or a read error)
// from the decoder goroutine to the pump's select loop.
type pumpEvent struct {
	res classify.Result
	err error
}

// streamState tracks per-stream progress so notices fire at most once and
// the fallback path knows whether any real content was delivered.
type streamState struct {
	sawFirstText    bool
	toolNoticeShown bool
	accumulated     strings.Builder
}

// pump owns the lifetime of one outgoing stream. It opens the upstream
// connection (with one strip-and-retry on parameter rejection), then races
// decoded events against the heartbeat ticker, the first-packet watchdog, and
// the overall deadline. Every exit path closes the writer with a terminal
// frame so the client never hangs on a half-open stream.
func (p *Proxy) pump(ctx context.Context, cancel context.CancelFunc, pw *io.PipeWriter, payload []byte, rc requestConfig) {
	defer cancel()
	defer pw.Close()

	w := stream.NewWriter(pw, rc.Model)
	deadline := time.Now().Add(p.settings.OverallTimeout)

	overall := time.NewTimer(p.settings.OverallTimeout)
	defer overall.Stop()
	watchdog := time.NewTimer(p.settings.FirstPacketTimeout)
	defer watchdog.Stop()
	heartbeat := time.NewTicker(p.settings.HeartbeatInterval)
	defer heartbeat.Stop()

	body, err := p.openStreamWithRetry(ctx, payload)
	if err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			w.Fail(fmt.Sprintf("%s (HTTP %d)", noticeUpstreamError, apiErr.StatusCode))
		} else {
			w.Fail(noticeNetworkError)
		}
		return
	}

	// The decoder reads from its own cancellable context so the watchdog can
	// abandon a connected-but-silent upstream without tearing down the
	// client-facing side.
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	events := make(chan pumpEvent)
	go p.decodeEvents(streamCtx, body, events)

	var st streamState
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Upstream closed without a completion marker; finish
				// cleanly with whatever was delivered.
				w.Stop()
				return
			}
			if ev.err != nil {
				if st.sawFirstText {
					p.logger.Warn("upstream stream interrupted",
						zap.Int("delivered_bytes", st.accumulated.Len()),
						zap.Error(ev.err))
					w.Fail(noticeInterrupted)
				} else {
					w.Fail(noticeNetworkError)
				}
				return
			}
			if done := p.dispatch(w, &st, ev.res, rc, watchdog, heartbeat); done {
				return
			}

		case <-heartbeat.C:
			// Fires whenever no text has been forwarded for the quiet
			// period, before the first delta included; the notice is local
			// so it never stops the watchdog.
			if err := w.Delta(noticeStillWorking); err != nil {
				return
			}

		case <-watchdog.C:
			if st.sawFirstText {
				continue
			}
			p.logger.Warn("no first packet before watchdog, falling back to blocking request",
				zap.Duration("watchdog", p.settings.FirstPacketTimeout))
			cancelStream()
			p.fallback(ctx, w, payload, deadline)
			return

		case <-overall.C:
			w.Fail(noticeTimeout)
			return

		case <-ctx.Done():
			return
		}
	}
}

// openStreamWithRetry opens the streaming request, retrying exactly once with
// unsupported fields stripped when the upstream rejects a parameter.
func (p *Proxy) openStreamWithRetry(ctx context.Context, payload []byte) (io.ReadCloser, error) {
	body, err := p.client.OpenStream(ctx, payload)
	if err == nil {
		return body, nil
	}

	var apiErr *upstream.APIError
	if !errors.As(err, &apiErr) {
		return nil, err
	}
	stripped, ok := upstream.StripUnsupported(payload, apiErr)
	if !ok {
		return nil, err
	}

	p.logger.Warn("retrying stream with unsupported parameters removed",
		zap.Int("status", apiErr.StatusCode),
		zap.String("rejection", utils.Truncate(apiErr.Body, 200)))
	return p.client.OpenStream(ctx, stripped)
}

// decodeEvents reads SSE frames from the upstream body, classifies each one,
// and sends the results down the channel. It owns closing the body and the
// channel; a closed channel means a clean end of input.
func (p *Proxy) decodeEvents(ctx context.Context, body io.ReadCloser, events chan<- pumpEvent) {
	defer close(events)
	defer body.Close()

	r := sse.NewReader(body)
	for {
		ev, err := r.Next()
		if err != nil {
			select {
			case events <- pumpEvent{err: err}:
			case <-ctx.Done():
			}
			return
		}
		if ev == nil {
			return
		}

		if p.settings.DebugDump {
			p.logger.Debug("upstream event",
				zap.String("event", ev.Type),
				zap.String("data", ev.Data))
		}

		res := classify.Classify(ev.Type, ev.Data)
		if res.Kind == classify.Skip {
			continue
		}
		select {
		case events <- pumpEvent{res: res}:
		case <-ctx.Done():
			return
		}
	}
}

// dispatch translates one classified event into writer calls. It returns true
// when the stream is finished, either because the upstream signaled
// completion or because the client went away.
func (p *Proxy) dispatch(w *stream.Writer, st *streamState, res classify.Result, rc requestConfig, watchdog *time.Timer, heartbeat *time.Ticker) bool {
	switch res.Kind {
	case classify.Text:
		if err := w.Delta(res.Text); err != nil {
			return true
		}
		st.accumulated.WriteString(res.Text)
		if !st.sawFirstText {
			st.sawFirstText = true
			watchdog.Stop()
		}
		heartbeat.Reset(p.settings.HeartbeatInterval)

	case classify.ToolStart:
		if !st.toolNoticeShown {
			st.toolNoticeShown = true
			if err := w.Delta(noticeSearching); err != nil {
				return true
			}
		}

	case classify.ToolResults:
		if err := w.Delta(fmt.Sprintf(noticeSearchResults, res.ResultCount, res.ResultCount)); err != nil {
			return true
		}

	case classify.ToolDone:
		if err := w.Delta(noticeSynthesizing); err != nil {
			return true
		}

	case classify.Done:
		w.Stop()
		return true

	case classify.Unknown:
		if rc.DebugEvents {
			if err := w.Delta(fmt.Sprintf(noticeUnknownEvent, res.EventType)); err != nil {
				return true
			}
		}
	}
	return false
}

// fallback issues a blocking completion within whatever remains of the
// overall budget and relays the whole answer as a single delta. The
// heartbeat keeps ticking while the blocking call is in flight, so the
// client still sees liveness notices during a slow fallback.
func (p *Proxy) fallback(ctx context.Context, w *stream.Writer, payload []byte, deadline time.Time) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		w.Fail(noticeTimeout)
		return
	}

	fctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	heartbeat := time.NewTicker(p.settings.HeartbeatInterval)
	defer heartbeat.Stop()

	type answer struct {
		text string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		text, err := p.client.Complete(fctx, upstream.Blocking(payload))
		done <- answer{text: text, err: err}
	}()

	for {
		select {
		case a := <-done:
			if a.err != nil {
				p.logger.Error("blocking fallback failed", zap.Error(a.err))
				w.Fail(noticeTimeout)
				return
			}
			if err := w.Delta(a.text); err != nil {
				return
			}
			w.Stop()
			return

		case <-heartbeat.C:
			if err := w.Delta(noticeStillWorking); err != nil {
				return
			}
		}
	}
}
