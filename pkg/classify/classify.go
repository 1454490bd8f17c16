// Package classify assigns a semantic kind to decoded upstream SSE frames.
//
// Upstream event taxonomies vary across response-API versions and tool
// types, so classification is deliberately liberal: an ordered table of
// predicate rules is evaluated top to bottom and the first match wins. The
// rule order is part of the contract and is tested independently.
package classify

import (
	"strings"

	"github.com/tidwall/gjson"
)

// doneSentinel is the literal data payload that signals immediate stream
// termination regardless of JSON validity.
const doneSentinel = "[DONE]"

// Kind is the semantic kind of an upstream frame.
type Kind int

const (
	// Skip marks frames that carry nothing actionable (heartbeats,
	// comments, non-JSON noise). They are dropped silently.
	Skip Kind = iota

	// Text marks an incremental text delta.
	Text

	// ToolStart marks the beginning of a tool invocation (web search).
	ToolStart

	// ToolResults marks an intermediate tool event carrying a results array.
	ToolResults

	// ToolDone marks the completion of a tool invocation.
	ToolDone

	// Done marks successful stream termination.
	Done

	// Unknown marks a well-formed frame whose type no rule recognizes.
	Unknown
)

// Result is the outcome of classifying one frame.
type Result struct {
	Kind Kind

	// Text carries the delta text for Kind == Text.
	Text string

	// ResultCount carries the tool results count for Kind == ToolResults.
	ResultCount int

	// EventType is the effective type string derived for the frame, kept
	// for debug reporting of Unknown frames.
	EventType string
}

// candidate is the parsed view of a frame handed to each rule.
type candidate struct {
	eventType string
	payload   gjson.Result
}

// rule pairs a name (used in tests) with a predicate that either claims the
// candidate or passes it to the next rule.
type rule struct {
	name  string
	match func(c candidate) (Result, bool)
}

// rules is the prioritized classification table. Order matters: text deltas
// are claimed first, then tool-progress events, then generic completion.
var rules = []rule{
	{"text-delta", matchTextDelta},
	{"tool-start", matchToolStart},
	{"tool-results", matchToolResults},
	{"tool-done", matchToolDone},
	{"completion", matchCompletion},
}

// Classify determines the semantic kind of a single frame. eventName is the
// frame's "event:" field (may be empty), data its payload.
func Classify(eventName, data string) Result {
	trimmed := strings.TrimSpace(data)
	if trimmed == doneSentinel {
		return Result{Kind: Done, EventType: doneSentinel}
	}

	// A payload that is not JSON is treated as a heartbeat or comment.
	if !gjson.Valid(trimmed) {
		return Result{Kind: Skip}
	}
	payload := gjson.Parse(trimmed)

	c := candidate{
		eventType: effectiveType(eventName, payload),
		payload:   payload,
	}

	for _, r := range rules {
		if res, ok := r.match(c); ok {
			res.EventType = c.eventType
			return res
		}
	}

	return Result{Kind: Unknown, EventType: c.eventType}
}

// effectiveType derives the type string for a frame: an explicit "type"
// field wins, then the SSE event name, then an "event" field.
func effectiveType(eventName string, payload gjson.Result) string {
	if t := payload.Get("type").String(); t != "" {
		return t
	}
	if eventName != "" {
		return eventName
	}
	return payload.Get("event").String()
}

func matchTextDelta(c candidate) (Result, bool) {
	text := extractText(c.payload)
	if text == "" {
		// Empty strings are "no text": let later rules see the frame.
		return Result{}, false
	}
	return Result{Kind: Text, Text: text}, true
}

// extractText pulls incremental text out of the payload, trying the known
// delta shapes in preference order.
func extractText(payload gjson.Result) string {
	// Responses-API style: {"type":"response.output_text.delta","delta":"hi"}
	if d := payload.Get("delta"); d.Type == gjson.String {
		return d.String()
	}
	// Anthropic style: {"delta":{"text":"hi"}} or {"delta":{"content":"hi"}}
	if t := payload.Get("delta.text"); t.Type == gjson.String && t.String() != "" {
		return t.String()
	}
	if t := payload.Get("delta.content"); t.Type == gjson.String && t.String() != "" {
		return t.String()
	}
	// Bare fields, in the documented preference order.
	if t := payload.Get("text"); t.Type == gjson.String && t.String() != "" {
		return t.String()
	}
	if t := payload.Get("content"); t.Type == gjson.String && t.String() != "" {
		return t.String()
	}
	// Chat-completions chunk: {"choices":[{"delta":{"content":"hi"}}]}
	if t := payload.Get("choices.0.delta.content"); t.Type == gjson.String && t.String() != "" {
		return t.String()
	}
	// Nested output-text content array:
	// {"content":[{"type":"output_text","text":"hi"}, ...]}
	if blocks := payload.Get("content"); blocks.IsArray() {
		var sb strings.Builder
		for _, block := range blocks.Array() {
			if block.Get("type").String() == "output_text" {
				sb.WriteString(block.Get("text").String())
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

// isToolCall reports whether the type belongs to a recognized tool-call
// family. Web search is the only family the proxy surfaces today.
func isToolCall(eventType string) bool {
	return strings.Contains(eventType, "web_search")
}

func matchToolStart(c candidate) (Result, bool) {
	if !isToolCall(c.eventType) {
		return Result{}, false
	}
	for _, suffix := range []string{".created", ".started", ".in_progress", ".searching"} {
		if strings.HasSuffix(c.eventType, suffix) {
			return Result{Kind: ToolStart}, true
		}
	}
	return Result{}, false
}

func matchToolResults(c candidate) (Result, bool) {
	if !isToolCall(c.eventType) {
		return Result{}, false
	}
	results := c.payload.Get("results")
	if !results.IsArray() {
		return Result{}, false
	}
	return Result{Kind: ToolResults, ResultCount: len(results.Array())}, true
}

func matchToolDone(c candidate) (Result, bool) {
	if isToolCall(c.eventType) && strings.HasSuffix(c.eventType, ".completed") {
		return Result{Kind: ToolDone}, true
	}
	return Result{}, false
}

func matchCompletion(c candidate) (Result, bool) {
	et := c.eventType
	if strings.HasSuffix(et, ".done") || strings.HasSuffix(et, ".completed") {
		return Result{Kind: Done}, true
	}
	switch et {
	case "done", "completed", "message_stop", "stop":
		return Result{Kind: Done}, true
	}
	if d := c.payload.Get("done"); d.Type == gjson.True {
		return Result{Kind: Done}, true
	}
	if c.payload.Get("status").String() == "completed" {
		return Result{Kind: Done}, true
	}
	if c.payload.Get("choices.0.finish_reason").String() == "stop" {
		return Result{Kind: Done}, true
	}
	return Result{}, false
}
