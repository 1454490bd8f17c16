// Package chat holds the provider-agnostic conversation types shared by the
// proxy's HTTP surface and the upstream client. The proxy keeps no history:
// callers resend the full conversation each turn.
package chat

// Conversation roles. Ordering of messages is conversation order and is
// preserved end to end.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultGreeting is the user content substituted when a caller sends no
// user message at all, so the upstream always has something to answer.
const DefaultGreeting = "你好！/ Hello!"

// Message is a single conversation message. Immutable once sent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Normalize prepares an inbound message list for the upstream call:
//
//   - exactly one system message, first in the list; when the caller sends
//     none, systemPrompt is inserted, and extra system messages beyond the
//     first are dropped
//   - at least one user message; an empty conversation gets the default
//     greeting
//
// The relative order of non-system messages is preserved.
func Normalize(messages []Message, systemPrompt string) []Message {
	var system *Message
	rest := make([]Message, 0, len(messages)+2)

	for _, m := range messages {
		if m.Role == RoleSystem {
			if system == nil {
				sys := m
				system = &sys
			}
			continue
		}
		rest = append(rest, m)
	}

	if system == nil {
		system = &Message{Role: RoleSystem, Content: systemPrompt}
	}

	hasUser := false
	for _, m := range rest {
		if m.Role == RoleUser && m.Content != "" {
			hasUser = true
			break
		}
	}
	if !hasUser {
		rest = append(rest, Message{Role: RoleUser, Content: DefaultGreeting})
	}

	return append([]Message{*system}, rest...)
}
