package upstream

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/coriolislabs/chatedge/pkg/chat"
)

// Payload is the outbound completions request body. Optional fields are
// pointers (or empty values) so they are omitted entirely rather than sent
// as zeros; several upstreams reject explicit nulls and zeros.
type Payload struct {
	Model    string         `json:"model"`
	Messages []chat.Message `json:"messages"`
	Stream   bool           `json:"stream"`

	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	// ReasoningEffort is sent to thinking-class models instead of the
	// sampling fields above; the two groups are mutually exclusive.
	ReasoningEffort string `json:"reasoning_effort,omitempty"`

	Tools []Tool `json:"tools,omitempty"`
}

// Tool is a native tool declaration attached for allowlisted models.
type Tool struct {
	Type string `json:"type"`
}

// WebSearchTool is the only native tool the proxy currently attaches.
var WebSearchTool = Tool{Type: "web_search"}

// Encode marshals the payload for the wire.
func (p Payload) Encode() ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return body, nil
}

// Blocking rewrites an encoded streaming payload into its non-streaming
// fallback twin: stream disabled and tools removed, everything else intact.
func Blocking(payload []byte) []byte {
	out, err := sjson.SetBytes(payload, "stream", false)
	if err != nil {
		return payload
	}
	if stripped, err := sjson.DeleteBytes(out, "tools"); err == nil {
		out = stripped
	}
	return out
}
