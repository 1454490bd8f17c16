// Package stream produces the outgoing text/event-stream for the browser
// client. Every upstream event that survives classification is translated
// into exactly one outgoing chunk (or filtered), and the Writer guarantees
// the stream always ends with exactly one terminal chunk followed by a
// single [DONE] marker, no matter how many completion signals arrive.
package stream

// doneMarker is the literal frame that closes every outgoing stream.
const doneMarker = "[DONE]"

// Chunk is the normalized unit sent to the client, encoded as the JSON of a
// chat-completions streaming chunk. The fixed index lets the client append
// every delta into a single growing message.
type Chunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice carries one delta. FinishReason is null until the terminal chunk,
// which carries "stop".
type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental payload of a chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ErrorChunk is the raw error envelope delivered inside the stream when the
// upstream fails after the response headers have already been sent.
type ErrorChunk struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the inner error body of an ErrorChunk.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}
