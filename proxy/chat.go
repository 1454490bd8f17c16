package proxy

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/coriolislabs/chatedge/pkg/chat"
	"github.com/coriolislabs/chatedge/pkg/upstream"
)

// reasoningModelPattern identifies thinking-class models, which reject
// sampling parameters and take a reasoning-effort hint instead.
var reasoningModelPattern = regexp.MustCompile(`(?i)^(o[1-9]|gpt-5)|thinking|reasoner`)

// nativeToolModelPrefixes is the allowlist of model families known to accept
// the native web-search tool declaration.
var nativeToolModelPrefixes = []string{"gpt-4o", "gpt-4.1", "gpt-5"}

// chatRequest is the inbound POST body.
type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

// requestConfig is the per-request view of the configuration: environment
// defaults layered under client query parameters, resolved once and passed
// explicitly down the pipeline.
type requestConfig struct {
	Model     string
	MaxTokens int

	// Sampling fields; mutually exclusive with ReasoningEffort based on the
	// model-name pattern test.
	Temperature *float64
	TopP        *float64
	Seed        *int

	ReasoningEffort string
	Tools           []upstream.Tool
	DebugEvents     bool
}

// handleChatGet is the single-turn debug entry: builds a system + user pair
// from the q parameter.
func (p *Proxy) handleChatGet(c *fiber.Ctx) error {
	var messages []chat.Message
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		messages = []chat.Message{{Role: chat.RoleUser, Content: q}}
	}
	return p.serveChat(c, messages)
}

// handleChatPost is the standard entry. A malformed JSON body is a
// synchronous 400; no stream is ever opened for it.
func (p *Proxy) handleChatPost(c *fiber.Ctx) error {
	var req chatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed JSON body: "+err.Error())
	}
	return p.serveChat(c, req.Messages)
}

// serveChat normalizes the conversation, resolves the request configuration,
// and opens the outgoing stream immediately so the client receives response
// headers without waiting on the upstream round trip. The pump then drives
// the upstream call asynchronously into the already-open stream.
func (p *Proxy) serveChat(c *fiber.Ctx, messages []chat.Message) error {
	messages = chat.Normalize(messages, p.settings.SystemPrompt)
	rc := p.resolveRequestConfig(c)

	payload, err := rc.payload(messages)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	// mode=json forces a blocking debug response instead of a stream.
	if c.Query("mode") == "json" {
		ctx, cancel := context.WithTimeout(context.Background(), p.settings.OverallTimeout)
		defer cancel()

		text, err := p.client.Complete(ctx, upstream.Blocking(payload))
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(fiber.Map{"response": text, "done": true})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// The pump runs detached from the fasthttp request context, which is
	// recycled once this handler returns. Client disconnects surface as
	// write failures on the pipe, which cancel the pump's context and with
	// it any in-flight upstream read.
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	go p.pump(ctx, cancel, pw, payload, rc)

	// Unknown size (-1) keeps the response chunked; each pipe write is
	// flushed to the socket, giving true per-chunk streaming with
	// backpressure.
	c.Context().SetBodyStream(pr, -1)
	return nil
}

// resolveRequestConfig layers recognized query parameters over the
// environment defaults. Unparseable values are ignored rather than rejected:
// the stream is already promised to the client at this point.
func (p *Proxy) resolveRequestConfig(c *fiber.Ctx) requestConfig {
	s := p.settings
	rc := requestConfig{
		Model:       s.Model,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		TopP:        s.TopP,
		Seed:        s.Seed,
		DebugEvents: s.DebugEvents,
	}

	if m := strings.TrimSpace(c.Query("model")); m != "" {
		rc.Model = m
	}
	if v := queryInt(c, "max_tokens", "max_output_tokens"); v != nil {
		rc.MaxTokens = *v
	}
	if v := queryFloat(c, "temperature"); v != nil {
		rc.Temperature = v
	}
	if v := queryFloat(c, "top_p"); v != nil {
		rc.TopP = v
	}
	if v := queryInt(c, "seed"); v != nil {
		rc.Seed = v
	}

	// Sampling and reasoning fields are mutually exclusive: thinking-class
	// models reject temperature/top_p outright.
	if reasoningModelPattern.MatchString(rc.Model) {
		rc.Temperature = nil
		rc.TopP = nil
		rc.ReasoningEffort = s.ReasoningEffort
	}

	if s.NativeTools && supportsNativeTools(rc.Model) {
		rc.Tools = []upstream.Tool{upstream.WebSearchTool}
	}

	return rc
}

// payload builds the streaming upstream request body for this configuration.
func (rc requestConfig) payload(messages []chat.Message) ([]byte, error) {
	return upstream.Payload{
		Model:           rc.Model,
		Messages:        messages,
		Stream:          true,
		MaxTokens:       rc.MaxTokens,
		Temperature:     rc.Temperature,
		TopP:            rc.TopP,
		Seed:            rc.Seed,
		ReasoningEffort: rc.ReasoningEffort,
		Tools:           rc.Tools,
	}.Encode()
}

func supportsNativeTools(model string) bool {
	for _, prefix := range nativeToolModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func queryFloat(c *fiber.Ctx, key string) *float64 {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func queryInt(c *fiber.Ctx, keys ...string) *int {
	for _, key := range keys {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		return &n
	}
	return nil
}
