package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reagentlabs/reagent/pkg/httpclient"
	"github.com/reagentlabs/reagent/pkg/observability"
	"github.com/reagentlabs/reagent/pkg/protocol"
)

// ============================================================================
// ANTHROPIC PROVIDER — messages dialect
// ============================================================================

const (
	AnthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"

	// anthropicDefaultMaxTokens applies when the request leaves MaxTokens
	// unset; the messages API rejects requests without it.
	anthropicDefaultMaxTokens = 4096
)

var anthropicModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// ----------------------------------------------------------------------------
// Wire types
// ----------------------------------------------------------------------------

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "tool_use"
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stop        []string           `json:"stop_sequences,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	ToolChoice  map[string]any     `json:"tool_choice,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ----------------------------------------------------------------------------
// Provider
// ----------------------------------------------------------------------------

// AnthropicProvider speaks the Anthropic messages dialect.
type AnthropicProvider struct {
	http *httpclient.Client
}

type AnthropicOption func(*anthropicOptions)

type anthropicOptions struct {
	baseURL string
	timeout time.Duration
}

func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(o *anthropicOptions) { o.baseURL = url }
}

func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(o *anthropicOptions) { o.timeout = d }
}

// NewAnthropicProvider creates an Anthropic provider with an open HTTP
// scope.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}

	options := &anthropicOptions{
		baseURL: AnthropicDefaultBaseURL,
		timeout: httpclient.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &AnthropicProvider{
		http: httpclient.New(strings.TrimSuffix(options.baseURL, "/"),
			httpclient.WithTimeout(options.timeout),
			httpclient.WithHeader("x-api-key", apiKey),
			httpclient.WithHeader("anthropic-version", anthropicVersion),
		),
	}, nil
}

func (p *AnthropicProvider) Name() string                   { return "anthropic" }
func (p *AnthropicProvider) SupportedModels() []string      { return anthropicModels }
func (p *AnthropicProvider) SupportsToolCalling() bool      { return true }
func (p *AnthropicProvider) SupportsStructuredOutput() bool { return true }

func (p *AnthropicProvider) Close() error {
	return p.http.Close()
}

// Complete performs one non-streaming completion.
func (p *AnthropicProvider) Complete(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ctx, span := observability.Tracer().Start(ctx, "llm.complete",
		trace.WithAttributes(
			attribute.String("provider", "anthropic"),
			attribute.String("model", req.Model),
		))
	defer span.End()

	start := time.Now()
	resp, err := p.complete(ctx, req)

	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	observability.GetMetrics().RecordLLMRequest(ctx, "anthropic", req.Model, tokens, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tokens.total", tokens))
	return resp, nil
}

func (p *AnthropicProvider) complete(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	payload, err := p.buildPayload(req, false)
	if err != nil {
		return nil, err
	}

	body, err := p.http.PostJSON(ctx, "/v1/messages", payload, nil)
	if err != nil {
		return nil, err
	}

	return decodeAnthropicResponse(body, req.StructuredOutput)
}

// StreamComplete performs a streaming completion over SSE. Text deltas
// arrive as content_block_delta events; message_stop closes the stream
// with finish_reason "stop". Tool-use deltas are not reassembled here.
func (p *AnthropicProvider) StreamComplete(ctx context.Context, req *protocol.Request) (<-chan protocol.StreamChunk, error) {
	payload, err := p.buildPayload(req, true)
	if err != nil {
		return nil, err
	}

	stream, err := p.http.PostJSONStream(ctx, "/v1/messages", payload, nil)
	if err != nil {
		return nil, err
	}

	ch := make(chan protocol.StreamChunk, streamChannelBuffer)
	go func() {
		defer close(ch)
		defer stream.Close()

		var messageID, model string

		err := httpclient.ScanSSE(stream, func(event map[string]any) bool {
			eventType, _ := event["type"].(string)

			var chunk protocol.StreamChunk
			switch eventType {
			case "message_start":
				if msg, ok := event["message"].(map[string]any); ok {
					messageID, _ = msg["id"].(string)
					model, _ = msg["model"].(string)
				}
				return true
			case "content_block_delta":
				delta, _ := event["delta"].(map[string]any)
				text, _ := delta["text"].(string)
				if text == "" {
					return true
				}
				chunk = protocol.StreamChunk{
					ID:    messageID,
					Model: model,
					Delta: map[string]any{"content": text},
				}
			case "message_stop":
				chunk = protocol.StreamChunk{
					ID:           messageID,
					Model:        model,
					FinishReason: "stop",
				}
			default:
				return true
			}

			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			ch <- protocol.StreamChunk{Err: fmt.Errorf("reading stream: %w", err)}
		}
	}()

	return ch, nil
}

// ----------------------------------------------------------------------------
// Codec
// ----------------------------------------------------------------------------

func (p *AnthropicProvider) buildPayload(req *protocol.Request, stream bool) (*anthropicRequest, error) {
	system, messages, err := anthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	payload := &anthropicRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.EffectiveTemperature(),
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}

	// tool_choice "none" has no messages-API equivalent: the tools are
	// simply not offered.
	if len(req.Tools) > 0 && req.ToolChoice != protocol.ToolChoiceNone {
		for _, t := range req.Tools {
			payload.Tools = append(payload.Tools, anthropicTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.Parameters,
			})
		}
		switch req.ToolChoice {
		case protocol.ToolChoiceRequired:
			payload.ToolChoice = map[string]any{"type": "any"}
		case protocol.ToolChoiceAuto:
			payload.ToolChoice = map[string]any{"type": "auto"}
		}
	}

	// Structured output rides on tool use: one synthetic tool carries the
	// schema and the model is forced to call it.
	if so := req.StructuredOutput; so != nil {
		payload.Tools = append(payload.Tools, anthropicTool{
			Name:        so.Name,
			Description: so.Description,
			InputSchema: so.Schema,
		})
		payload.ToolChoice = map[string]any{"type": "tool", "name": so.Name}
	}

	return payload, nil
}

func anthropicMessages(messages []*protocol.Message) (system string, out []anthropicMessage, err error) {
	var systemParts []string

	for _, msg := range messages {
		role := msg.Role.Normalize()

		switch {
		case role == protocol.RoleSystem:
			systemParts = append(systemParts, msg.Content)

		case role == protocol.RoleTool:
			out = append(out, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})

		case len(msg.ToolCalls) > 0:
			var blocks []anthropicContentBlock
			if msg.Content != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input, err := tc.ArgumentsMap()
				if err != nil {
					return "", nil, fmt.Errorf("tool call %s: %w", tc.ID, err)
				}
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: blocks})

		default:
			out = append(out, anthropicMessage{Role: string(role), Content: msg.Content})
		}
	}

	return strings.Join(systemParts, "\n\n"), out, nil
}

func decodeAnthropicResponse(body []byte, so *protocol.StructuredOutput) (*protocol.Response, error) {
	var wire anthropicResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	message := &protocol.Message{Role: protocol.RoleAssistant}
	var textParts []string

	for _, block := range wire.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			// The forced structured-output tool is unwrapped back into
			// content rather than surfaced as a call.
			if so != nil && block.Name == so.Name {
				data, err := json.Marshal(block.Input)
				if err != nil {
					return nil, fmt.Errorf("encoding structured output: %w", err)
				}
				textParts = append(textParts, string(data))
				continue
			}
			message.ToolCalls = append(message.ToolCalls, &protocol.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	message.Content = strings.Join(textParts, "")

	resp := &protocol.Response{
		ID:           wire.ID,
		Model:        wire.Model,
		Message:      message,
		FinishReason: wire.StopReason,
		Raw:          raw,
	}
	if wire.Usage != nil {
		resp.Usage = &protocol.Usage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
		}
	}
	return resp, nil
}
