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
// OPENAI PROVIDER — chat-completions dialect
// ============================================================================
//
// The same codec serves any OpenAI-compatible backend; the Grok provider
// reuses it against a different host (see grok.go).

const OpenAIDefaultBaseURL = "https://api.openai.com/v1"

var openAIModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-3.5-turbo",
}

// ----------------------------------------------------------------------------
// Wire types
// ----------------------------------------------------------------------------

type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string          `json:"type"`
	Function chatFunctionDef `json:"function"`
}

type chatFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	TopP           *float64      `json:"top_p,omitempty"`
	Stop           []string      `json:"stop,omitempty"`
	Stream         bool          `json:"stream,omitempty"`
	Tools          []chatTool    `json:"tools,omitempty"`
	ToolChoice     string        `json:"tool_choice,omitempty"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string         `json:"role"`
			Content   *string        `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ----------------------------------------------------------------------------
// Provider
// ----------------------------------------------------------------------------

// OpenAIProvider speaks the chat-completions dialect.
type OpenAIProvider struct {
	name   string
	models []string
	http   *httpclient.Client

	// jsonSchemaAlways forces response_format type json_schema regardless
	// of model family. The stock OpenAI backend only honors json_schema on
	// the gpt-4 family and gets json_object elsewhere.
	jsonSchemaAlways bool
}

type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	baseURL string
	timeout time.Duration
}

// WithOpenAIBaseURL overrides the API endpoint.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) { o.baseURL = url }
}

// WithOpenAITimeout sets the per-request timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(o *openAIOptions) { o.timeout = d }
}

// NewOpenAIProvider creates an OpenAI provider with an open HTTP scope.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}

	options := &openAIOptions{
		baseURL: OpenAIDefaultBaseURL,
		timeout: httpclient.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &OpenAIProvider{
		name:   "openai",
		models: openAIModels,
		http: httpclient.New(strings.TrimSuffix(options.baseURL, "/"),
			httpclient.WithTimeout(options.timeout),
			httpclient.WithHeader("Authorization", "Bearer "+apiKey),
		),
	}, nil
}

func (p *OpenAIProvider) Name() string                   { return p.name }
func (p *OpenAIProvider) SupportedModels() []string      { return p.models }
func (p *OpenAIProvider) SupportsToolCalling() bool      { return true }
func (p *OpenAIProvider) SupportsStructuredOutput() bool { return true }

func (p *OpenAIProvider) Close() error {
	return p.http.Close()
}

// Complete performs one non-streaming completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ctx, span := observability.Tracer().Start(ctx, "llm.complete",
		trace.WithAttributes(
			attribute.String("provider", p.name),
			attribute.String("model", req.Model),
		))
	defer span.End()

	start := time.Now()
	resp, err := p.complete(ctx, req)

	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	observability.GetMetrics().RecordLLMRequest(ctx, p.name, req.Model, tokens, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tokens.total", tokens))
	return resp, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	payload := p.buildPayload(req, false)

	body, err := p.http.PostJSON(ctx, "/chat/completions", payload, nil)
	if err != nil {
		return nil, err
	}

	return decodeChatResponse(body)
}

// StreamComplete performs a streaming completion over SSE.
func (p *OpenAIProvider) StreamComplete(ctx context.Context, req *protocol.Request) (<-chan protocol.StreamChunk, error) {
	payload := p.buildPayload(req, true)

	stream, err := p.http.PostJSONStream(ctx, "/chat/completions", payload, nil)
	if err != nil {
		return nil, err
	}

	ch := make(chan protocol.StreamChunk, streamChannelBuffer)
	go func() {
		defer close(ch)
		defer stream.Close()

		err := httpclient.ScanSSE(stream, func(event map[string]any) bool {
			chunk, ok := chatStreamChunk(event)
			if !ok {
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

func (p *OpenAIProvider) buildPayload(req *protocol.Request, stream bool) *chatRequest {
	payload := &chatRequest{
		Model:       req.Model,
		Messages:    chatMessages(req.Messages),
		Temperature: req.EffectiveTemperature(),
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream || req.Stream,
	}

	if len(req.Tools) > 0 {
		payload.Tools = chatTools(req.Tools)
		if req.ToolChoice != "" {
			payload.ToolChoice = string(req.ToolChoice)
		}
	}

	if so := req.StructuredOutput; so != nil {
		payload.ResponseFormat = p.responseFormat(req.Model, so)
	}

	return payload
}

func (p *OpenAIProvider) responseFormat(model string, so *protocol.StructuredOutput) any {
	if p.jsonSchemaAlways || strings.HasPrefix(model, "gpt-4") {
		return map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":        so.Name,
				"description": so.Description,
				"schema":      so.Schema,
				"strict":      so.Strict,
			},
		}
	}
	// Older model families only support plain JSON mode.
	return map[string]any{"type": "json_object"}
}

func chatMessages(messages []*protocol.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role.Normalize()

		switch {
		case role == protocol.RoleTool:
			out = append(out, chatMessage{
				Role:       "tool",
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case len(msg.ToolCalls) > 0:
			m := chatMessage{Role: "assistant"}
			if msg.Content != "" {
				m.Content = msg.Content
			}
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, chatToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: chatFunctionCall{
						Name:      tc.Name,
						Arguments: tc.ArgumentsJSON(),
					},
				})
			}
			out = append(out, m)
		default:
			out = append(out, chatMessage{
				Role:    string(role),
				Content: msg.Content,
			})
		}
	}
	return out
}

func chatTools(tools []protocol.ToolDefinition) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func decodeChatResponse(body []byte) (*protocol.Response, error) {
	var wire chatResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	choice := wire.Choices[0]

	message := &protocol.Message{Role: protocol.RoleAssistant}
	if choice.Message.Content != nil {
		message.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		message.ToolCalls = append(message.ToolCalls, &protocol.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	resp := &protocol.Response{
		ID:           wire.ID,
		Model:        wire.Model,
		Message:      message,
		FinishReason: choice.FinishReason,
		Raw:          raw,
	}
	if wire.Usage != nil {
		resp.Usage = &protocol.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
		// Some compatible backends omit the total.
		if resp.Usage.TotalTokens == 0 {
			resp.Usage.TotalTokens = wire.Usage.PromptTokens + wire.Usage.CompletionTokens
		}
	}
	return resp, nil
}

// chatStreamChunk converts one SSE event into a unified chunk. Events
// without choices (e.g. usage-only frames) are skipped.
func chatStreamChunk(event map[string]any) (protocol.StreamChunk, bool) {
	choices, ok := event["choices"].([]any)
	if !ok || len(choices) == 0 {
		return protocol.StreamChunk{}, false
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return protocol.StreamChunk{}, false
	}

	chunk := protocol.StreamChunk{}
	chunk.ID, _ = event["id"].(string)
	chunk.Model, _ = event["model"].(string)
	chunk.Delta, _ = choice["delta"].(map[string]any)
	chunk.FinishReason, _ = choice["finish_reason"].(string)
	return chunk, true
}
