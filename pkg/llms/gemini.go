package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
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
// GEMINI PROVIDER — generateContent dialect
// ============================================================================

const GeminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var geminiModels = []string{
	"gemini-2.0-flash",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-pro",
}

// ----------------------------------------------------------------------------
// Wire types
// ----------------------------------------------------------------------------

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	Tools             []map[string]any `json:"tools,omitempty"`
	ToolConfig        map[string]any   `json:"toolConfig,omitempty"`
	GenerationConfig  map[string]any   `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	ResponseID string `json:"responseId"`
	Candidates []struct {
		Content struct {
			Role  string `json:"role"`
			Parts []struct {
				Text         string              `json:"text"`
				FunctionCall *geminiFunctionCall `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// ----------------------------------------------------------------------------
// Provider
// ----------------------------------------------------------------------------

// GeminiProvider speaks the Gemini generateContent dialect. Authentication
// rides on a query parameter, not a header, and streaming responses are
// newline-delimited JSON rather than SSE.
type GeminiProvider struct {
	apiKey string
	http   *httpclient.Client
}

type GeminiOption func(*geminiOptions)

type geminiOptions struct {
	baseURL string
	timeout time.Duration
}

func WithGeminiBaseURL(url string) GeminiOption {
	return func(o *geminiOptions) { o.baseURL = url }
}

func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(o *geminiOptions) { o.timeout = d }
}

// NewGeminiProvider creates a Gemini provider with an open HTTP scope.
func NewGeminiProvider(apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}

	options := &geminiOptions{
		baseURL: GeminiDefaultBaseURL,
		timeout: httpclient.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &GeminiProvider{
		apiKey: apiKey,
		http: httpclient.New(strings.TrimSuffix(options.baseURL, "/"),
			httpclient.WithTimeout(options.timeout),
		),
	}, nil
}

func (p *GeminiProvider) Name() string                   { return "gemini" }
func (p *GeminiProvider) SupportedModels() []string      { return geminiModels }
func (p *GeminiProvider) SupportsToolCalling() bool      { return true }
func (p *GeminiProvider) SupportsStructuredOutput() bool { return true }

func (p *GeminiProvider) Close() error {
	return p.http.Close()
}

func (p *GeminiProvider) endpoint(model, method string) string {
	return fmt.Sprintf("/models/%s:%s?key=%s", model, method, url.QueryEscape(p.apiKey))
}

// Complete performs one non-streaming completion.
func (p *GeminiProvider) Complete(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ctx, span := observability.Tracer().Start(ctx, "llm.complete",
		trace.WithAttributes(
			attribute.String("provider", "gemini"),
			attribute.String("model", req.Model),
		))
	defer span.End()

	start := time.Now()
	resp, err := p.complete(ctx, req)

	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	observability.GetMetrics().RecordLLMRequest(ctx, "gemini", req.Model, tokens, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tokens.total", tokens))
	return resp, nil
}

func (p *GeminiProvider) complete(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	payload := p.buildPayload(req)

	body, err := p.http.PostJSON(ctx, p.endpoint(req.Model, "generateContent"), payload, nil)
	if err != nil {
		return nil, err
	}

	return decodeGeminiResponse(body, req.Model)
}

// StreamComplete performs a streaming completion. The streaming endpoint
// emits newline-delimited JSON objects shaped like generateContent
// responses.
func (p *GeminiProvider) StreamComplete(ctx context.Context, req *protocol.Request) (<-chan protocol.StreamChunk, error) {
	payload := p.buildPayload(req)

	stream, err := p.http.PostJSONStream(ctx, p.endpoint(req.Model, "streamGenerateContent"), payload, nil)
	if err != nil {
		return nil, err
	}

	model := req.Model
	ch := make(chan protocol.StreamChunk, streamChannelBuffer)
	go func() {
		defer close(ch)
		defer stream.Close()

		err := httpclient.ScanJSONLines(stream, func(event map[string]any) bool {
			chunk, ok := geminiStreamChunk(event, model)
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

func (p *GeminiProvider) buildPayload(req *protocol.Request) *geminiRequest {
	system, contents := geminiContents(req.Messages)

	payload := &geminiRequest{Contents: contents}
	if system != "" {
		payload.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: system}},
		}
	}

	if len(req.Tools) > 0 {
		declarations := make([]geminiFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			declarations = append(declarations, geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		payload.Tools = []map[string]any{
			{"function_declarations": declarations},
		}

		if mode := geminiCallingMode(req.ToolChoice); mode != "" {
			payload.ToolConfig = map[string]any{
				"functionCallingConfig": map[string]any{"mode": mode},
			}
		}
	}

	generation := map[string]any{
		"temperature": req.EffectiveTemperature(),
	}
	if req.MaxTokens > 0 {
		generation["maxOutputTokens"] = req.MaxTokens
	}
	if req.TopP != nil {
		generation["topP"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		generation["stopSequences"] = req.Stop
	}
	if so := req.StructuredOutput; so != nil {
		generation["responseMimeType"] = "application/json"
		generation["responseSchema"] = so.Schema
	}
	payload.GenerationConfig = generation

	return payload
}

func geminiCallingMode(choice protocol.ToolChoice) string {
	switch choice {
	case protocol.ToolChoiceAuto:
		return "AUTO"
	case protocol.ToolChoiceRequired:
		return "ANY"
	case protocol.ToolChoiceNone:
		return "NONE"
	default:
		return ""
	}
}

func geminiContents(messages []*protocol.Message) (system string, contents []geminiContent) {
	var systemParts []string

	for _, msg := range messages {
		role := msg.Role.Normalize()

		switch {
		case role == protocol.RoleSystem:
			systemParts = append(systemParts, msg.Content)

		case role == protocol.RoleTool:
			contents = append(contents, geminiContent{
				Role: "function",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFunctionResponse{
						Name:     msg.Name,
						Response: map[string]any{"content": msg.Content},
					},
				}},
			})

		case len(msg.ToolCalls) > 0:
			var parts []geminiPart
			if msg.Content != "" {
				parts = append(parts, geminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args, err := tc.ArgumentsMap()
				if err != nil {
					args = map[string]any{}
				}
				parts = append(parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args},
				})
			}
			contents = append(contents, geminiContent{Role: "model", Parts: parts})

		case role == protocol.RoleAssistant:
			contents = append(contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: msg.Content}},
			})

		default:
			contents = append(contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}

	return strings.Join(systemParts, "\n\n"), contents
}

func decodeGeminiResponse(body []byte, model string) (*protocol.Response, error) {
	var wire geminiResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(wire.Candidates) == 0 {
		return nil, fmt.Errorf("response contains no candidates")
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	candidate := wire.Candidates[0]

	message := &protocol.Message{Role: protocol.RoleAssistant}
	var textParts []string
	callIndex := 0

	for _, part := range candidate.Content.Parts {
		if part.FunctionCall != nil {
			// Gemini does not assign call ids; a synthetic positional id
			// keeps the unified call/result pairing intact.
			message.ToolCalls = append(message.ToolCalls, &protocol.ToolCall{
				ID:        fmt.Sprintf("call_%d", callIndex),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
			callIndex++
			continue
		}
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}
	message.Content = strings.Join(textParts, "")

	resp := &protocol.Response{
		ID:           wire.ResponseID,
		Model:        model,
		Message:      message,
		FinishReason: strings.ToLower(candidate.FinishReason),
		Raw:          raw,
	}
	if wire.UsageMetadata != nil {
		resp.Usage = &protocol.Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.TotalTokenCount,
		}
		if resp.Usage.TotalTokens == 0 {
			resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
		}
	}
	return resp, nil
}

func geminiStreamChunk(event map[string]any, model string) (protocol.StreamChunk, bool) {
	candidates, ok := event["candidates"].([]any)
	if !ok || len(candidates) == 0 {
		return protocol.StreamChunk{}, false
	}
	candidate, ok := candidates[0].(map[string]any)
	if !ok {
		return protocol.StreamChunk{}, false
	}

	chunk := protocol.StreamChunk{Model: model}
	chunk.ID, _ = event["responseId"].(string)
	if reason, ok := candidate["finishReason"].(string); ok {
		chunk.FinishReason = strings.ToLower(reason)
	}

	if content, ok := candidate["content"].(map[string]any); ok {
		if parts, ok := content["parts"].([]any); ok {
			var text strings.Builder
			for _, raw := range parts {
				if part, ok := raw.(map[string]any); ok {
					if t, ok := part["text"].(string); ok {
						text.WriteString(t)
					}
				}
			}
			if text.Len() > 0 {
				chunk.Delta = map[string]any{"content": text.String()}
			}
		}
	}

	if chunk.Delta == nil && chunk.FinishReason == "" {
		return protocol.StreamChunk{}, false
	}
	return chunk, true
}
