package llms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reagentlabs/reagent/pkg/protocol"
)

func TestAnthropicRequestShape(t *testing.T) {
	var captured map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header: %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("unexpected version header: %q", got)
		}
		captured = captureJSON(t, r)
		w.Write([]byte(`{
			"id": "msg_1", "model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	p, err := NewAnthropicProvider("test-key", WithAnthropicBaseURL(server.URL))
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	defer p.Close()

	resp, err := p.Complete(context.Background(), &protocol.Request{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []*protocol.Message{
			protocol.SystemMessage("one"),
			protocol.SystemMessage("two"),
			protocol.UserMessage("hi"),
			protocol.AssistantMessage("", &protocol.ToolCall{
				ID: "toolu_1", Name: "calculator", Arguments: `{"expression":"1+1"}`,
			}),
			protocol.ToolMessage("toolu_1", "calculator", "2"),
		},
		Tools:      []protocol.ToolDefinition{{Name: "calculator", Parameters: map[string]any{"type": "object"}}},
		ToolChoice: protocol.ToolChoiceAuto,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// System messages fold into the top-level field, joined by blank lines.
	if captured["system"] != "one\n\ntwo" {
		t.Errorf("unexpected system field: %v", captured["system"])
	}
	// max_tokens is mandatory in this dialect; the default fills it.
	if captured["max_tokens"] != float64(anthropicDefaultMaxTokens) {
		t.Errorf("unexpected max_tokens: %v", captured["max_tokens"])
	}

	messages := captured["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(messages))
	}
	assistant := messages[1].(map[string]any)
	blocks := assistant["content"].([]any)
	toolUse := blocks[0].(map[string]any)
	if toolUse["type"] != "tool_use" || toolUse["name"] != "calculator" {
		t.Errorf("unexpected tool_use block: %v", toolUse)
	}
	input := toolUse["input"].(map[string]any)
	if input["expression"] != "1+1" {
		t.Errorf("arguments must decode into input: %v", input)
	}

	// Tool results come back as user messages carrying tool_result blocks.
	toolResult := messages[2].(map[string]any)
	if toolResult["role"] != "user" {
		t.Errorf("unexpected tool result role: %v", toolResult["role"])
	}
	block := toolResult["content"].([]any)[0].(map[string]any)
	if block["type"] != "tool_result" || block["tool_use_id"] != "toolu_1" || block["content"] != "2" {
		t.Errorf("unexpected tool_result block: %v", block)
	}

	choice := captured["tool_choice"].(map[string]any)
	if choice["type"] != "auto" {
		t.Errorf("unexpected tool_choice: %v", choice)
	}

	if resp.Message.Content != "hello" || resp.FinishReason != "end_turn" {
		t.Errorf("unexpected response: %+v", resp.Message)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 25 {
		t.Errorf("usage must sum input and output tokens: %+v", resp.Usage)
	}
}

func TestAnthropicToolChoiceMapping(t *testing.T) {
	p := &AnthropicProvider{}
	tools := []protocol.ToolDefinition{{Name: "t", Parameters: map[string]any{"type": "object"}}}

	payload, err := p.buildPayload(&protocol.Request{
		Messages:   []*protocol.Message{protocol.UserMessage("x")},
		Tools:      tools,
		ToolChoice: protocol.ToolChoiceRequired,
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if payload.ToolChoice["type"] != "any" {
		t.Errorf("required must map to any, got %v", payload.ToolChoice)
	}

	// tool_choice none drops the tools entirely.
	payload, err = p.buildPayload(&protocol.Request{
		Messages:   []*protocol.Message{protocol.UserMessage("x")},
		Tools:      tools,
		ToolChoice: protocol.ToolChoiceNone,
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload.Tools) != 0 || payload.ToolChoice != nil {
		t.Errorf("none must omit tools, got %+v", payload)
	}
}

func TestAnthropicStructuredOutputForcesTool(t *testing.T) {
	p := &AnthropicProvider{}
	so := &protocol.StructuredOutput{
		Name:   "report",
		Schema: map[string]any{"type": "object"},
	}

	payload, err := p.buildPayload(&protocol.Request{
		Messages:         []*protocol.Message{protocol.UserMessage("x")},
		StructuredOutput: so,
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(payload.Tools) != 1 || payload.Tools[0].Name != "report" {
		t.Fatalf("expected the synthetic tool, got %+v", payload.Tools)
	}
	if payload.ToolChoice["type"] != "tool" || payload.ToolChoice["name"] != "report" {
		t.Errorf("expected a forced tool choice, got %v", payload.ToolChoice)
	}
}

func TestAnthropicDecodesToolUseAndStructuredOutput(t *testing.T) {
	body := []byte(`{
		"id": "msg_2", "model": "claude-3-5-sonnet-20241022",
		"content": [
			{"type": "text", "text": "Working on it. "},
			{"type": "tool_use", "id": "toolu_9", "name": "calculator", "input": {"expression": "6*7"}}
		],
		"stop_reason": "tool_use"
	}`)

	resp, err := decodeAnthropicResponse(body, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(resp.Message.ToolCalls))
	}
	call := resp.Message.ToolCalls[0]
	if call.ID != "toolu_9" || call.Name != "calculator" {
		t.Errorf("unexpected call: %+v", call)
	}
	args, _ := call.ArgumentsMap()
	if args["expression"] != "6*7" {
		t.Errorf("unexpected arguments: %v", args)
	}

	// With a structured-output spec, the forced tool's input unwraps into
	// content instead of surfacing as a call.
	soBody := []byte(`{
		"id": "msg_3", "model": "claude-3-5-sonnet-20241022",
		"content": [{"type": "tool_use", "id": "toolu_10", "name": "report", "input": {"answer": 42}}],
		"stop_reason": "tool_use"
	}`)
	resp, err = decodeAnthropicResponse(soBody, &protocol.StructuredOutput{Name: "report"})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Message.ToolCalls) != 0 {
		t.Errorf("forced tool must not surface as a call: %+v", resp.Message.ToolCalls)
	}
	if resp.Message.Content != `{"answer":42}` {
		t.Errorf("unexpected unwrapped content: %q", resp.Message.Content)
	}
}

func TestAnthropicStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(
			"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_s\",\"model\":\"claude-3-5-haiku-20241022\"}}\n\n" +
				"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi \"}}\n\n" +
				"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"there\"}}\n\n" +
				"data: {\"type\":\"message_stop\"}\n\n"))
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider("k", WithAnthropicBaseURL(server.URL))
	defer p.Close()

	ch, err := p.StreamComplete(context.Background(), &protocol.Request{
		Model:    "claude-3-5-haiku-20241022",
		Messages: []*protocol.Message{protocol.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("StreamComplete failed: %v", err)
	}

	var content, finish, id string
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		if text, ok := chunk.Delta["content"].(string); ok {
			content += text
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
			id = chunk.ID
		}
	}

	if content != "Hi there" {
		t.Errorf("unexpected content: %q", content)
	}
	if finish != "stop" || id != "msg_s" {
		t.Errorf("unexpected terminal chunk: finish=%q id=%q", finish, id)
	}
}
