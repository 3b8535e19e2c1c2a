package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reagentlabs/reagent/pkg/protocol"
)

func captureJSON(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
	return body
}

func TestOpenAIRequestShape(t *testing.T) {
	var captured map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		captured = captureJSON(t, r)
		w.Write([]byte(`{
			"id": "chatcmpl-1", "model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "hi"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`))
	}))
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", WithOpenAIBaseURL(server.URL))
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	defer p.Close()

	resp, err := p.Complete(context.Background(), &protocol.Request{
		Model: "gpt-4o",
		Messages: []*protocol.Message{
			protocol.SystemMessage("be terse"),
			protocol.UserMessage("hello"),
			protocol.AssistantMessage("", &protocol.ToolCall{
				ID: "call_1", Name: "calculator", Arguments: `{"expression":"2+2"}`,
			}),
			protocol.ToolMessage("call_1", "calculator", "4"),
		},
		MaxTokens:  100,
		Tools:      []protocol.ToolDefinition{{Name: "calculator", Parameters: map[string]any{"type": "object"}}},
		ToolChoice: protocol.ToolChoiceAuto,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	messages := captured["messages"].([]any)
	if len(messages) != 4 {
		t.Fatalf("expected 4 wire messages, got %d", len(messages))
	}
	assistant := messages[2].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "calculator" || fn["arguments"] != `{"expression":"2+2"}` {
		t.Errorf("unexpected tool call encoding: %v", fn)
	}
	toolMsg := messages[3].(map[string]any)
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_1" {
		t.Errorf("unexpected tool message: %v", toolMsg)
	}

	if captured["tool_choice"] != "auto" {
		t.Errorf("unexpected tool_choice: %v", captured["tool_choice"])
	}
	if captured["temperature"] != protocol.DefaultTemperature {
		t.Errorf("unexpected temperature: %v", captured["temperature"])
	}
	if captured["max_tokens"] != 100.0 {
		t.Errorf("unexpected max_tokens: %v", captured["max_tokens"])
	}

	if resp.Message.Content != "hi" || resp.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 12 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
	if resp.Raw["id"] != "chatcmpl-1" {
		t.Error("raw body not preserved")
	}
}

func TestOpenAIUsageTotalFallback(t *testing.T) {
	resp, err := decodeChatResponse([]byte(`{
		"id": "chatcmpl-3", "model": "gpt-4o",
		"choices": [{"message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 15, "completion_tokens": 3}
	}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 18 {
		t.Errorf("total must fall back to prompt+completion, got %+v", resp.Usage)
	}
}

func TestOpenAIDecodesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "chatcmpl-2", "model": "gpt-4o",
			"choices": [{
				"message": {
					"role": "assistant", "content": null,
					"tool_calls": [{
						"id": "call_9", "type": "function",
						"function": {"name": "web_search", "arguments": "{\"query\":\"go\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("k", WithOpenAIBaseURL(server.URL))
	defer p.Close()

	resp, err := p.Complete(context.Background(), &protocol.Request{
		Model:    "gpt-4o",
		Messages: []*protocol.Message{protocol.UserMessage("search go")},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Message.Content != "" {
		t.Errorf("null content must decode to empty string, got %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(resp.Message.ToolCalls))
	}
	call := resp.Message.ToolCalls[0]
	if call.ID != "call_9" || call.Name != "web_search" {
		t.Errorf("unexpected call: %+v", call)
	}
	// Arguments stay exactly as the provider sent them.
	if call.Arguments != `{"query":"go"}` {
		t.Errorf("arguments not preserved verbatim: %v", call.Arguments)
	}
	args, err := call.ArgumentsMap()
	if err != nil || args["query"] != "go" {
		t.Errorf("arguments do not decode: %v %v", args, err)
	}
}

func TestOpenAINoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "x", "choices": []}`))
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("k", WithOpenAIBaseURL(server.URL))
	defer p.Close()

	_, err := p.Complete(context.Background(), &protocol.Request{
		Model:    "gpt-4o",
		Messages: []*protocol.Message{protocol.UserMessage("hi")},
	})
	if err == nil {
		t.Fatal("expected an error for a response with no choices")
	}
}

func TestOpenAIResponseFormat(t *testing.T) {
	so := &protocol.StructuredOutput{Name: "answer", Schema: map[string]any{"type": "object"}}

	p := &OpenAIProvider{}
	format := p.responseFormat("gpt-4o", so).(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("gpt-4 family must use json_schema, got %v", format["type"])
	}

	format = p.responseFormat("gpt-3.5-turbo", so).(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("legacy family must fall back to json_object, got %v", format["type"])
	}

	forced := &OpenAIProvider{jsonSchemaAlways: true}
	format = forced.responseFormat("gpt-3.5-turbo", so).(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("jsonSchemaAlways must win, got %v", format["type"])
	}
}

func TestOpenAIStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := captureJSON(t, r)
		if body["stream"] != true {
			t.Errorf("expected stream=true, got %v", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(
			"data: {\"id\":\"c1\",\"model\":\"gpt-4o\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
				"data: {\"id\":\"c1\",\"model\":\"gpt-4o\",\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
				"data: {\"id\":\"c1\",\"model\":\"gpt-4o\",\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("k", WithOpenAIBaseURL(server.URL))
	defer p.Close()

	ch, err := p.StreamComplete(context.Background(), &protocol.Request{
		Model:    "gpt-4o",
		Messages: []*protocol.Message{protocol.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("StreamComplete failed: %v", err)
	}

	var content string
	var finish string
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		if text, ok := chunk.Delta["content"].(string); ok {
			content += text
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	if content != "Hello" {
		t.Errorf("unexpected assembled content: %q", content)
	}
	if finish != "stop" {
		t.Errorf("unexpected finish reason: %q", finish)
	}
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(""); err == nil {
		t.Fatal("expected an error for a missing api key")
	}
}
