package reasoning

import (
	"fmt"
	"strings"
	"testing"

	"github.com/reagentlabs/reagent/pkg/protocol"
	"github.com/reagentlabs/reagent/pkg/tools"
)

func TestSystemMessagePinnedAndReplaced(t *testing.T) {
	c := NewConversation(0, 0)
	c.AddUserMessage("hi")
	c.SetSystemMessage("first")
	c.SetSystemMessage("second")

	messages := c.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != protocol.RoleSystem || messages[0].Content != "second" {
		t.Errorf("system message must be replaced and pinned first: %+v", messages[0])
	}
	if messages[1].Content != "hi" {
		t.Errorf("user message lost: %+v", messages[1])
	}
}

func TestTrimByMessageCount(t *testing.T) {
	c := NewConversation(3, 0)
	c.SetSystemMessage("sys")
	for i := 0; i < 6; i++ {
		c.AddUserMessage(fmt.Sprintf("msg-%d", i))
	}

	messages := c.Messages()
	if len(messages) != 4 {
		t.Fatalf("expected system + 3 messages, got %d", len(messages))
	}
	if messages[0].Role != protocol.RoleSystem {
		t.Error("system message must survive trimming")
	}
	if messages[1].Content != "msg-3" || messages[3].Content != "msg-5" {
		t.Errorf("expected the newest messages kept, got %v", messages)
	}
}

func TestTrimByTokenBudget(t *testing.T) {
	c := NewConversation(0, 30)
	c.SetSystemMessage("sys")
	c.AddUserMessage(strings.Repeat("a", 400)) // ~100 tokens, over budget alone
	c.AddUserMessage("short")

	messages := c.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected the long message trimmed, got %d messages", len(messages))
	}
	if messages[1].Content != "short" {
		t.Errorf("expected the newest message kept, got %q", messages[1].Content)
	}

	// The token trim never drops the last remaining message, even when it
	// alone exceeds the budget.
	c2 := NewConversation(0, 10)
	c2.AddUserMessage(strings.Repeat("b", 400))
	if c2.Len() != 1 {
		t.Errorf("last message must survive, got %d", c2.Len())
	}
}

func TestEstimateCountsToolCalls(t *testing.T) {
	c := NewConversation(0, 0)
	c.AddAssistantMessage("", []*protocol.ToolCall{
		{ID: "1", Name: "calculator", Arguments: `{"expression":"2+2"}`},
	})

	if c.EstimateTokens() == 0 {
		t.Error("tool calls must contribute to the estimate")
	}
}

func TestPendingToolCalls(t *testing.T) {
	c := NewConversation(0, 0)
	c.AddUserMessage("task")
	c.AddAssistantMessage("", []*protocol.ToolCall{
		{ID: "call_1", Name: "calculator"},
		{ID: "call_2", Name: "web_search"},
	})

	pending := c.PendingToolCalls()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending calls, got %d", len(pending))
	}

	c.AddToolResult("call_1", "calculator", "4")
	pending = c.PendingToolCalls()
	if len(pending) != 1 || pending[0].ID != "call_2" {
		t.Fatalf("expected only call_2 pending, got %+v", pending)
	}

	c.AddToolResult("call_2", "web_search", "results")
	if pending := c.PendingToolCalls(); len(pending) != 0 {
		t.Errorf("expected no pending calls, got %+v", pending)
	}
}

func TestClear(t *testing.T) {
	c := NewConversation(0, 0)
	c.SetSystemMessage("sys")
	c.AddUserMessage("hi")

	c.Clear(true)
	if c.Len() != 1 || c.Messages()[0].Role != protocol.RoleSystem {
		t.Errorf("expected only the system message, got %v", c.Messages())
	}

	c.Clear(false)
	if c.Len() != 0 {
		t.Errorf("expected an empty window, got %d", c.Len())
	}
}

func TestFormatToolResultForLLM(t *testing.T) {
	ok := FormatToolResultForLLM("calculator", tools.Succeed("4", nil))
	if ok != "Tool 'calculator' executed successfully.\nResult: 4" {
		t.Errorf("unexpected observation: %q", ok)
	}

	failed := FormatToolResultForLLM("calculator", tools.Fail("division by zero"))
	if failed != "Tool 'calculator' failed.\nError: division by zero" {
		t.Errorf("unexpected observation: %q", failed)
	}
}

func TestExtractFinalAnswer(t *testing.T) {
	phrases := DefaultStopPhrases()

	cases := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"simple", "Final Answer: 42", "42", true},
		{"case insensitive", "final answer: yes", "yes", true},
		{"uppercase phrase", "FINAL ANSWER: done", "done", true},
		{"with preamble", "Let me think.\nFinal Answer: the result is 7", "the result is 7", true},
		{"last occurrence wins", "Final Answer: draft\nFinal Answer: final", "final", true},
		{"leading dash", "Final Answer: - 42", "42", true},
		{"leading colon", "Final Answer:: 42", "42", true},
		{"em dash separator", "Final Answer: — 42", "42", true},
		{"chinese full phrase", "思考完毕。最终答案：42", "42", true},
		{"chinese short phrase", "答案：东京", "东京", true},
		{"fullwidth colon separator", "最终答案：：42", "42", true},
		{"no phrase", "still thinking about it", "", false},
		{"phrase with empty answer", "Final Answer:", "", false},
		{"phrase with only separators", "Final Answer: -", "", false},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractFinalAnswer(tt.text, phrases)
			if found != tt.found || got != tt.want {
				t.Errorf("got (%q, %t), want (%q, %t)", got, found, tt.want, tt.found)
			}
		})
	}
}

func TestReactSystemPrompt(t *testing.T) {
	prompt := ReactSystemPrompt([]string{"calculator", "web_search"})
	if !strings.Contains(prompt, "calculator, web_search") {
		t.Error("prompt must list the tools")
	}
	if !strings.Contains(prompt, "Final Answer:") {
		t.Error("prompt must teach the stop phrase")
	}

	bare := ReactSystemPrompt(nil)
	if strings.Contains(bare, "Available tools") {
		t.Error("no tool list without tools")
	}
}
