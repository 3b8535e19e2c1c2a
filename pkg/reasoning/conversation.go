package reasoning

import (
	"fmt"
	"strings"
	"sync"

	"github.com/reagentlabs/reagent/pkg/protocol"
	"github.com/reagentlabs/reagent/pkg/tools"
)

// Conversation maintains the message window fed to the provider. At most
// one system message exists and it is pinned at index 0; every append
// trims the rest of the window against the message and token budgets,
// oldest first.
type Conversation struct {
	mu          sync.Mutex
	messages    []*protocol.Message
	maxMessages int
	maxTokens   int
	estimate    Estimator
}

// NewConversation creates a conversation with the given budgets. Zero
// budgets disable the corresponding trim.
func NewConversation(maxMessages, maxTokens int) *Conversation {
	return &Conversation{
		maxMessages: maxMessages,
		maxTokens:   maxTokens,
		estimate:    HeuristicEstimator,
	}
}

// SetEstimator swaps the token estimator.
func (c *Conversation) SetEstimator(e Estimator) {
	if e == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimate = e
}

// SetSystemMessage replaces any existing system message and pins the new
// one at index 0.
func (c *Conversation) SetSystemMessage(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rest := make([]*protocol.Message, 0, len(c.messages))
	for _, msg := range c.messages {
		if msg.Role != protocol.RoleSystem {
			rest = append(rest, msg)
		}
	}

	c.messages = append([]*protocol.Message{protocol.SystemMessage(content)}, rest...)
}

// AddUserMessage appends a user message.
func (c *Conversation) AddUserMessage(content string) {
	c.add(protocol.UserMessage(content))
}

// AddAssistantMessage appends an assistant message, tool calls included.
func (c *Conversation) AddAssistantMessage(content string, toolCalls []*protocol.ToolCall) {
	c.add(protocol.AssistantMessage(content, toolCalls...))
}

// AddToolResult appends a tool message answering a tool call.
func (c *Conversation) AddToolResult(toolCallID, toolName, content string) {
	c.add(protocol.ToolMessage(toolCallID, toolName, content))
}

func (c *Conversation) add(msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.trim()
}

// trim drops the oldest non-system messages until both budgets hold. The
// system message never trims, and at least one non-system message always
// survives the token trim.
func (c *Conversation) trim() {
	var system []*protocol.Message
	var rest []*protocol.Message
	for _, msg := range c.messages {
		if msg.Role == protocol.RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	if c.maxMessages > 0 && len(rest) > c.maxMessages {
		rest = rest[len(rest)-c.maxMessages:]
	}

	if c.maxTokens > 0 {
		for len(rest) > 1 && c.estimateAll(system, rest) > c.maxTokens {
			rest = rest[1:]
		}
	}

	c.messages = append(system, rest...)
}

func (c *Conversation) estimateAll(groups ...[]*protocol.Message) int {
	total := 0
	for _, group := range groups {
		for _, msg := range group {
			total += c.estimateMessage(msg)
		}
	}
	return total
}

func (c *Conversation) estimateMessage(msg *protocol.Message) int {
	total := c.estimate(msg.Content)
	for _, tc := range msg.ToolCalls {
		total += c.estimate(tc.Name)
		total += c.estimate(tc.ArgumentsJSON())
	}
	return total
}

// Messages returns a snapshot of the current window.
func (c *Conversation) Messages() []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*protocol.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the window.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// EstimateTokens returns the estimated token count of the whole window.
func (c *Conversation) EstimateTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimateAll(c.messages)
}

// PendingToolCalls returns the last assistant message's tool calls that
// have no matching tool message after it.
func (c *Conversation) PendingToolCalls() []*protocol.ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	lastAssistant := -1
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == protocol.RoleAssistant {
			lastAssistant = i
			break
		}
	}
	if lastAssistant < 0 || len(c.messages[lastAssistant].ToolCalls) == 0 {
		return nil
	}

	answered := make(map[string]bool)
	for _, msg := range c.messages[lastAssistant+1:] {
		if msg.Role == protocol.RoleTool && msg.ToolCallID != "" {
			answered[msg.ToolCallID] = true
		}
	}

	var pending []*protocol.ToolCall
	for _, tc := range c.messages[lastAssistant].ToolCalls {
		if !answered[tc.ID] {
			pending = append(pending, tc)
		}
	}
	return pending
}

// Clear drops the window, optionally keeping the system message.
func (c *Conversation) Clear(keepSystem bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !keepSystem {
		c.messages = nil
		return
	}

	var kept []*protocol.Message
	for _, msg := range c.messages {
		if msg.Role == protocol.RoleSystem {
			kept = append(kept, msg)
		}
	}
	c.messages = kept
}

// FormatToolResultForLLM renders a tool result as the observation text
// fed back to the model.
func FormatToolResultForLLM(toolName string, result tools.ToolResult) string {
	if result.Success {
		return fmt.Sprintf("Tool '%s' executed successfully.\nResult: %s", toolName, result.OutputString())
	}
	return fmt.Sprintf("Tool '%s' failed.\nError: %s", toolName, result.Error)
}

// answerSeparators are stripped from the front of an extracted answer:
// models often write "Final Answer: - ..." or use a fullwidth colon.
var answerSeparators = []string{"-", ":", "：", "—"}

// ExtractFinalAnswer scans text for any stop phrase, case-insensitively,
// and returns the content after its last occurrence with leading
// separators stripped. The second return reports whether a non-empty
// answer was found.
func ExtractFinalAnswer(text string, stopPhrases []string) (string, bool) {
	lower := strings.ToLower(text)

	best := -1
	bestEnd := 0
	for _, phrase := range stopPhrases {
		phraseLower := strings.ToLower(phrase)
		idx := strings.LastIndex(lower, phraseLower)
		if idx > best {
			best = idx
			bestEnd = idx + len(phraseLower)
		}
	}
	if best < 0 {
		return "", false
	}

	answer := strings.TrimSpace(text[bestEnd:])
	for changed := true; changed; {
		changed = false
		for _, sep := range answerSeparators {
			if strings.HasPrefix(answer, sep) {
				answer = strings.TrimSpace(strings.TrimPrefix(answer, sep))
				changed = true
			}
		}
	}

	if answer == "" {
		return "", false
	}
	return answer, true
}

// ReactSystemPrompt builds the system instruction for the ReAct loop.
func ReactSystemPrompt(toolNames []string) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant that solves tasks step by step.\n\n")

	if len(toolNames) > 0 {
		b.WriteString("Available tools: ")
		b.WriteString(strings.Join(toolNames, ", "))
		b.WriteString("\n\n")
	}

	b.WriteString("Work through the task iteratively:\n")
	b.WriteString("1. Think about what to do next.\n")
	b.WriteString("2. Call a tool when you need computation or external information, then use its result.\n")
	b.WriteString("3. Repeat until you can answer the task.\n\n")
	b.WriteString("When you have the complete answer, end your response with:\n")
	b.WriteString("Final Answer: <your answer>\n\n")
	b.WriteString("Do not write \"Final Answer\" until you are certain; ")
	b.WriteString("everything after it is returned to the user verbatim.")

	return b.String()
}
