// Package protocol defines the provider-neutral request/response model.
// Every provider adapter translates between these types and its own wire
// format; nothing above the adapter layer sees provider-shaped payloads
// except through Response.Raw.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"

	// RoleFunction is accepted on input for compatibility with older
	// chat-completions payloads. It is normalized to RoleTool and never
	// emitted.
	RoleFunction Role = "function"
)

// Normalize maps legacy roles to their current equivalents.
func (r Role) Normalize() Role {
	if r == RoleFunction {
		return RoleTool
	}
	return r
}

// ToolCall is a tool invocation requested by the model. Arguments holds
// whatever the provider sent: a raw JSON string or an already-decoded map.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// ArgumentsMap returns the decoded argument map. String arguments are
// decoded on demand; nil arguments yield an empty map.
func (tc *ToolCall) ArgumentsMap() (map[string]any, error) {
	switch args := tc.Arguments.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return args, nil
	case string:
		if args == "" {
			return map[string]any{}, nil
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(args), &decoded); err != nil {
			return nil, fmt.Errorf("decoding tool call arguments: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported arguments type %T", tc.Arguments)
	}
}

// ArgumentsJSON returns the arguments serialized as a JSON string.
func (tc *ToolCall) ArgumentsJSON() string {
	switch args := tc.Arguments.(type) {
	case nil:
		return "{}"
	case string:
		if args == "" {
			return "{}"
		}
		return args
	default:
		data, err := json.Marshal(args)
		if err != nil {
			return "{}"
		}
		return string(data)
	}
}

// Message is a single conversation turn.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	Name       string      `json:"name,omitempty"`
	ToolCalls  []*ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// SystemMessage, UserMessage, AssistantMessage and ToolMessage build the
// common message shapes.
func SystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string, toolCalls ...*ToolCall) *Message {
	return &Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

func ToolMessage(toolCallID, name, content string) *Message {
	return &Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}

// ToolDefinition describes a callable tool in provider-neutral form.
// Parameters is a JSON-Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice constrains how the model may use the supplied tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// StructuredOutput asks the provider to return JSON matching a schema.
type StructuredOutput struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
	Strict      bool           `json:"strict,omitempty"`
}

// DefaultTemperature applies when a request leaves Temperature unset.
const DefaultTemperature = 0.7

// Request is a provider-neutral completion request.
type Request struct {
	Model            string            `json:"model"`
	Messages         []*Message        `json:"messages"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	Stop             []string          `json:"stop,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	Tools            []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice       ToolChoice        `json:"tool_choice,omitempty"`
	StructuredOutput *StructuredOutput `json:"structured_output,omitempty"`
}

// EffectiveTemperature returns the request temperature or the default.
func (r *Request) EffectiveTemperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a provider-neutral completion response. Raw retains the
// provider payload for callers that need dialect-specific fields.
type Response struct {
	ID           string         `json:"id"`
	Model        string         `json:"model"`
	Message      *Message       `json:"message"`
	Usage        *Usage         `json:"usage,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Raw          map[string]any `json:"-"`
}

// StreamChunk is one streamed fragment. Delta is provider-shaped: callers
// consuming streams handle the dialect they requested.
type StreamChunk struct {
	ID           string         `json:"id,omitempty"`
	Model        string         `json:"model,omitempty"`
	Delta        map[string]any `json:"delta,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`

	// Err reports a mid-stream failure. A chunk with Err set is the last
	// chunk on the channel.
	Err error `json:"-"`
}

// Float64 and Float64Ptr help build requests with optional knobs.
func Float64(v float64) *float64 { return &v }
