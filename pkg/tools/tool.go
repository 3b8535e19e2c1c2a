// Package tools implements the tool subsystem: the execution contract,
// the registry, the executor with its history and statistics, and the
// built-in tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reagentlabs/reagent/pkg/protocol"
)

// Category groups tools for discovery and schema export.
type Category string

const (
	CategoryComputation    Category = "computation"
	CategoryFileSystem     Category = "file_system"
	CategoryNetwork        Category = "network"
	CategoryCodeExecution  Category = "code_execution"
	CategoryDataProcessing Category = "data_processing"
	CategoryUtilities      Category = "utilities"
)

// DefaultExecutionTimeout applies when the execution context carries no
// timeout of its own.
const DefaultExecutionTimeout = 30 * time.Second

// ExecutionContext carries per-invocation metadata down into a tool.
type ExecutionContext struct {
	ChainID      string
	StepID       string
	UserID       string
	WorkspaceDir string
	Timeout      time.Duration
	Metadata     map[string]any
}

// ToolResult is the outcome of a tool execution. A failed execution is a
// result with Success false, not a Go error: the reasoning loop feeds
// failures back to the model as observations.
type ToolResult struct {
	Success  bool           `json:"success"`
	Output   any            `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Succeed builds a successful result.
func Succeed(output any, metadata map[string]any) ToolResult {
	return ToolResult{Success: true, Output: output, Metadata: metadata}
}

// Fail builds a failed result.
func Fail(message string) ToolResult {
	return ToolResult{Success: false, Error: message}
}

// Failf builds a failed result from a format string.
func Failf(format string, args ...any) ToolResult {
	return Fail(fmt.Sprintf(format, args...))
}

// OutputString renders the output for observation text. Strings pass
// through; structured outputs serialize as JSON.
func (r ToolResult) OutputString() string {
	switch out := r.Output.(type) {
	case nil:
		return ""
	case string:
		return out
	default:
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Sprintf("%v", out)
		}
		return string(data)
	}
}

// Tool is a callable capability exposed to the model.
//
// Parameters returns a JSON-Schema object describing the arguments; it is
// exported verbatim to every provider dialect.
type Tool interface {
	Name() string
	Description() string
	Category() Category
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (ToolResult, error)
}

// Definition exports the provider-neutral tool definition.
func Definition(t Tool) protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}

// Schema exports the chat-completions function wrapper.
func Schema(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}
