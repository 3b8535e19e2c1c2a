// Package reasoning implements the ReAct loop: a conversation manager
// with trimming, a chain of typed steps, and the engine that drives a
// provider and a tool executor until the task resolves or a budget runs
// out.
package reasoning

import (
	"time"

	"github.com/google/uuid"

	"github.com/reagentlabs/reagent/pkg/tools"
)

// StepType classifies a reasoning step.
type StepType string

const (
	StepThought    StepType = "thought"
	StepToolCall   StepType = "tool_call"
	StepToolResult StepType = "tool_result"
	StepAnswer     StepType = "answer"
	StepError      StepType = "error"
)

// StepStatus tracks a step's lifecycle.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in_progress"
	StatusCompleted  StepStatus = "completed"
	StatusFailed     StepStatus = "failed"
)

// StopReason explains why a chain stopped.
type StopReason string

const (
	StopCompleted     StopReason = "completed"
	StopMaxIterations StopReason = "max_iterations"
	StopMaxToolCalls  StopReason = "max_tool_calls"
	StopTimeout       StopReason = "timeout"
	StopError         StopReason = "error"

	// Reserved for interactive frontends and loop-detection; the engine
	// never emits these itself.
	StopUserInterrupt StopReason = "user_interrupt"
	StopNoProgress    StopReason = "no_progress"
)

// ChainStatus tracks the overall chain lifecycle.
type ChainStatus string

const (
	ChainRunning   ChainStatus = "running"
	ChainCompleted ChainStatus = "completed"
	ChainFailed    ChainStatus = "failed"
)

// Step is one entry in a reasoning chain.
type Step struct {
	ID          string            `json:"id"`
	Index       int               `json:"index"`
	Type        StepType          `json:"type"`
	Status      StepStatus        `json:"status"`
	Content     string            `json:"content,omitempty"`
	ToolName    string            `json:"tool_name,omitempty"`
	ToolArgs    map[string]any    `json:"tool_args,omitempty"`
	ToolResult  *tools.ToolResult `json:"tool_result,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Complete marks the step finished with the given status.
func (s *Step) Complete(status StepStatus) {
	now := time.Now()
	s.Status = status
	s.CompletedAt = &now
}

// Chain is the ordered record of one solve run.
type Chain struct {
	ID          string      `json:"id"`
	Task        string      `json:"task"`
	Steps       []*Step     `json:"steps"`
	Status      ChainStatus `json:"status"`
	FinalAnswer string      `json:"final_answer,omitempty"`
	StopReason  StopReason  `json:"stop_reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`

	toolCalls int
}

func NewChain(task string) *Chain {
	return &Chain{
		ID:        uuid.NewString(),
		Task:      task,
		Status:    ChainRunning,
		CreatedAt: time.Now(),
	}
}

// AddStep appends a step of the given type and returns it.
func (c *Chain) AddStep(stepType StepType, status StepStatus) *Step {
	step := &Step{
		ID:        uuid.NewString(),
		Index:     len(c.Steps),
		Type:      stepType,
		Status:    status,
		StartedAt: time.Now(),
	}
	c.Steps = append(c.Steps, step)
	if stepType == StepToolCall {
		c.toolCalls++
	}
	return step
}

// ToolCallCount returns the number of tool_call steps so far.
func (c *Chain) ToolCallCount() int {
	return c.toolCalls
}

// Finish stamps the chain's terminal state.
func (c *Chain) Finish(status ChainStatus, reason StopReason, finalAnswer string) {
	now := time.Now()
	c.Status = status
	c.StopReason = reason
	c.FinalAnswer = finalAnswer
	c.CompletedAt = &now
}

// Stats summarizes a finished chain.
type Stats struct {
	TotalSteps    int           `json:"total_steps"`
	ToolCalls     int           `json:"tool_calls"`
	ExecutionTime time.Duration `json:"execution_time"`
	Iterations    int           `json:"iterations"`
}

// Result is the caller-facing outcome of a solve run.
type Result struct {
	ChainID     string     `json:"chain_id"`
	Task        string     `json:"task"`
	FinalAnswer string     `json:"final_answer,omitempty"`
	Status      ChainStatus `json:"status"`
	StopReason  StopReason `json:"stop_reason"`
	Steps       []*Step    `json:"steps"`
	Stats       Stats      `json:"stats"`
}

// ResultFromChain derives the result view of a chain. Iterations counts
// thought steps, matching what the model actually reasoned through.
func ResultFromChain(c *Chain) *Result {
	stats := Stats{
		TotalSteps: len(c.Steps),
		ToolCalls:  c.toolCalls,
	}
	for _, step := range c.Steps {
		if step.Type == StepThought {
			stats.Iterations++
		}
	}
	if c.CompletedAt != nil {
		stats.ExecutionTime = c.CompletedAt.Sub(c.CreatedAt)
	}

	return &Result{
		ChainID:     c.ID,
		Task:        c.Task,
		FinalAnswer: c.FinalAnswer,
		Status:      c.Status,
		StopReason:  c.StopReason,
		Steps:       c.Steps,
		Stats:       stats,
	}
}

// Config tunes the engine's budgets and sampling.
type Config struct {
	MaxIterations int
	MaxToolCalls  int
	Timeout       time.Duration
	StopPhrases   []string
	Temperature   float64
	MaxTokens     int
	ParallelTools bool
}

// DefaultStopPhrases are matched case-insensitively against assistant
// content to detect a final answer.
func DefaultStopPhrases() []string {
	return []string{
		"Final Answer:",
		"FINAL ANSWER:",
		"最终答案：",
		"答案：",
	}
}

func DefaultConfig() Config {
	return Config{
		MaxIterations: 10,
		MaxToolCalls:  20,
		Timeout:       300 * time.Second,
		StopPhrases:   DefaultStopPhrases(),
		Temperature:   0.7,
		MaxTokens:     2000,
	}
}
