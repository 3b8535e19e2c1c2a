package tools

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reagentlabs/reagent/pkg/logger"
	"github.com/reagentlabs/reagent/pkg/observability"
	"github.com/reagentlabs/reagent/pkg/protocol"
)

// maxHistorySize caps the execution history ring.
const maxHistorySize = 1000

// Invocation names a tool and its arguments for batch execution.
type Invocation struct {
	Name string
	Args map[string]any
}

// ExecutionRecord is one entry in the executor's history.
type ExecutionRecord struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
	Result   ToolResult     `json:"result"`
	Duration time.Duration  `json:"duration"`
	At       time.Time      `json:"at"`
}

// ToolStats aggregates per-tool execution counters.
type ToolStats struct {
	Count       int           `json:"count"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	AverageTime time.Duration `json:"average_time"`
}

// Statistics summarizes everything the executor has run.
type Statistics struct {
	Total                int                  `json:"total_executions"`
	Successful           int                  `json:"successful"`
	Failed               int                  `json:"failed"`
	SuccessRate          float64              `json:"success_rate"`
	AverageExecutionTime time.Duration        `json:"average_execution_time"`
	ToolsUsed            map[string]ToolStats `json:"tools_used"`
}

// Executor runs tools out of a registry, recording every execution.
type Executor struct {
	registry *Registry

	mu        sync.Mutex
	history   []ExecutionRecord
	total     int
	succeeded int
	failed    int
	totalTime time.Duration
	perTool   map[string]*toolCounters
}

type toolCounters struct {
	count     int
	succeeded int
	failed    int
	totalTime time.Duration
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		perTool:  make(map[string]*toolCounters),
	}
}

// Registry returns the executor's backing registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// ExecuteTool runs one tool by name. An unknown name comes back as a
// failed result, and is recorded like any other execution.
func (e *Executor) ExecuteTool(ctx context.Context, name string, args map[string]any, execCtx *ExecutionContext) ToolResult {
	start := time.Now()

	tool, ok := e.registry.Get(name)

	var result ToolResult
	if !ok {
		result = Failf("Tool '%s' not found in registry", name)
	} else {
		result = SafeExecute(ctx, tool, args, execCtx)
	}

	duration := time.Since(start)
	e.record(name, args, result, duration)
	observability.GetMetrics().RecordToolExecution(ctx, name, result.Success, duration)

	if !result.Success {
		logger.Get().Debug("tool execution failed", "tool", name, "error", result.Error)
	}
	return result
}

// ExecuteMultiple runs a batch of invocations. Sequential execution
// preserves order trivially; parallel execution fans out but results are
// still returned positionally.
func (e *Executor) ExecuteMultiple(ctx context.Context, calls []Invocation, parallel bool, execCtx *ExecutionContext) []ToolResult {
	results := make([]ToolResult, len(calls))

	if !parallel {
		for i, call := range calls {
			results[i] = e.ExecuteTool(ctx, call.Name, call.Args, execCtx)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteTool(gctx, call.Name, call.Args, execCtx)
			return nil
		})
	}
	g.Wait()
	return results
}

// ExecuteFromLLMCall runs the tool named by a model's tool call,
// decoding string-encoded arguments first. A decode failure is a failed
// result, not an error.
func (e *Executor) ExecuteFromLLMCall(ctx context.Context, call *protocol.ToolCall, execCtx *ExecutionContext) ToolResult {
	args, err := call.ArgumentsMap()
	if err != nil {
		result := Failf("Failed to parse arguments: %v", err)
		e.record(call.Name, nil, result, 0)
		return result
	}
	return e.ExecuteTool(ctx, call.Name, args, execCtx)
}

func (e *Executor) record(name string, args map[string]any, result ToolResult, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, ExecutionRecord{
		Tool:     name,
		Args:     args,
		Result:   result,
		Duration: duration,
		At:       time.Now(),
	})
	if len(e.history) > maxHistorySize {
		e.history = e.history[len(e.history)-maxHistorySize:]
	}

	e.total++
	e.totalTime += duration
	counters := e.perTool[name]
	if counters == nil {
		counters = &toolCounters{}
		e.perTool[name] = counters
	}
	counters.count++
	counters.totalTime += duration
	if result.Success {
		e.succeeded++
		counters.succeeded++
	} else {
		e.failed++
		counters.failed++
	}
}

// History returns the most recent records, oldest first. A non-positive
// limit returns the full retained history.
func (e *Executor) History(limit int) []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	records := e.history
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	out := make([]ExecutionRecord, len(records))
	copy(out, records)
	return out
}

// Statistics summarizes all executions since the last reset.
func (e *Executor) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		Total:      e.total,
		Successful: e.succeeded,
		Failed:     e.failed,
		ToolsUsed:  make(map[string]ToolStats, len(e.perTool)),
	}
	if e.total > 0 {
		stats.SuccessRate = float64(e.succeeded) / float64(e.total)
		stats.AverageExecutionTime = e.totalTime / time.Duration(e.total)
	}
	for name, c := range e.perTool {
		ts := ToolStats{Count: c.count, Succeeded: c.succeeded, Failed: c.failed}
		if c.count > 0 {
			ts.AverageTime = c.totalTime / time.Duration(c.count)
		}
		stats.ToolsUsed[name] = ts
	}
	return stats
}

// ResetStatistics clears counters and history.
func (e *Executor) ResetStatistics() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = nil
	e.total = 0
	e.succeeded = 0
	e.failed = 0
	e.totalTime = 0
	e.perTool = make(map[string]*toolCounters)
}

// ----------------------------------------------------------------------------
// Default executor
// ----------------------------------------------------------------------------

var (
	defaultOnce     sync.Once
	defaultExecutor *Executor
)

// Default returns the process-wide executor bound to the global registry.
func Default() *Executor {
	defaultOnce.Do(func() {
		defaultExecutor = NewExecutor(Global())
	})
	return defaultExecutor
}
