package reasoning

import (
	"context"
	"errors"
	"time"

	"github.com/reagentlabs/reagent/pkg/llms"
	"github.com/reagentlabs/reagent/pkg/logger"
	"github.com/reagentlabs/reagent/pkg/protocol"
	"github.com/reagentlabs/reagent/pkg/tools"
)

// conversationTokenBudget bounds the window fed to the provider; the
// message-count budget scales with the iteration limit.
const conversationTokenBudget = 8000

// perCallTimeout bounds each individual tool execution inside the loop.
const perCallTimeout = 30 * time.Second

// StepCallback observes steps as the engine appends them. A panicking
// callback is recovered and logged; it can never disturb the loop.
type StepCallback func(step *Step)

// Engine drives the ReAct loop: one non-streaming completion per
// iteration, tool calls executed sequentially between iterations, until
// a stop phrase, an exhausted budget, a timeout, or a provider error
// ends the chain.
type Engine struct {
	provider llms.Provider
	executor *tools.Executor
	config   Config
	callback StepCallback
}

func NewEngine(provider llms.Provider, executor *tools.Executor, config Config) *Engine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.MaxToolCalls <= 0 {
		config.MaxToolCalls = DefaultConfig().MaxToolCalls
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if len(config.StopPhrases) == 0 {
		config.StopPhrases = DefaultStopPhrases()
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultConfig().Temperature
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}

	return &Engine{
		provider: provider,
		executor: executor,
		config:   config,
	}
}

// OnStep registers the step observer.
func (e *Engine) OnStep(cb StepCallback) {
	e.callback = cb
}

func (e *Engine) notify(step *Step) {
	if e.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Get().Error("step callback panicked", "step", string(step.Type), "panic", r)
		}
	}()
	e.callback(step)
}

// Solve runs the loop for one task against the given model. The returned
// error is reserved for invariant violations; provider failures and
// exhausted budgets come back inside the Result.
func (e *Engine) Solve(ctx context.Context, task, model string) (*Result, error) {
	chain := NewChain(task)
	log := logger.With("chain_id", chain.ID)
	log.Info("starting reasoning chain", "task", task, "model", model)

	definitions := e.executor.Registry().Definitions("")
	toolNames := make([]string, 0, len(definitions))
	for _, def := range definitions {
		toolNames = append(toolNames, def.Name)
	}

	conversation := NewConversation(e.config.MaxIterations*4, conversationTokenBudget)
	conversation.SetSystemMessage(ReactSystemPrompt(toolNames))
	conversation.AddUserMessage(task)

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	status := ChainCompleted
	var stopReason StopReason
	var finalAnswer string

loop:
	for iteration := 1; iteration <= e.config.MaxIterations; iteration++ {
		if chain.ToolCallCount() >= e.config.MaxToolCalls {
			status = ChainFailed
			stopReason = StopMaxToolCalls
			finalAnswer = "Stopped: reached the tool call limit before completing the task."
			break
		}
		if ctx.Err() != nil {
			status = ChainFailed
			stopReason = StopTimeout
			finalAnswer = "Stopped: the reasoning budget timed out."
			break
		}

		request := &protocol.Request{
			Model:       model,
			Messages:    conversation.Messages(),
			Temperature: protocol.Float64(e.config.Temperature),
			MaxTokens:   e.config.MaxTokens,
			Tools:       definitions,
			ToolChoice:  protocol.ToolChoiceAuto,
		}

		response, err := e.provider.Complete(ctx, request)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				status = ChainFailed
				stopReason = StopTimeout
				finalAnswer = "Stopped: the reasoning budget timed out."
				break
			}

			step := chain.AddStep(StepError, StatusFailed)
			step.Content = err.Error()
			step.Complete(StatusFailed)
			e.notify(step)

			log.Error("provider request failed", "iteration", iteration, "error", err)
			status = ChainFailed
			stopReason = StopError
			break
		}

		content := response.Message.Content
		toolCalls := response.Message.ToolCalls
		log.Debug("iteration complete", "iteration", iteration,
			"has_content", content != "", "tool_calls", len(toolCalls))

		if content != "" {
			if answer, found := ExtractFinalAnswer(content, e.config.StopPhrases); found {
				step := chain.AddStep(StepAnswer, StatusCompleted)
				step.Content = answer
				step.Complete(StatusCompleted)
				e.notify(step)

				finalAnswer = answer
				stopReason = StopCompleted
				break loop
			}

			step := chain.AddStep(StepThought, StatusCompleted)
			step.Content = content
			step.Complete(StatusCompleted)
			e.notify(step)
		}

		// The assistant turn lands in the window even when it carries no
		// content; pending-call bookkeeping depends on it.
		conversation.AddAssistantMessage(content, toolCalls)

		if len(toolCalls) > 0 {
			e.runToolCalls(ctx, chain, conversation, toolCalls)
			continue
		}

		// Nothing produced: no answer, no calls. Give the model another
		// iteration unless this was the last one.
	}

	// Only a stop phrase counts as success; exhausted caps fail the chain
	// like every other early stop.
	if stopReason == "" {
		status = ChainFailed
		stopReason = StopMaxIterations
		finalAnswer = "Stopped: reached the maximum number of iterations without a final answer."
	}

	chain.Finish(status, stopReason, finalAnswer)
	log.Info("reasoning chain finished",
		"status", string(status), "stop_reason", string(stopReason),
		"steps", len(chain.Steps), "tool_calls", chain.ToolCallCount())

	return ResultFromChain(chain), nil
}

// runToolCalls executes the iteration's tool calls sequentially, feeding
// each observation back into the conversation.
func (e *Engine) runToolCalls(ctx context.Context, chain *Chain, conversation *Conversation, calls []*protocol.ToolCall) {
	for _, call := range calls {
		callStep := chain.AddStep(StepToolCall, StatusInProgress)
		callStep.ToolName = call.Name
		if args, err := call.ArgumentsMap(); err == nil {
			callStep.ToolArgs = args
		}
		e.notify(callStep)

		result := e.executor.ExecuteFromLLMCall(ctx, call, &tools.ExecutionContext{
			ChainID: chain.ID,
			StepID:  callStep.ID,
			Timeout: perCallTimeout,
		})

		callStep.ToolResult = &result
		if result.Success {
			callStep.Complete(StatusCompleted)
		} else {
			callStep.Complete(StatusFailed)
		}
		e.notify(callStep)

		observation := FormatToolResultForLLM(call.Name, result)

		resultStep := chain.AddStep(StepToolResult, StatusCompleted)
		resultStep.ToolName = call.Name
		resultStep.Content = observation
		resultStep.ToolResult = &result
		resultStep.Complete(StatusCompleted)
		e.notify(resultStep)

		conversation.AddToolResult(call.ID, call.Name, observation)
	}
}
