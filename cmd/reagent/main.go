// Command reagent is the CLI for the reasoning runtime: it wires the
// configured providers and the built-in tools into the engine and runs
// tasks from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/reagentlabs/reagent/pkg/config"
	"github.com/reagentlabs/reagent/pkg/llms"
	"github.com/reagentlabs/reagent/pkg/logger"
	"github.com/reagentlabs/reagent/pkg/reasoning"
	"github.com/reagentlabs/reagent/pkg/tools"
)

type cli struct {
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text, json)." default:"text"`

	Solve     solveCmd     `cmd:"" help:"Solve a task with the reasoning engine."`
	Providers providersCmd `cmd:"" help:"List configured LLM providers."`
	Tools     toolsCmd     `cmd:"" help:"List registered tools."`
	Schema    schemaCmd    `cmd:"" help:"Print the provider config file schema."`
}

type solveCmd struct {
	Task          string        `arg:"" help:"Task to solve."`
	Provider      string        `help:"Provider instance id (default: configured default)."`
	Model         string        `help:"Model name (default: provider's default model)."`
	MaxIterations int           `help:"Maximum reasoning iterations." default:"10"`
	Timeout       time.Duration `help:"Wall-clock budget for the run." default:"5m"`
	Workspace     string        `help:"Workspace directory for file operations." default:"."`
	ShowSteps     bool          `help:"Print each reasoning step as it happens."`
}

func (c *solveCmd) Run() error {
	cfg := config.Load()

	manager, err := llms.NewManagerFromConfig(cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	provider, err := manager.Get(c.Provider)
	if err != nil {
		return err
	}

	model := c.Model
	if model == "" {
		id := c.Provider
		if id == "" {
			id = manager.DefaultID()
		}
		if pc := cfg.Provider(id); pc != nil && pc.DefaultModel != "" {
			model = pc.DefaultModel
		}
	}
	if model == "" {
		return fmt.Errorf("no model configured; pass --model or set default_model")
	}

	if err := registerBuiltinTools(c.Workspace); err != nil {
		return err
	}

	engineConfig := reasoning.DefaultConfig()
	engineConfig.MaxIterations = c.MaxIterations
	engineConfig.Timeout = c.Timeout

	engine := reasoning.NewEngine(provider, tools.Default(), engineConfig)
	if c.ShowSteps {
		engine.OnStep(printStep)
	}

	result, err := engine.Solve(context.Background(), c.Task, model)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Status:      %s (%s)\n", result.Status, result.StopReason)
	fmt.Printf("Steps:       %d (%d tool calls, %d iterations)\n",
		result.Stats.TotalSteps, result.Stats.ToolCalls, result.Stats.Iterations)
	fmt.Printf("Duration:    %s\n", result.Stats.ExecutionTime.Round(time.Millisecond))
	fmt.Println()
	fmt.Println(result.FinalAnswer)
	return nil
}

func printStep(step *reasoning.Step) {
	switch step.Type {
	case reasoning.StepThought:
		fmt.Printf("[thought] %s\n", step.Content)
	case reasoning.StepToolCall:
		if step.Status == reasoning.StatusInProgress {
			fmt.Printf("[tool]    %s(...)\n", step.ToolName)
		}
	case reasoning.StepToolResult:
		fmt.Printf("[result]  %s\n", step.Content)
	case reasoning.StepAnswer:
		fmt.Printf("[answer]  %s\n", step.Content)
	case reasoning.StepError:
		fmt.Printf("[error]   %s\n", step.Content)
	}
}

func registerBuiltinTools(workspace string) error {
	registry := tools.Global()

	if err := registry.Register(tools.NewCalculatorTool(), true); err != nil {
		return err
	}
	if err := registry.Register(tools.NewCodeExecutorTool(), true); err != nil {
		return err
	}
	fileOps, err := tools.NewFileOperationsTool(workspace, false)
	if err != nil {
		return err
	}
	if err := registry.Register(fileOps, true); err != nil {
		return err
	}
	return registry.Register(tools.NewWebSearchTool(), true)
}

type providersCmd struct{}

func (c *providersCmd) Run() error {
	cfg := config.Load()

	manager, err := llms.NewManagerFromConfig(cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	infos := manager.List()
	if len(infos) == 0 {
		fmt.Println("No providers available. Configure llm_providers.yaml or set an API key.")
		return nil
	}

	for _, info := range infos {
		marker := " "
		if info.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %-24s type=%-10s tools=%-5t structured=%t\n",
			marker, info.ID, info.Type, info.SupportsTools, info.SupportsStructuredOutput)
	}
	return nil
}

type toolsCmd struct {
	Category string `help:"Filter by category."`
	JSON     bool   `help:"Print chat-completions tool schemas as JSON."`
}

func (c *toolsCmd) Run() error {
	if err := registerBuiltinTools("."); err != nil {
		return err
	}
	registry := tools.Global()

	if c.JSON {
		schemas := registry.SchemasForLLM(tools.Category(c.Category))
		data, err := json.MarshalIndent(schemas, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	for _, name := range registry.List(tools.Category(c.Category)) {
		t, _ := registry.Get(name)
		fmt.Printf("%-16s [%s] %s\n", name, t.Category(), t.Description())
	}
	return nil
}

type schemaCmd struct{}

func (c *schemaCmd) Run() error {
	data, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	var app cli
	ctx := kong.Parse(&app,
		kong.Name("reagent"),
		kong.Description("Agentic reasoning runtime over OpenAI, Anthropic, Gemini and Grok."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(app.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(level, os.Stderr, logger.Format(app.LogFormat))

	config.LoadEnvFiles()

	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
