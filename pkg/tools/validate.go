package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/reagentlabs/reagent/pkg/logger"
)

// ValidateArguments checks args against the tool's parameter schema.
// Validation is deliberately shallow: required keys must be present and
// declared primitive types must match, but nested structure is left to
// the tool itself.
func ValidateArguments(t Tool, args map[string]any) error {
	schema := t.Parameters()
	if schema == nil {
		return nil
	}

	if required, ok := schema["required"].([]any); ok {
		for _, raw := range required {
			key, ok := raw.(string)
			if !ok {
				continue
			}
			if _, present := args[key]; !present {
				return fmt.Errorf("missing required argument: %s", key)
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		for _, key := range required {
			if _, present := args[key]; !present {
				return fmt.Errorf("missing required argument: %s", key)
			}
		}
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}

	for key, value := range args {
		propRaw, declared := properties[key]
		if !declared {
			continue
		}
		prop, ok := propRaw.(map[string]any)
		if !ok {
			continue
		}
		declaredType, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if err := checkType(key, declaredType, value); err != nil {
			return err
		}
	}

	return nil
}

func checkType(key, declaredType string, value any) error {
	if value == nil {
		return nil
	}

	ok := true
	switch declaredType {
	case "string":
		_, ok = value.(string)
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			// JSON numbers decode to float64; a zero-fraction value still
			// counts as an integer.
			ok = v == math.Trunc(v)
		case float32:
			ok = float64(v) == math.Trunc(float64(v))
		default:
			ok = false
		}
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			ok = false
		}
	case "boolean":
		_, ok = value.(bool)
	case "array":
		switch value.(type) {
		case []any, []string, []float64:
		default:
			ok = false
		}
	case "object":
		_, ok = value.(map[string]any)
	}

	if !ok {
		return fmt.Errorf("argument %q must be of type %s", key, declaredType)
	}
	return nil
}

// SafeExecute runs a tool with validation, a timeout, and panic recovery.
// Every failure mode comes back as a failed ToolResult; SafeExecute never
// returns a Go error to its caller.
func SafeExecute(ctx context.Context, t Tool, args map[string]any, execCtx *ExecutionContext) ToolResult {
	if err := ValidateArguments(t, args); err != nil {
		return Failf("Invalid arguments for tool '%s': %v", t.Name(), err)
	}

	timeout := DefaultExecutionTimeout
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Get().Error("tool panicked", "tool", t.Name(), "panic", r)
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		result, err := t.Execute(ctx, args, execCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Failf("Tool execution timed out after %d seconds", int(timeout.Seconds()))
		}
		return Failf("Tool execution failed: %v", ctx.Err())
	case o := <-done:
		if o.err != nil {
			return Failf("Tool execution failed: %v", o.err)
		}
		return o.result
	}
}
