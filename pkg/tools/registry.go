package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/reagentlabs/reagent/pkg/logger"
	"github.com/reagentlabs/reagent/pkg/protocol"
)

// Registry holds tools by name with a category index. Registration
// compiles the tool's parameter schema so a malformed tool definition is
// caught at wiring time rather than on the first model call.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	categories map[Category][]string
}

func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]Tool),
		categories: make(map[Category][]string),
	}
}

// Register adds a tool. Duplicates are rejected unless override is set.
func (r *Registry) Register(t Tool, override bool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	if err := compileSchema(t); err != nil {
		return fmt.Errorf("tool %q has an invalid parameter schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists && !override {
		logger.Get().Warn("tool already registered", "tool", name)
		return fmt.Errorf("tool %q already registered", name)
	}

	r.tools[name] = t

	category := t.Category()
	if category != "" && !contains(r.categories[category], name) {
		r.categories[category] = append(r.categories[category], name)
	}

	logger.Get().Debug("registered tool", "tool", name, "category", string(category))
	return nil
}

// Unregister removes a tool from the name map and every category list.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return false
	}

	delete(r.tools, name)
	for category, names := range r.categories {
		r.categories[category] = remove(names, name)
	}
	return true
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns tool names, optionally filtered by category, sorted.
func (r *Registry) List(category Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	if category != "" {
		names = append(names, r.categories[category]...)
	} else {
		for name := range r.tools {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Category, 0, len(r.categories))
	for c := range r.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CategoryInfo maps each category to its tool count.
func (r *Registry) CategoryInfo() map[Category]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Category]int, len(r.categories))
	for c, names := range r.categories {
		out[c] = len(names)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Tool)
	r.categories = make(map[Category][]string)
}

// Definitions exports provider-neutral definitions for the LLM request.
func (r *Registry) Definitions(category Category) []protocol.ToolDefinition {
	names := r.List(category)

	out := make([]protocol.ToolDefinition, 0, len(names))
	for _, name := range names {
		if t, ok := r.Get(name); ok {
			out = append(out, Definition(t))
		}
	}
	return out
}

// SchemasForLLM exports chat-completions function wrappers.
func (r *Registry) SchemasForLLM(category Category) []map[string]any {
	names := r.List(category)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		if t, ok := r.Get(name); ok {
			out = append(out, Schema(t))
		}
	}
	return out
}

func compileSchema(t Tool) error {
	params := t.Parameters()
	if params == nil {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", normalizeJSON(params)); err != nil {
		return err
	}
	_, err := compiler.Compile("tool.json")
	return err
}

// normalizeJSON rewrites Go-typed schema literals ([]string required
// lists and such) into the generic form the compiler expects.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeJSON(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case int:
		return float64(val)
	default:
		return val
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func remove(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Global registry
// ----------------------------------------------------------------------------

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// RegisterGlobal adds a tool to the process-wide registry.
func RegisterGlobal(t Tool, override bool) error {
	return Global().Register(t, override)
}

// GetGlobal fetches a tool from the process-wide registry.
func GetGlobal(name string) (Tool, bool) {
	return Global().Get(name)
}
