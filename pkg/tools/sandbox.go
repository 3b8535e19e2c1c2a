package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// ============================================================================
// CODE EXECUTOR TOOL
// ============================================================================
//
// Runs short Python snippets. The snippet is screened statically before
// anything executes: imports outside the allow-list, the reflective
// escape-hatch builtins, and dunder attribute access are all rejected.
// Screened code then runs in an isolated python3 subprocess behind a
// harness that restricts builtins, captures both streams, and reports the
// top-level `result` variable when the snippet sets one.

var sandboxAllowedModules = map[string]bool{
	"math":        true,
	"random":      true,
	"datetime":    true,
	"json":        true,
	"itertools":   true,
	"collections": true,
	"functools":   true,
	"re":          true,
	"string":      true,
	"decimal":     true,
	"fractions":   true,
}

var (
	sandboxImportRe        = regexp.MustCompile(`(?m)(?:^|;)\s*(?:import|from)\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	sandboxDangerousCallRe = regexp.MustCompile(`\b(exec|eval|compile|__import__|open|input)\s*\(`)
	sandboxDangerousAttrRe = regexp.MustCompile(`\.\s*(__dict__|__class__|__bases__|__subclasses__|__globals__|__code__|__closure__)\b`)
	sandboxStringLitRe     = regexp.MustCompile(`'''(?s:.*?)'''|"""(?s:.*?)"""|'(?:\\.|[^'\\\n])*'|"(?:\\.|[^"\\\n])*"`)
)

// sandboxHarness wraps the snippet: restricted builtins with a guarded
// import, captured stdout/stderr, and the repr of a top-level `result`.
// The harness reads the snippet from stdin and reports as one JSON object
// on stdout so the parent never has to disentangle user prints from
// harness output.
const sandboxHarness = `
import sys, io, json, builtins, contextlib, traceback

_ALLOWED = {"math","random","datetime","json","itertools","collections","functools","re","string","decimal","fractions"}
_real_import = builtins.__import__

def _guarded_import(name, *args, **kwargs):
    if name.split(".")[0] not in _ALLOWED:
        raise ImportError("import of module '%s' is not allowed" % name)
    return _real_import(name, *args, **kwargs)

_SAFE_BUILTINS = {}
for _name in ("abs","all","any","bin","bool","bytes","chr","dict","divmod",
              "enumerate","filter","float","format","frozenset","hex","int",
              "isinstance","issubclass","iter","len","list","map","max","min",
              "next","oct","ord","pow","print","range","repr","reversed",
              "round","set","slice","sorted","str","sum","tuple","type","zip",
              "True","False","None","Exception","ValueError","TypeError",
              "KeyError","IndexError","ZeroDivisionError","StopIteration",
              "ArithmeticError","RuntimeError"):
    if hasattr(builtins, _name):
        _SAFE_BUILTINS[_name] = getattr(builtins, _name)
_SAFE_BUILTINS["__import__"] = _guarded_import

_code = sys.stdin.read()
_stdout, _stderr = io.StringIO(), io.StringIO()
_globals = {"__builtins__": _SAFE_BUILTINS, "__name__": "__main__"}
_report = {"stdout": "", "stderr": "", "result": None, "error": None}

try:
    with contextlib.redirect_stdout(_stdout), contextlib.redirect_stderr(_stderr):
        exec(compile(_code, "<sandbox>", "exec"), _globals)
    if "result" in _globals:
        _report["result"] = repr(_globals["result"])
except BaseException:
    _report["error"] = traceback.format_exc(limit=3)

_report["stdout"] = _stdout.getvalue()
_report["stderr"] = _stderr.getvalue()
json.dump(_report, sys.__stdout__)
`

// CodeExecutorTool runs screened Python snippets in a subprocess.
type CodeExecutorTool struct {
	// Interpreter defaults to python3.
	Interpreter string
}

func NewCodeExecutorTool() *CodeExecutorTool {
	return &CodeExecutorTool{Interpreter: "python3"}
}

func (t *CodeExecutorTool) Name() string       { return "code_executor" }
func (t *CodeExecutorTool) Category() Category { return CategoryCodeExecution }

func (t *CodeExecutorTool) Description() string {
	return "Execute a short Python snippet in a restricted sandbox. Only safe " +
		"standard-library modules may be imported. Set a top-level 'result' " +
		"variable or print to produce output."
}

func (t *CodeExecutorTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "Python source code to execute",
			},
			"language": map[string]any{
				"type":        "string",
				"enum":        []string{"python"},
				"description": "Language of the snippet (only python is supported)",
			},
		},
		"required": []string{"code"},
	}
}

// ScreenCode checks a snippet against the sandbox policy without running
// it. A nil return means the snippet may execute.
func ScreenCode(code string) error {
	// String literals are inert at this layer (exec and eval are blocked,
	// so quoted text never runs); drop them before scanning so a snippet
	// mentioning "open(" in a string is not rejected. The harness's
	// guarded __import__ remains the authoritative import check.
	code = sandboxStringLitRe.ReplaceAllString(code, `""`)

	for _, match := range sandboxImportRe.FindAllStringSubmatch(code, -1) {
		module := strings.SplitN(match[1], ".", 2)[0]
		if !sandboxAllowedModules[module] {
			return fmt.Errorf("import of module '%s' is not allowed", module)
		}
	}

	if match := sandboxDangerousCallRe.FindStringSubmatch(code); match != nil {
		return fmt.Errorf("use of '%s' is not allowed", match[1])
	}

	if match := sandboxDangerousAttrRe.FindStringSubmatch(code); match != nil {
		return fmt.Errorf("access to attribute '%s' is not allowed", match[1])
	}

	return nil
}

type sandboxReport struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Result *string `json:"result"`
	Error  *string `json:"error"`
}

func (t *CodeExecutorTool) Execute(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (ToolResult, error) {
	code, _ := args["code"].(string)
	if strings.TrimSpace(code) == "" {
		return Fail("code cannot be empty"), nil
	}

	if language, ok := args["language"].(string); ok && language != "" && language != "python" {
		return Failf("unsupported language: %s", language), nil
	}

	if err := ScreenCode(code); err != nil {
		return Failf("Code rejected by sandbox policy: %v", err), nil
	}

	interpreter := t.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	cmd := exec.CommandContext(ctx, interpreter, "-I", "-c", sandboxHarness)
	cmd.Stdin = strings.NewReader(code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Fail("execution cancelled"), nil
		}
		return Failf("interpreter failed: %v: %s", err, strings.TrimSpace(stderr.String())), nil
	}

	var report sandboxReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return Failf("unreadable sandbox report: %v", err), nil
	}

	metadata := map[string]any{
		"stdout": report.Stdout,
		"stderr": report.Stderr,
	}

	if report.Error != nil {
		return ToolResult{
			Success:  false,
			Error:    strings.TrimSpace(*report.Error),
			Metadata: metadata,
		}, nil
	}

	var parts []string
	if report.Stdout != "" {
		parts = append(parts, strings.TrimRight(report.Stdout, "\n"))
	}
	if report.Result != nil {
		parts = append(parts, "result: "+*report.Result)
		metadata["result"] = *report.Result
	}

	return Succeed(strings.Join(parts, "\n"), metadata), nil
}
