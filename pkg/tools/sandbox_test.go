package tools

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func TestScreenCodeAllows(t *testing.T) {
	snippets := []string{
		"result = 2 + 2",
		"import math\nresult = math.sqrt(16)",
		"from collections import Counter\nresult = Counter('aab')",
		"import datetime\nprint(datetime.date(2020, 1, 1))",
		"from decimal import Decimal\nresult = Decimal('0.1') + Decimal('0.2')",
		`print("call open(path) to read a file")`,
		`s = 'import os'` + "\nresult = len(s)",
		`doc = """eval(x) and exec(y) are builtins"""` + "\nresult = doc",
	}
	for _, code := range snippets {
		if err := ScreenCode(code); err != nil {
			t.Errorf("expected %q to pass screening, got %v", code, err)
		}
	}
}

func TestScreenCodeRejects(t *testing.T) {
	cases := []struct {
		name    string
		code    string
		wantErr string
	}{
		{"import os", "import os", "import of module 'os' is not allowed"},
		{"from subprocess", "from subprocess import run", "import of module 'subprocess' is not allowed"},
		{"dotted import", "import os.path", "import of module 'os' is not allowed"},
		{"indented import", "if True:\n    import socket", "import of module 'socket' is not allowed"},
		{"same-line import", "x = 1; import os", "import of module 'os' is not allowed"},
		{"eval", "eval('1+1')", "use of 'eval' is not allowed"},
		{"exec", "exec('x = 1')", "use of 'exec' is not allowed"},
		{"dunder import", "__import__('os')", "use of '__import__' is not allowed"},
		{"open", "open('/etc/passwd')", "use of 'open' is not allowed"},
		{"class escape", "().__class__", "access to attribute '__class__' is not allowed"},
		{"subclasses walk", "x = object.__subclasses__()", "access to attribute '__subclasses__' is not allowed"},
		{"globals", "f.__globals__", "access to attribute '__globals__' is not allowed"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := ScreenCode(tt.code)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("got %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func runSandbox(t *testing.T, code string) ToolResult {
	t.Helper()
	tool := NewCodeExecutorTool()
	result, err := tool.Execute(context.Background(), map[string]any{"code": code}, nil)
	if err != nil {
		t.Fatalf("Execute returned an error: %v", err)
	}
	return result
}

func TestSandboxExecutesResult(t *testing.T) {
	requirePython(t)

	result := runSandbox(t, "result = sum(range(10))")
	if !result.Success {
		t.Fatalf("unexpected failure: %s", result.Error)
	}
	if result.OutputString() != "result: 45" {
		t.Errorf("unexpected output: %q", result.OutputString())
	}
}

func TestSandboxCapturesStdout(t *testing.T) {
	requirePython(t)

	result := runSandbox(t, "print('hello')\nresult = 1")
	if !result.Success {
		t.Fatalf("unexpected failure: %s", result.Error)
	}
	if result.OutputString() != "hello\nresult: 1" {
		t.Errorf("unexpected output: %q", result.OutputString())
	}
	if result.Metadata["stdout"] != "hello\n" {
		t.Errorf("unexpected stdout metadata: %v", result.Metadata["stdout"])
	}
}

func TestSandboxReportsRuntimeError(t *testing.T) {
	requirePython(t)

	result := runSandbox(t, "result = 1 / 0")
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "ZeroDivisionError") {
		t.Errorf("expected a ZeroDivisionError traceback, got %q", result.Error)
	}
}

func TestSandboxGuardedImportAtRuntime(t *testing.T) {
	requirePython(t)

	// Allowed modules pass the harness import guard too.
	result := runSandbox(t, "import json\nresult = json.loads('{\"a\": 1}')[\"a\"]")
	if !result.Success || result.OutputString() != "result: 1" {
		t.Fatalf("allowed import failed: %+v", result)
	}
}

func TestSandboxRejectsBeforeRunning(t *testing.T) {
	// No interpreter needed: policy rejection happens in-process.
	result := runSandbox(t, "import os\nos.system('true')")
	if result.Success {
		t.Fatal("expected policy rejection")
	}
	if !strings.HasPrefix(result.Error, "Code rejected by sandbox policy:") {
		t.Errorf("unexpected error: %q", result.Error)
	}
}

func TestSandboxUnsupportedLanguage(t *testing.T) {
	tool := NewCodeExecutorTool()
	result, err := tool.Execute(context.Background(), map[string]any{
		"code":     "puts 'hi'",
		"language": "ruby",
	}, nil)
	if err != nil {
		t.Fatalf("Execute returned an error: %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "unsupported language: ruby") {
		t.Errorf("unexpected result: %+v", result)
	}
}
