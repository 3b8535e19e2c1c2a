package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ============================================================================
// FILE OPERATIONS TOOL
// ============================================================================

// FileOperationsTool performs file system operations scoped to a
// workspace root. Every path resolves inside the root or the operation
// fails; deletion additionally requires the allow-delete flag.
type FileOperationsTool struct {
	workspaceDir string
	allowDelete  bool
}

// NewFileOperationsTool creates a tool rooted at workspaceDir (the
// current directory when empty).
func NewFileOperationsTool(workspaceDir string, allowDelete bool) (*FileOperationsTool, error) {
	if workspaceDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		workspaceDir = wd
	}

	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace directory: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	return &FileOperationsTool{workspaceDir: abs, allowDelete: allowDelete}, nil
}

func (t *FileOperationsTool) Name() string       { return "file_operations" }
func (t *FileOperationsTool) Category() Category { return CategoryFileSystem }

func (t *FileOperationsTool) Description() string {
	return "Perform file system operations inside the workspace: read, write, " +
		"append, list, exists, delete"
}

func (t *FileOperationsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "append", "list", "exists", "delete"},
				"description": "Operation to perform",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "File or directory path, relative to the workspace",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content for write/append operations",
			},
		},
		"required": []string{"operation", "path"},
	}
}

func (t *FileOperationsTool) Execute(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (ToolResult, error) {
	operation, _ := args["operation"].(string)
	pathArg, _ := args["path"].(string)
	content, _ := args["content"].(string)

	if operation == "" || pathArg == "" {
		return Fail("operation and path are required"), nil
	}

	path, err := t.resolvePath(pathArg)
	if err != nil {
		return Fail(err.Error()), nil
	}

	switch operation {
	case "read":
		return t.read(path), nil
	case "write":
		return t.write(path, content, false), nil
	case "append":
		return t.write(path, content, true), nil
	case "list":
		return t.list(path), nil
	case "exists":
		return t.exists(path), nil
	case "delete":
		return t.delete(path), nil
	default:
		return Failf("unknown operation: %s", operation), nil
	}
}

// resolvePath joins relative paths onto the workspace root and rejects
// any path that escapes it, symlinks included.
func (t *FileOperationsTool) resolvePath(pathArg string) (string, error) {
	path := pathArg
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.workspaceDir, path)
	}
	path = filepath.Clean(path)

	// Resolve symlinks on the deepest existing ancestor so a link inside
	// the workspace cannot point operations outside it, even when the
	// remaining components do not exist yet and MkdirAll would create them
	// through the link.
	resolved := path
	if r, err := filepath.EvalSymlinks(path); err == nil {
		resolved = r
	} else {
		ancestor := path
		var missing []string
		for {
			parent := filepath.Dir(ancestor)
			if parent == ancestor {
				break
			}
			missing = append(missing, filepath.Base(ancestor))
			ancestor = parent
			if r, err := filepath.EvalSymlinks(ancestor); err == nil {
				ancestor = r
				break
			}
		}
		for i := len(missing) - 1; i >= 0; i-- {
			ancestor = filepath.Join(ancestor, missing[i])
		}
		resolved = ancestor
	}

	if resolved != t.workspaceDir && !strings.HasPrefix(resolved, t.workspaceDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path '%s' is outside the workspace '%s'", pathArg, t.workspaceDir)
	}
	return resolved, nil
}

func (t *FileOperationsTool) read(path string) ToolResult {
	info, err := os.Stat(path)
	if err != nil {
		return Failf("file does not exist: %s", path)
	}
	if info.IsDir() {
		return Failf("not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Failf("read failed: %v", err)
	}

	return Succeed(string(data), map[string]any{
		"path": path,
		"size": info.Size(),
	})
}

func (t *FileOperationsTool) write(path, content string, appendMode bool) ToolResult {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Failf("creating parent directory: %v", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	verb := "wrote"
	if appendMode {
		flags |= os.O_APPEND
		verb = "appended"
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return Failf("%s failed: %v", verb, err)
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return Failf("%s failed: %v", verb, err)
	}

	return Succeed(fmt.Sprintf("successfully %s %d characters to %s", verb, n, path), map[string]any{
		"path":          path,
		"bytes_written": n,
	})
}

func (t *FileOperationsTool) list(path string) ToolResult {
	info, err := os.Stat(path)
	if err != nil {
		return Failf("directory does not exist: %s", path)
	}
	if !info.IsDir() {
		return Failf("not a directory: %s", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return Failf("list failed: %v", err)
	}

	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{"name": entry.Name()}
		if entry.IsDir() {
			item["type"] = "directory"
		} else {
			item["type"] = "file"
			if fi, err := entry.Info(); err == nil {
				item["size"] = fi.Size()
			}
		}
		items = append(items, item)
	}

	return Succeed(items, map[string]any{
		"path":  path,
		"count": len(items),
	})
}

func (t *FileOperationsTool) exists(path string) ToolResult {
	info, err := os.Stat(path)

	out := map[string]any{"path": path, "exists": err == nil}
	if err == nil {
		if info.IsDir() {
			out["type"] = "directory"
		} else if info.Mode().IsRegular() {
			out["type"] = "file"
		} else {
			out["type"] = "other"
		}
	}

	return Succeed(out, map[string]any{"path": path})
}

func (t *FileOperationsTool) delete(path string) ToolResult {
	if !t.allowDelete {
		return Fail("delete is disabled; the tool must be created with deletion allowed")
	}

	info, err := os.Stat(path)
	if err != nil {
		return Failf("file does not exist: %s", path)
	}

	kind := "file"
	if info.IsDir() {
		kind = "directory"
		entries, err := os.ReadDir(path)
		if err != nil {
			return Failf("delete failed: %v", err)
		}
		if len(entries) > 0 {
			return Fail("directory is not empty")
		}
	}

	if err := os.Remove(path); err != nil {
		return Failf("delete failed: %v", err)
	}

	return Succeed(fmt.Sprintf("successfully deleted %s: %s", kind, path), map[string]any{
		"path": path,
		"type": kind,
	})
}
