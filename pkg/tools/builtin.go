package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/maestro/pkg/retry"
)

// schemaFor reflects a JSON Schema from an argument struct.
func schemaFor(v any) map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// BuiltinNames lists the tool names known ahead of discovery.
func BuiltinNames() []string {
	return []string{"read_file", "write_file", "list_dir", "search_text"}
}

// Builtins constructs the built-in tool set rooted at dir.
func Builtins(dir string) []Tool {
	return []Tool{
		&readFileTool{root: dir},
		&writeFileTool{root: dir},
		&listDirTool{root: dir},
		&searchTextTool{root: dir},
	}
}

// resolvePath confines a relative path to the root directory.
func resolvePath(root, path string) (string, error) {
	if path == "" {
		return "", retry.New(retry.KindValidation, "path is required")
	}
	full := filepath.Join(root, filepath.Clean(path))
	rel, err := filepath.Rel(root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", retry.Newf(retry.KindValidation, "path escapes the working directory: %s", path)
	}
	return full, nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
}

type readFileTool struct {
	root string
}

func (t *readFileTool) Name() string        { return "read_file" }
func (t *readFileTool) Description() string { return "Read the contents of a file" }
func (t *readFileTool) ServerName() string  { return "" }
func (t *readFileTool) InputSchema() map[string]any {
	return schemaFor(&readFileArgs{})
}

func (t *readFileTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	full, err := resolvePath(t.root, stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return &Result{Content: fmt.Sprintf("failed to read file: %v", err), IsError: true}, nil
	}
	return &Result{Content: string(data)}, nil
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

type writeFileTool struct {
	root string
}

func (t *writeFileTool) Name() string        { return "write_file" }
func (t *writeFileTool) Description() string { return "Write content to a file, creating it if needed" }
func (t *writeFileTool) ServerName() string  { return "" }
func (t *writeFileTool) InputSchema() map[string]any {
	return schemaFor(&writeFileArgs{})
}

func (t *writeFileTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	full, err := resolvePath(t.root, stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &Result{Content: fmt.Sprintf("failed to create directory: %v", err), IsError: true}, nil
	}
	if err := os.WriteFile(full, []byte(stringArg(args, "content")), 0o644); err != nil {
		return &Result{Content: fmt.Sprintf("failed to write file: %v", err), IsError: true}, nil
	}
	return &Result{Content: fmt.Sprintf("wrote %s", stringArg(args, "path"))}, nil
}

type listDirArgs struct {
	Path string `json:"path" jsonschema:"description=Directory path relative to the working directory,default=."`
}

type listDirTool struct {
	root string
}

func (t *listDirTool) Name() string        { return "list_dir" }
func (t *listDirTool) Description() string { return "List the entries of a directory" }
func (t *listDirTool) ServerName() string  { return "" }
func (t *listDirTool) InputSchema() map[string]any {
	return schemaFor(&listDirArgs{})
}

func (t *listDirTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	path := stringArg(args, "path")
	if path == "" {
		path = "."
	}
	full, err := resolvePath(t.root, path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return &Result{Content: fmt.Sprintf("failed to list directory: %v", err), IsError: true}, nil
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			b.WriteString(entry.Name() + "/\n")
		} else {
			b.WriteString(entry.Name() + "\n")
		}
	}
	return &Result{Content: b.String()}, nil
}

type searchTextArgs struct {
	Query string `json:"query" jsonschema:"required,description=Substring to search for"`
	Path  string `json:"path" jsonschema:"description=Directory to search under,default=."`
}

type searchTextTool struct {
	root string
}

func (t *searchTextTool) Name() string        { return "search_text" }
func (t *searchTextTool) Description() string { return "Search files for a substring, line by line" }
func (t *searchTextTool) ServerName() string  { return "" }
func (t *searchTextTool) InputSchema() map[string]any {
	return schemaFor(&searchTextArgs{})
}

func (t *searchTextTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, retry.New(retry.KindValidation, "query is required")
	}
	path := stringArg(args, "path")
	if path == "" {
		path = "."
	}
	full, err := resolvePath(t.root, path)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	matches := 0
	err = filepath.WalkDir(full, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || matches >= 100 {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()

		rel, _ := filepath.Rel(t.root, p)
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			if strings.Contains(scanner.Text(), query) {
				fmt.Fprintf(&b, "%s:%d: %s\n", rel, line, scanner.Text())
				matches++
				if matches >= 100 {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return &Result{Content: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}
	if matches == 0 {
		return &Result{Content: "no matches"}, nil
	}
	return &Result{Content: b.String()}, nil
}
