package tools

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/driftcode/agentrunner/internal/agent"
)

// DefaultMaxReadBytes caps how much of a file read_file will return in a
// single call, matching the teacher's read tool default.
const DefaultMaxReadBytes = 200_000

// ReadFileTool reads a byte window of a workspace file.
type ReadFileTool struct {
	resolver   Resolver
	maxReadLen int
}

// NewReadFileTool builds a read_file tool scoped to workspace.
func NewReadFileTool(workspace string, maxReadBytes int) *ReadFileTool {
	if maxReadBytes <= 0 {
		maxReadBytes = DefaultMaxReadBytes
	}
	return &ReadFileTool{resolver: Resolver{Root: workspace}, maxReadLen: maxReadBytes}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file from the workspace with an optional byte offset and limit." }

func (t *ReadFileTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"path":      map[string]any{"type": "string", "description": "Path to the file, relative to the workspace."},
		"offset":    map[string]any{"type": "integer", "description": "Byte offset to start reading from.", "minimum": 0},
		"max_bytes": map[string]any{"type": "integer", "description": "Maximum bytes to read (capped by the tool's own limit).", "minimum": 0},
	}, "path")
}

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	path, _ := stringArg(input, "path")
	if strings.TrimSpace(path) == "" {
		return fail("path is required"), nil
	}
	offset := int64(intArg(input, "offset", 0))
	if offset < 0 {
		return fail("offset must be >= 0"), nil
	}
	maxBytes := intArg(input, "max_bytes", 0)

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return fail("%s", err.Error()), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return fail("open file: %v", err), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fail("stat file: %v", err), nil
	}
	if info.IsDir() {
		return fail("%s is a directory", path), nil
	}

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return fail("seek file: %v", err), nil
		}
	}

	limit := t.maxReadLen
	if maxBytes > 0 && maxBytes < limit {
		limit = maxBytes
	}

	remaining := info.Size() - offset
	if remaining < 0 {
		remaining = 0
	}
	if remaining > int64(limit) {
		remaining = int64(limit)
	}

	buf, err := io.ReadAll(io.LimitReader(file, remaining))
	if err != nil {
		return fail("read file: %v", err), nil
	}

	truncated := offset+int64(len(buf)) < info.Size()

	return ok(map[string]any{
		"path":      path,
		"content":   string(buf),
		"offset":    offset,
		"bytes":     len(buf),
		"truncated": truncated,
	}), nil
}

// DefaultMaxWriteBytes caps the content length write_file will accept in a
// single call.
const DefaultMaxWriteBytes = 5_000_000

// WriteFileTool writes or appends content to a workspace file.
type WriteFileTool struct {
	resolver    Resolver
	maxWriteLen int
}

// NewWriteFileTool builds a write_file tool scoped to workspace.
func NewWriteFileTool(workspace string, maxWriteBytes int) *WriteFileTool {
	if maxWriteBytes <= 0 {
		maxWriteBytes = DefaultMaxWriteBytes
	}
	return &WriteFileTool{resolver: Resolver{Root: workspace}, maxWriteLen: maxWriteBytes}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file in the workspace, overwriting by default." }

func (t *WriteFileTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"path":    map[string]any{"type": "string", "description": "Path to write, relative to the workspace."},
		"content": map[string]any{"type": "string", "description": "File contents to write."},
		"append":  map[string]any{"type": "boolean", "description": "Append instead of overwrite."},
	}, "path", "content")
}

func (t *WriteFileTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	path, _ := stringArg(input, "path")
	if strings.TrimSpace(path) == "" {
		return fail("path is required"), nil
	}
	content, _ := stringArg(input, "content")
	if len(content) > t.maxWriteLen {
		return fail("content exceeds maximum write size of %d bytes", t.maxWriteLen), nil
	}
	appendMode := boolArg(input, "append")

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return fail("%s", err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fail("create directory: %v", err), nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return fail("open file: %v", err), nil
	}
	defer file.Close()

	n, err := file.WriteString(content)
	if err != nil {
		return fail("write file: %v", err), nil
	}

	return ok(map[string]any{
		"path":          path,
		"bytes_written": n,
		"append":        appendMode,
	}), nil
}

// ListDirectoryTool lists the entries of a workspace directory.
type ListDirectoryTool struct {
	resolver Resolver
}

// NewListDirectoryTool builds a list_directory tool scoped to workspace.
func NewListDirectoryTool(workspace string) *ListDirectoryTool {
	return &ListDirectoryTool{resolver: Resolver{Root: workspace}}
}

func (t *ListDirectoryTool) Name() string        { return "list_directory" }
func (t *ListDirectoryTool) Description() string { return "List the entries of a workspace directory." }

func (t *ListDirectoryTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"path": map[string]any{"type": "string", "description": "Directory to list, relative to the workspace (default: workspace root)."},
	})
}

func (t *ListDirectoryTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	path, _ := stringArg(input, "path")
	if path == "" {
		path = "."
	}

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return fail("%s", err.Error()), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return fail("read directory: %v", err), nil
	}

	type entry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
		Size  int64  `json:"size"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, entry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return ok(map[string]any{"path": path, "entries": out}), nil
}

// GlobTool matches workspace-relative filename patterns.
type GlobTool struct {
	resolver Resolver
}

// NewGlobTool builds a glob tool scoped to workspace.
func NewGlobTool(workspace string) *GlobTool {
	return &GlobTool{resolver: Resolver{Root: workspace}}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files in the workspace matching a glob pattern." }

func (t *GlobTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"pattern": map[string]any{"type": "string", "description": "Glob pattern, e.g. \"**/*.go\" or \"internal/*/*.go\"."},
	}, "pattern")
}

func (t *GlobTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	pattern, _ := stringArg(input, "pattern")
	if strings.TrimSpace(pattern) == "" {
		return fail("pattern is required"), nil
	}

	root, err := t.resolver.Resolve(".")
	if err != nil {
		return fail("%s", err.Error()), nil
	}

	var matches []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		matched, _ := doublestarMatch(pattern, filepath.ToSlash(rel))
		if matched && !d.IsDir() {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return fail("walk workspace: %v", err), nil
	}
	sort.Strings(matches)

	return ok(map[string]any{"pattern": pattern, "matches": matches}), nil
}

// doublestarMatch supports a "**" path-spanning wildcard on top of
// filepath.Match, which only matches within a single path segment.
func doublestarMatch(pattern, name string) (bool, error) {
	if !strings.Contains(pattern, "**") {
		return filepath.Match(pattern, name)
	}
	segments := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(segments[0], "/")
	suffix := strings.TrimPrefix(segments[1], "/")
	if prefix != "" && !strings.HasPrefix(name, prefix) {
		return false, nil
	}
	rest := strings.TrimPrefix(name, prefix)
	rest = strings.TrimPrefix(rest, "/")
	if suffix == "" {
		return true, nil
	}
	return filepath.Match(suffix, filepath.Base(rest))
}

// GrepTool searches workspace file contents for a substring match per line.
type GrepTool struct {
	resolver Resolver
}

// NewGrepTool builds a grep tool scoped to workspace.
func NewGrepTool(workspace string) *GrepTool {
	return &GrepTool{resolver: Resolver{Root: workspace}}
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search workspace files for lines containing a pattern." }

func (t *GrepTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"pattern":    map[string]any{"type": "string", "description": "Substring to search for."},
		"path":       map[string]any{"type": "string", "description": "Directory to search, relative to the workspace (default: workspace root)."},
		"ignorecase": map[string]any{"type": "boolean", "description": "Case-insensitive match."},
	}, "pattern")
}

func (t *GrepTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	pattern, _ := stringArg(input, "pattern")
	if strings.TrimSpace(pattern) == "" {
		return fail("pattern is required"), nil
	}
	path, _ := stringArg(input, "path")
	if path == "" {
		path = "."
	}
	ignoreCase := boolArg(input, "ignorecase")
	needle := pattern
	if ignoreCase {
		needle = strings.ToLower(needle)
	}

	root, err := t.resolver.Resolve(path)
	if err != nil {
		return fail("%s", err.Error()), nil
	}

	type hit struct {
		Path string `json:"path"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var hits []hit

	err = filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = p
		}
		for i, line := range strings.Split(string(data), "\n") {
			haystack := line
			if ignoreCase {
				haystack = strings.ToLower(haystack)
			}
			if strings.Contains(haystack, needle) {
				hits = append(hits, hit{Path: rel, Line: i + 1, Text: line})
			}
		}
		return nil
	})
	if err != nil {
		return fail("walk workspace: %v", err), nil
	}

	return ok(map[string]any{"pattern": pattern, "matches": hits}), nil
}
