package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/driftcode/agentrunner/internal/agent"
)

func newWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return dir
}

func TestResolverRejectsEscape(t *testing.T) {
	r := Resolver{Root: newWorkspace(t)}
	if _, err := r.Resolve("../../etc/passwd"); err == nil {
		t.Fatal("expected an error resolving a path that escapes the workspace")
	}
}

func TestResolverAllowsNestedPath(t *testing.T) {
	root := newWorkspace(t)
	r := Resolver{Root: root}
	resolved, err := r.Resolve("a/b/c.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(root, "a/b/c.txt"))
	if resolved != want {
		t.Errorf("got %q, want %q", resolved, want)
	}
}

func TestReadFileRoundTripsWriteFile(t *testing.T) {
	ws := newWorkspace(t)
	writer := NewWriteFileTool(ws, 0)
	reader := NewReadFileTool(ws, 0)
	ctx := context.Background()

	res, err := writer.Execute(ctx, map[string]any{"path": "hello.txt", "content": "hello world"})
	if err != nil || !res.Success {
		t.Fatalf("write_file failed: %+v, err=%v", res, err)
	}

	res, err = reader.Execute(ctx, map[string]any{"path": "hello.txt"})
	if err != nil || !res.Success {
		t.Fatalf("read_file failed: %+v, err=%v", res, err)
	}
	if want := "hello world"; !strings.Contains(res.Output, want) {
		t.Errorf("expected read output to contain %q, got %q", want, res.Output)
	}
}

func TestWriteFileAppend(t *testing.T) {
	ws := newWorkspace(t)
	writer := NewWriteFileTool(ws, 0)
	ctx := context.Background()

	if _, err := writer.Execute(ctx, map[string]any{"path": "log.txt", "content": "one\n"}); err != nil {
		t.Fatalf("write_file: %v", err)
	}
	res, err := writer.Execute(ctx, map[string]any{"path": "log.txt", "content": "two\n", "append": true})
	if err != nil || !res.Success {
		t.Fatalf("append write_file failed: %+v, err=%v", res, err)
	}

	data, err := os.ReadFile(filepath.Join(ws, "log.txt"))
	if err != nil {
		t.Fatalf("read back file: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("unexpected file contents: %q", data)
	}
}

func TestReadFileMissingPathFails(t *testing.T) {
	reader := NewReadFileTool(newWorkspace(t), 0)
	res, err := reader.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("expected an in-band failure, not a Go error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure when path is missing")
	}
}

func TestListDirectoryListsEntries(t *testing.T) {
	ws := newWorkspace(t)
	if err := os.WriteFile(filepath.Join(ws, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(ws, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	lister := NewListDirectoryTool(ws)
	res, err := lister.Execute(context.Background(), map[string]any{})
	if err != nil || !res.Success {
		t.Fatalf("list_directory failed: %+v, err=%v", res, err)
	}
	if !strings.Contains(res.Output, "a.txt") || !strings.Contains(res.Output, "sub") {
		t.Errorf("expected listing to contain both entries, got %q", res.Output)
	}
}

func TestGlobFindsNestedGoFiles(t *testing.T) {
	ws := newWorkspace(t)
	mustWriteFile(t, ws, "main.go", "package main")
	mustWriteFile(t, ws, "internal/pkg/file.go", "package pkg")
	mustWriteFile(t, ws, "README.md", "# hi")

	g := NewGlobTool(ws)
	res, err := g.Execute(context.Background(), map[string]any{"pattern": "**/*.go"})
	if err != nil || !res.Success {
		t.Fatalf("glob failed: %+v, err=%v", res, err)
	}
	if !strings.Contains(res.Output, "main.go") || !strings.Contains(res.Output, "file.go") {
		t.Errorf("expected both go files matched, got %q", res.Output)
	}
	if strings.Contains(res.Output, "README.md") {
		t.Errorf("expected README.md excluded, got %q", res.Output)
	}
}

func TestGrepFindsMatchingLine(t *testing.T) {
	ws := newWorkspace(t)
	mustWriteFile(t, ws, "main.go", "package main\n\nfunc main() {\n\tTODO()\n}\n")

	g := NewGrepTool(ws)
	res, err := g.Execute(context.Background(), map[string]any{"pattern": "TODO"})
	if err != nil || !res.Success {
		t.Fatalf("grep failed: %+v, err=%v", res, err)
	}
	if !strings.Contains(res.Output, "main.go") {
		t.Errorf("expected match in main.go, got %q", res.Output)
	}
}

func TestShellToolRejectsOutOfAllowlistCommand(t *testing.T) {
	ws := newWorkspace(t)
	sh := NewShellTool(ShellConfig{Workspace: ws, SandboxEnabled: true, AllowedCommands: []string{"echo"}})

	res, err := sh.Execute(context.Background(), map[string]any{"command": "rm -rf /"})
	if err != nil {
		t.Fatalf("expected in-band failure, got Go error: %v", err)
	}
	if res.Success {
		t.Fatal("expected the command to be rejected")
	}
	if !strings.Contains(res.Error, "not in allowed list") {
		t.Errorf("unexpected error message: %q", res.Error)
	}
}

func TestShellToolAllowsAllowlistedCommand(t *testing.T) {
	ws := newWorkspace(t)
	sh := NewShellTool(ShellConfig{Workspace: ws, SandboxEnabled: true, AllowedCommands: []string{"echo"}})

	res, err := sh.Execute(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil || !res.Success {
		t.Fatalf("expected echo to be allowed: %+v, err=%v", res, err)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("expected stdout to contain hello, got %q", res.Output)
	}
}

func TestShellToolAlwaysAllowsGit(t *testing.T) {
	ws := newWorkspace(t)
	sh := NewShellTool(ShellConfig{Workspace: ws, SandboxEnabled: true, AllowedCommands: []string{"echo"}})

	allowed, _ := sh.allowlist.Check("git status")
	if !allowed {
		t.Fatal("expected git to always be allowed regardless of the configured allowlist")
	}
}

func TestShellToolTimesOut(t *testing.T) {
	ws := newWorkspace(t)
	sh := NewShellTool(ShellConfig{Workspace: ws, SandboxEnabled: false, Timeout: 50_000_000}) // 50ms

	res, err := sh.Execute(context.Background(), map[string]any{"command": "sleep 2"})
	if err != nil {
		t.Fatalf("expected in-band failure: %v", err)
	}
	if res.Success {
		t.Fatal("expected the command to time out")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("unexpected error: %q", res.Error)
	}
}

func TestRegisterWiresAllThirteenTools(t *testing.T) {
	reg := agent.NewToolRegistry()
	err := Register(reg, RegisterConfig{Workspace: newWorkspace(t)})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	names := []string{
		"read_file", "write_file", "list_directory", "glob", "grep",
		"shell", "git_status", "git_diff", "git_log", "git_commit",
		"ast_check", "lint", "run_tests",
	}
	for _, name := range names {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("expected %q to be registered", name)
		}
	}
}

func mustWriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

