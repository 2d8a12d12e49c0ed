package repomap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGoFile(t *testing.T, root, rel, contents string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRenderListsFilesAndSymbols(t *testing.T) {
	root := t.TempDir()
	writeGoFile(t, root, "widget/widget.go", `package widget

type Widget struct{}

func New() *Widget { return &Widget{} }

func (w *Widget) Spin() {}
`)

	out, err := Render(root, 0, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "widget/widget.go") {
		t.Errorf("expected file path in output, got:\n%s", out)
	}
	if !strings.Contains(out, "type Widget") {
		t.Errorf("expected type symbol in output, got:\n%s", out)
	}
	if !strings.Contains(out, "func New(...)") {
		t.Errorf("expected func symbol in output, got:\n%s", out)
	}
	if !strings.Contains(out, "func (*Widget) Spin(...)") {
		t.Errorf("expected method symbol with receiver, got:\n%s", out)
	}
	if !strings.Contains(out, "1 files") {
		t.Errorf("expected file count in summary, got:\n%s", out)
	}
}

func TestRenderSkipsVendorAndTestFiles(t *testing.T) {
	root := t.TempDir()
	writeGoFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeGoFile(t, root, "main_test.go", "package main\n\nfunc TestMain_() {}\n")
	writeGoFile(t, root, "vendor/dep/dep.go", "package dep\n\nfunc Ignored() {}\n")

	out, err := Render(root, 0, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out, "vendor") {
		t.Errorf("expected vendor directory to be skipped, got:\n%s", out)
	}
	if strings.Contains(out, "TestMain_") {
		t.Errorf("expected test file to be skipped, got:\n%s", out)
	}
	if !strings.Contains(out, "main.go") {
		t.Errorf("expected main.go listed, got:\n%s", out)
	}
}

func TestRenderRanksImportedFilesFirst(t *testing.T) {
	root := t.TempDir()
	writeGoFile(t, root, "core/core.go", "package core\n\nfunc Run() {}\n")
	writeGoFile(t, root, "leaf/leaf.go", "package leaf\n\nfunc Noop() {}\n")
	writeGoFile(t, root, "caller/caller.go", `package caller

import "github.com/example/app/core"

func Call() { core.Run() }
`)

	out, err := Render(root, 0, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	coreIdx := strings.Index(out, "core/core.go")
	leafIdx := strings.Index(out, "leaf/leaf.go")
	if coreIdx == -1 || leafIdx == -1 {
		t.Fatalf("expected both files present, got:\n%s", out)
	}
	if coreIdx > leafIdx {
		t.Errorf("expected core/core.go (imported) to rank before leaf/leaf.go (unreferenced), got:\n%s", out)
	}
}

func TestRenderRespectsMaxFiles(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeGoFile(t, root, filepath.Join("pkg", string(rune('a'+i))+".go"), "package pkg\n\nfunc F() {}\n")
	}

	out, err := Render(root, 2, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "2 files") {
		t.Errorf("expected file count capped at 2, got:\n%s", out)
	}
}

func TestRenderHandlesEmptyWorkspace(t *testing.T) {
	root := t.TempDir()
	out, err := Render(root, 0, 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "0 files") {
		t.Errorf("expected empty workspace to report 0 files, got:\n%s", out)
	}
}
