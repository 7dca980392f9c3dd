package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"main.py":            "def handler(req):\n    pass\n\n\nclass Server:\n    def start(self):\n        pass\n",
		"lib/util.js":        "export function add(a, b) {\n  return a + b;\n}\n\nconst mul = (a, b) => a * b;\n",
		"lib/types.ts":       "export interface Config {\n  port: number;\n}\n",
		"README.md":          "# Project\n",
		"node_modules/x.js":  "should not be indexed",
	}
	for rel, content := range files {
		abs := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNew_IgnoresVendoredDirs(t *testing.T) {
	dir := writeTestWorkspace(t)
	idx, err := New(context.Background(), Config{Root: dir}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Count() != 4 {
		t.Errorf("expected 4 indexed files, got %d", idx.Count())
	}
	if _, ok := idx.files["node_modules/x.js"]; ok {
		t.Error("node_modules should be ignored")
	}
}

func TestSymbols_Python(t *testing.T) {
	dir := writeTestWorkspace(t)
	idx, err := New(context.Background(), Config{Root: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := idx.Symbols(context.Background(), "main.py")
	if err != nil {
		t.Fatal(err)
	}
	if !contains(out, "function handler") {
		t.Errorf("expected handler function, got: %s", out)
	}
	if !contains(out, "class Server") {
		t.Errorf("expected Server class, got: %s", out)
	}
}

func TestSearch_ExactMode(t *testing.T) {
	dir := writeTestWorkspace(t)
	idx, err := New(context.Background(), Config{Root: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := idx.Search(context.Background(), "exact", "handler", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(out, "main.py") {
		t.Errorf("expected main.py in exact search results, got: %s", out)
	}
}

func TestSearch_SymbolMode(t *testing.T) {
	dir := writeTestWorkspace(t)
	idx, err := New(context.Background(), Config{Root: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := idx.Search(context.Background(), "symbol", "add", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(out, "lib/util.js") {
		t.Errorf("expected lib/util.js to match symbol add, got: %s", out)
	}
}

func TestSearch_UnknownMode(t *testing.T) {
	dir := writeTestWorkspace(t)
	idx, err := New(context.Background(), Config{Root: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Search(context.Background(), "bogus", "x", nil); err == nil {
		t.Error("expected error for unknown search mode")
	}
}

func TestStructure_RespectsDepth(t *testing.T) {
	dir := writeTestWorkspace(t)
	idx, err := New(context.Background(), Config{Root: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := idx.Structure(context.Background(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if contains(out, "lib/util.js") {
		t.Error("depth 0 should not include nested lib/ files")
	}
}

func contains(s, substr string) bool {
	return len(substr) == 0 || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
