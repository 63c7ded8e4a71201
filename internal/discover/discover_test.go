package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiscoverBasic(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"main.go": "package main\n",
		"app.py":  "def main(): pass\n",
	})

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	// sorted by relative path
	if files[0].RelPath != "app.py" || files[0].Language != lang.Python {
		t.Errorf("files[0] = %+v", files[0])
	}
	if files[1].RelPath != "main.go" || files[1].Language != lang.Go {
		t.Errorf("files[1] = %+v", files[1])
	}
	for _, f := range files {
		if !filepath.IsAbs(f.Path) {
			t.Errorf("expected absolute Path, got %s", f.Path)
		}
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"main.go": "package main\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, dir, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDiscoverIgnoreRules(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		".gitignore":                "generated/\n*.gen.go\n",
		".cgrignore":                "# comment\nlegacy\n",
		"node_modules/dep/index.js": "module.exports = 1\n",
		"generated/api.go":          "package generated\n",
		"pkg/model.gen.go":          "package pkg\n",
		"pkg/model.go":              "package pkg\n",
		"legacy/old.py":             "x = 1\n",
		"src/app.ts":                "export const a = 1\n",
		"src/app.test.ts":           "export const b = 1\n",
	})

	files, err := Discover(context.Background(), dir, &Options{Exclude: []string{"**/*.test.ts"}})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"pkg/model.go", "src/app.ts"}
	if got := relPaths(files); !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscoverNoGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		".gitignore": "gen.py\n",
		"gen.py":     "x = 1\n",
	})
	files, err := Discover(context.Background(), dir, &Options{NoGitignore: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := relPaths(files); !equal(got, []string{"gen.py"}) {
		t.Errorf("got %v", got)
	}
}

func TestDiscoverInvalidExclude(t *testing.T) {
	_, err := Discover(context.Background(), t.TempDir(), &Options{Exclude: []string{"[unclosed"}})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestDiscoverLanguagesAndUnknown(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.py":      "x = 1\n",
		"b.rs":      "fn main() {}\n",
		"notes.xyz": "hello\n",
		"Makefile":  "all:\n",
	})

	files, err := Discover(context.Background(), dir, &Options{Languages: []lang.Language{lang.Rust}})
	if err != nil {
		t.Fatal(err)
	}
	if got := relPaths(files); !equal(got, []string{"b.rs"}) {
		t.Errorf("languages filter: got %v", got)
	}

	files, err = Discover(context.Background(), dir, &Options{IncludeUnknown: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := relPaths(files); !equal(got, []string{"a.py", "b.rs", "notes.xyz"}) {
		t.Fatalf("include unknown: got %v", got)
	}
	if files[2].Language != "" {
		t.Errorf("unknown file should carry no language, got %q", files[2].Language)
	}
}

func TestDiscoverNotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.py": "x = 1\n"})
	if _, err := Discover(context.Background(), filepath.Join(dir, "a.py"), nil); err == nil {
		t.Fatal("expected error for a file root")
	}
}
