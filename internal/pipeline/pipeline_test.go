package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/config"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func setupRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		writeFile(t, filepath.Join(dir, rel), content)
	}
	return dir
}

func run(t *testing.T, dir string, opts Options, s *store.Store) *Result {
	t.Helper()
	p := New(dir, opts)
	p.Store = s
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func entityIDs(res *Result) []string {
	ids := make([]string, 0, len(res.Entities))
	for _, e := range res.Entities {
		ids = append(ids, e.ID)
	}
	return ids
}

func relKeys(res *Result) []string {
	keys := make([]string, 0, len(res.Relationships))
	for _, r := range res.Relationships {
		keys = append(keys, r.String())
	}
	return keys
}

func hasRel(res *Result, kind graph.RelationKind, src, dst string) bool {
	for _, r := range res.Relationships {
		if r.Kind == kind && r.SourceID == src && r.TargetID == dst {
			return true
		}
	}
	return false
}

func TestUserAppScenario(t *testing.T) {
	dir := setupRepo(t, map[string]string{
		"src/user.js": "export class User {}\n",
		"src/app.js":  "import { User } from './user';\n\nexport class App extends User {}\n",
	})
	res := run(t, dir, DefaultOptions(), nil)

	user := "Class:src/user.js:User:1"
	app := "Class:src/app.js:App:3"
	want := []string{graph.FileID("src/app.js"), app, graph.FileID("src/user.js"), user}
	for _, id := range want {
		if !slices.Contains(entityIDs(res), id) {
			t.Errorf("missing entity %s; got %v", id, entityIDs(res))
		}
	}
	if len(res.Entities) != len(want) {
		t.Errorf("entities = %v, want %v", entityIDs(res), want)
	}
	if !hasRel(res, graph.RelContains, graph.FileID("src/app.js"), app) {
		t.Error("missing CONTAINS(app.js, App)")
	}
	if !hasRel(res, graph.RelImports, graph.FileID("src/app.js"), user) {
		t.Errorf("missing IMPORTS(app.js, User); got %v", relKeys(res))
	}
	if !hasRel(res, graph.RelExtends, app, user) {
		t.Errorf("missing EXTENDS(App, User); got %v", relKeys(res))
	}
	if res.Summary.References.Dropped != 0 {
		t.Errorf("references = %+v", res.Summary.References)
	}
}

func TestExportClauseBeforeDeclaration(t *testing.T) {
	dir := setupRepo(t, map[string]string{
		"m.js":   "export { f };\nfunction f() {}\n",
		"app.js": "import { f } from './m';\n\nfunction main() { f(); }\n",
	})
	res := run(t, dir, DefaultOptions(), nil)

	f := "Function:m.js:f:2"
	if !hasRel(res, graph.RelImports, graph.FileID("app.js"), f) {
		t.Errorf("missing IMPORTS(app.js, f); got %v", relKeys(res))
	}
	if !hasRel(res, graph.RelCalls, "Function:app.js:main:3", f) {
		t.Errorf("missing CALLS(main, f); got %v", relKeys(res))
	}
	if refs := res.Summary.References; refs.Degraded != 0 || refs.Resolved != 2 {
		t.Errorf("references = %+v", refs)
	}
}

func TestBindingsShareStatementLine(t *testing.T) {
	dir := setupRepo(t, map[string]string{"a.js": "const x = 1, y = 2, z = 3;\n"})
	res := run(t, dir, DefaultOptions(), nil)

	var vars []*graph.Entity
	for _, e := range res.Entities {
		if e.Kind == graph.KindVariable {
			vars = append(vars, e)
		}
	}
	if len(vars) != 3 {
		t.Fatalf("variables = %d, want 3", len(vars))
	}
	for _, v := range vars {
		if v.StartLine != vars[0].StartLine {
			t.Errorf("%s starts on line %d, want %d", v.ID, v.StartLine, vars[0].StartLine)
		}
	}
}

func TestBadFileIsIsolated(t *testing.T) {
	dir := setupRepo(t, map[string]string{
		"bad.js":  "function (\n{{{ ;;; ]]] class\n",
		"good.js": "function f(){}\n",
	})
	res := run(t, dir, DefaultOptions(), nil)

	var fns []string
	for _, e := range res.Entities {
		if e.FilePath == "bad.js" {
			t.Errorf("entity from bad.js reached the graph: %s", e.ID)
		}
		if e.Kind == graph.KindFunction {
			fns = append(fns, e.ID)
		}
	}
	if !slices.Equal(fns, []string{"Function:good.js:f:1"}) {
		t.Errorf("functions = %v", fns)
	}
	if got := res.Summary.Events[diag.ParseFailed]; got != 1 {
		t.Errorf("parse failures = %d, want 1", got)
	}
	st := res.Summary.Languages[lang.JavaScript]
	if st.Attempted != 2 || st.Succeeded != 1 || st.Failed != 1 {
		t.Errorf("javascript stats = %+v", st)
	}
}

func TestMissingModuleIsDropped(t *testing.T) {
	dir := setupRepo(t, map[string]string{
		"app.js": "import { gone } from './missing';\n",
	})
	res := run(t, dir, DefaultOptions(), nil)

	for _, r := range res.Relationships {
		if r.Kind == graph.RelImports {
			t.Errorf("unexpected %s", r)
		}
	}
	if res.Summary.References.Dropped != 1 {
		t.Errorf("references = %+v", res.Summary.References)
	}
	if res.Summary.Events[diag.Unresolved] != 1 {
		t.Errorf("events = %v", res.Summary.Events)
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Ref.OriginFile != "app.js" {
		t.Errorf("diagnostics = %+v", res.Diagnostics)
	}
}

func TestSequentialAndParallelAgree(t *testing.T) {
	files := map[string]string{
		"lib/index.js": "export * from './shapes';\n",
	}
	for i := range 12 {
		files[fmt.Sprintf("lib/shape%d.js", i)] = fmt.Sprintf(
			"export class Shape%d {}\nexport function area%d() { return %d; }\n", i, i, i)
	}
	files["lib/shapes.js"] = "export { Shape0 } from './shape0';\n"
	files["app.js"] = "import { Shape0 } from './lib';\nimport { area3 } from './lib/shape3';\n\n" +
		"class Square extends Shape0 {}\nfunction main() { area3(); }\n"
	dir := setupRepo(t, files)

	seq := DefaultOptions()
	seq.Parallel = false
	par := DefaultOptions()
	par.Parallel = true
	par.MinFiles = 1
	par.MaxWorkers = 4

	a := run(t, dir, seq, nil)
	b := run(t, dir, par, nil)
	if !slices.Equal(entityIDs(a), entityIDs(b)) {
		t.Errorf("entities differ:\nseq %v\npar %v", entityIDs(a), entityIDs(b))
	}
	if !slices.Equal(relKeys(a), relKeys(b)) {
		t.Errorf("relationships differ:\nseq %v\npar %v", relKeys(a), relKeys(b))
	}
	if !hasRel(a, graph.RelCalls, "Function:app.js:main:5", "Function:lib/shape3.js:area3:2") {
		t.Errorf("missing CALLS main -> area3; got %v", relKeys(a))
	}
}

func TestWorkers(t *testing.T) {
	p := New(t.TempDir(), Options{Parallel: true, MinFiles: 50, MaxWorkers: 8})
	tests := []struct {
		files int
		want  int
	}{
		{10, 1},
		{49, 1},
		{50, 8},
		{500, 8},
	}
	for _, tt := range tests {
		if got := p.workers(tt.files); got != tt.want {
			t.Errorf("workers(%d) = %d, want %d", tt.files, got, tt.want)
		}
	}
	p.opts.Parallel = false
	if got := p.workers(500); got != 1 {
		t.Errorf("disabled: workers = %d, want 1", got)
	}
}

func TestUpToDateSkipsStoreWrites(t *testing.T) {
	dir := setupRepo(t, map[string]string{
		"src/user.js": "export class User {}\n",
		"src/app.js":  "import { User } from './user';\n",
	})
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	first := run(t, dir, DefaultOptions(), s)
	if first.Summary.UpToDate {
		t.Fatal("first run cannot be up to date")
	}
	proj, err := s.GetProject(first.Project)
	if err != nil || proj == nil {
		t.Fatalf("project not saved: %v", err)
	}

	second := run(t, dir, DefaultOptions(), s)
	if !second.Summary.UpToDate || len(second.Entities) != 0 {
		t.Errorf("second run: up_to_date=%v entities=%d", second.Summary.UpToDate, len(second.Entities))
	}
	after, _ := s.GetProject(first.Project)
	if after.RunID != proj.RunID {
		t.Errorf("up-to-date run rewrote the project: %s -> %s", proj.RunID, after.RunID)
	}

	forced := DefaultOptions()
	forced.Force = true
	if res := run(t, dir, forced, s); res.Summary.UpToDate {
		t.Error("forced run reported up to date")
	}

	writeFile(t, filepath.Join(dir, "src/user.js"), "export class User {}\nexport class Admin extends User {}\n")
	third := run(t, dir, DefaultOptions(), s)
	if third.Summary.UpToDate {
		t.Fatal("changed file not detected")
	}
	n, err := s.CountNodes(first.Project)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(third.Entities) {
		t.Errorf("stored nodes = %d, want %d", n, len(third.Entities))
	}
}

func TestStoreFailureKeepsGraph(t *testing.T) {
	dir := setupRepo(t, map[string]string{"a.py": "def f():\n    pass\n"})
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	res := run(t, dir, DefaultOptions(), s)
	if res.Summary.StoreError == "" {
		t.Error("store error not reported")
	}
	if res.Summary.Events[diag.StoreFailed] != 1 {
		t.Errorf("events = %v", res.Summary.Events)
	}
	if !slices.Contains(entityIDs(res), "Function:a.py:f:1") {
		t.Errorf("graph lost: %v", entityIDs(res))
	}
}

func TestUnknownLanguageFailsBeforeRun(t *testing.T) {
	opts := DefaultOptions()
	opts.Discover.Languages = []lang.Language{"cobol"}
	_, err := New(t.TempDir(), opts).Run(context.Background())
	if err == nil {
		t.Fatal("expected an error for a language without a front-end")
	}
}

func TestUnsupportedFilesAreSkipped(t *testing.T) {
	dir := setupRepo(t, map[string]string{
		"notes.txt": "hello\n",
		"a.py":      "x = 1\n",
	})
	res := run(t, dir, DefaultOptions(), nil)
	if res.Files != 2 {
		t.Errorf("files = %d, want 2", res.Files)
	}
	if res.Summary.Events[diag.Unsupported] != 1 {
		t.Errorf("events = %v", res.Summary.Events)
	}
	for _, e := range res.Entities {
		if e.FilePath == "notes.txt" {
			t.Errorf("unexpected entity %s", e.ID)
		}
	}
}

func TestCancelledRun(t *testing.T) {
	dir := setupRepo(t, map[string]string{"a.py": "x = 1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(dir, DefaultOptions()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestGoModulePath(t *testing.T) {
	dir := setupRepo(t, map[string]string{
		"go.mod":           "module example.com/shop\n\ngo 1.22\n",
		"main.go":          "package main\n\nimport \"example.com/shop/store\"\n\nfunc main() { store.Open() }\n",
		"store/store.go":   "package store\n\nfunc Open() {}\n",
		"store/helpers.go": "package store\n\nfunc helper() {}\n",
	})
	if got := goModulePath(dir); got != "example.com/shop" {
		t.Fatalf("goModulePath = %q", got)
	}
	res := run(t, dir, DefaultOptions(), nil)
	if !hasRel(res, graph.RelCalls, "Function:main.go:main:5", "Function:store/store.go:Open:3") {
		t.Errorf("missing CALLS main -> store.Open; got %v", relKeys(res))
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Languages = []string{"python"}
	opts, err := FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(opts.Discover.Languages, []lang.Language{lang.Python}) {
		t.Errorf("languages = %v", opts.Discover.Languages)
	}
	if opts.MinFiles != 50 || !opts.Parallel || opts.Parse.TolerateSyntax {
		t.Errorf("opts = %+v", opts)
	}

	cfg.Resolve.TieBreak = "coin_flip"
	if _, err := FromConfig(cfg); err == nil {
		t.Error("expected an error for an unknown tie_break")
	}
}

func TestProjectNameFromPath(t *testing.T) {
	tests := map[string]string{
		"/home/me/src/shop":  "shop",
		"/home/me/src/shop/": "shop",
		"/":                  "root",
	}
	for in, want := range tests {
		if got := ProjectNameFromPath(in); got != want {
			t.Errorf("ProjectNameFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
