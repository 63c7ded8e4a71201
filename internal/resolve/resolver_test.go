package resolve

import (
	"path"
	"slices"
	"sort"
	"testing"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/fqn"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/frontend"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// corpus parses files in the given order and assembles a resolver input the
// way the aggregator does.
func corpus(t *testing.T, order []string, files map[string]string) Input {
	t.Helper()
	in := Input{Entities: make(map[string]*graph.Entity)}
	mods := make(map[Key]*Module)
	for _, p := range order {
		l, ok := lang.LanguageForExtension(path.Ext(p))
		if !ok {
			t.Fatalf("no language for %s", p)
		}
		fe, ok := frontend.Default().Lookup(l)
		if !ok {
			t.Fatalf("no front-end for %s", l)
		}
		res, err := fe.Parse(p, []byte(files[p]))
		if err != nil {
			t.Fatalf("parse %s: %v", p, err)
		}
		addResult(&in, mods, l, res)
	}
	keys := make([]Key, 0, len(mods))
	for k := range mods {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		in.Modules = append(in.Modules, mods[k])
	}
	return in
}

func addResult(in *Input, mods map[Key]*Module, l lang.Language, res *graph.Result) {
	for id, e := range res.Entities {
		in.Entities[id] = e
	}
	in.Relations = append(in.Relations, res.Relationships...)
	key := KeyFor(l, res.FilePath)
	m := mods[key]
	if m == nil {
		m = NewModule(l, res.FilePath)
		mods[key] = m
	}
	m.AddFile(res)
	for _, p := range res.Pending {
		p.OriginModule = key.ID
		p.OriginLangTag = string(l)
		in.Pending = append(in.Pending, p)
	}
}

func sorted(files map[string]string) []string {
	out := make([]string, 0, len(files))
	for p := range files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func hasRel(rels []graph.Relationship, kind graph.RelationKind, src, dst string) bool {
	for _, r := range rels {
		if r.Kind == kind && r.SourceID == src && r.TargetID == dst {
			return true
		}
	}
	return false
}

func findRel(rels []graph.Relationship, kind graph.RelationKind, src, dst string) *graph.Relationship {
	for i := range rels {
		if rels[i].Kind == kind && rels[i].SourceID == src && rels[i].TargetID == dst {
			return &rels[i]
		}
	}
	return nil
}

func diagnostics(out Output, kind string) []Diagnostic {
	var ds []Diagnostic
	for _, d := range out.Diagnostics {
		if d.Kind == kind {
			ds = append(ds, d)
		}
	}
	return ds
}

var userApp = map[string]string{
	"src/user.js": `export function getUser(id) {
  return { id };
}
`,
	"src/app.js": `import { getUser } from './user';

function main() {
  getUser(1);
}
`,
}

func TestTwoPassResolution(t *testing.T) {
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(userApp), userApp))
	target := "Function:src/user.js:getUser:1"
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("src/app.js"), target) {
		t.Errorf("missing IMPORTS app.js -> getUser; got %v", out.Relationships)
	}
	if !hasRel(out.Relationships, graph.RelCalls, "Function:src/app.js:main:3", target) {
		t.Errorf("missing CALLS main -> getUser")
	}
	if out.Stats.Resolved != 2 || out.Stats.Dropped != 0 || out.Stats.Degraded != 0 {
		t.Errorf("stats = %+v", out.Stats)
	}
}

func TestFileOrderDoesNotMatter(t *testing.T) {
	order := sorted(userApp)
	a := New(fqn.Options{}, FirstLine).Resolve(corpus(t, order, userApp))
	slices.Reverse(order)
	b := New(fqn.Options{}, FirstLine).Resolve(corpus(t, order, userApp))

	keys := func(rels []graph.Relationship) []string {
		var out []string
		for _, r := range rels {
			out = append(out, r.Key())
		}
		sort.Strings(out)
		return out
	}
	if !slices.Equal(keys(a.Relationships), keys(b.Relationships)) {
		t.Errorf("relationship sets differ:\n%v\n%v", keys(a.Relationships), keys(b.Relationships))
	}
	if a.Stats != b.Stats {
		t.Errorf("stats differ: %+v vs %+v", a.Stats, b.Stats)
	}
}

func TestDegradeToModuleFile(t *testing.T) {
	files := map[string]string{
		"src/user.js": userApp["src/user.js"],
		"src/app.js":  "import { deleteUser } from './user';\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	rel := findRel(out.Relationships, graph.RelImports, graph.FileID("src/app.js"), graph.FileID("src/user.js"))
	if rel == nil {
		t.Fatalf("expected degraded IMPORTS to user.js, got %v", out.Relationships)
	}
	if rel.Attributes["degraded"] != true {
		t.Errorf("attributes = %v", rel.Attributes)
	}
	if out.Stats.Degraded != 1 || len(diagnostics(out, DiagDegraded)) != 1 {
		t.Errorf("stats = %+v", out.Stats)
	}
}

func TestDegradeToDirectoryModule(t *testing.T) {
	files := map[string]string{
		"lib/b.js": "export function helper() {}\n",
		"lib/a.js": "export function aid() {}\n",
		"app.js":   "import { missing } from './lib';\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	rel := findRel(out.Relationships, graph.RelImports, graph.FileID("app.js"), graph.FileID("lib/a.js"))
	if rel == nil {
		t.Fatalf("expected degraded IMPORTS to lib/a.js, got %v", out.Relationships)
	}
	if rel.Attributes["degraded"] != true {
		t.Errorf("attributes = %v", rel.Attributes)
	}
	if out.Stats.Degraded != 1 || out.Stats.Dropped != 0 {
		t.Errorf("stats = %+v", out.Stats)
	}
}

func TestMissingModuleIsDropped(t *testing.T) {
	files := map[string]string{
		"src/app.js": "import { x } from './nowhere';\nimport _ from 'lodash';\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	for _, r := range out.Relationships {
		if r.Kind == graph.RelImports {
			t.Errorf("unexpected %s", r)
		}
	}
	drops := diagnostics(out, DiagDropped)
	if out.Stats.Dropped != 2 || len(drops) != 2 {
		t.Fatalf("stats = %+v, drops = %v", out.Stats, drops)
	}
	if drops[0].Ref.ModulePath != "./nowhere" || drops[0].Reason != "module not found" {
		t.Errorf("diagnostic = %+v", drops[0])
	}
}

func TestExtendsIsNeverDegraded(t *testing.T) {
	files := map[string]string{
		"base.py": "class Base:\n    pass\n",
		"app.py":  "from base import Missing\n\n\nclass Admin(Missing):\n    pass\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	for _, r := range out.Relationships {
		if r.Kind == graph.RelExtends {
			t.Errorf("unexpected %s", r)
		}
	}
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("app.py"), graph.FileID("base.py")) {
		t.Error("the import itself should degrade to base.py")
	}
	if out.Stats.Dropped != 1 || out.Stats.Degraded != 1 {
		t.Errorf("stats = %+v", out.Stats)
	}
}

func TestReexportChain(t *testing.T) {
	files := map[string]string{
		"lib/b.js":     "export function helper() {}\n",
		"lib/a.js":     "export { helper as aid } from './b';\n",
		"lib/index.js": "export * from './a';\n",
		"app.js":       "import { aid } from './lib';\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("app.js"), "Function:lib/b.js:helper:1") {
		t.Errorf("re-export chain not followed: %v", out.Relationships)
	}
}

func TestReexportCycleTerminates(t *testing.T) {
	files := map[string]string{
		"a.js":   "export * from './b';\n",
		"b.js":   "export * from './a';\n",
		"app.js": "import { z } from './a';\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("app.js"), graph.FileID("a.js")) {
		t.Errorf("expected degrade to a.js, got %v", out.Relationships)
	}
}

// duplicates builds a module exporting "dup" twice, on lines 2 and 9.
func duplicates() Input {
	in := Input{Entities: make(map[string]*graph.Entity)}
	lib := graph.NewResult("lib.js", string(lang.JavaScript), []byte("\n\n\n\n\n\n\n\n\n\n"))
	for _, line := range []int{9, 2} {
		e := &graph.Entity{
			ID:        graph.EntityID(graph.KindFunction, "lib.js", "dup", line),
			Kind:      graph.KindFunction,
			Name:      "dup",
			StartLine: line,
			EndLine:   line,
		}
		lib.AddEntity(e)
		lib.Export("dup", e.ID, graph.ExportNamed)
	}
	app := graph.NewResult("app.js", string(lang.JavaScript), nil)
	app.Defer(graph.PendingReference{
		OriginID:   app.File().ID,
		Name:       "dup",
		ModulePath: "./lib",
		Kind:       graph.RelImports,
	})
	mods := make(map[Key]*Module)
	addResult(&in, mods, lang.JavaScript, app)
	addResult(&in, mods, lang.JavaScript, lib)
	in.Modules = []*Module{mods[KeyFor(lang.JavaScript, "app.js")], mods[KeyFor(lang.JavaScript, "lib.js")]}
	return in
}

func TestTieBreak(t *testing.T) {
	tests := []struct {
		tb       TieBreak
		want     string
		degraded int
	}{
		{FirstLine, "Function:lib.js:dup:2", 0},
		{LastLine, "Function:lib.js:dup:9", 0},
		{DegradeAmbiguous, graph.FileID("lib.js"), 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.tb), func(t *testing.T) {
			out := New(fqn.Options{}, tt.tb).Resolve(duplicates())
			if !hasRel(out.Relationships, graph.RelImports, graph.FileID("app.js"), tt.want) {
				t.Errorf("want IMPORTS -> %s, got %v", tt.want, out.Relationships)
			}
			amb := diagnostics(out, DiagAmbiguous)
			if len(amb) != 1 || out.Stats.Ambiguous != 1 {
				t.Fatalf("ambiguous diagnostics = %v", amb)
			}
			want := []string{"Function:lib.js:dup:2", "Function:lib.js:dup:9"}
			if !slices.Equal(amb[0].Competing, want) {
				t.Errorf("competing = %v, want %v", amb[0].Competing, want)
			}
			if out.Stats.Degraded != tt.degraded {
				t.Errorf("degraded = %d, want %d", out.Stats.Degraded, tt.degraded)
			}
		})
	}
}

func TestParseTieBreak(t *testing.T) {
	for in, want := range map[string]TieBreak{"": FirstLine, "first_line": FirstLine, "last_line": LastLine, "degrade": DegradeAmbiguous} {
		got, err := ParseTieBreak(in)
		if err != nil || got != want {
			t.Errorf("ParseTieBreak(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseTieBreak("random"); err == nil {
		t.Error("expected error for unknown tie_break")
	}
}

func TestGoPackageAcrossFiles(t *testing.T) {
	files := map[string]string{
		"pkg/a.go": "package pkg\n\ntype Store struct{}\n",
		"pkg/b.go": "package pkg\n\nfunc (s *Store) Open() {}\n\nfunc run() { helper() }\n",
		"pkg/c.go": "package pkg\n\nfunc helper() {}\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	if !hasRel(out.Relationships, graph.RelDefines, "Class:pkg/a.go:Store:3", "Function:pkg/b.go:Open:3") {
		t.Errorf("receiver in another file should become DEFINES; got %v", out.Relationships)
	}
	if !hasRel(out.Relationships, graph.RelCalls, "Function:pkg/b.go:run:5", "Function:pkg/c.go:helper:3") {
		t.Errorf("same-package call not resolved")
	}
}

func TestGoModulePrefix(t *testing.T) {
	files := map[string]string{
		"main.go":        "package main\n\nimport \"example.com/shop/store\"\n\nfunc main() { store.Open() }\n",
		"store/store.go": "package store\n\nfunc Open() {}\n",
	}
	out := New(fqn.Options{GoModule: "example.com/shop"}, FirstLine).Resolve(corpus(t, sorted(files), files))
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("main.go"), graph.FileID("store/store.go")) {
		t.Errorf("missing package IMPORTS; got %v", out.Relationships)
	}
	if !hasRel(out.Relationships, graph.RelCalls, "Function:main.go:main:5", "Function:store/store.go:Open:3") {
		t.Errorf("missing CALLS main -> store.Open")
	}
}

func TestPythonPackageForwardsImports(t *testing.T) {
	files := map[string]string{
		"pkg/__init__.py": "from .models import User\n",
		"pkg/models.py":   "class User:\n    pass\n",
		"app.py":          "from pkg import User\nfrom pkg import models\n\n\nclass Admin(User):\n    pass\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	if !hasRel(out.Relationships, graph.RelExtends, "Class:app.py:Admin:5", "Class:pkg/models.py:User:1") {
		t.Errorf("EXTENDS through package not resolved; got %v", out.Relationships)
	}
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("app.py"), graph.FileID("pkg/models.py")) {
		t.Errorf("submodule import not resolved to its file")
	}
}

func TestCIncludeResolution(t *testing.T) {
	files := map[string]string{
		"main.c": "#include \"util.h\"\n\nint main(void) { return helper(); }\n",
		"util.h": "int helper(void);\n",
		"util.c": "#include \"util.h\"\n\nint helper(void) { return 1; }\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("main.c"), graph.FileID("util.h")) {
		t.Errorf("include should link to the header; got %v", out.Relationships)
	}
	if !hasRel(out.Relationships, graph.RelCalls, "Function:main.c:main:3", "Function:util.c:helper:3") {
		t.Errorf("call through include not resolved")
	}
}

func TestJavaSamePackage(t *testing.T) {
	files := map[string]string{
		"src/com/acme/Base.java":  "package com.acme;\n\npublic class Base {}\n",
		"src/com/acme/Admin.java": "package com.acme;\n\npublic class Admin extends Base {}\n",
	}
	out := New(fqn.Options{SourceRoots: []string{"src"}}, FirstLine).Resolve(corpus(t, sorted(files), files))
	if !hasRel(out.Relationships, graph.RelExtends, "Class:src/com/acme/Admin.java:Admin:3", "Class:src/com/acme/Base.java:Base:3") {
		t.Errorf("same-package EXTENDS not resolved; got %v", out.Relationships)
	}
}

func TestRustCratePaths(t *testing.T) {
	files := map[string]string{
		"src/lib.rs":    "mod models;\nuse crate::models::User;\n",
		"src/models.rs": "pub struct User {}\n",
	}
	out := New(fqn.Options{}, FirstLine).Resolve(corpus(t, sorted(files), files))
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("src/lib.rs"), "Class:src/models.rs:User:1") {
		t.Errorf("crate:: import not resolved; got %v", out.Relationships)
	}
	if !hasRel(out.Relationships, graph.RelImports, graph.FileID("src/lib.rs"), graph.FileID("src/models.rs")) {
		t.Errorf("mod declaration not linked to its file")
	}
}

func TestRelationshipsAreDeduplicated(t *testing.T) {
	rel := graph.Relationship{SourceID: "a", TargetID: "b", Kind: graph.RelCalls}
	out := New(fqn.Options{}, FirstLine).Resolve(Input{Relations: []graph.Relationship{rel, rel}})
	if len(out.Relationships) != 1 {
		t.Errorf("got %d relationships, want 1", len(out.Relationships))
	}
}
