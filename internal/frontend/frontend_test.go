package frontend

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

func parseFile(t *testing.T, l lang.Language, path, code string) *graph.Result {
	t.Helper()
	fe, ok := Default().Lookup(l)
	if !ok {
		t.Fatalf("no front-end for %s", l)
	}
	res, err := fe.Parse(path, []byte(code))
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	if err := graph.Validate(res); err != nil {
		t.Fatalf("invalid result for %s: %v", path, err)
	}
	return res
}

func mustEntity(t *testing.T, res *graph.Result, kind graph.EntityKind, name string) *graph.Entity {
	t.Helper()
	e := res.FindEntity(kind, name)
	if e == nil {
		t.Fatalf("missing %s %q in %s; have %v", kind, name, res.FilePath, entityNames(res))
	}
	return e
}

func entityNames(res *graph.Result) []string {
	var out []string
	for id := range res.Entities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func hasRel(res *graph.Result, kind graph.RelationKind, src, dst string) bool {
	for _, r := range res.Relationships {
		if r.Kind == kind && r.SourceID == src && r.TargetID == dst {
			return true
		}
	}
	return false
}

func findPending(res *graph.Result, kind graph.RelationKind, name string) *graph.PendingReference {
	for i := range res.Pending {
		if res.Pending[i].Kind == kind && res.Pending[i].Name == name {
			return &res.Pending[i]
		}
	}
	return nil
}

func exported(res *graph.Result, name string) bool {
	for _, ex := range res.Exports {
		if ex.Name == name {
			return true
		}
	}
	return false
}

func TestRegistryCoversAllLanguages(t *testing.T) {
	if err := Default().Require(lang.AllLanguages()); err != nil {
		t.Fatal(err)
	}
	fb, ok := Default().Fallback(lang.Go)
	if !ok || fb.Name() != "go/parser" {
		t.Fatalf("expected go/parser fallback for go, got %v", fb)
	}
	if _, ok := Default().Fallback(lang.Python); ok {
		t.Error("python should have no fallback")
	}
}

func TestRegistryRequireReportsMissing(t *testing.T) {
	r := NewRegistry()
	r.Register(lang.Python, &treeSitter{lang: lang.Python, extract: extractPython})
	err := r.Require([]lang.Language{lang.Python, lang.Rust})
	if err == nil {
		t.Fatal("expected error for rust")
	}
}

func TestJavaScriptImportAndCall(t *testing.T) {
	user := parseFile(t, lang.JavaScript, "src/user.js", `export function getUser(id) {
  return { id };
}

export class User {}
`)
	fn := mustEntity(t, user, graph.KindFunction, "getUser")
	if fn.ID != "Function:src/user.js:getUser:1" {
		t.Errorf("id = %s", fn.ID)
	}
	if fn.StartLine != 1 || fn.EndLine != 3 {
		t.Errorf("span = %d..%d", fn.StartLine, fn.EndLine)
	}
	if !exported(user, "getUser") || !exported(user, "User") {
		t.Errorf("exports = %v", user.Exports)
	}
	if !hasRel(user, graph.RelContains, graph.FileID("src/user.js"), fn.ID) {
		t.Error("missing CONTAINS to getUser")
	}

	app := parseFile(t, lang.JavaScript, "src/app.js", `import { getUser } from './user';

function main() {
  getUser(1);
}
`)
	imp := findPending(app, graph.RelImports, "getUser")
	if imp == nil || imp.ModulePath != "./user" || imp.OriginID != graph.FileID("src/app.js") {
		t.Fatalf("import pending = %+v", imp)
	}
	call := findPending(app, graph.RelCalls, "getUser")
	main := mustEntity(t, app, graph.KindFunction, "main")
	if call == nil || call.OriginID != main.ID || call.ModulePath != "./user" {
		t.Fatalf("call pending = %+v", call)
	}
	// A front-end never points at entities of another file.
	for _, r := range app.Relationships {
		if _, ok := app.Entities[r.TargetID]; !ok {
			t.Errorf("relationship %s leaves the file", r)
		}
	}
}

func TestExportClauseBeforeDeclaration(t *testing.T) {
	res := parseFile(t, lang.JavaScript, "src/m.js", `import { helper } from './util';

export { f, C as Model, helper };
export default g;

function f() {}
class C {}
function g() {}
`)
	f := mustEntity(t, res, graph.KindFunction, "f")
	if f.Attr(graph.AttrExported) != true {
		t.Errorf("f exported = %v", f.Attr(graph.AttrExported))
	}
	if c := mustEntity(t, res, graph.KindClass, "C"); c.Attr(graph.AttrExported) != true {
		t.Errorf("C exported = %v", c.Attr(graph.AttrExported))
	}
	for _, name := range []string{"f", "Model", "default"} {
		if !exported(res, name) {
			t.Errorf("%s not exported; exports = %v", name, res.Exports)
		}
	}
	if exported(res, "C") {
		t.Errorf("C should only be exported as Model; exports = %v", res.Exports)
	}
	var reexport *graph.PendingReference
	for i, p := range res.Pending {
		if p.Kind == graph.RelImports && p.ReexportAs == "helper" {
			reexport = &res.Pending[i]
		}
	}
	if reexport == nil || reexport.ModulePath != "./util" || reexport.Name != "helper" {
		t.Errorf("helper re-export = %+v", reexport)
	}
}

func TestSyntaxErrorReturnsPartialResult(t *testing.T) {
	fe, _ := Default().Lookup(lang.JavaScript)
	res, err := fe.Parse("bad.js", []byte("function ok() {}\nfunction (\n"))
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("err = %v, want ErrSyntax", err)
	}
	if res == nil || res.File() == nil {
		t.Fatal("expected a partial result")
	}
}

func TestSyntaxErrorWithoutErrorNode(t *testing.T) {
	fe, _ := Default().Lookup(lang.Kotlin)
	_, err := fe.Parse("pair.kt", []byte("val (p, q) = Pair(1, 2)\n"))
	if err == nil {
		t.Skip("grammar accepts top-level destructuring")
	}
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("err = %v, want ErrSyntax", err)
	}
	if strings.Contains(err.Error(), "line 0") {
		t.Errorf("err = %q reports line 0", err)
	}
}

func TestByteOrderMarkIgnored(t *testing.T) {
	res := parseFile(t, lang.Python, "bom.py", "\ufeffdef f():\n    pass\n")
	if e := mustEntity(t, res, graph.KindFunction, "f"); e.StartLine != 1 {
		t.Errorf("start = %d", e.StartLine)
	}
}

func TestPythonClassHierarchy(t *testing.T) {
	res := parseFile(t, lang.Python, "pkg/models.py", `from base import Model
import os.path


class Base:
    pass


class User(Base, Model):
    name = "x"

    def save(self):
        self.validate()

    def validate(self):
        os.path.join("a")
`)
	user := mustEntity(t, res, graph.KindClass, "User")
	base := mustEntity(t, res, graph.KindClass, "Base")
	save := mustEntity(t, res, graph.KindFunction, "save")
	validate := mustEntity(t, res, graph.KindFunction, "validate")
	name := mustEntity(t, res, graph.KindVariable, "name")

	if !hasRel(res, graph.RelExtends, user.ID, base.ID) {
		t.Error("User should extend local Base")
	}
	ext := findPending(res, graph.RelExtends, "Model")
	if ext == nil || ext.ModulePath != "base" || ext.OriginID != user.ID {
		t.Errorf("pending EXTENDS = %+v", ext)
	}
	for _, m := range []*graph.Entity{save, validate, name} {
		if !hasRel(res, graph.RelDefines, user.ID, m.ID) {
			t.Errorf("User should define %s", m.Name)
		}
		if hasRel(res, graph.RelContains, graph.FileID("pkg/models.py"), m.ID) {
			t.Errorf("%s is a member, not top-level", m.Name)
		}
	}
	if !hasRel(res, graph.RelCalls, save.ID, validate.ID) {
		t.Error("self.validate() should resolve in-file")
	}
	if p := findPending(res, graph.RelCalls, "join"); p == nil || p.ModulePath != "os.path" {
		t.Errorf("os.path.join pending = %+v", p)
	}
	if exported(res, "save") {
		t.Error("methods are not module exports")
	}
}

func TestPythonParameters(t *testing.T) {
	res := parseFile(t, lang.Python, "f.py", "async def fetch(url: str, retries=3, *args):\n    pass\n")
	fn := mustEntity(t, res, graph.KindFunction, "fetch")
	if fn.Attr(graph.AttrIsAsync) != true {
		t.Error("fetch is async")
	}
	params, ok := fn.Attr(graph.AttrParameters).([]pyArg)
	if !ok || len(params) != 3 {
		t.Fatalf("parameters = %#v", fn.Attr(graph.AttrParameters))
	}
	if params[0] != (pyArg{Name: "url", Type: "str"}) || !params[1].HasDefault {
		t.Errorf("parameters = %+v", params)
	}
}

func TestMultipleBindingsShareStatementLine(t *testing.T) {
	res := parseFile(t, lang.Python, "m.py", "a, b = 1, 2\n")
	a := mustEntity(t, res, graph.KindVariable, "a")
	b := mustEntity(t, res, graph.KindVariable, "b")
	if a.StartLine != 1 || b.StartLine != 1 || a.ID == b.ID {
		t.Errorf("a=%s b=%s", a.ID, b.ID)
	}
}

const goShapes = `package shapes

import (
	"fmt"
	_ "embed"
	geo "example.com/lib/geometry"
)

type Base struct {
	ID int
}

type Circle struct {
	Base
	geo.Point
	Radius float64
}

type Shape interface {
	Area() float64
}

var Default = NewCircle(1)

func NewCircle(r float64) *Circle {
	return &Circle{Radius: r}
}

func (c *Circle) Area() float64 {
	fmt.Println(len("x"))
	return geo.Pi * c.Radius * c.Radius
}

func helper() { draw() }
`

func TestGoFrontEnd(t *testing.T) {
	res := parseFile(t, lang.Go, "shapes/circle.go", goShapes)

	circle := mustEntity(t, res, graph.KindClass, "Circle")
	base := mustEntity(t, res, graph.KindClass, "Base")
	shape := mustEntity(t, res, graph.KindClass, "Shape")
	area := res.FindEntity(graph.KindFunction, "Area")
	if shape.Attr(graph.AttrSubkind) != "interface" {
		t.Errorf("Shape subkind = %v", shape.Attr(graph.AttrSubkind))
	}
	if area == nil {
		t.Fatal("missing Area")
	}
	if !hasRel(res, graph.RelExtends, circle.ID, base.ID) {
		t.Error("embedding Base should be EXTENDS")
	}
	if p := findPending(res, graph.RelExtends, "Point"); p == nil || p.ModulePath != "example.com/lib/geometry" {
		t.Errorf("geo.Point pending = %+v", p)
	}

	// The method is defined on a type declared in this file.
	var method *graph.Entity
	for _, e := range res.EntitiesOfKind(graph.KindFunction) {
		if e.Name == "Area" && e.Attr(graph.AttrClass) == "Circle" {
			method = e
		}
	}
	if method == nil || !hasRel(res, graph.RelDefines, circle.ID, method.ID) {
		t.Fatal("Circle should define Area")
	}

	for _, name := range []string{"Circle", "Base", "Shape", "NewCircle", "Default"} {
		if !exported(res, name) {
			t.Errorf("%s should be exported", name)
		}
	}
	if exported(res, "helper") {
		t.Error("helper is unexported")
	}

	if p := findPending(res, graph.RelCalls, "Println"); p == nil || p.ModulePath != "fmt" {
		t.Errorf("fmt.Println pending = %+v", p)
	}
	if findPending(res, graph.RelCalls, "len") != nil {
		t.Error("builtins are not calls")
	}
	// Unknown bare names look up the package, which may span other files.
	if p := findPending(res, graph.RelCalls, "draw"); p == nil || p.ModulePath != "" {
		t.Errorf("draw pending = %+v", p)
	}
	if p := findPending(res, graph.RelImports, ""); p == nil {
		t.Error("expected module imports")
	}
	def := mustEntity(t, res, graph.KindVariable, "Default")
	ctor := mustEntity(t, res, graph.KindFunction, "NewCircle")
	if !hasRel(res, graph.RelCalls, def.ID, ctor.ID) {
		t.Error("Default initializer calls NewCircle")
	}
}

func TestGoMethodOnTypeInOtherFile(t *testing.T) {
	res := parseFile(t, lang.Go, "shapes/square.go", "package shapes\n\nfunc (s Square) Area() float64 { return s.W * s.W }\n")
	p := findPending(res, graph.RelDefines, "Square")
	if p == nil {
		t.Fatal("expected deferred DEFINES for Square")
	}
	if p.Attributes["reverse"] != true || p.ModulePath != "" {
		t.Errorf("pending = %+v", p)
	}
}

func TestGoFallbackMatchesTreeSitter(t *testing.T) {
	primary, _ := Default().Lookup(lang.Go)
	fallback, _ := Default().Fallback(lang.Go)

	a, err := primary.Parse("shapes/circle.go", []byte(goShapes))
	if err != nil {
		t.Fatal(err)
	}
	b, err := fallback.Parse("shapes/circle.go", []byte(goShapes))
	if err != nil {
		t.Fatal(err)
	}
	if err := graph.Validate(b); err != nil {
		t.Fatal(err)
	}
	if got, want := entityNames(b), entityNames(a); !equalStrings(got, want) {
		t.Errorf("fallback entities differ:\n got %v\nwant %v", got, want)
	}
	if len(a.Exports) != len(b.Exports) {
		t.Errorf("exports: %d vs %d", len(a.Exports), len(b.Exports))
	}
}

func TestGoFallbackSyntaxError(t *testing.T) {
	fallback, _ := Default().Fallback(lang.Go)
	_, err := fallback.Parse("x.go", []byte("package x\nfunc (\n"))
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("err = %v", err)
	}
}

func equalStrings(a, b []string) bool {
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

func TestJavaPackageAndImports(t *testing.T) {
	res := parseFile(t, lang.Java, "src/com/acme/Admin.java", `package com.acme;

import com.acme.base.Entity;
import java.util.*;

public class Admin extends User implements Entity {
    private int level;

    public Admin() {}

    public void promote() {
        check();
        new Audit();
    }

    private void check() {}
}
`)
	admin := mustEntity(t, res, graph.KindClass, "Admin")
	if !exported(res, "Admin") {
		t.Error("Admin should be exported")
	}
	user := findPending(res, graph.RelExtends, "User")
	if user == nil || user.ModulePath != "com.acme.User" {
		t.Errorf("same-package parent = %+v", user)
	}
	entity := findPending(res, graph.RelExtends, "Entity")
	if entity == nil || entity.ModulePath != "com.acme.base.Entity" || entity.Attributes[graph.AttrVia] != "implements" {
		t.Errorf("imported interface = %+v", entity)
	}
	promote := mustEntity(t, res, graph.KindFunction, "promote")
	check := mustEntity(t, res, graph.KindFunction, "check")
	if !hasRel(res, graph.RelDefines, admin.ID, promote.ID) || !hasRel(res, graph.RelCalls, promote.ID, check.ID) {
		t.Error("promote should be defined by Admin and call check")
	}
	if p := findPending(res, graph.RelCalls, "Audit"); p == nil || p.ModulePath != "com.acme.Audit" {
		t.Errorf("constructor call = %+v", p)
	}
	mustEntity(t, res, graph.KindVariable, "level")
}

func TestRustItems(t *testing.T) {
	res := parseFile(t, lang.Rust, "src/shapes.rs", `use crate::models::{User, Role as R};
pub use crate::geometry::Point;

pub trait Area: Shape {
    fn area(&self) -> f64;
}

pub struct Square {
    pub side: f64,
}

impl Area for Square {
    fn area(&self) -> f64 { self.side * self.side }
}

impl Square {
    pub fn new(side: f64) -> Self { Self::check(side); Square { side } }
    fn check(side: f64) {}
}

fn private_helper() { crate::util::log(); }
`)
	sq := mustEntity(t, res, graph.KindClass, "Square")
	area := mustEntity(t, res, graph.KindClass, "Area")
	if !hasRel(res, graph.RelExtends, sq.ID, area.ID) {
		t.Error("impl Area for Square should be EXTENDS")
	}
	newFn := mustEntity(t, res, graph.KindFunction, "new")
	check := mustEntity(t, res, graph.KindFunction, "check")
	if !hasRel(res, graph.RelDefines, sq.ID, newFn.ID) {
		t.Error("Square should define new")
	}
	if !hasRel(res, graph.RelCalls, newFn.ID, check.ID) {
		t.Error("Self::check should resolve to the sibling method")
	}
	if p := findPending(res, graph.RelImports, "Role"); p == nil || p.ModulePath != "crate::models" || p.Attributes[graph.AttrAlias] != "R" {
		t.Errorf("aliased use = %+v", p)
	}
	if p := findPending(res, graph.RelImports, "Point"); p == nil || p.ReexportAs != "Point" {
		t.Errorf("pub use = %+v", p)
	}
	if p := findPending(res, graph.RelCalls, "log"); p == nil || p.ModulePath != "crate::util" {
		t.Errorf("path call = %+v", p)
	}
	if !exported(res, "Square") || !exported(res, "Area") || exported(res, "private_helper") {
		t.Errorf("exports = %v", res.Exports)
	}
}

func TestCIncludesAndLinkage(t *testing.T) {
	res := parseFile(t, lang.C, "src/util.c", `#include "util.h"
#include <stdio.h>

static int counter = 0;
int total;

static void bump(void) { counter++; }

int next(void) {
    bump();
    printf("x");
    return counter;
}
`)
	bump := mustEntity(t, res, graph.KindFunction, "bump")
	next := mustEntity(t, res, graph.KindFunction, "next")
	mustEntity(t, res, graph.KindVariable, "total")
	if !hasRel(res, graph.RelCalls, next.ID, bump.ID) {
		t.Error("next should call bump")
	}
	if exported(res, "bump") || exported(res, "counter") {
		t.Error("static declarations are file-private")
	}
	if !exported(res, "next") || !exported(res, "total") {
		t.Errorf("exports = %v", res.Exports)
	}
	inc := 0
	for _, p := range res.Pending {
		if p.Kind == graph.RelImports && p.Attributes["include"] == true {
			inc++
		}
	}
	if inc != 2 {
		t.Errorf("includes = %d", inc)
	}
}

func TestCPPOutOfLineMethod(t *testing.T) {
	res := parseFile(t, lang.CPP, "src/widget.cpp", `#include "widget.h"

namespace ui {

class Button : public Widget {
public:
    int clicks;
    void press() { clicks++; }
};

void Widget::draw() {
    this->paint();
}

}
`)
	button := mustEntity(t, res, graph.KindClass, "Button")
	press := mustEntity(t, res, graph.KindFunction, "press")
	if !hasRel(res, graph.RelDefines, button.ID, press.ID) {
		t.Error("Button should define press")
	}
	if p := findPending(res, graph.RelExtends, "Widget"); p == nil || p.OriginID != button.ID {
		t.Errorf("base class = %+v", p)
	}
	draw := mustEntity(t, res, graph.KindFunction, "draw")
	if p := findPending(res, graph.RelDefines, "Widget"); p == nil || p.OriginID != draw.ID {
		t.Errorf("out-of-line owner = %+v", p)
	}
}

func TestTableDrivenLanguages(t *testing.T) {
	cases := []struct {
		lang   lang.Language
		path   string
		code   string
		class  string
		method string
		parent string
		fields []string
	}{
		{lang.CSharp, "src/Admin.cs", "using Acme.Base;\nnamespace Acme {\n  public class Admin : User {\n    int x = 1, y = 2;\n    Logger log;\n    Dictionary<string, int> map = new();\n    public void Promote() { Check(); }\n    void Check() {}\n  }\n}\n", "Admin", "Promote", "User", []string{"x", "y", "log", "map"}},
		{lang.Kotlin, "src/Admin.kt", "import acme.base.User\n\nclass Admin : User() {\n    fun promote() { check() }\n    fun check() {}\n}\n", "Admin", "promote", "User", nil},
		{lang.PHP, "src/Admin.php", "<?php\nnamespace App;\n\nuse App\\Base\\User;\n\nclass Admin extends User {\n    public function promote() { $this->check(); }\n    private function check() {}\n}\n", "Admin", "promote", "User", nil},
		{lang.Ruby, "lib/admin.rb", "require_relative 'user'\n\nclass Admin < User\n  def promote\n    check\n    self.check\n  end\n\n  def check\n  end\nend\n", "Admin", "promote", "User", nil},
		{lang.Scala, "src/Admin.scala", "import acme.base.User\n\nclass Admin extends User {\n  def promote(): Unit = check()\n  def check(): Unit = {}\n}\n", "Admin", "promote", "User", nil},
	}
	for _, tc := range cases {
		t.Run(string(tc.lang), func(t *testing.T) {
			res := parseFile(t, tc.lang, tc.path, tc.code)
			class := mustEntity(t, res, graph.KindClass, tc.class)
			method := mustEntity(t, res, graph.KindFunction, tc.method)
			if !hasRel(res, graph.RelDefines, class.ID, method.ID) {
				t.Errorf("%s should define %s", tc.class, tc.method)
			}
			if p := findPending(res, graph.RelExtends, tc.parent); p == nil || p.OriginID != class.ID {
				t.Errorf("parent %s pending = %+v", tc.parent, p)
			}
			if !exported(res, tc.class) {
				t.Errorf("%s should be exported", tc.class)
			}
			for _, name := range tc.fields {
				v := mustEntity(t, res, graph.KindVariable, name)
				if !hasRel(res, graph.RelDefines, class.ID, v.ID) {
					t.Errorf("%s should define field %s", tc.class, name)
				}
			}
			for _, e := range res.Entities {
				if e.Kind == graph.KindVariable && !slices.Contains(tc.fields, e.Name) {
					t.Errorf("unexpected variable %s", e.ID)
				}
			}
		})
	}
}

func TestLocalsAndCallbacksStayInsideFunctions(t *testing.T) {
	cases := []struct {
		lang lang.Language
		path string
		code string
	}{
		{lang.JavaScript, "a.js", "function outer() {\n  const local = 1;\n  [1].forEach(function cb() { const inner = local; });\n  [2].map((x) => { let inner = x; return inner; });\n}\n"},
		{lang.TypeScript, "a.ts", "function outer(): void {\n  let local: number = 1;\n  setTimeout(() => { const inner = local; }, 0);\n}\n"},
		{lang.Python, "a.py", "def outer():\n    local = 1\n    def inner():\n        return local\n    cb = lambda x: x\n    return inner, cb\n"},
		{lang.Go, "a.go", "package p\n\nfunc outer() {\n\tlocal := 1\n\tcb := func() { inner := local; _ = inner }\n\tcb()\n}\n"},
		{lang.Java, "A.java", "class A {\n  void outer() {\n    int local = 1;\n    Runnable cb = () -> { int inner = local; };\n  }\n}\n"},
		{lang.Rust, "a.rs", "fn outer() {\n    let local = 1;\n    let cb = |x: i32| { let inner = x + local; inner };\n    cb(1);\n}\n"},
		{lang.Kotlin, "a.kt", "fun outer() {\n    val local = 1\n    val cb = { x: Int -> x + local }\n    cb(1)\n}\n"},
		{lang.PHP, "a.php", "<?php\nfunction outer() {\n    $local = 1;\n    $cb = function () use ($local) { $inner = $local; };\n}\n"},
		{lang.Ruby, "a.rb", "def outer\n  local = 1\n  [1].each { |cb| inner = cb + local }\nend\n"},
		{lang.C, "a.c", "int outer(void) {\n  int local = 1;\n  { int inner = local; }\n  return local;\n}\n"},
	}
	for _, tc := range cases {
		t.Run(string(tc.lang), func(t *testing.T) {
			res := parseFile(t, tc.lang, tc.path, tc.code)
			mustEntity(t, res, graph.KindFunction, "outer")
			for _, e := range res.Entities {
				switch e.Name {
				case "local", "cb", "inner":
					t.Errorf("local declaration became entity %s", e.ID)
				}
			}
		})
	}
}

func TestLuaModuleTable(t *testing.T) {
	res := parseFile(t, lang.Lua, "lib/util.lua", `local json = require("lib.json")
local M = {}

function M.encode(v)
  return json.encode(v)
end

local function helper() end

return M
`)
	enc := mustEntity(t, res, graph.KindFunction, "encode")
	if enc.Attr("table") != "M" {
		t.Errorf("table = %v", enc.Attr("table"))
	}
	if !exported(res, "encode") || exported(res, "helper") {
		t.Errorf("exports = %v", res.Exports)
	}
	if p := findPending(res, graph.RelCalls, "encode"); p == nil || p.ModulePath != "lib.json" {
		t.Errorf("json.encode pending = %+v", p)
	}
}

func TestParseIsStateless(t *testing.T) {
	fe, _ := Default().Lookup(lang.Python)
	code := []byte("class A:\n    def m(self):\n        pass\n")
	a, err := fe.Parse("a.py", code)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fe.Parse("a.py", code)
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(entityNames(a), entityNames(b)) || len(a.Relationships) != len(b.Relationships) {
		t.Error("repeated parses differ")
	}
}
