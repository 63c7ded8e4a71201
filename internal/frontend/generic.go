package frontend

import (
	"slices"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

// genericHooks carries the per-language pieces of the table-driven
// front-end; the node kinds themselves come from lang.LanguageSpec.
type genericHooks struct {
	setup func(b *fileBuilder)
	// imports handles a node of one of the language's import kinds and reports
	// whether it was an import.
	imports func(b *fileBuilder, n *tree_sitter.Node) bool
	callee  func(b *fileBuilder, n *tree_sitter.Node) (string, string)
	// exported decides whether a top-level entity is visible to importers.
	exported func(b *fileBuilder, e *graph.Entity, n *tree_sitter.Node) bool
	// name overrides the declaration name lookup.
	name func(b *fileBuilder, n *tree_sitter.Node) string
	// variable handles a top-level variable node itself when it returns true.
	variable func(b *fileBuilder, n *tree_sitter.Node) bool
}

type generic struct {
	spec  *lang.LanguageSpec
	hooks genericHooks

	functions, classes, fields, variables, calls, imports, supers, containers map[string]bool
}

func registerGeneric(l lang.Language, hooks genericHooks) {
	spec := lang.ForLanguage(l)
	if spec == nil {
		return
	}
	g := &generic{
		spec:       spec,
		hooks:      hooks,
		functions:  toSet(spec.FunctionNodeTypes),
		classes:    toSet(spec.ClassNodeTypes),
		fields:     toSet(spec.FieldNodeTypes),
		variables:  toSet(spec.VariableNodeTypes),
		calls:      toSet(spec.CallNodeTypes),
		imports:    toSet(spec.ImportNodeTypes),
		supers:     toSet(spec.SuperclassNodeTypes),
		containers: toSet(spec.ContainerNodeTypes),
	}
	defaultRegistry.Register(l, &treeSitter{
		lang:    l,
		extract: g.extract,
		setup: func(b *fileBuilder) {
			b.implicitThis = true
			if hooks.setup != nil {
				hooks.setup(b)
			}
		},
	})
}

func init() {
	registerGeneric(lang.CSharp, genericHooks{imports: csharpImport, callee: csharpCallee, setup: dottedPackage})
	registerGeneric(lang.Kotlin, genericHooks{imports: kotlinImport, callee: kotlinCallee, setup: dottedPackage, exported: notPrivate})
	registerGeneric(lang.Scala, genericHooks{imports: scalaImport, callee: scalaCallee, setup: dottedPackage, exported: notPrivate})
	registerGeneric(lang.PHP, genericHooks{
		imports: phpImport,
		callee:  phpCallee,
		setup:   func(b *fileBuilder) { b.qualifierSep = `\` },
	})
	registerGeneric(lang.Ruby, genericHooks{imports: rubyImport, callee: rubyCallee, setup: func(b *fileBuilder) { b.qualifierSep = "::" }})
	registerGeneric(lang.Lua, genericHooks{
		imports:  luaImport,
		callee:   luaCallee,
		name:     luaName,
		variable: luaVariable,
		exported: luaExported,
		setup:    func(b *fileBuilder) { b.implicitThis = false },
	})
}

// dottedPackage makes unknown bare type names look up the file's own
// package, which spans sibling files.
func dottedPackage(b *fileBuilder) {
	b.sameModule = true
}

func (g *generic) extract(b *fileBuilder, root *tree_sitter.Node) {
	g.walk(b, root, nil)
	for _, k := range []graph.EntityKind{graph.KindClass, graph.KindFunction, graph.KindVariable} {
		for _, e := range b.res.EntitiesOfKind(k) {
			if e.Attr(graph.AttrClass) != nil {
				continue
			}
			if g.hooks.exported != nil && !g.hooks.exported(b, e, nil) {
				continue
			}
			b.res.Export(e.Name, e.ID, graph.ExportNamed)
		}
	}
}

func (g *generic) walk(b *fileBuilder, n *tree_sitter.Node, class *graph.Entity) {
	for _, c := range parser.NamedChildren(n) {
		kind := c.Kind()
		switch {
		case class == nil && g.imports[kind] && g.hooks.imports != nil && g.hooks.imports(b, c):
		case g.classes[kind]:
			g.class(b, c, class)
		case g.functions[kind]:
			g.function(b, c, class)
		case class != nil && g.fields[kind]:
			for _, name := range g.fieldNames(b, c) {
				b.addMember(class, graph.KindVariable, name, c, map[string]any{graph.AttrIsStatic: g.isStatic(b, c)})
			}
		case class == nil && g.variables[kind]:
			if g.hooks.variable != nil && g.hooks.variable(b, c) {
				continue
			}
			for _, name := range g.fieldNames(b, c) {
				e := b.addTop(graph.KindVariable, name, c, map[string]any{graph.AttrExported: !g.isPrivate(b, c)})
				b.collectCalls(e, c, g.calls, g.callee(b))
			}
		case g.containers[kind]:
			g.walk(b, c, class)
		}
	}
}

func (g *generic) name(b *fileBuilder, n *tree_sitter.Node) string {
	if g.hooks.name != nil {
		if name := g.hooks.name(b, n); name != "" {
			return name
		}
	}
	if nm := n.ChildByFieldName("name"); nm != nil {
		return strings.TrimPrefix(b.text(nm), "$")
	}
	if nm := parser.FirstChildOfKind(n, "type_identifier", "simple_identifier", "identifier", "constant", "name"); nm != nil {
		return b.text(nm)
	}
	return ""
}

func (g *generic) class(b *fileBuilder, n *tree_sitter.Node, outer *graph.Entity) {
	name := g.name(b, n)
	attrs := map[string]any{}
	if sub := strings.TrimSuffix(strings.TrimSuffix(n.Kind(), "_declaration"), "_definition"); sub != "class" {
		attrs[graph.AttrSubkind] = sub
	}
	if g.isPrivate(b, n) {
		attrs["private"] = true
	}
	var c *graph.Entity
	if outer == nil {
		c = b.addTop(graph.KindClass, name, n, attrs)
	} else {
		c = b.addNestedClass(outer, name, n, attrs)
	}
	if c == nil {
		return
	}
	for _, child := range parser.NamedChildren(n) {
		if g.supers[child.Kind()] {
			for _, t := range superTypes(child) {
				b.extends(c, b.text(t), int(t.StartPosition().Row)+1, nil)
			}
		}
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		body = parser.FirstChildOfKind(n, "class_body", "template_body", "declaration_list", "body_statement", "enum_class_body")
	}
	if body == nil {
		// Grammars without a body node list members directly.
		body = n
	}
	g.walk(b, body, c)
}

var superStop = toSet([]string{"value_arguments", "arguments", "argument_list", "type_arguments", "type_argument_list"})

var superLeaf = toSet([]string{
	"identifier", "type_identifier", "constant", "name", "qualified_name", "scope_resolution",
	"user_type", "simple_identifier", "generic_name", "stable_type_identifier", "qualified_identifier",
})

// superTypes returns the outermost type names under a superclass clause.
func superTypes(clause *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	parser.Walk(clause, func(n *tree_sitter.Node) bool {
		if n == clause {
			return true
		}
		if superStop[n.Kind()] {
			return false
		}
		if superLeaf[n.Kind()] {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

func (g *generic) function(b *fileBuilder, n *tree_sitter.Node, class *graph.Entity) {
	name := g.name(b, n)
	if name == "" && class != nil && strings.Contains(n.Kind(), "constructor") {
		name = class.Name
	}
	attrs := map[string]any{graph.AttrIsStatic: g.isStatic(b, n)}
	if params := n.ChildByFieldName("parameters"); params != nil {
		attrs[graph.AttrParameters] = strings.Join(strings.Fields(b.text(params)), " ")
	}
	if strings.Contains(n.Kind(), "constructor") {
		attrs[graph.AttrSubkind] = "constructor"
	}
	var fn *graph.Entity
	if class == nil {
		attrs[graph.AttrExported] = !g.isPrivate(b, n)
		if g.spec.Language == lang.Lua {
			if t := luaTable(b, n); t != "" {
				attrs["table"] = t
			}
		}
		fn = b.addTop(graph.KindFunction, name, n, attrs)
	} else {
		fn = b.addMember(class, graph.KindFunction, name, n, attrs)
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		body = n
	}
	b.collectCalls(fn, body, g.calls, g.callee(b))
}

func (g *generic) callee(b *fileBuilder) func(n *tree_sitter.Node) (string, string) {
	return func(n *tree_sitter.Node) (string, string) {
		if g.hooks.callee == nil {
			return "", ""
		}
		return g.hooks.callee(b, n)
	}
}

// fieldNames returns the names bound by a field or variable declaration.
func (g *generic) fieldNames(b *fileBuilder, n *tree_sitter.Node) []string {
	if nm := n.ChildByFieldName("name"); nm != nil {
		return []string{strings.TrimPrefix(b.text(nm), "$")}
	}
	if p := n.ChildByFieldName("pattern"); p != nil && p.Kind() == "identifier" {
		return []string{b.text(p)}
	}
	var out []string
	parser.Walk(n, func(c *tree_sitter.Node) bool {
		if c == n {
			return true
		}
		switch c.Kind() {
		case "variable_declaration":
			// C# wraps its declarators with the type: `int x = 1, y = 2`.
			if parser.FirstChildOfKind(c, "variable_declarator") != nil {
				return true
			}
			if nm := parser.FirstChildOfKind(c, "identifier", "simple_identifier"); nm != nil {
				out = append(out, b.text(nm))
			}
			return false
		case "variable_declarator", "property_element":
			if nm := c.ChildByFieldName("name"); nm != nil {
				out = append(out, strings.TrimPrefix(b.text(nm), "$"))
			} else if nm := parser.FirstChildOfKind(c, "identifier", "simple_identifier", "variable_name"); nm != nil {
				out = append(out, strings.TrimPrefix(b.text(nm), "$"))
			}
			return false
		case "identifiers", "variable_list":
			for _, id := range parser.NamedChildren(c) {
				if id.Kind() != "identifier" {
					continue
				}
				out = append(out, b.text(id))
			}
			return false
		}
		return true
	})
	return out
}

func (g *generic) modifiers(b *fileBuilder, n *tree_sitter.Node) []string {
	var mods []string
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "modifiers", "modifier", "visibility_modifier", "static_modifier", "access_modifier":
			mods = append(mods, strings.Fields(b.text(c))...)
		case "static", "private", "local":
			mods = append(mods, c.Kind())
		}
	}
	return mods
}

func (g *generic) isStatic(b *fileBuilder, n *tree_sitter.Node) bool {
	return n.Kind() == "singleton_method" || slices.Contains(g.modifiers(b, n), "static")
}

func (g *generic) isPrivate(b *fileBuilder, n *tree_sitter.Node) bool {
	mods := g.modifiers(b, n)
	return slices.Contains(mods, "private") || slices.Contains(mods, "local")
}

func notPrivate(_ *fileBuilder, e *graph.Entity, _ *tree_sitter.Node) bool {
	if v, ok := e.Attr("private").(bool); ok && v {
		return false
	}
	if v, ok := e.Attr(graph.AttrExported).(bool); ok {
		return v
	}
	return true
}

// splitDotted splits "a.b.C" into the module "a.b.C" and its last segment.
func splitDotted(path, sep string) (module, last string) {
	path = strings.TrimSpace(path)
	if i := strings.LastIndex(path, sep); i >= 0 {
		return path, path[i+len(sep):]
	}
	return path, path
}

// C#

func csharpImport(b *fileBuilder, n *tree_sitter.Node) bool {
	line := int(n.StartPosition().Row) + 1
	target := parser.FirstChildOfKind(n, "qualified_name", "identifier", "generic_name")
	if alias := n.ChildByFieldName("name"); alias != nil {
		// using Json = System.Text.Json; pick the last qualified_name child
		for _, c := range parser.NamedChildren(n) {
			if c.StartByte() != alias.StartByte() {
				target = c
			}
		}
		module, last := splitDotted(b.text(target), ".")
		b.bind(b.text(alias), binding{name: last, module: module, style: graph.ImportNamed}, line, nil)
		return true
	}
	if target == nil {
		return true
	}
	attrs := map[string]any{"wildcard": true}
	if hasChildKind(n, "static") {
		attrs["static"] = true
	}
	b.deferImport(binding{module: b.text(target), style: graph.ImportNamespace}, line, "", attrs)
	return true
}

func csharpCallee(b *fileBuilder, n *tree_sitter.Node) (string, string) {
	switch n.Kind() {
	case "object_creation_expression":
		return "", stripGenerics(b.text(n.ChildByFieldName("type")))
	}
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}
	switch fn.Kind() {
	case "identifier":
		return "", b.text(fn)
	case "generic_name":
		return "", b.text(parser.FirstChildOfKind(fn, "identifier"))
	case "member_access_expression":
		expr := fn.ChildByFieldName("expression")
		if expr == nil {
			return "", ""
		}
		switch expr.Kind() {
		case "identifier", "this", "this_expression":
			name := fn.ChildByFieldName("name")
			if name != nil && name.Kind() == "generic_name" {
				name = parser.FirstChildOfKind(name, "identifier")
			}
			return b.text(expr), b.text(name)
		}
	}
	return "", ""
}

// Kotlin

func kotlinImport(b *fileBuilder, n *tree_sitter.Node) bool {
	line := int(n.StartPosition().Row) + 1
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(b.text(n)), "import"))
	text = strings.TrimSuffix(text, ";")
	local := ""
	if i := strings.Index(text, " as "); i >= 0 {
		local = strings.TrimSpace(text[i+4:])
		text = strings.TrimSpace(text[:i])
	}
	if strings.HasSuffix(text, ".*") {
		b.deferImport(binding{module: strings.TrimSuffix(text, ".*"), style: graph.ImportNamespace}, line, "", map[string]any{"wildcard": true})
		return true
	}
	module, last := splitDotted(text, ".")
	if local == "" {
		local = last
	}
	b.bind(local, binding{name: last, module: module, style: graph.ImportNamed}, line, nil)
	return true
}

func kotlinCallee(b *fileBuilder, n *tree_sitter.Node) (string, string) {
	first := n.NamedChild(0)
	if first == nil {
		return "", ""
	}
	switch first.Kind() {
	case "identifier", "simple_identifier":
		return "", b.text(first)
	case "navigation_expression":
		recv := first.NamedChild(0)
		last := first.NamedChild(first.NamedChildCount() - 1)
		if recv == nil || last == nil {
			return "", ""
		}
		if last.Kind() == "navigation_suffix" {
			last = parser.FirstChildOfKind(last, "simple_identifier", "identifier")
		}
		switch recv.Kind() {
		case "identifier", "simple_identifier", "this_expression", "this":
			return b.text(recv), b.text(last)
		}
	}
	return "", ""
}

// Scala

func scalaImport(b *fileBuilder, n *tree_sitter.Node) bool {
	line := int(n.StartPosition().Row) + 1
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(b.text(n)), "import"))
	for _, clause := range splitTopLevel(text, ',') {
		clause = strings.TrimSpace(clause)
		open := strings.Index(clause, "{")
		if open < 0 {
			scalaSelector(b, clause, "", line)
			continue
		}
		prefix := strings.TrimSuffix(strings.TrimSpace(clause[:open]), ".")
		inner := strings.TrimSuffix(strings.TrimSpace(clause[open+1:]), "}")
		for _, sel := range strings.Split(inner, ",") {
			sel = strings.TrimSpace(sel)
			alias := ""
			for _, arrow := range []string{"=>", " as "} {
				if i := strings.Index(sel, arrow); i >= 0 {
					alias = strings.TrimSpace(sel[i+len(arrow):])
					sel = strings.TrimSpace(sel[:i])
				}
			}
			if alias == "_" {
				continue
			}
			scalaSelector(b, prefix+"."+sel, alias, line)
		}
	}
	return true
}

func scalaSelector(b *fileBuilder, path, alias string, line int) {
	if strings.HasSuffix(path, "._") || strings.HasSuffix(path, ".*") {
		b.deferImport(binding{module: path[:len(path)-2], style: graph.ImportNamespace}, line, "", map[string]any{"wildcard": true})
		return
	}
	module, last := splitDotted(path, ".")
	if alias == "" {
		alias = last
	}
	b.bind(alias, binding{name: last, module: module, style: graph.ImportNamed}, line, nil)
}

// splitTopLevel splits s on sep outside of braces.
func splitTopLevel(s string, sep rune) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func scalaCallee(b *fileBuilder, n *tree_sitter.Node) (string, string) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}
	switch fn.Kind() {
	case "identifier":
		return "", b.text(fn)
	case "field_expression":
		v := fn.ChildByFieldName("value")
		if v != nil && (v.Kind() == "identifier" || v.Kind() == "this") {
			return b.text(v), b.text(fn.ChildByFieldName("field"))
		}
	case "generic_function":
		return scalaCallee(b, fn)
	}
	return "", ""
}

// PHP

func phpImport(b *fileBuilder, n *tree_sitter.Node) bool {
	line := int(n.StartPosition().Row) + 1
	prefix := ""
	if group := parser.FirstChildOfKind(n, "namespace_use_group"); group != nil {
		prefix = strings.Trim(b.text(parser.FirstChildOfKind(n, "namespace_name")), `\`) + `\`
		n = group
	}
	for _, clause := range parser.NamedChildren(n) {
		if clause.Kind() != "namespace_use_clause" && clause.Kind() != "namespace_use_group_clause" {
			continue
		}
		target := parser.FirstChildOfKind(clause, "qualified_name", "name", "namespace_name")
		if target == nil {
			continue
		}
		path := prefix + strings.TrimPrefix(b.text(target), `\`)
		module, last := splitDotted(path, `\`)
		local := last
		if alias := clause.ChildByFieldName("alias"); alias != nil {
			local = b.text(alias)
		} else if names := parser.NamedChildren(clause); len(names) > 1 && names[len(names)-1].Kind() == "name" && names[len(names)-1].StartByte() != target.StartByte() {
			local = b.text(names[len(names)-1])
		}
		b.bind(local, binding{name: last, module: module, style: graph.ImportNamed}, line, nil)
	}
	return true
}

func phpCallee(b *fileBuilder, n *tree_sitter.Node) (string, string) {
	switch n.Kind() {
	case "function_call_expression":
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return "", ""
		}
		_, name := splitDotted(b.text(fn), `\`)
		return "", name
	case "member_call_expression":
		obj := n.ChildByFieldName("object")
		if obj != nil && b.text(obj) == "$this" {
			return "$this", b.text(n.ChildByFieldName("name"))
		}
	case "scoped_call_expression":
		scope := b.text(n.ChildByFieldName("scope"))
		switch scope {
		case "self", "static":
			return "self", b.text(n.ChildByFieldName("name"))
		}
	case "object_creation_expression":
		if t := parser.FirstChildOfKind(n, "name", "qualified_name"); t != nil {
			_, name := splitDotted(b.text(t), `\`)
			return "", name
		}
	}
	return "", ""
}

// Ruby

var rubyRequire = toSet([]string{"require", "require_relative", "load"})

func rubyImport(b *fileBuilder, n *tree_sitter.Node) bool {
	method := b.text(n.ChildByFieldName("method"))
	if n.ChildByFieldName("receiver") != nil || !rubyRequire[method] {
		return false
	}
	arg := parser.FirstChildOfKind(n.ChildByFieldName("arguments"), "string")
	if arg == nil {
		return true
	}
	path := b.text(parser.FirstChildOfKind(arg, "string_content"))
	if path == "" {
		return true
	}
	if method == "require_relative" && !strings.HasPrefix(path, ".") {
		path = "./" + path
	}
	b.deferImport(binding{module: path, style: graph.ImportSideEffect}, int(n.StartPosition().Row)+1, "",
		map[string]any{"include": true})
	return true
}

func rubyCallee(b *fileBuilder, n *tree_sitter.Node) (string, string) {
	method := b.text(n.ChildByFieldName("method"))
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		if rubyRequire[method] {
			return "", ""
		}
		return "", method
	}
	switch recv.Kind() {
	case "self":
		return "self", method
	case "constant", "scope_resolution":
		if method == "new" {
			return "", b.text(recv)
		}
	}
	return "", ""
}

// Lua

func luaRequire(b *fileBuilder, n *tree_sitter.Node) (string, bool) {
	if n == nil || n.Kind() != "function_call" || b.text(n.ChildByFieldName("name")) != "require" {
		return "", false
	}
	var module string
	parser.Walk(n.ChildByFieldName("arguments"), func(c *tree_sitter.Node) bool {
		if module != "" {
			return false
		}
		if c.Kind() == "string_content" {
			module = b.text(c)
			return false
		}
		return true
	})
	return module, module != ""
}

func luaImport(b *fileBuilder, n *tree_sitter.Node) bool {
	module, ok := luaRequire(b, n)
	if !ok {
		return false
	}
	b.deferImport(binding{module: module, style: graph.ImportSideEffect}, int(n.StartPosition().Row)+1, "",
		map[string]any{"include": true})
	return true
}

// luaVariable binds `local x = require("a.b")` as a namespace import.
func luaVariable(b *fileBuilder, n *tree_sitter.Node) bool {
	assign := parser.FirstChildOfKind(n, "assignment_statement")
	if assign == nil {
		return false
	}
	names := parser.FirstChildOfKind(assign, "variable_list")
	values := parser.FirstChildOfKind(assign, "expression_list")
	if names == nil || values == nil || names.NamedChildCount() != 1 || values.NamedChildCount() != 1 {
		return false
	}
	module, ok := luaRequire(b, values.NamedChild(0))
	if !ok {
		return false
	}
	b.bind(b.text(names.NamedChild(0)), binding{module: module, style: graph.ImportNamespace}, int(n.StartPosition().Row)+1, nil)
	return true
}

// luaName returns "foo" for `function M.foo()` and `function M:foo()`.
func luaName(b *fileBuilder, n *tree_sitter.Node) string {
	nm := n.ChildByFieldName("name")
	if nm == nil {
		return ""
	}
	switch nm.Kind() {
	case "dot_index_expression":
		return b.text(nm.ChildByFieldName("field"))
	case "method_index_expression":
		return b.text(nm.ChildByFieldName("method"))
	}
	return b.text(nm)
}

func luaTable(b *fileBuilder, n *tree_sitter.Node) string {
	nm := n.ChildByFieldName("name")
	if nm == nil {
		return ""
	}
	switch nm.Kind() {
	case "dot_index_expression", "method_index_expression":
		return b.text(nm.ChildByFieldName("table"))
	}
	return ""
}

func luaExported(_ *fileBuilder, e *graph.Entity, _ *tree_sitter.Node) bool {
	if e.Kind != graph.KindFunction {
		return false
	}
	v, _ := e.Attr(graph.AttrExported).(bool)
	return v
}

func luaCallee(b *fileBuilder, n *tree_sitter.Node) (string, string) {
	nm := n.ChildByFieldName("name")
	if nm == nil {
		return "", ""
	}
	switch nm.Kind() {
	case "identifier":
		if b.text(nm) == "require" {
			return "", ""
		}
		return "", b.text(nm)
	case "dot_index_expression":
		if t := nm.ChildByFieldName("table"); t != nil && t.Kind() == "identifier" {
			return b.text(t), b.text(nm.ChildByFieldName("field"))
		}
	case "method_index_expression":
		if t := nm.ChildByFieldName("table"); t != nil && t.Kind() == "identifier" {
			return b.text(t), b.text(nm.ChildByFieldName("method"))
		}
	}
	return "", ""
}
