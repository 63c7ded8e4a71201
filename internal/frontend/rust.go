package frontend

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

func init() {
	defaultRegistry.Register(lang.Rust, &treeSitter{
		lang:    lang.Rust,
		extract: extractRust,
		setup: func(b *fileBuilder) {
			b.qualifierSep = "::"
			b.pathRoots = map[string]bool{"crate": true, "super": true, "self": true}
			b.itemModules = true
		},
	})
}

var rustCallKinds = map[string]bool{"call_expression": true}

func extractRust(b *fileBuilder, root *tree_sitter.Node) {
	var impls []*tree_sitter.Node
	for _, n := range parser.NamedChildren(root) {
		pub := rustPub(n)
		var e *graph.Entity
		switch n.Kind() {
		case "use_declaration":
			rustUse(b, n, pub)
		case "mod_item":
			// `mod foo;` pulls in a child module file; inline bodies are not
			// part of this file's top level.
			if n.ChildByFieldName("body") == nil {
				b.sideEffect("self::"+b.text(n.ChildByFieldName("name")), int(n.StartPosition().Row)+1)
			}
		case "function_item":
			e = rustFunction(b, nil, "", n)
		case "struct_item", "union_item":
			e = b.addTop(graph.KindClass, b.text(n.ChildByFieldName("name")), n, map[string]any{graph.AttrSubkind: "struct"})
			rustFields(b, e, n.ChildByFieldName("body"))
		case "enum_item":
			e = b.addTop(graph.KindClass, b.text(n.ChildByFieldName("name")), n, map[string]any{graph.AttrSubkind: "enum"})
			for _, v := range parser.NamedChildren(n.ChildByFieldName("body")) {
				if v.Kind() == "enum_variant" {
					b.addMember(e, graph.KindVariable, b.text(v.ChildByFieldName("name")), v, nil)
				}
			}
		case "trait_item":
			e = b.addTop(graph.KindClass, b.text(n.ChildByFieldName("name")), n, map[string]any{graph.AttrSubkind: "trait"})
			if e != nil {
				for _, bound := range parser.NamedChildren(n.ChildByFieldName("bounds")) {
					b.extends(e, b.text(bound), int(bound.StartPosition().Row)+1, map[string]any{graph.AttrVia: "supertrait"})
				}
				for _, m := range parser.NamedChildren(n.ChildByFieldName("body")) {
					switch m.Kind() {
					case "function_item", "function_signature_item":
						rustFunction(b, e, "", m)
					}
				}
			}
		case "impl_item":
			impls = append(impls, n)
		case "const_item", "static_item":
			declType := "const"
			if n.Kind() == "static_item" {
				declType = "static"
			}
			e = b.addTop(graph.KindVariable, b.text(n.ChildByFieldName("name")), n, map[string]any{
				graph.AttrDeclarationType: declType,
				"type":                    b.text(n.ChildByFieldName("type")),
			})
			b.collectCalls(e, n.ChildByFieldName("value"), rustCallKinds, rustCallee(b))
		}
		if e != nil && pub {
			b.res.Export(e.Name, e.ID, graph.ExportNamed)
		}
	}
	// Impl blocks may precede the type they implement.
	for _, n := range impls {
		rustImpl(b, n)
	}
}

func rustPub(n *tree_sitter.Node) bool {
	v := parser.FirstChildOfKind(n, "visibility_modifier")
	return v != nil
}

// rustFunction creates a free function (class nil, owner ""), a trait
// method (class set) or an impl method (owner set).
func rustFunction(b *fileBuilder, class *graph.Entity, owner string, n *tree_sitter.Node) *graph.Entity {
	name := b.text(n.ChildByFieldName("name"))
	attrs := map[string]any{
		graph.AttrParameters: rustParams(b, n.ChildByFieldName("parameters")),
		graph.AttrIsAsync:    rustHasModifier(b, n, "async"),
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		attrs["return_type"] = b.text(rt)
	}
	if owner != "" || class != nil {
		// Associated functions take no self parameter.
		attrs[graph.AttrIsStatic] = parser.FirstChildOfKind(n.ChildByFieldName("parameters"), "self_parameter") == nil
	}
	var fn *graph.Entity
	switch {
	case class != nil:
		fn = b.addMember(class, graph.KindFunction, name, n, attrs)
	case owner != "":
		fn = b.addOwnedMember(owner, name, n, attrs)
	default:
		fn = b.addTop(graph.KindFunction, name, n, attrs)
	}
	b.collectCalls(fn, n.ChildByFieldName("body"), rustCallKinds, rustCallee(b))
	return fn
}

func rustHasModifier(b *fileBuilder, n *tree_sitter.Node, mod string) bool {
	m := parser.FirstChildOfKind(n, "function_modifiers")
	return m != nil && strings.Contains(b.text(m), mod)
}

func rustParams(b *fileBuilder, params *tree_sitter.Node) []string {
	var out []string
	for _, p := range parser.NamedChildren(params) {
		switch p.Kind() {
		case "parameter", "self_parameter", "variadic_parameter":
			out = append(out, strings.Join(strings.Fields(b.text(p)), " "))
		}
	}
	return out
}

func rustFields(b *fileBuilder, class *graph.Entity, body *tree_sitter.Node) {
	if class == nil {
		return
	}
	for _, f := range parser.NamedChildren(body) {
		if f.Kind() == "field_declaration" {
			b.addMember(class, graph.KindVariable, b.text(f.ChildByFieldName("name")), f, map[string]any{
				"type": b.text(f.ChildByFieldName("type")),
			})
		}
	}
}

// rustImpl attaches methods to the implemented type and records
// `impl Trait for Type` as Type EXTENDS Trait.
func rustImpl(b *fileBuilder, n *tree_sitter.Node) {
	typ := rustTypeName(b.text(n.ChildByFieldName("type")))
	if typ == "" {
		return
	}
	if tr := n.ChildByFieldName("trait"); tr != nil {
		if class := b.res.FindEntity(graph.KindClass, typ); class != nil && class.Attr(graph.AttrClass) == nil {
			b.extends(class, b.text(tr), int(tr.StartPosition().Row)+1, map[string]any{graph.AttrVia: "impl"})
		}
	}
	for _, m := range parser.NamedChildren(n.ChildByFieldName("body")) {
		if m.Kind() == "function_item" {
			rustFunction(b, nil, typ, m)
		}
	}
}

// rustTypeName reduces "&mut a::Foo<T>" to "Foo".
func rustTypeName(s string) string {
	s = strings.TrimLeft(s, "&*")
	s = strings.TrimPrefix(strings.TrimSpace(s), "mut ")
	s = stripGenerics(s)
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	return s
}

// rustUse expands a use tree into one binding per leaf.
func rustUse(b *fileBuilder, n *tree_sitter.Node, pub bool) {
	line := int(n.StartPosition().Row) + 1
	arg := n.ChildByFieldName("argument")
	if arg == nil {
		return
	}
	rustUseTree(b, arg, "", line, pub)
}

func rustUseTree(b *fileBuilder, n *tree_sitter.Node, prefix string, line int, pub bool) {
	join := func(a, c string) string {
		if a == "" {
			return c
		}
		if c == "" {
			return a
		}
		return a + "::" + c
	}
	switch n.Kind() {
	case "scoped_identifier", "identifier", "crate", "self", "super":
		rustUseLeaf(b, join(prefix, b.text(n)), "", line, pub)
	case "use_as_clause":
		rustUseLeaf(b, join(prefix, b.text(n.ChildByFieldName("path"))), b.text(n.ChildByFieldName("alias")), line, pub)
	case "scoped_use_list":
		p := join(prefix, b.text(n.ChildByFieldName("path")))
		rustUseTree(b, n.ChildByFieldName("list"), p, line, pub)
	case "use_list":
		for _, c := range parser.NamedChildren(n) {
			rustUseTree(b, c, prefix, line, pub)
		}
	case "use_wildcard":
		module := join(prefix, strings.TrimSuffix(strings.TrimSuffix(b.text(n), "*"), "::"))
		if pub {
			b.reexport("", "*", module, line)
			return
		}
		b.deferImport(binding{module: module, style: graph.ImportNamespace}, line, "", map[string]any{"wildcard": true})
	}
}

func rustUseLeaf(b *fileBuilder, path, alias string, line int, pub bool) {
	module, name := b.splitQualified(path)
	if name == "self" {
		// use a::b::{self} binds the module b.
		module, name = b.splitQualified(module)
	}
	local := name
	if alias != "" {
		local = alias
	}
	if module == "" {
		// `use serde;` names an external crate.
		b.bind(local, binding{module: name, style: graph.ImportNamespace}, line, nil)
		return
	}
	bd := binding{name: name, module: module, style: graph.ImportNamed}
	if pub {
		if local != "_" {
			b.imports[local] = bd
		}
		b.reexport(name, local, module, line)
		return
	}
	b.bind(local, bd, line, nil)
}

func rustCallee(b *fileBuilder) func(n *tree_sitter.Node) (string, string) {
	return func(n *tree_sitter.Node) (string, string) {
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return "", ""
		}
		switch fn.Kind() {
		case "identifier":
			return "", b.text(fn)
		case "scoped_identifier":
			path := fn.ChildByFieldName("path")
			if path == nil {
				return "", b.text(fn.ChildByFieldName("name"))
			}
			return stripGenerics(b.text(path)), b.text(fn.ChildByFieldName("name"))
		case "field_expression":
			if v := fn.ChildByFieldName("value"); v != nil && v.Kind() == "self" {
				return "self", b.text(fn.ChildByFieldName("field"))
			}
		case "generic_function":
			return rustCallee(b)(fn)
		}
		return "", ""
	}
}
