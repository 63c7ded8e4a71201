package frontend

import (
	"strings"
	"unicode"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

func init() {
	defaultRegistry.Register(lang.Go, &treeSitter{
		lang:    lang.Go,
		extract: extractGo,
		setup:   func(b *fileBuilder) { b.sameModule = true },
	})
}

var goCallKinds = map[string]bool{"call_expression": true}

// goBuiltins are predeclared functions that never resolve to user code.
var goBuiltins = toSet([]string{
	"append", "cap", "clear", "close", "complex", "copy", "delete", "imag",
	"len", "make", "max", "min", "new", "panic", "print", "println", "real", "recover",
	"bool", "byte", "rune", "string", "int", "int8", "int16", "int32", "int64",
	"uint", "uint8", "uint16", "uint32", "uint64", "uintptr", "float32", "float64",
	"complex64", "complex128", "error", "any",
})

// isExported reports whether a Go identifier is exported.
func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

func extractGo(b *fileBuilder, root *tree_sitter.Node) {
	for _, n := range parser.NamedChildren(root) {
		switch n.Kind() {
		case "package_clause":
			b.res.File().SetAttr("package", b.text(parser.FirstChildOfKind(n, "package_identifier")))
		case "import_declaration":
			goImports(b, n)
		case "function_declaration":
			name := b.text(n.ChildByFieldName("name"))
			fn := b.addTop(graph.KindFunction, name, n, map[string]any{
				graph.AttrParameters: goParams(b, n.ChildByFieldName("parameters")),
				"result":             b.text(n.ChildByFieldName("result")),
			})
			b.collectCalls(fn, n.ChildByFieldName("body"), goCallKinds, goCallee(b))
		case "method_declaration":
			goMethod(b, n)
		case "type_declaration":
			for _, spec := range parser.NamedChildren(n) {
				if spec.Kind() == "type_spec" {
					goTypeSpec(b, spec, n)
				}
			}
		case "var_declaration", "const_declaration":
			goValues(b, n)
		}
	}
	for _, k := range []graph.EntityKind{graph.KindClass, graph.KindFunction, graph.KindVariable} {
		for _, e := range b.res.EntitiesOfKind(k) {
			if e.Attr(graph.AttrClass) == nil && isExported(e.Name) {
				b.res.Export(e.Name, e.ID, graph.ExportNamed)
			}
		}
	}
	// Drop builtin calls before finish turns them into same-package lookups.
	calls := b.calls[:0]
	for _, c := range b.calls {
		if c.qualifier == "" && goBuiltins[c.name] {
			if _, local := b.callables[c.name]; !local {
				continue
			}
		}
		calls = append(calls, c)
	}
	b.calls = calls
}

func goImports(b *fileBuilder, n *tree_sitter.Node) {
	var specs []*tree_sitter.Node
	parser.Walk(n, func(c *tree_sitter.Node) bool {
		if c.Kind() == "import_spec" {
			specs = append(specs, c)
			return false
		}
		return true
	})
	for _, spec := range specs {
		path := unquote(b.text(spec.ChildByFieldName("path")))
		line := int(spec.StartPosition().Row) + 1
		alias := spec.ChildByFieldName("name")
		switch {
		case alias == nil:
			b.bind(lastPathSegment(path), binding{module: path, style: graph.ImportNamespace}, line, nil)
		case alias.Kind() == "blank_identifier":
			b.sideEffect(path, line)
		case alias.Kind() == "dot":
			b.deferImport(binding{module: path, style: graph.ImportNamespace}, line, "", map[string]any{"dot": true})
		default:
			b.bind(b.text(alias), binding{module: path, style: graph.ImportNamespace}, line, nil)
		}
	}
}

func goMethod(b *fileBuilder, n *tree_sitter.Node) {
	owner := goReceiverType(b, n.ChildByFieldName("receiver"))
	name := b.text(n.ChildByFieldName("name"))
	attrs := map[string]any{
		graph.AttrParameters: goParams(b, n.ChildByFieldName("parameters")),
		"result":             b.text(n.ChildByFieldName("result")),
		"receiver":           b.text(n.ChildByFieldName("receiver")),
	}
	var fn *graph.Entity
	if owner == "" {
		fn = b.addTop(graph.KindFunction, name, n, attrs)
	} else {
		fn = b.addOwnedMember(owner, name, n, attrs)
	}
	b.collectCalls(fn, n.ChildByFieldName("body"), goCallKinds, goCallee(b))
}

// goReceiverType returns T for receivers (t T), (t *T) and (t *T[K]).
func goReceiverType(b *fileBuilder, recv *tree_sitter.Node) string {
	var name string
	parser.Walk(recv, func(n *tree_sitter.Node) bool {
		if name != "" {
			return false
		}
		if n.Kind() == "type_identifier" {
			name = b.text(n)
			return false
		}
		return true
	})
	return name
}

func goTypeSpec(b *fileBuilder, spec, decl *tree_sitter.Node) {
	name := b.text(spec.ChildByFieldName("name"))
	typ := spec.ChildByFieldName("type")
	if typ == nil {
		return
	}
	span := decl
	if len(parser.NamedChildren(decl)) > 1 {
		span = spec
	}
	switch typ.Kind() {
	case "struct_type":
		c := b.addTop(graph.KindClass, name, span, map[string]any{graph.AttrSubkind: "struct"})
		if c == nil {
			return
		}
		fields := parser.FirstChildOfKind(typ, "field_declaration_list")
		for _, f := range parser.NamedChildren(fields) {
			if f.Kind() != "field_declaration" {
				continue
			}
			names := parser.FieldChildren(f, "name")
			if len(names) == 0 {
				// Embedded field.
				b.extends(c, strings.TrimPrefix(b.text(f.ChildByFieldName("type")), "*"),
					int(f.StartPosition().Row)+1, map[string]any{graph.AttrVia: "embedding"})
				continue
			}
			for _, name := range names {
				b.addMember(c, graph.KindVariable, b.text(name), f, map[string]any{
					"type": b.text(f.ChildByFieldName("type")),
				})
			}
		}
	case "interface_type":
		c := b.addTop(graph.KindClass, name, span, map[string]any{graph.AttrSubkind: "interface"})
		if c == nil {
			return
		}
		for _, m := range parser.NamedChildren(typ) {
			switch m.Kind() {
			case "method_elem", "method_spec":
				b.addMember(c, graph.KindFunction, b.text(m.ChildByFieldName("name")), m, map[string]any{
					graph.AttrParameters: goParams(b, m.ChildByFieldName("parameters")),
				})
			case "type_elem", "constraint_elem":
				for _, t := range parser.NamedChildren(m) {
					if t.Kind() == "type_identifier" || t.Kind() == "qualified_type" {
						b.extends(c, b.text(t), int(t.StartPosition().Row)+1, map[string]any{graph.AttrVia: "embedding"})
					}
				}
			}
		}
	}
	// Other named types (aliases, func types, maps) are compile-time only.
}

// goValues creates a Variable per name in var/const declarations. A single
// spec spans the whole declaration; grouped specs span themselves.
func goValues(b *fileBuilder, decl *tree_sitter.Node) {
	var specs []*tree_sitter.Node
	parser.Walk(decl, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "var_spec", "const_spec":
			specs = append(specs, n)
			return false
		}
		return true
	})
	declType := "var"
	if decl.Kind() == "const_declaration" {
		declType = "const"
	}
	grouped := len(specs) > 1 || hasChildKind(decl, "(") || parser.FirstChildOfKind(decl, "var_spec_list") != nil
	for _, spec := range specs {
		span := decl
		if grouped {
			span = spec
		}
		for _, name := range parser.FieldChildren(spec, "name") {
			if b.text(name) == "_" {
				continue
			}
			e := b.addTop(graph.KindVariable, b.text(name), span, map[string]any{
				graph.AttrDeclarationType: declType,
				"type":                    b.text(spec.ChildByFieldName("type")),
			})
			b.collectCalls(e, spec.ChildByFieldName("value"), goCallKinds, goCallee(b))
		}
	}
}

func goParams(b *fileBuilder, params *tree_sitter.Node) []string {
	var out []string
	for _, p := range parser.NamedChildren(params) {
		switch p.Kind() {
		case "parameter_declaration", "variadic_parameter_declaration":
			typ := b.text(p.ChildByFieldName("type"))
			if p.Kind() == "variadic_parameter_declaration" {
				typ = "..." + typ
			}
			names := parser.FieldChildren(p, "name")
			if len(names) == 0 {
				out = append(out, typ)
			}
			for _, name := range names {
				out = append(out, b.text(name)+" "+typ)
			}
		}
	}
	return out
}

func goCallee(b *fileBuilder) func(n *tree_sitter.Node) (string, string) {
	return func(n *tree_sitter.Node) (string, string) {
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return "", ""
		}
		switch fn.Kind() {
		case "identifier":
			return "", b.text(fn)
		case "selector_expression":
			operand := fn.ChildByFieldName("operand")
			if operand == nil || operand.Kind() != "identifier" {
				return "", ""
			}
			return b.text(operand), b.text(fn.ChildByFieldName("field"))
		}
		return "", ""
	}
}

func lastPathSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
