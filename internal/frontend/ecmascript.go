package frontend

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

// JavaScript, TypeScript and TSX share one extractor; the grammars differ
// only in type syntax.
func init() {
	for _, l := range []lang.Language{lang.JavaScript, lang.TypeScript, lang.TSX} {
		defaultRegistry.Register(l, &treeSitter{lang: l, extract: extractECMAScript})
	}
}

var esCallKinds = map[string]bool{"call_expression": true, "new_expression": true}

func extractECMAScript(b *fileBuilder, root *tree_sitter.Node) {
	for _, n := range parser.NamedChildren(root) {
		esTopLevel(b, n, "")
	}
	esLocalExports(b, root)
	esCommonJSExports(b, root)
}

// esTopLevel handles one statement at module scope. exportKind is set when
// the statement is the declaration of an export statement.
func esTopLevel(b *fileBuilder, n *tree_sitter.Node, exportKind string) {
	switch n.Kind() {
	case "import_statement":
		esImport(b, n)
	case "export_statement":
		esExport(b, n)
	case "function_declaration", "generator_function_declaration", "function_signature":
		fn := esFunction(b, n, n, b.text(n.ChildByFieldName("name")), "standard")
		esMarkExport(b, fn, exportKind)
	case "class_declaration", "abstract_class_declaration":
		c := esClass(b, n, n, b.text(n.ChildByFieldName("name")))
		esMarkExport(b, c, exportKind)
	case "interface_declaration":
		c := b.addTop(graph.KindClass, b.text(n.ChildByFieldName("name")), n, map[string]any{graph.AttrSubkind: "interface"})
		if c != nil {
			for _, h := range parser.NamedChildren(parser.FirstChildOfKind(n, "extends_type_clause")) {
				b.extends(c, b.text(h), int(h.StartPosition().Row)+1, nil)
			}
		}
		esMarkExport(b, c, exportKind)
	case "lexical_declaration", "variable_declaration":
		for _, e := range esDeclaration(b, n) {
			esMarkExport(b, e, exportKind)
		}
	case "expression_statement":
		esRequireCall(b, n)
	}
}

func esMarkExport(b *fileBuilder, e *graph.Entity, kind string) {
	if e == nil || kind == "" {
		return
	}
	name := e.Name
	if kind == graph.ExportDefault {
		name = "default"
	}
	b.res.Export(name, e.ID, kind)
}

func esImport(b *fileBuilder, n *tree_sitter.Node) {
	module := unquote(b.text(n.ChildByFieldName("source")))
	line := int(n.StartPosition().Row) + 1
	attrs := func() map[string]any {
		if hasChildKind(n, "type") {
			return map[string]any{"type_only": true}
		}
		return nil
	}

	if req := parser.FirstChildOfKind(n, "import_require_clause"); req != nil {
		// import x = require('y')
		local := b.text(parser.FirstChildOfKind(req, "identifier"))
		module = unquote(b.text(req.ChildByFieldName("source")))
		b.bind(local, binding{name: "default", module: module, style: graph.ImportDefault}, line, attrs())
		return
	}

	clause := parser.FirstChildOfKind(n, "import_clause")
	if clause == nil {
		b.sideEffect(module, line)
		return
	}
	for _, c := range parser.NamedChildren(clause) {
		switch c.Kind() {
		case "identifier":
			b.bind(b.text(c), binding{name: "default", module: module, style: graph.ImportDefault}, line, attrs())
		case "namespace_import":
			local := b.text(parser.FirstChildOfKind(c, "identifier"))
			b.bind(local, binding{module: module, style: graph.ImportNamespace}, line, attrs())
		case "named_imports":
			for _, spec := range parser.NamedChildren(c) {
				if spec.Kind() != "import_specifier" {
					continue
				}
				name := unquote(b.text(spec.ChildByFieldName("name")))
				local := name
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local = b.text(alias)
				}
				b.bind(local, binding{name: name, module: module, style: graph.ImportNamed}, line, attrs())
			}
		}
	}
}

func esExport(b *fileBuilder, n *tree_sitter.Node) {
	line := int(n.StartPosition().Row) + 1
	isDefault := hasChildKind(n, "default")
	kind := graph.ExportNamed
	if isDefault {
		kind = graph.ExportDefault
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		esTopLevel(b, decl, kind)
		return
	}

	source := n.ChildByFieldName("source")
	if source != nil {
		module := unquote(b.text(source))
		clause := parser.FirstChildOfKind(n, "export_clause")
		switch {
		case clause != nil:
			// export { a, b as c } from './m'
			for _, spec := range parser.NamedChildren(clause) {
				name, as := esExportSpecifier(b, spec)
				b.reexport(name, as, module, line)
			}
		case parser.FirstChildOfKind(n, "namespace_export") != nil:
			// export * as ns from './m'
			ns := parser.FirstChildOfKind(n, "namespace_export")
			b.reexport("", b.text(parser.FirstChildOfKind(ns, "identifier")), module, line)
		default:
			// export * from './m'
			b.reexport("", "*", module, line)
		}
		return
	}

	// Export clauses and `export default name` may precede the declaration
	// they name; esLocalExports handles them once the file is walked.
	if value := n.ChildByFieldName("value"); value != nil && isDefault {
		switch value.Kind() {
		case "class":
			if name := value.ChildByFieldName("name"); name != nil {
				c := esClass(b, value, n, b.text(name))
				esMarkExport(b, c, graph.ExportDefault)
			}
		case "function_expression", "function":
			if name := value.ChildByFieldName("name"); name != nil {
				fn := esFunction(b, value, n, b.text(name), "expression")
				esMarkExport(b, fn, graph.ExportDefault)
			}
		}
	}
}

// esLocalExports applies `export { a, b as c }` and `export default a`
// after every top-level declaration of the file is known.
func esLocalExports(b *fileBuilder, root *tree_sitter.Node) {
	for _, n := range parser.NamedChildren(root) {
		if n.Kind() != "export_statement" || n.ChildByFieldName("source") != nil || n.ChildByFieldName("declaration") != nil {
			continue
		}
		line := int(n.StartPosition().Row) + 1
		if clause := parser.FirstChildOfKind(n, "export_clause"); clause != nil {
			for _, spec := range parser.NamedChildren(clause) {
				name, as := esExportSpecifier(b, spec)
				if b.export(name, as, graph.ExportNamed) {
					continue
				}
				if bd, ok := b.imports[name]; ok && bd.name != "" {
					// Re-export of an imported binding.
					b.reexport(bd.name, as, bd.module, line)
				}
			}
			continue
		}
		if value := n.ChildByFieldName("value"); value != nil && value.Kind() == "identifier" && hasChildKind(n, "default") {
			b.export(b.text(value), "default", graph.ExportDefault)
		}
	}
}

func esExportSpecifier(b *fileBuilder, spec *tree_sitter.Node) (name, as string) {
	name = unquote(b.text(spec.ChildByFieldName("name")))
	as = name
	if alias := spec.ChildByFieldName("alias"); alias != nil {
		as = unquote(b.text(alias))
	}
	return name, as
}

// esFunction creates a top-level function for fn spanning span.
func esFunction(b *fileBuilder, fn, span *tree_sitter.Node, name, style string) *graph.Entity {
	attrs := map[string]any{
		graph.AttrFunctionStyle: style,
		graph.AttrIsAsync:       hasChildKind(fn, "async"),
		graph.AttrParameters:    esParams(b, fn),
	}
	if fn.Kind() == "generator_function_declaration" || fn.Kind() == "generator_function" {
		attrs["is_generator"] = true
	}
	e := b.addTop(graph.KindFunction, name, span, attrs)
	b.collectCalls(e, fn.ChildByFieldName("body"), esCallKinds, esCallee(b))
	return e
}

func esParams(b *fileBuilder, fn *tree_sitter.Node) []string {
	if single := fn.ChildByFieldName("parameter"); single != nil {
		return []string{b.text(single)}
	}
	params := fn.ChildByFieldName("parameters")
	var out []string
	for _, p := range parser.NamedChildren(params) {
		switch p.Kind() {
		case "identifier":
			out = append(out, b.text(p))
		case "required_parameter", "optional_parameter":
			out = append(out, b.text(p.ChildByFieldName("pattern")))
		case "assignment_pattern":
			out = append(out, b.text(p.ChildByFieldName("left")))
		case "rest_pattern":
			out = append(out, "..."+b.text(parser.FirstChildOfKind(p, "identifier")))
		case "comment":
		default:
			out = append(out, b.text(p))
		}
	}
	return out
}

func esClass(b *fileBuilder, n, span *tree_sitter.Node, name string) *graph.Entity {
	attrs := map[string]any{}
	if n.Kind() == "abstract_class_declaration" {
		attrs["is_abstract"] = true
	}
	c := b.addTop(graph.KindClass, name, span, attrs)
	if c == nil {
		return nil
	}
	esHeritage(b, c, parser.FirstChildOfKind(n, "class_heritage"))
	esClassBody(b, c, n.ChildByFieldName("body"))
	return c
}

func esHeritage(b *fileBuilder, c *graph.Entity, h *tree_sitter.Node) {
	if h == nil {
		return
	}
	for _, part := range parser.NamedChildren(h) {
		line := int(part.StartPosition().Row) + 1
		switch part.Kind() {
		case "extends_clause":
			if v := part.ChildByFieldName("value"); v != nil {
				b.extends(c, b.text(v), line, nil)
			}
		case "implements_clause":
			for _, t := range parser.NamedChildren(part) {
				b.extends(c, b.text(t), line, map[string]any{graph.AttrVia: "implements"})
			}
		default:
			// JavaScript: class_heritage holds the parent expression itself.
			b.extends(c, b.text(part), line, nil)
		}
	}
}

func esClassBody(b *fileBuilder, c *graph.Entity, body *tree_sitter.Node) {
	for _, m := range parser.NamedChildren(body) {
		switch m.Kind() {
		case "method_definition", "method_signature", "abstract_method_signature":
			attrs := map[string]any{
				graph.AttrIsStatic:   hasChildKind(m, "static"),
				graph.AttrIsAsync:    hasChildKind(m, "async"),
				graph.AttrParameters: esParams(b, m),
			}
			if hasChildKind(m, "get") {
				attrs["accessor"] = "get"
			} else if hasChildKind(m, "set") {
				attrs["accessor"] = "set"
			}
			fn := b.addMember(c, graph.KindFunction, b.text(m.ChildByFieldName("name")), m, attrs)
			b.collectCalls(fn, m.ChildByFieldName("body"), esCallKinds, esCallee(b))
		case "field_definition", "public_field_definition":
			nameNode := m.ChildByFieldName("property")
			if nameNode == nil {
				nameNode = m.ChildByFieldName("name")
			}
			b.addMember(c, graph.KindVariable, b.text(nameNode), m, map[string]any{
				graph.AttrIsStatic: hasChildKind(m, "static"),
			})
		}
	}
}

// esDeclaration handles const/let/var statements. Every binding becomes its
// own entity spanning the whole statement, so all share one start line.
func esDeclaration(b *fileBuilder, n *tree_sitter.Node) []*graph.Entity {
	declType := "var"
	if n.Kind() == "lexical_declaration" {
		if first := n.Child(0); first != nil {
			declType = first.Kind()
		}
	}
	var out []*graph.Entity
	for _, d := range parser.NamedChildren(n) {
		if d.Kind() != "variable_declarator" {
			continue
		}
		nameNode := d.ChildByFieldName("name")
		value := d.ChildByFieldName("value")
		if nameNode == nil {
			continue
		}
		line := int(d.StartPosition().Row) + 1

		if module, ok := esRequire(b, value); ok {
			esRequireBindings(b, nameNode, module, line)
			continue
		}

		if nameNode.Kind() == "identifier" && value != nil {
			switch value.Kind() {
			case "arrow_function":
				if e := esFunction(b, value, n, b.text(nameNode), "arrow"); e != nil {
					e.SetAttr(graph.AttrDeclarationType, declType)
					out = append(out, e)
				}
				continue
			case "function_expression", "function", "generator_function":
				if e := esFunction(b, value, n, b.text(nameNode), "expression"); e != nil {
					e.SetAttr(graph.AttrDeclarationType, declType)
					out = append(out, e)
				}
				continue
			case "class":
				if e := esClass(b, value, n, b.text(nameNode)); e != nil {
					out = append(out, e)
				}
				continue
			}
		}

		for _, name := range esPatternNames(b, nameNode) {
			e := b.addTop(graph.KindVariable, name, n, map[string]any{graph.AttrDeclarationType: declType})
			if e != nil {
				out = append(out, e)
				if value != nil {
					b.collectCalls(e, value, esCallKinds, esCallee(b))
				}
			}
		}
	}
	return out
}

// esPatternNames lists the identifiers bound by a declarator name, which
// may be a destructuring pattern.
func esPatternNames(b *fileBuilder, n *tree_sitter.Node) []string {
	switch n.Kind() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []string{b.text(n)}
	case "pair_pattern":
		return esPatternNames(b, n.ChildByFieldName("value"))
	case "assignment_pattern", "object_assignment_pattern":
		return esPatternNames(b, n.ChildByFieldName("left"))
	case "rest_pattern":
		return esPatternNames(b, parser.FirstChildOfKind(n, "identifier"))
	case "object_pattern", "array_pattern":
		var out []string
		for _, c := range parser.NamedChildren(n) {
			out = append(out, esPatternNames(b, c)...)
		}
		return out
	}
	return nil
}

// esRequire reports whether value is require('m') and returns m.
func esRequire(b *fileBuilder, value *tree_sitter.Node) (string, bool) {
	if value == nil || value.Kind() != "call_expression" {
		return "", false
	}
	fn := value.ChildByFieldName("function")
	if fn == nil || b.text(fn) != "require" {
		return "", false
	}
	args := parser.NamedChildren(value.ChildByFieldName("arguments"))
	if len(args) != 1 || args[0].Kind() != "string" {
		return "", false
	}
	return unquote(b.text(args[0])), true
}

func esRequireBindings(b *fileBuilder, nameNode *tree_sitter.Node, module string, line int) {
	if nameNode.Kind() == "identifier" {
		b.bind(b.text(nameNode), binding{module: module, style: graph.ImportNamespace}, line, map[string]any{"commonjs": true})
		return
	}
	if nameNode.Kind() != "object_pattern" {
		return
	}
	for _, p := range parser.NamedChildren(nameNode) {
		switch p.Kind() {
		case "shorthand_property_identifier_pattern":
			name := b.text(p)
			b.bind(name, binding{name: name, module: module, style: graph.ImportNamed}, line, map[string]any{"commonjs": true})
		case "pair_pattern":
			name := b.text(p.ChildByFieldName("key"))
			local := b.text(p.ChildByFieldName("value"))
			b.bind(local, binding{name: name, module: module, style: graph.ImportNamed}, line, map[string]any{"commonjs": true})
		}
	}
}

// esRequireCall handles a bare require('m') statement.
func esRequireCall(b *fileBuilder, stmt *tree_sitter.Node) {
	expr := stmt.NamedChild(0)
	if module, ok := esRequire(b, expr); ok {
		b.sideEffect(module, int(stmt.StartPosition().Row)+1)
	}
}

// esCommonJSExports marks module.exports / exports.x assignments. It runs
// after every declaration is known.
func esCommonJSExports(b *fileBuilder, root *tree_sitter.Node) {
	for _, stmt := range parser.NamedChildren(root) {
		if stmt.Kind() != "expression_statement" {
			continue
		}
		expr := stmt.NamedChild(0)
		if expr == nil || expr.Kind() != "assignment_expression" {
			continue
		}
		left := b.text(expr.ChildByFieldName("left"))
		right := expr.ChildByFieldName("right")
		if right == nil {
			continue
		}
		switch {
		case left == "module.exports" && right.Kind() == "identifier":
			b.export(b.text(right), "default", graph.ExportDefault)
		case left == "module.exports" && right.Kind() == "object":
			for _, p := range parser.NamedChildren(right) {
				switch p.Kind() {
				case "shorthand_property_identifier":
					b.export(b.text(p), b.text(p), graph.ExportNamed)
				case "pair":
					if v := p.ChildByFieldName("value"); v != nil && v.Kind() == "identifier" {
						b.export(b.text(v), unquote(b.text(p.ChildByFieldName("key"))), graph.ExportNamed)
					}
				}
			}
		case strings.HasPrefix(left, "exports.") || strings.HasPrefix(left, "module.exports."):
			name := left[strings.LastIndex(left, ".")+1:]
			if right.Kind() == "identifier" {
				b.export(b.text(right), name, graph.ExportNamed)
			}
		}
	}
}

func esCallee(b *fileBuilder) func(n *tree_sitter.Node) (string, string) {
	return func(n *tree_sitter.Node) (string, string) {
		fn := n.ChildByFieldName("function")
		if fn == nil {
			fn = n.ChildByFieldName("constructor")
		}
		if fn == nil {
			return "", ""
		}
		switch fn.Kind() {
		case "identifier":
			return "", b.text(fn)
		case "member_expression":
			obj := fn.ChildByFieldName("object")
			if obj == nil || obj.Kind() != "identifier" {
				return "", ""
			}
			return b.text(obj), b.text(fn.ChildByFieldName("property"))
		}
		return "", ""
	}
}
