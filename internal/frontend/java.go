package frontend

import (
	"slices"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

func init() {
	defaultRegistry.Register(lang.Java, &treeSitter{
		lang:    lang.Java,
		extract: extractJava,
		setup:   func(b *fileBuilder) { b.implicitThis = true },
	})
}

var javaCallKinds = map[string]bool{"method_invocation": true, "object_creation_expression": true}

var javaTypeKinds = map[string]string{
	"class_declaration":     "",
	"interface_declaration": "interface",
	"enum_declaration":      "enum",
	"record_declaration":    "record",
}

// extractJava handles one compilation unit. Every top-level type is exported
// under its simple name; a file's module is its package plus type name, so
// an unimported type name is looked up in the enclosing package.
func extractJava(b *fileBuilder, root *tree_sitter.Node) {
	pkg := ""
	if p := parser.FirstChildOfKind(root, "package_declaration"); p != nil {
		pkg = b.text(parser.FirstChildOfKind(p, "scoped_identifier", "identifier"))
		b.res.File().SetAttr("package", pkg)
	}
	b.implicitModule = func(name string) string {
		// Types are capitalized; a bare lowercase call is an inherited
		// or static-imported method, not a package member.
		if pkg == "" || !isExported(name) {
			return ""
		}
		return pkg + "." + name
	}

	for _, n := range parser.NamedChildren(root) {
		switch n.Kind() {
		case "import_declaration":
			javaImport(b, n)
		default:
			if _, ok := javaTypeKinds[n.Kind()]; ok {
				if c := javaType(b, nil, n); c != nil {
					b.res.Export(c.Name, c.ID, graph.ExportNamed)
				}
			}
		}
	}
}

func javaImport(b *fileBuilder, n *tree_sitter.Node) {
	line := int(n.StartPosition().Row) + 1
	target := b.text(parser.FirstChildOfKind(n, "scoped_identifier", "identifier"))
	if target == "" {
		return
	}
	attrs := map[string]any{}
	static := hasChildKind(n, "static")
	if static {
		attrs["static"] = true
	}
	if parser.FirstChildOfKind(n, "asterisk") != nil {
		attrs["wildcard"] = true
		b.deferImport(binding{module: target, style: graph.ImportNamespace}, line, "", attrs)
		return
	}
	qual, name := b.splitQualified(target)
	module := target
	if static {
		// import static a.b.Util.max: the symbol lives in a.b.Util.
		module = qual
	}
	b.bind(name, binding{name: name, module: module, style: graph.ImportNamed}, line, attrs)
}

func javaModifiers(b *fileBuilder, n *tree_sitter.Node) (mods []string, annotations []string) {
	m := parser.FirstChildOfKind(n, "modifiers")
	if m == nil {
		return nil, nil
	}
	for i := uint(0); i < m.ChildCount(); i++ {
		c := m.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "marker_annotation", "annotation":
			annotations = append(annotations, strings.TrimPrefix(b.text(c), "@"))
		default:
			mods = append(mods, b.text(c))
		}
	}
	return mods, annotations
}

// javaType creates a class-like entity; outer is nil for top-level types.
func javaType(b *fileBuilder, outer *graph.Entity, n *tree_sitter.Node) *graph.Entity {
	name := b.text(n.ChildByFieldName("name"))
	mods, annotations := javaModifiers(b, n)
	attrs := map[string]any{}
	if sub := javaTypeKinds[n.Kind()]; sub != "" {
		attrs[graph.AttrSubkind] = sub
	}
	if slices.Contains(mods, "abstract") {
		attrs["abstract"] = true
	}
	if len(annotations) > 0 {
		attrs[graph.AttrDecorators] = annotations
	}
	var c *graph.Entity
	if outer == nil {
		c = b.addTop(graph.KindClass, name, n, attrs)
	} else {
		c = b.addNestedClass(outer, name, n, attrs)
	}
	if c == nil {
		return nil
	}

	if sc := n.ChildByFieldName("superclass"); sc != nil {
		for _, t := range parser.NamedChildren(sc) {
			b.extends(c, b.text(t), int(t.StartPosition().Row)+1, nil)
		}
	}
	var heritage *tree_sitter.Node
	via := "implements"
	if n.Kind() == "interface_declaration" {
		heritage = parser.FirstChildOfKind(n, "extends_interfaces")
		via = ""
	} else {
		heritage = n.ChildByFieldName("interfaces")
	}
	if list := parser.FirstChildOfKind(heritage, "type_list"); list != nil {
		for _, t := range parser.NamedChildren(list) {
			var a map[string]any
			if via != "" {
				a = map[string]any{graph.AttrVia: via}
			}
			b.extends(c, b.text(t), int(t.StartPosition().Row)+1, a)
		}
	}

	javaBody(b, c, n.ChildByFieldName("body"))
	return c
}

func javaBody(b *fileBuilder, c *graph.Entity, body *tree_sitter.Node) {
	for _, m := range parser.NamedChildren(body) {
		switch m.Kind() {
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
			mods, annotations := javaModifiers(b, m)
			attrs := map[string]any{
				graph.AttrIsStatic:   slices.Contains(mods, "static"),
				graph.AttrParameters: javaParams(b, m.ChildByFieldName("parameters")),
			}
			if t := m.ChildByFieldName("type"); t != nil {
				attrs["return_type"] = b.text(t)
			}
			if m.Kind() != "method_declaration" {
				attrs[graph.AttrSubkind] = "constructor"
			}
			if len(annotations) > 0 {
				attrs[graph.AttrDecorators] = annotations
			}
			name := b.text(m.ChildByFieldName("name"))
			if name == "" {
				name = c.Name
			}
			fn := b.addMember(c, graph.KindFunction, name, m, attrs)
			b.collectCalls(fn, m.ChildByFieldName("body"), javaCallKinds, javaCallee(b))
		case "field_declaration", "constant_declaration":
			mods, _ := javaModifiers(b, m)
			typ := b.text(m.ChildByFieldName("type"))
			for _, d := range parser.FieldChildren(m, "declarator") {
				b.addMember(c, graph.KindVariable, b.text(d.ChildByFieldName("name")), m, map[string]any{
					"type":             typ,
					graph.AttrIsStatic: slices.Contains(mods, "static"),
				})
			}
		case "enum_body_declarations":
			javaBody(b, c, m)
		default:
			if _, ok := javaTypeKinds[m.Kind()]; ok {
				javaType(b, c, m)
			}
		}
	}
	if body != nil && body.Kind() == "enum_body" {
		for _, m := range parser.NamedChildren(body) {
			if m.Kind() == "enum_constant" {
				b.addMember(c, graph.KindVariable, b.text(m.ChildByFieldName("name")), m, map[string]any{
					graph.AttrIsStatic: true,
				})
			}
		}
	}
}

func javaParams(b *fileBuilder, params *tree_sitter.Node) []string {
	var out []string
	for _, p := range parser.NamedChildren(params) {
		switch p.Kind() {
		case "formal_parameter", "spread_parameter":
			out = append(out, strings.Join(strings.Fields(b.text(p)), " "))
		}
	}
	return out
}

func javaCallee(b *fileBuilder) func(n *tree_sitter.Node) (string, string) {
	return func(n *tree_sitter.Node) (string, string) {
		switch n.Kind() {
		case "object_creation_expression":
			return "", stripGenerics(b.text(n.ChildByFieldName("type")))
		case "method_invocation":
			name := b.text(n.ChildByFieldName("name"))
			obj := n.ChildByFieldName("object")
			if obj == nil {
				return "", name
			}
			switch obj.Kind() {
			case "identifier", "this":
				return b.text(obj), name
			}
		}
		return "", ""
	}
}
