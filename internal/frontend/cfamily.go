package frontend

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

func init() {
	setup := func(b *fileBuilder) {
		// A header and its implementation share one module, and names from
		// included headers are looked up through the include edges.
		b.sameModule = true
		b.implicitThis = true
		b.qualifierSep = "::"
	}
	defaultRegistry.Register(lang.C, &treeSitter{lang: lang.C, extract: extractC, setup: setup})
	defaultRegistry.Register(lang.CPP, &treeSitter{lang: lang.CPP, extract: extractC, setup: setup})
}

var cCallKinds = map[string]bool{"call_expression": true}

func extractC(b *fileBuilder, root *tree_sitter.Node) {
	c := &cWalker{b: b, private: make(map[string]bool)}
	c.items(root, "")
	for _, k := range []graph.EntityKind{graph.KindClass, graph.KindFunction, graph.KindVariable} {
		for _, e := range b.res.EntitiesOfKind(k) {
			if e.Attr(graph.AttrClass) == nil && !c.private[e.ID] {
				b.res.Export(e.Name, e.ID, graph.ExportNamed)
			}
		}
	}
}

type cWalker struct {
	b *fileBuilder
	// private holds ids of static (internal linkage) declarations.
	private map[string]bool
}

// items walks a translation unit or a namespace/linkage body.
func (c *cWalker) items(n *tree_sitter.Node, namespace string) {
	b := c.b
	for _, item := range parser.NamedChildren(n) {
		switch item.Kind() {
		case "preproc_include":
			path := item.ChildByFieldName("path")
			if path == nil {
				continue
			}
			attrs := map[string]any{"include": true}
			if path.Kind() == "system_lib_string" {
				attrs["system"] = true
			}
			b.deferImport(binding{module: unquote(b.text(path)), style: graph.ImportSideEffect},
				int(item.StartPosition().Row)+1, "", attrs)
		case "namespace_definition":
			ns := b.text(item.ChildByFieldName("name"))
			if namespace != "" && ns != "" {
				ns = namespace + "::" + ns
			}
			c.items(item.ChildByFieldName("body"), ns)
		case "linkage_specification":
			if body := item.ChildByFieldName("body"); body != nil {
				if body.Kind() == "declaration_list" {
					c.items(body, namespace)
				} else {
					c.topLevel(body, body, namespace)
				}
			}
		case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif":
			// Include guards wrap the whole header.
			c.items(item, namespace)
		default:
			c.topLevel(item, item, namespace)
		}
	}
}

func (c *cWalker) topLevel(item, span *tree_sitter.Node, namespace string) {
	b := c.b
	switch item.Kind() {
	case "template_declaration":
		for _, inner := range parser.NamedChildren(item) {
			switch inner.Kind() {
			case "function_definition", "class_specifier", "struct_specifier", "declaration":
				c.topLevel(inner, item, namespace)
			}
		}
	case "function_definition":
		c.function(item, span, namespace)
	case "class_specifier", "struct_specifier", "union_specifier":
		c.class(item, span, "", namespace)
	case "type_definition":
		// typedef struct { ... } Name;
		t := item.ChildByFieldName("type")
		if t == nil || t.ChildByFieldName("body") == nil {
			return
		}
		for _, d := range parser.FieldChildren(item, "declarator") {
			if d.Kind() == "type_identifier" {
				c.class(t, span, b.text(d), namespace)
				break
			}
		}
	case "declaration":
		if t := item.ChildByFieldName("type"); t != nil && t.ChildByFieldName("body") != nil {
			c.class(t, span, "", namespace)
		}
		storage := cStorage(b, item)
		if storage == "extern" {
			return
		}
		for _, d := range parser.FieldChildren(item, "declarator") {
			if cIsPrototype(d) {
				continue
			}
			name := cDeclaratorName(b, d)
			e := b.addTop(graph.KindVariable, name, span, map[string]any{
				"type":           b.text(item.ChildByFieldName("type")),
				"namespace":      namespace,
				graph.AttrIsStatic: storage == "static",
			})
			if e == nil {
				continue
			}
			if storage == "static" {
				c.private[e.ID] = true
			}
			if d.Kind() == "init_declarator" {
				b.collectCalls(e, d.ChildByFieldName("value"), cCallKinds, cCallee(b))
			}
		}
	}
}

func (c *cWalker) function(n, span *tree_sitter.Node, namespace string) {
	b := c.b
	decl := cFunctionDeclarator(n.ChildByFieldName("declarator"))
	if decl == nil {
		return
	}
	inner := decl.ChildByFieldName("declarator")
	attrs := map[string]any{
		graph.AttrParameters: cParams(b, decl.ChildByFieldName("parameters")),
		"return_type":        b.text(n.ChildByFieldName("type")),
		"namespace":          namespace,
	}
	static := cStorage(b, n) == "static"
	var fn *graph.Entity
	if inner != nil && inner.Kind() == "qualified_identifier" {
		// void Widget::draw() { ... }
		scope, name := b.splitQualified(b.text(inner))
		owner := scope
		if i := strings.LastIndex(owner, "::"); i >= 0 {
			owner = owner[i+2:]
		}
		fn = b.addOwnedMember(stripGenerics(owner), name, span, attrs)
	} else {
		attrs[graph.AttrIsStatic] = static
		fn = b.addTop(graph.KindFunction, b.text(inner), span, attrs)
		if fn != nil && static {
			c.private[fn.ID] = true
		}
	}
	b.collectCalls(fn, n.ChildByFieldName("body"), cCallKinds, cCallee(b))
}

// class handles struct, union and class specifiers with a body. name
// overrides the specifier's own name for anonymous typedef'd structs.
func (c *cWalker) class(n, span *tree_sitter.Node, name, namespace string) {
	b := c.b
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	if name == "" {
		name = stripGenerics(b.text(n.ChildByFieldName("name")))
	}
	subkind := strings.TrimSuffix(n.Kind(), "_specifier")
	e := b.addTop(graph.KindClass, name, span, map[string]any{
		graph.AttrSubkind: subkind,
		"namespace":       namespace,
	})
	if e == nil {
		return
	}
	if base := parser.FirstChildOfKind(n, "base_class_clause"); base != nil {
		for _, t := range parser.NamedChildren(base) {
			switch t.Kind() {
			case "type_identifier", "qualified_identifier", "template_type":
				b.extends(e, b.text(t), int(t.StartPosition().Row)+1, nil)
			}
		}
	}
	for _, m := range parser.NamedChildren(body) {
		member := m
		if m.Kind() == "template_declaration" {
			member = parser.FirstChildOfKind(m, "function_definition", "declaration", "field_declaration")
			if member == nil {
				continue
			}
		}
		switch member.Kind() {
		case "function_definition":
			decl := cFunctionDeclarator(member.ChildByFieldName("declarator"))
			if decl == nil {
				continue
			}
			fn := b.addMember(e, graph.KindFunction, b.text(decl.ChildByFieldName("declarator")), m, map[string]any{
				graph.AttrParameters: cParams(b, decl.ChildByFieldName("parameters")),
				"return_type":        b.text(member.ChildByFieldName("type")),
				graph.AttrIsStatic:   cStorage(b, member) == "static",
			})
			b.collectCalls(fn, member.ChildByFieldName("body"), cCallKinds, cCallee(b))
		case "field_declaration":
			for _, d := range parser.FieldChildren(member, "declarator") {
				if cIsPrototype(d) {
					// Declared here, defined out of line.
					continue
				}
				b.addMember(e, graph.KindVariable, cDeclaratorName(b, d), m, map[string]any{
					"type": b.text(member.ChildByFieldName("type")),
				})
			}
			if t := member.ChildByFieldName("type"); t != nil && t.ChildByFieldName("body") != nil {
				if nested := b.text(t.ChildByFieldName("name")); nested != "" {
					b.addNestedClass(e, nested, t, map[string]any{graph.AttrSubkind: strings.TrimSuffix(t.Kind(), "_specifier")})
				}
			}
		}
	}
}

func cStorage(b *fileBuilder, n *tree_sitter.Node) string {
	for _, c := range parser.NamedChildren(n) {
		if c.Kind() == "storage_class_specifier" {
			return b.text(c)
		}
	}
	return ""
}

// cFunctionDeclarator digs through pointer and reference declarators.
func cFunctionDeclarator(n *tree_sitter.Node) *tree_sitter.Node {
	for n != nil {
		if n.Kind() == "function_declarator" {
			return n
		}
		next := n.ChildByFieldName("declarator")
		if next == nil {
			next = parser.FirstChildOfKind(n, "function_declarator", "pointer_declarator", "reference_declarator")
		}
		n = next
	}
	return nil
}

func cIsPrototype(d *tree_sitter.Node) bool {
	return d.Kind() != "init_declarator" && cFunctionDeclarator(d) != nil
}

// cDeclaratorName returns the identifier bound by a declarator, e.g. "buf"
// for `*buf[16] = {0}`.
func cDeclaratorName(b *fileBuilder, d *tree_sitter.Node) string {
	for d != nil {
		switch d.Kind() {
		case "identifier", "field_identifier":
			return b.text(d)
		}
		next := d.ChildByFieldName("declarator")
		if next == nil {
			next = parser.FirstChildOfKind(d, "identifier", "field_identifier", "pointer_declarator", "array_declarator", "reference_declarator")
		}
		d = next
	}
	return ""
}

func cParams(b *fileBuilder, params *tree_sitter.Node) []string {
	var out []string
	for _, p := range parser.NamedChildren(params) {
		switch p.Kind() {
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration", "variadic_parameter":
			out = append(out, strings.Join(strings.Fields(b.text(p)), " "))
		}
	}
	return out
}

func cCallee(b *fileBuilder) func(n *tree_sitter.Node) (string, string) {
	return func(n *tree_sitter.Node) (string, string) {
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return "", ""
		}
		switch fn.Kind() {
		case "identifier":
			return "", b.text(fn)
		case "field_expression":
			if arg := fn.ChildByFieldName("argument"); arg != nil && arg.Kind() == "this" {
				return "this", b.text(fn.ChildByFieldName("field"))
			}
		case "qualified_identifier":
			scope, name := b.splitQualified(b.text(fn))
			if scope == "" || strings.HasPrefix(scope, "std") {
				return "", ""
			}
			return scope, name
		}
		return "", ""
	}
}
