package frontend

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

func init() {
	defaultRegistry.Register(lang.Python, &treeSitter{lang: lang.Python, extract: extractPython})
}

var pyCallKinds = map[string]bool{"call": true}

// pyArg is one entry of the "parameters" attribute of a Python function.
type pyArg struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	HasDefault bool   `json:"has_default"`
}

func extractPython(b *fileBuilder, root *tree_sitter.Node) {
	for _, n := range parser.NamedChildren(root) {
		pyTopLevel(b, n, nil)
	}
	// Module-level names are importable; underscore names are private by
	// convention and stay out of the export table.
	for _, k := range []graph.EntityKind{graph.KindClass, graph.KindFunction, graph.KindVariable} {
		for _, e := range b.res.EntitiesOfKind(k) {
			if e.Attr(graph.AttrClass) != nil || strings.HasPrefix(e.Name, "_") {
				continue
			}
			b.res.Export(e.Name, e.ID, graph.ExportNamed)
		}
	}
}

func pyTopLevel(b *fileBuilder, n *tree_sitter.Node, decorators []string) {
	switch n.Kind() {
	case "import_statement":
		pyImport(b, n)
	case "import_from_statement", "future_import_statement":
		pyImportFrom(b, n)
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			pyDefinition(b, nil, def, n, pyDecorators(b, n))
		}
	case "function_definition", "class_definition":
		pyDefinition(b, nil, n, n, decorators)
	case "expression_statement":
		for _, a := range parser.NamedChildren(n) {
			if a.Kind() == "assignment" {
				pyAssignment(b, nil, a, n)
			}
		}
	}
}

// pyDefinition handles a function or class, top-level when class is nil and
// a member of class otherwise.
func pyDefinition(b *fileBuilder, class *graph.Entity, def, span *tree_sitter.Node, decorators []string) *graph.Entity {
	name := b.text(def.ChildByFieldName("name"))
	switch def.Kind() {
	case "function_definition":
		attrs := map[string]any{
			graph.AttrIsAsync:    hasChildKind(def, "async"),
			graph.AttrParameters: pyParams(b, def.ChildByFieldName("parameters")),
		}
		if rt := def.ChildByFieldName("return_type"); rt != nil {
			attrs["return_type"] = b.text(rt)
		}
		if len(decorators) > 0 {
			attrs[graph.AttrDecorators] = decorators
			for _, d := range decorators {
				if d == "staticmethod" || d == "classmethod" {
					attrs[graph.AttrIsStatic] = true
				}
			}
		}
		var fn *graph.Entity
		if class == nil {
			fn = b.addTop(graph.KindFunction, name, span, attrs)
		} else {
			fn = b.addMember(class, graph.KindFunction, name, span, attrs)
		}
		b.collectCalls(fn, def.ChildByFieldName("body"), pyCallKinds, pyCallee(b))
		return fn

	case "class_definition":
		attrs := map[string]any{}
		if len(decorators) > 0 {
			attrs[graph.AttrDecorators] = decorators
		}
		var c *graph.Entity
		if class == nil {
			c = b.addTop(graph.KindClass, name, span, attrs)
		} else {
			c = b.addNestedClass(class, name, span, attrs)
		}
		if c == nil {
			return nil
		}
		for _, sup := range parser.NamedChildren(def.ChildByFieldName("superclasses")) {
			switch sup.Kind() {
			case "identifier", "attribute", "subscript":
				b.extends(c, b.text(sup), int(sup.StartPosition().Row)+1, nil)
			}
		}
		pyClassBody(b, c, def.ChildByFieldName("body"))
		return c
	}
	return nil
}

func pyClassBody(b *fileBuilder, c *graph.Entity, body *tree_sitter.Node) {
	for _, m := range parser.NamedChildren(body) {
		switch m.Kind() {
		case "function_definition", "class_definition":
			pyDefinition(b, c, m, m, nil)
		case "decorated_definition":
			if def := m.ChildByFieldName("definition"); def != nil {
				pyDefinition(b, c, def, m, pyDecorators(b, m))
			}
		case "expression_statement":
			for _, a := range parser.NamedChildren(m) {
				if a.Kind() == "assignment" {
					pyAssignment(b, c, a, m)
				}
			}
		}
	}
}

// pyAssignment creates one Variable per bound name; `a, b = 1, 2` yields two.
func pyAssignment(b *fileBuilder, class *graph.Entity, a, span *tree_sitter.Node) {
	// Chained assignments (a = b = 1) nest an assignment in the right side.
	for cur := a; cur != nil && cur.Kind() == "assignment"; cur = cur.ChildByFieldName("right") {
		attrs := map[string]any{}
		if t := cur.ChildByFieldName("type"); t != nil {
			attrs["type"] = b.text(t)
		}
		for _, name := range pyTargetNames(b, cur.ChildByFieldName("left")) {
			local := make(map[string]any, len(attrs))
			for k, v := range attrs {
				local[k] = v
			}
			var e *graph.Entity
			if class == nil {
				e = b.addTop(graph.KindVariable, name, span, local)
			} else {
				e = b.addMember(class, graph.KindVariable, name, span, local)
			}
			if e != nil {
				b.collectCalls(e, cur.ChildByFieldName("right"), pyCallKinds, pyCallee(b))
			}
		}
	}
}

func pyTargetNames(b *fileBuilder, n *tree_sitter.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Kind() {
	case "identifier":
		return []string{b.text(n)}
	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list", "tuple":
		var out []string
		for _, c := range parser.NamedChildren(n) {
			out = append(out, pyTargetNames(b, c)...)
		}
		return out
	case "list_splat_pattern":
		return pyTargetNames(b, n.NamedChild(0))
	}
	// Attribute and subscript targets (obj.x = ...) bind no new name.
	return nil
}

func pyParams(b *fileBuilder, params *tree_sitter.Node) []pyArg {
	var out []pyArg
	for _, p := range parser.NamedChildren(params) {
		switch p.Kind() {
		case "identifier":
			out = append(out, pyArg{Name: b.text(p)})
		case "typed_parameter":
			name := parser.FirstChildOfKind(p, "identifier", "list_splat_pattern", "dictionary_splat_pattern")
			out = append(out, pyArg{Name: b.text(name), Type: b.text(p.ChildByFieldName("type"))})
		case "default_parameter":
			out = append(out, pyArg{Name: b.text(p.ChildByFieldName("name")), HasDefault: true})
		case "typed_default_parameter":
			out = append(out, pyArg{
				Name:       b.text(p.ChildByFieldName("name")),
				Type:       b.text(p.ChildByFieldName("type")),
				HasDefault: true,
			})
		case "list_splat_pattern", "dictionary_splat_pattern":
			out = append(out, pyArg{Name: b.text(p)})
		}
	}
	return out
}

func pyDecorators(b *fileBuilder, n *tree_sitter.Node) []string {
	var out []string
	for _, c := range parser.NamedChildren(n) {
		if c.Kind() == "decorator" {
			out = append(out, strings.TrimPrefix(strings.TrimSpace(b.text(c)), "@"))
		}
	}
	return out
}

// pyImport handles `import a.b` and `import a.b as c`.
func pyImport(b *fileBuilder, n *tree_sitter.Node) {
	line := int(n.StartPosition().Row) + 1
	for _, c := range parser.NamedChildren(n) {
		switch c.Kind() {
		case "dotted_name":
			module := b.text(c)
			// `import a.b` binds `a`; attribute access walks down from there.
			first := module
			if i := strings.Index(module, "."); i >= 0 {
				first = module[:i]
			}
			b.imports[first] = binding{module: first, style: graph.ImportNamespace}
			b.deferImport(binding{module: module, style: graph.ImportNamespace}, line, "", nil)
		case "aliased_import":
			module := b.text(c.ChildByFieldName("name"))
			b.bind(b.text(c.ChildByFieldName("alias")), binding{module: module, style: graph.ImportNamespace}, line, nil)
		}
	}
}

// pyImportFrom handles `from m import x, y as z` and `from m import *`.
func pyImportFrom(b *fileBuilder, n *tree_sitter.Node) {
	line := int(n.StartPosition().Row) + 1
	moduleNode := n.ChildByFieldName("module_name")
	module := "__future__"
	if moduleNode != nil {
		module = b.text(moduleNode)
	}
	if parser.FirstChildOfKind(n, "wildcard_import") != nil {
		b.deferImport(binding{module: module, style: graph.ImportNamespace}, line, "", map[string]any{"wildcard": true})
		return
	}
	for _, c := range parser.NamedChildren(n) {
		if moduleNode != nil && c.StartByte() == moduleNode.StartByte() {
			continue
		}
		switch c.Kind() {
		case "dotted_name":
			name := b.text(c)
			b.bind(name, binding{name: name, module: module, style: graph.ImportNamed}, line, nil)
		case "aliased_import":
			name := b.text(c.ChildByFieldName("name"))
			b.bind(b.text(c.ChildByFieldName("alias")), binding{name: name, module: module, style: graph.ImportNamed}, line, nil)
		}
	}
}

func pyCallee(b *fileBuilder) func(n *tree_sitter.Node) (string, string) {
	return func(n *tree_sitter.Node) (string, string) {
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return "", ""
		}
		switch fn.Kind() {
		case "identifier":
			return "", b.text(fn)
		case "attribute":
			obj := fn.ChildByFieldName("object")
			if obj == nil || (obj.Kind() != "identifier" && obj.Kind() != "attribute") {
				return "", ""
			}
			return b.text(obj), b.text(fn.ChildByFieldName("attribute"))
		}
		return "", ""
	}
}
