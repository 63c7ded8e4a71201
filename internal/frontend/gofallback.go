package frontend

import (
	"errors"
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/scanner"
	"go/token"
	"strconv"
	"strings"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

func init() {
	defaultRegistry.RegisterFallback(lang.Go, goAST{})
}

// goAST is the Go front-end built on the standard library parser. It is
// the fallback engine when the tree-sitter grammar cannot handle a file.
type goAST struct{}

func (goAST) Name() string { return "go/parser" }

func (goAST) Parse(path string, src []byte) (*graph.Result, error) {
	src = stripBOM(src)
	fset := token.NewFileSet()
	f, perr := goparser.ParseFile(fset, path, src, goparser.AllErrors|goparser.SkipObjectResolution)
	if f == nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrSyntax, perr)
	}

	v := &goVisitor{b: newBuilder(path, lang.Go, src), fset: fset, src: src}
	v.b.sameModule = true
	v.b.res.File().SetAttr("package", f.Name.Name)
	for _, imp := range f.Imports {
		v.importSpec(imp)
	}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			v.funcDecl(d)
		case *ast.GenDecl:
			v.genDecl(d)
		}
	}
	for _, k := range []graph.EntityKind{graph.KindClass, graph.KindFunction, graph.KindVariable} {
		for _, e := range v.b.res.EntitiesOfKind(k) {
			if e.Attr(graph.AttrClass) == nil && isExported(e.Name) {
				v.b.res.Export(e.Name, e.ID, graph.ExportNamed)
			}
		}
	}
	res := v.b.finish()

	if perr != nil {
		line := 0
		var list scanner.ErrorList
		if errors.As(perr, &list) && len(list) > 0 {
			line = list[0].Pos.Line
		}
		return res, fmt.Errorf("%s: %w at line %d", path, ErrSyntax, line)
	}
	return res, nil
}

type goVisitor struct {
	b    *fileBuilder
	fset *token.FileSet
	src  []byte
}

func (v *goVisitor) span(n ast.Node) span {
	start := v.fset.Position(n.Pos())
	end := v.fset.Position(n.End())
	sp := span{start: start.Line, end: end.Line}
	if start.Offset >= 0 && end.Offset <= len(v.src) && start.Offset <= end.Offset {
		sp.excerpt = string(v.src[start.Offset:end.Offset])
	}
	return sp
}

func (v *goVisitor) line(p token.Pos) int {
	return v.fset.Position(p).Line
}

func (v *goVisitor) importSpec(imp *ast.ImportSpec) {
	path, err := strconv.Unquote(imp.Path.Value)
	if err != nil {
		return
	}
	line := v.line(imp.Pos())
	bd := binding{module: path, style: graph.ImportNamespace}
	switch {
	case imp.Name == nil:
		v.b.bind(lastPathSegment(path), bd, line, nil)
	case imp.Name.Name == "_":
		v.b.sideEffect(path, line)
	case imp.Name.Name == ".":
		v.b.deferImport(bd, line, "", map[string]any{"dot": true})
	default:
		v.b.bind(imp.Name.Name, bd, line, nil)
	}
}

func (v *goVisitor) funcDecl(d *ast.FuncDecl) {
	attrs := map[string]any{
		graph.AttrParameters: v.params(d.Type.Params),
		"result":             v.results(d.Type.Results),
	}
	var fn *graph.Entity
	if d.Recv != nil && len(d.Recv.List) > 0 {
		attrs["receiver"] = v.text(d.Recv)
		fn = v.b.addOwnedMemberSpan(receiverName(d.Recv.List[0].Type), d.Name.Name, v.span(d), attrs)
	} else {
		fn = v.b.addTopSpan(graph.KindFunction, d.Name.Name, v.span(d), attrs)
	}
	if d.Body != nil {
		v.calls(fn, d.Body)
	}
}

func (v *goVisitor) genDecl(d *ast.GenDecl) {
	grouped := d.Lparen.IsValid()
	for _, spec := range d.Specs {
		var sp span
		if grouped {
			sp = v.span(spec)
		} else {
			sp = v.span(d)
		}
		switch s := spec.(type) {
		case *ast.TypeSpec:
			v.typeSpec(s, sp)
		case *ast.ValueSpec:
			declType := "var"
			if d.Tok == token.CONST {
				declType = "const"
			}
			for _, name := range s.Names {
				if name.Name == "_" {
					continue
				}
				e := v.b.addTopSpan(graph.KindVariable, name.Name, sp, map[string]any{
					graph.AttrDeclarationType: declType,
					"type":                    v.text(s.Type),
				})
				for _, val := range s.Values {
					v.calls(e, val)
				}
			}
		}
	}
}

func (v *goVisitor) typeSpec(s *ast.TypeSpec, sp span) {
	switch t := s.Type.(type) {
	case *ast.StructType:
		c := v.b.addTopSpan(graph.KindClass, s.Name.Name, sp, map[string]any{graph.AttrSubkind: "struct"})
		if c == nil {
			return
		}
		for _, f := range t.Fields.List {
			if len(f.Names) == 0 {
				v.b.extends(c, strings.TrimPrefix(v.text(f.Type), "*"), v.line(f.Pos()),
					map[string]any{graph.AttrVia: "embedding"})
				continue
			}
			for _, name := range f.Names {
				v.b.addMemberSpan(c, graph.KindVariable, name.Name, v.span(f), map[string]any{"type": v.text(f.Type)})
			}
		}
	case *ast.InterfaceType:
		c := v.b.addTopSpan(graph.KindClass, s.Name.Name, sp, map[string]any{graph.AttrSubkind: "interface"})
		if c == nil {
			return
		}
		for _, m := range t.Methods.List {
			if ft, ok := m.Type.(*ast.FuncType); ok && len(m.Names) > 0 {
				v.b.addMemberSpan(c, graph.KindFunction, m.Names[0].Name, v.span(m), map[string]any{
					graph.AttrParameters: v.params(ft.Params),
				})
				continue
			}
			switch m.Type.(type) {
			case *ast.Ident, *ast.SelectorExpr:
				v.b.extends(c, v.text(m.Type), v.line(m.Pos()), map[string]any{graph.AttrVia: "embedding"})
			}
		}
	}
}

// calls records every call under n made on behalf of caller.
func (v *goVisitor) calls(caller *graph.Entity, n ast.Node) {
	if caller == nil || n == nil {
		return
	}
	ast.Inspect(n, func(node ast.Node) bool {
		call, ok := node.(*ast.CallExpr)
		if !ok {
			return true
		}
		line := v.line(call.Pos())
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			if goBuiltins[fn.Name] {
				if _, local := v.b.callables[fn.Name]; !local {
					return true
				}
			}
			v.b.call(caller, "", fn.Name, line)
		case *ast.SelectorExpr:
			if x, ok := fn.X.(*ast.Ident); ok {
				v.b.call(caller, x.Name, fn.Sel.Name, line)
			}
		}
		return true
	})
}

func (v *goVisitor) text(n ast.Node) string {
	if n == nil {
		return ""
	}
	return v.span(n).excerpt
}

func (v *goVisitor) params(fl *ast.FieldList) []string {
	if fl == nil {
		return nil
	}
	var out []string
	for _, f := range fl.List {
		typ := v.text(f.Type)
		if len(f.Names) == 0 {
			out = append(out, typ)
		}
		for _, name := range f.Names {
			out = append(out, name.Name+" "+typ)
		}
	}
	return out
}

func (v *goVisitor) results(fl *ast.FieldList) string {
	if fl == nil {
		return ""
	}
	return v.text(fl)
}

// receiverName returns T for receivers T, *T, T[K] and *T[K].
func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	}
	return ""
}
