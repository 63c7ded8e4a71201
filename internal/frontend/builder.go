package frontend

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

// binding is a local name introduced by an import statement.
type binding struct {
	name   string // symbol in the imported module; empty binds the module itself
	module string // specifier as written
	style  string
}

type parentRef struct {
	class  *graph.Entity
	parent string
	line   int
	attrs  map[string]any
}

type callSite struct {
	caller    string
	qualifier string
	name      string
	line      int
}

type ownerRef struct {
	member *graph.Entity
	owner  string
	line   int
}

// fileBuilder is the traversal context of a single front-end invocation.
// It is created per call and discarded when the result is returned.
type fileBuilder struct {
	res  *graph.Result
	src  []byte
	path string
	lang lang.Language

	fileID    string
	classes   map[string]string // top-level class name -> id, first declaration wins
	callables map[string]string // top-level function or class name -> id
	imports   map[string]binding
	members   map[string]map[string]string // class name -> method name -> id
	memberOf  map[string]string            // method id -> class name

	parents []parentRef
	calls   []callSite
	owners  []ownerRef

	// sameModule makes unknown bare names defer against the file's own
	// module, for languages whose module spans several files (Go packages).
	sameModule bool
	// implicitModule maps an unqualified, unimported type name to a
	// specifier, e.g. the enclosing Java package.
	implicitModule func(name string) string
	// qualifierSep separates a qualifier from a name in parent and call text.
	qualifierSep string
	// pathRoots are qualifier heads that already form a specifier
	// (Rust crate::, super::, self::).
	pathRoots map[string]bool
	// itemModules lets a named import act as a module qualifier, for
	// languages where `use a::b` may bind either an item or a module.
	itemModules bool
	// implicitThis resolves a bare call inside a method against the
	// enclosing class first.
	implicitThis bool
}

func newBuilder(path string, l lang.Language, src []byte) *fileBuilder {
	res := graph.NewResult(path, string(l), src)
	return &fileBuilder{
		res:          res,
		src:          src,
		path:         path,
		lang:         l,
		fileID:       res.File().ID,
		classes:      make(map[string]string),
		callables:    make(map[string]string),
		imports:      make(map[string]binding),
		members:      make(map[string]map[string]string),
		memberOf:     make(map[string]string),
		qualifierSep: ".",
	}
}

func (b *fileBuilder) text(n *tree_sitter.Node) string {
	return parser.NodeText(n, b.src)
}

// span is the line range and text of a declaration.
type span struct {
	start, end int
	excerpt    string
}

func (b *fileBuilder) span(n *tree_sitter.Node) span {
	start, end := parser.Lines(n)
	return span{start: start, end: end, excerpt: b.text(n)}
}

// entity builds (but does not insert) an entity covering sp.
func (b *fileBuilder) entity(kind graph.EntityKind, name string, sp span, attrs map[string]any) *graph.Entity {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	for k, v := range attrs {
		if s, ok := v.(string); ok && s == "" {
			delete(attrs, k)
		}
	}
	attrs[graph.AttrLanguage] = string(b.lang)
	return &graph.Entity{
		ID:            graph.EntityID(kind, b.path, name, sp.start),
		Kind:          kind,
		Name:          name,
		FilePath:      b.path,
		StartLine:     sp.start,
		EndLine:       sp.end,
		Attributes:    attrs,
		SourceExcerpt: sp.excerpt,
	}
}

// addTop inserts a top-level declaration contained by the file.
func (b *fileBuilder) addTop(kind graph.EntityKind, name string, n *tree_sitter.Node, attrs map[string]any) *graph.Entity {
	return b.addTopSpan(kind, name, b.span(n), attrs)
}

func (b *fileBuilder) addTopSpan(kind graph.EntityKind, name string, sp span, attrs map[string]any) *graph.Entity {
	if name == "" {
		return nil
	}
	e := b.entity(kind, name, sp, attrs)
	if !b.res.AddEntity(e) {
		return nil
	}
	b.res.Relate(b.fileID, e.ID, graph.RelContains, nil)
	switch kind {
	case graph.KindClass:
		if _, ok := b.classes[name]; !ok {
			b.classes[name] = e.ID
		}
		if _, ok := b.callables[name]; !ok {
			b.callables[name] = e.ID
		}
	case graph.KindFunction:
		if _, ok := b.callables[name]; !ok {
			b.callables[name] = e.ID
		}
	}
	return e
}

// addMember inserts a method or field owned by class through DEFINES.
func (b *fileBuilder) addMember(class *graph.Entity, kind graph.EntityKind, name string, n *tree_sitter.Node, attrs map[string]any) *graph.Entity {
	return b.addMemberSpan(class, kind, name, b.span(n), attrs)
}

func (b *fileBuilder) addMemberSpan(class *graph.Entity, kind graph.EntityKind, name string, sp span, attrs map[string]any) *graph.Entity {
	if name == "" || class == nil {
		return nil
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	attrs[graph.AttrClass] = class.Name
	e := b.entity(kind, name, sp, attrs)
	if !b.res.AddEntity(e) {
		return nil
	}
	b.res.Relate(class.ID, e.ID, graph.RelDefines, nil)
	if kind == graph.KindFunction {
		b.method(class.Name, e)
	}
	return e
}

func (b *fileBuilder) method(class string, e *graph.Entity) {
	m := b.members[class]
	if m == nil {
		m = make(map[string]string)
		b.members[class] = m
	}
	if _, ok := m[e.Name]; !ok {
		m[e.Name] = e.ID
	}
	b.memberOf[e.ID] = class
}

// addNestedClass inserts a class declared inside another class body.
func (b *fileBuilder) addNestedClass(outer *graph.Entity, name string, n *tree_sitter.Node, attrs map[string]any) *graph.Entity {
	if name == "" {
		return nil
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	if outer != nil {
		attrs[graph.AttrClass] = outer.Name
	}
	e := b.entity(graph.KindClass, name, b.span(n), attrs)
	if !b.res.AddEntity(e) {
		return nil
	}
	return e
}

// addOwnedMember inserts a function whose owning type may live in another
// file (Go receivers, C++ out-of-line definitions). The DEFINES edge is
// emitted directly when the owner is in this file and deferred otherwise.
func (b *fileBuilder) addOwnedMember(owner, name string, n *tree_sitter.Node, attrs map[string]any) *graph.Entity {
	return b.addOwnedMemberSpan(owner, name, b.span(n), attrs)
}

func (b *fileBuilder) addOwnedMemberSpan(owner, name string, sp span, attrs map[string]any) *graph.Entity {
	if name == "" {
		return nil
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	attrs[graph.AttrClass] = owner
	e := b.entity(graph.KindFunction, name, sp, attrs)
	if !b.res.AddEntity(e) {
		return nil
	}
	b.owners = append(b.owners, ownerRef{member: e, owner: owner, line: e.StartLine})
	b.method(owner, e)
	return e
}

// bind records an import binding and defers one IMPORTS reference for it.
func (b *fileBuilder) bind(local string, bd binding, line int, attrs map[string]any) {
	if local != "" && local != "_" {
		b.imports[local] = bd
	}
	b.deferImport(bd, line, local, attrs)
}

func (b *fileBuilder) deferImport(bd binding, line int, local string, attrs map[string]any) {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	attrs[graph.AttrImportStyle] = bd.style
	if local != "" && local != bd.name {
		attrs[graph.AttrAlias] = local
	}
	b.res.Defer(graph.PendingReference{
		OriginID:   b.fileID,
		Name:       bd.name,
		ModulePath: bd.module,
		Kind:       graph.RelImports,
		Attributes: attrs,
		Line:       line,
	})
}

// sideEffect defers a reference for an import that binds nothing.
func (b *fileBuilder) sideEffect(module string, line int) {
	b.deferImport(binding{module: module, style: graph.ImportSideEffect}, line, "", nil)
}

// reexport defers an import whose symbol the current file exports again.
func (b *fileBuilder) reexport(name, as, module string, line int) {
	style := graph.ImportNamed
	if name == "" {
		style = graph.ImportNamespace
	}
	b.res.Defer(graph.PendingReference{
		OriginID:   b.fileID,
		Name:       name,
		ModulePath: module,
		Kind:       graph.RelImports,
		Attributes: map[string]any{graph.AttrImportStyle: style, graph.AttrReexport: true},
		Line:       line,
		ReexportAs: as,
	})
}

// export marks the named local declaration exported.
func (b *fileBuilder) export(local, as, kind string) bool {
	id, ok := b.callables[local]
	if !ok {
		id, ok = b.lookupVariable(local)
	}
	if !ok {
		return false
	}
	b.res.Export(as, id, kind)
	return true
}

func (b *fileBuilder) lookupVariable(name string) (string, bool) {
	for _, e := range b.res.EntitiesOfKind(graph.KindVariable) {
		if e.Name == name && e.Attr(graph.AttrClass) == nil {
			return e.ID, true
		}
	}
	return "", false
}

// extends records a parent named by text; resolution happens in finish.
func (b *fileBuilder) extends(class *graph.Entity, parent string, line int, attrs map[string]any) {
	parent = strings.TrimSpace(parent)
	if class == nil || parent == "" {
		return
	}
	b.parents = append(b.parents, parentRef{class: class, parent: parent, line: line, attrs: attrs})
}

// call records a call made from inside caller.
func (b *fileBuilder) call(caller *graph.Entity, qualifier, name string, line int) {
	if caller == nil || name == "" {
		return
	}
	b.calls = append(b.calls, callSite{caller: caller.ID, qualifier: qualifier, name: name, line: line})
}

// collectCalls walks body and records every call whose callee is extracted
// by callee. Nested function literals are walked too; their calls belong to
// the enclosing declaration.
func (b *fileBuilder) collectCalls(caller *graph.Entity, body *tree_sitter.Node, kinds map[string]bool, callee func(n *tree_sitter.Node) (qualifier, name string)) {
	if caller == nil || body == nil {
		return
	}
	parser.Walk(body, func(n *tree_sitter.Node) bool {
		if kinds[n.Kind()] {
			q, name := callee(n)
			b.call(caller, q, name, int(n.StartPosition().Row)+1)
		}
		return true
	})
}

// splitQualified splits "a.b.C" into ("a.b", "C").
func (b *fileBuilder) splitQualified(s string) (string, string) {
	i := strings.LastIndex(s, b.qualifierSep)
	if i < 0 {
		return "", s
	}
	return s[:i], s[i+len(b.qualifierSep):]
}

func (b *fileBuilder) firstSegment(s string) string {
	if i := strings.Index(s, b.qualifierSep); i >= 0 {
		return s[:i]
	}
	return s
}

// target works out where a reference to text points: a local entity, an
// imported symbol, or (when deferOK) a same-module lookup.
func (b *fileBuilder) target(text string, local map[string]string, deferUnknown bool) (id string, pending *graph.PendingReference) {
	qual, name := b.splitQualified(stripGenerics(text))
	if name == "" {
		return "", nil
	}
	if qual == "" {
		if id, ok := local[name]; ok {
			return id, nil
		}
		if bd, ok := b.imports[name]; ok {
			sym := bd.name
			if sym == "" {
				// The whole module is bound to this name; nothing to pick.
				return "", nil
			}
			return "", &graph.PendingReference{Name: sym, ModulePath: bd.module}
		}
		if b.implicitModule != nil {
			if m := b.implicitModule(name); m != "" {
				return "", &graph.PendingReference{Name: name, ModulePath: m}
			}
		}
		if deferUnknown {
			return "", &graph.PendingReference{Name: name}
		}
		return "", nil
	}
	first := b.firstSegment(qual)
	if b.pathRoots[first] {
		return "", &graph.PendingReference{Name: name, ModulePath: qual}
	}
	bd, ok := b.imports[first]
	if !ok {
		return "", nil
	}
	rest := strings.TrimPrefix(qual, first)
	var module string
	switch {
	case bd.name == "":
		module = bd.module
		if rest != "" && bd.style == graph.ImportNamespace && b.lang == lang.Python {
			module += rest
		}
	case b.itemModules:
		module = bd.module + b.qualifierSep + bd.name + rest
	default:
		return "", nil
	}
	return "", &graph.PendingReference{Name: name, ModulePath: module}
}

// finish resolves same-file parents, owners and calls and returns the result.
func (b *fileBuilder) finish() *graph.Result {
	for _, p := range b.parents {
		id, pend := b.target(p.parent, b.classes, true)
		switch {
		case id != "" && id != p.class.ID:
			b.res.Relate(p.class.ID, id, graph.RelExtends, p.attrs)
		case pend != nil:
			pend.OriginID = p.class.ID
			pend.Kind = graph.RelExtends
			pend.Attributes = p.attrs
			pend.Line = p.line
			b.res.Defer(*pend)
		}
	}

	for _, o := range b.owners {
		if id, ok := b.classes[o.owner]; ok {
			b.res.Relate(id, o.member.ID, graph.RelDefines, nil)
			continue
		}
		b.res.Defer(graph.PendingReference{
			OriginID:   o.member.ID,
			Name:       o.owner,
			Kind:       graph.RelDefines,
			Attributes: map[string]any{"reverse": true},
			Line:       o.line,
		})
	}

	seen := make(map[string]bool)
	for _, c := range b.calls {
		text := c.name
		if c.qualifier != "" {
			text = c.qualifier + b.qualifierSep + c.name
		}
		key := c.caller + "\x00" + text
		if seen[key] {
			continue
		}
		seen[key] = true
		if id, ok := b.sibling(c); ok {
			b.res.Relate(c.caller, id, graph.RelCalls, map[string]any{graph.AttrLine: c.line})
			continue
		}
		id, pend := b.target(text, b.callables, b.sameModule)
		switch {
		case id != "":
			b.res.Relate(c.caller, id, graph.RelCalls, map[string]any{graph.AttrLine: c.line})
		case pend != nil:
			pend.OriginID = c.caller
			pend.Kind = graph.RelCalls
			pend.Attributes = map[string]any{graph.AttrLine: c.line}
			pend.Line = c.line
			b.res.Defer(*pend)
		}
	}
	return b.res
}

// sibling resolves `m()`, `this.m()` and `self.m()` made from a method to
// another method of the same class.
func (b *fileBuilder) sibling(c callSite) (string, bool) {
	class, ok := b.memberOf[c.caller]
	if !ok {
		return "", false
	}
	switch c.qualifier {
	case "":
		if !b.implicitThis {
			return "", false
		}
	case "this", "self", "Self", "$this", "@":
	default:
		return "", false
	}
	id, ok := b.members[class][c.name]
	return id, ok
}

// stripGenerics drops type arguments: "Base<T>" -> "Base", "List[int]" -> "List".
func stripGenerics(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "<[("); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// stripBOM removes a UTF-8 byte order mark.
func stripBOM(src []byte) []byte {
	return bytes.TrimPrefix(src, []byte{0xEF, 0xBB, 0xBF})
}

// treeSitter adapts an extraction function into a FrontEnd backed by the
// pooled tree-sitter parsers.
type treeSitter struct {
	lang    lang.Language
	extract func(b *fileBuilder, root *tree_sitter.Node)
	setup   func(b *fileBuilder)
}

func (t *treeSitter) Name() string { return "tree-sitter" }

func (t *treeSitter) Parse(path string, src []byte) (*graph.Result, error) {
	return t.ParseContext(context.Background(), path, src)
}

func (t *treeSitter) ParseContext(ctx context.Context, path string, src []byte) (*graph.Result, error) {
	src = stripBOM(src)
	tree, err := parser.ParseContext(ctx, t.lang, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	b := newBuilder(path, t.lang, src)
	if t.setup != nil {
		t.setup(b)
	}
	t.extract(b, root)
	res := b.finish()
	if root.HasError() {
		if line := firstErrorLine(root); line > 0 {
			return res, fmt.Errorf("%s: %w at line %d", path, ErrSyntax, line)
		}
		return res, fmt.Errorf("%s: %w", path, ErrSyntax)
	}
	return res, nil
}

// firstErrorLine returns the line of the first ERROR or MISSING node, or 0
// when the error flag is set without one.
func firstErrorLine(root *tree_sitter.Node) int {
	line := 0
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		if line != 0 {
			return false
		}
		if n.IsError() || n.IsMissing() {
			line = int(n.StartPosition().Row) + 1
			return false
		}
		return n.HasError()
	})
	return line
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`', '<':
			return s[1 : len(s)-1]
		}
	}
	return s
}

func hasChildKind(n *tree_sitter.Node, kind string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == kind {
			return true
		}
	}
	return false
}
