package resolve

import (
	"path"
	"strings"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/fqn"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// Key identifies a module within one language family.
type Key struct {
	Family string
	ID     string
}

func (k Key) String() string { return k.Family + ":" + k.ID }

// Module is one entry of the module definition index: every file sharing a
// module id, with the names they export and the top-level names they
// declare.
type Module struct {
	Key   Key
	Files []string
	// Exports maps an exported name to every export of it; more than one
	// entry means the module exports the name ambiguously.
	Exports map[string][]graph.Export
	// Symbols maps top-level declaration names to entity ids, exported or
	// not. Same-module lookups (Go packages, C translation units sharing a
	// header) use it.
	Symbols map[string][]string
}

// NewModule returns an empty module for the file at relPath.
func NewModule(l lang.Language, relPath string) *Module {
	return &Module{
		Key:     Key{Family: fqn.Family(l), ID: fqn.ModuleID(l, relPath)},
		Exports: make(map[string][]graph.Export),
		Symbols: make(map[string][]string),
	}
}

// KeyFor returns the module key of a file.
func KeyFor(l lang.Language, relPath string) Key {
	return Key{Family: fqn.Family(l), ID: fqn.ModuleID(l, relPath)}
}

// AddFile records the exports and top-level declarations of one file's
// result. Files must be added in a stable order.
func (m *Module) AddFile(res *graph.Result) {
	m.Files = append(m.Files, res.FilePath)
	for _, ex := range res.Exports {
		m.Exports[ex.Name] = append(m.Exports[ex.Name], ex)
	}
	for _, k := range []graph.EntityKind{graph.KindClass, graph.KindFunction, graph.KindVariable} {
		for _, e := range res.EntitiesOfKind(k) {
			if e.Attr(graph.AttrClass) != nil {
				continue
			}
			m.Symbols[e.Name] = append(m.Symbols[e.Name], e.ID)
		}
	}
}

// primaryFile picks the File a module-level edge points at. A specifier
// that names an extension ("util.h") picks the file with that extension;
// otherwise a file named like the module ("store/store.go") wins, then the
// first file.
func (m *Module) primaryFile(specifier string) string {
	if len(m.Files) == 0 {
		return ""
	}
	if ext := path.Ext(specifier); ext != "" && !strings.ContainsAny(ext, "/:") {
		for _, f := range m.Files {
			if path.Ext(f) == ext {
				return graph.FileID(f)
			}
		}
	}
	base := path.Base(m.Key.ID)
	for _, f := range m.Files {
		if strings.TrimSuffix(path.Base(f), path.Ext(f)) == base {
			return graph.FileID(f)
		}
	}
	return graph.FileID(m.Files[0])
}
