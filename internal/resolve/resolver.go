// Package resolve is the second pass of graph construction: it turns the
// pending references collected from every file into concrete relationships
// once the whole corpus has been merged.
package resolve

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/fqn"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// TieBreak selects among several exports of the same name.
type TieBreak string

const (
	// FirstLine picks the declaration with the lowest start line.
	FirstLine TieBreak = "first_line"
	// LastLine picks the declaration with the highest start line.
	LastLine TieBreak = "last_line"
	// DegradeAmbiguous links to the declaring file instead of guessing.
	DegradeAmbiguous TieBreak = "degrade"
)

// ParseTieBreak maps a config value to a TieBreak; empty means FirstLine.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case "", FirstLine:
		return FirstLine, nil
	case LastLine, DegradeAmbiguous:
		return TieBreak(s), nil
	}
	return "", fmt.Errorf("unknown tie_break %q (want first_line, last_line or degrade)", s)
}

// MaxReexportHops bounds how far re-export chains are followed.
const MaxReexportHops = 8

// Diagnostic kinds.
const (
	DiagDropped   = "dropped"
	DiagDegraded  = "degraded"
	DiagAmbiguous = "ambiguous"
)

// Diagnostic records a reference that could not be resolved exactly.
type Diagnostic struct {
	Kind   string
	Ref    graph.PendingReference
	Reason string
	// Target is the id the reference was linked to, if any.
	Target string
	// Competing lists every candidate id of an ambiguous resolution.
	Competing []string
}

// Stats counts resolution outcomes.
type Stats struct {
	// Resolved references linked to the named symbol.
	Resolved int
	// FileLevel references that name a whole module and were linked to
	// its file.
	FileLevel int
	// Degraded references whose module was found but not the symbol.
	Degraded int
	Dropped  int
	// Ambiguous resolutions; these are also counted as resolved or degraded.
	Ambiguous int
}

// Input is a read-only snapshot of the merged corpus.
type Input struct {
	Entities  map[string]*graph.Entity
	Relations []graph.Relationship
	Modules   []*Module
	Pending   []graph.PendingReference
}

// Output holds the final relationship set and what happened on the way.
type Output struct {
	Relationships []graph.Relationship
	Diagnostics   []Diagnostic
	Stats         Stats
}

// Resolver links pending references. It holds no per-run state and may be
// reused.
type Resolver struct {
	opts     fqn.Options
	tieBreak TieBreak
}

// New returns a resolver.
func New(opts fqn.Options, tb TieBreak) *Resolver {
	if tb == "" {
		tb = FirstLine
	}
	return &Resolver{opts: opts, tieBreak: tb}
}

// run is the lookup state of one Resolve call.
type run struct {
	*Resolver
	in      Input
	modules map[Key]*Module
	dirs    map[Key][]*Module
	// forwards maps a module to the names it passes on from other modules:
	// explicit re-exports, and every named import for Python packages.
	forwards map[Key]map[string][]graph.PendingReference
	// stars are `export *` re-exports and Python wildcard imports of a module.
	stars map[Key][]graph.PendingReference
	// fileStars are the wildcard, dot and include imports of each file.
	fileStars map[string][]graph.PendingReference
	out       Output
}

// Resolve runs the second pass over in. Relationships are returned with
// duplicates on (source, kind, target) removed, direct ones first.
//
// For each pending reference:
//  1. Normalize the specifier against the importing file.
//  2. Look up the module (or package directory) it names.
//  3. Link to the exported symbol, following re-exports.
//  4. Module found, symbol not: link to the module's file (EXTENDS and
//     DEFINES are dropped instead).
//  5. Module not found: drop with a diagnostic.
//
// A reference without a specifier is looked up in the origin module, then
// in the origin file's wildcard imports, then in same-package files.
func (r *Resolver) Resolve(in Input) Output {
	s := &run{
		Resolver:  r,
		in:        in,
		modules:   make(map[Key]*Module, len(in.Modules)),
		dirs:      make(map[Key][]*Module),
		forwards:  make(map[Key]map[string][]graph.PendingReference),
		stars:     make(map[Key][]graph.PendingReference),
		fileStars: make(map[string][]graph.PendingReference),
	}
	for _, m := range in.Modules {
		s.modules[m.Key] = m
		if m.Key.ID != fqn.Root {
			dk := Key{Family: m.Key.Family, ID: fqn.Parent(m.Key.ID)}
			s.dirs[dk] = append(s.dirs[dk], m)
		}
	}
	for _, p := range in.Pending {
		s.index(p)
	}

	resolved := make([]graph.Relationship, 0, len(in.Pending))
	for _, p := range in.Pending {
		resolved = append(resolved, s.resolve(p)...)
	}
	s.out.Relationships = graph.Dedupe(append(append([]graph.Relationship(nil), in.Relations...), resolved...))
	slog.Info("resolve.done",
		"resolved", s.out.Stats.Resolved,
		"file_level", s.out.Stats.FileLevel,
		"degraded", s.out.Stats.Degraded,
		"dropped", s.out.Stats.Dropped,
		"ambiguous", s.out.Stats.Ambiguous)
	return s.out
}

func (s *run) index(p graph.PendingReference) {
	if p.Kind != graph.RelImports {
		return
	}
	l := lang.Language(p.OriginLangTag)
	if attrBool(p.Attributes, "wildcard") || attrBool(p.Attributes, "dot") || attrBool(p.Attributes, "include") {
		s.fileStars[p.OriginFile] = append(s.fileStars[p.OriginFile], p)
	}
	origin := KeyFor(l, p.OriginFile)
	reexport := attrBool(p.Attributes, graph.AttrReexport)
	switch {
	case reexport && p.Name == "" && p.ReexportAs == "*":
		s.stars[origin] = append(s.stars[origin], p)
	case l == lang.Python && attrBool(p.Attributes, "wildcard"):
		s.stars[origin] = append(s.stars[origin], p)
	case reexport || (l == lang.Python && p.Name != ""):
		local := p.ReexportAs
		if local == "" {
			local, _ = p.Attributes[graph.AttrAlias].(string)
		}
		if local == "" {
			local = p.Name
		}
		if local == "" {
			return
		}
		if s.forwards[origin] == nil {
			s.forwards[origin] = make(map[string][]graph.PendingReference)
		}
		s.forwards[origin][local] = append(s.forwards[origin][local], p)
	}
}

func (s *run) resolve(p graph.PendingReference) []graph.Relationship {
	l := lang.Language(p.OriginLangTag)
	if p.ModulePath == "" {
		return s.resolveImplicit(l, p)
	}

	mods := s.locate(l, p.OriginFile, p.ModulePath)
	parent := false
	if len(mods) == 0 && p.Name != "" && hasParentFallback(l) {
		mods = s.locateParent(l, p.OriginFile, p.ModulePath)
		parent = true
	}
	if len(mods) == 0 {
		s.drop(p, "module not found")
		return nil
	}

	if p.Name == "" {
		// Namespace and side-effect imports link to the module itself.
		if p.Kind != graph.RelImports {
			s.drop(p, "reference to a whole module")
			return nil
		}
		var rels []graph.Relationship
		for _, m := range mods {
			if f := m.primaryFile(p.ModulePath); f != "" {
				rels = append(rels, s.link(p, f, nil))
			}
		}
		s.out.Stats.FileLevel++
		return rels
	}

	var ids []string
	visited := make(map[string]bool)
	for _, m := range mods {
		ids = append(ids, s.lookup(m, p.Name, 0, visited)...)
	}
	if len(ids) == 0 && len(mods) == 1 && !parent {
		if sub := s.modules[Key{Family: mods[0].Key.Family, ID: fqn.Join(mods[0].Key.ID, p.Name)}]; sub != nil {
			if p.Kind == graph.RelImports {
				s.out.Stats.FileLevel++
				return []graph.Relationship{s.link(p, sub.primaryFile(""), nil)}
			}
		}
	}
	return s.choose(p, ids, mods)
}

// resolveImplicit handles a reference that names no module: a bare name
// used in a Go package, a C translation unit, or an unimported parent
// class.
func (s *run) resolveImplicit(l lang.Language, p graph.PendingReference) []graph.Relationship {
	origin := s.modules[KeyFor(l, p.OriginFile)]
	keep := func(ids []string) []string {
		var out []string
		for _, id := range ids {
			if id != p.OriginID {
				out = append(out, id)
			}
		}
		return out
	}
	var ids []string
	if origin != nil {
		ids = keep(origin.Symbols[p.Name])
	}
	if len(ids) == 0 {
		ids = keep(s.throughStars(l, p.OriginFile, p.Name))
	}
	if len(ids) == 0 && samePackageLookup(l) && origin != nil {
		dir := Key{Family: origin.Key.Family, ID: fqn.Parent(origin.Key.ID)}
		for _, m := range s.dirs[dir] {
			for _, ex := range m.Exports[p.Name] {
				ids = append(ids, ex.EntityID)
			}
		}
		ids = keep(ids)
	}
	if len(ids) == 0 {
		s.drop(p, "name not found")
		return nil
	}
	return s.choose(p, ids, nil)
}

// throughStars looks name up in the modules a file pulls in wholesale.
// Include edges are followed transitively, up to MaxReexportHops deep.
func (s *run) throughStars(l lang.Language, file, name string) []string {
	seen := map[string]bool{file: true}
	queue := []string{file}
	for depth := 0; depth <= MaxReexportHops && len(queue) > 0; depth++ {
		var next []string
		for _, f := range queue {
			for _, star := range s.fileStars[f] {
				for _, m := range s.locate(l, f, star.ModulePath) {
					var ids []string
					if attrBool(star.Attributes, "include") {
						// Headers and sources sharing a module expose
						// every non-static declaration.
						for _, ex := range m.Exports[name] {
							ids = append(ids, ex.EntityID)
						}
					} else {
						ids = s.lookup(m, name, 0, make(map[string]bool))
					}
					if len(ids) > 0 {
						return ids
					}
					if attrBool(star.Attributes, "include") {
						for _, mf := range m.Files {
							if !seen[mf] {
								seen[mf] = true
								next = append(next, mf)
							}
						}
					}
				}
			}
		}
		queue = next
	}
	return nil
}

// lookup finds the ids exported by m under name, following re-export
// chains through other modules.
func (s *run) lookup(m *Module, name string, hops int, visited map[string]bool) []string {
	if hops > MaxReexportHops {
		return nil
	}
	vk := m.Key.String() + "#" + name
	if visited[vk] {
		return nil
	}
	visited[vk] = true

	if ex := m.Exports[name]; len(ex) > 0 {
		ids := make([]string, 0, len(ex))
		for _, e := range ex {
			ids = append(ids, e.EntityID)
		}
		return ids
	}
	for _, fwd := range s.forwards[m.Key][name] {
		fl := lang.Language(fwd.OriginLangTag)
		for _, target := range s.locate(fl, fwd.OriginFile, fwd.ModulePath) {
			if fwd.Name == "" {
				// export * as ns from "./x"
				if f := target.primaryFile(fwd.ModulePath); f != "" {
					return []string{f}
				}
				continue
			}
			if ids := s.lookup(target, fwd.Name, hops+1, visited); len(ids) > 0 {
				return ids
			}
			if sub := s.modules[Key{Family: target.Key.Family, ID: fqn.Join(target.Key.ID, fwd.Name)}]; sub != nil {
				return []string{sub.primaryFile("")}
			}
		}
	}
	for _, star := range s.stars[m.Key] {
		fl := lang.Language(star.OriginLangTag)
		for _, target := range s.locate(fl, star.OriginFile, star.ModulePath) {
			if ids := s.lookup(target, name, hops+1, visited); len(ids) > 0 {
				return ids
			}
		}
	}
	return nil
}

// locate returns the module a specifier names, or every module of the
// package directory it names.
func (s *run) locate(l lang.Language, from, specifier string) []*Module {
	fam := fqn.Family(l)
	for _, c := range s.opts.Candidates(l, from, specifier) {
		if m := s.modules[Key{Family: fam, ID: c}]; m != nil {
			return []*Module{m}
		}
		if ms := s.dirs[Key{Family: fam, ID: c}]; len(ms) > 0 {
			return ms
		}
	}
	return nil
}

// locateParent retries one level up, for dotted imports whose last
// segment names a symbol rather than a file (Kotlin top-level functions,
// Rust items).
func (s *run) locateParent(l lang.Language, from, specifier string) []*Module {
	fam := fqn.Family(l)
	for _, c := range s.opts.Candidates(l, from, specifier) {
		parent := fqn.Parent(c)
		if parent == fqn.Root || parent == c {
			continue
		}
		if m := s.modules[Key{Family: fam, ID: parent}]; m != nil {
			return []*Module{m}
		}
		if ms := s.dirs[Key{Family: fam, ID: parent}]; len(ms) > 0 {
			return ms
		}
	}
	return nil
}

// choose applies kind constraints and the tie-break to the candidate ids.
// mods is the module the name was looked up in, used for degrading; nil for
// implicit lookups, which never degrade.
func (s *run) choose(p graph.PendingReference, ids []string, mods []*Module) []graph.Relationship {
	ids = s.distinct(ids)
	needClass := p.Kind == graph.RelExtends || p.Kind == graph.RelDefines
	if needClass {
		var classes []string
		for _, id := range ids {
			if e := s.in.Entities[id]; e != nil && e.Kind.ClassLike() {
				classes = append(classes, id)
			}
		}
		if len(classes) == 0 && len(ids) > 0 {
			s.drop(p, "target is not class-like")
			return nil
		}
		ids = classes
	}

	if len(ids) == 0 {
		if needClass || len(mods) == 0 {
			s.drop(p, "symbol not found")
			return nil
		}
		f := firstPrimaryFile(mods, p.ModulePath)
		s.out.Stats.Degraded++
		s.out.Diagnostics = append(s.out.Diagnostics, Diagnostic{
			Kind: DiagDegraded, Ref: p, Reason: "symbol not found", Target: f,
		})
		slog.Debug("resolve.degrade", "origin", p.OriginID, "name", p.Name, "module", p.ModulePath)
		return []graph.Relationship{s.link(p, f, map[string]any{"degraded": true})}
	}

	chosen := ids[0]
	degraded := false
	if len(ids) > 1 {
		switch s.tieBreak {
		case LastLine:
			chosen = ids[len(ids)-1]
		case DegradeAmbiguous:
			if !needClass {
				if e := s.in.Entities[ids[0]]; e != nil {
					chosen = graph.FileID(e.FilePath)
					degraded = true
				}
			}
		}
		s.out.Stats.Ambiguous++
		s.out.Diagnostics = append(s.out.Diagnostics, Diagnostic{
			Kind: DiagAmbiguous, Ref: p, Reason: "duplicate export", Target: chosen, Competing: ids,
		})
		slog.Warn("resolve.ambiguous", "origin", p.OriginID, "name", p.Name, "chosen", chosen, "candidates", len(ids))
	}
	if degraded {
		s.out.Stats.Degraded++
		return []graph.Relationship{s.link(p, chosen, map[string]any{"degraded": true})}
	}
	if graph.IsFileID(chosen) {
		s.out.Stats.FileLevel++
	} else {
		s.out.Stats.Resolved++
	}
	return []graph.Relationship{s.link(p, chosen, nil)}
}

// firstPrimaryFile returns the lowest primary file among mods, so a
// directory specifier degrades to the same file on every run.
func firstPrimaryFile(mods []*Module, specifier string) string {
	best := ""
	for _, m := range mods {
		if f := m.primaryFile(specifier); f != "" && (best == "" || f < best) {
			best = f
		}
	}
	return best
}

// distinct removes duplicates and orders ids by declaration position.
func (s *run) distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := s.in.Entities[out[i]], s.in.Entities[out[j]]
		if a == nil || b == nil {
			return a != nil
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.ID < b.ID
	})
	return out
}

// link builds the concrete relationship for p pointing at target. Reverse
// DEFINES references point from the owner to the origin.
func (s *run) link(p graph.PendingReference, target string, extra map[string]any) graph.Relationship {
	attrs := make(map[string]any, len(p.Attributes)+len(extra)+1)
	maps.Copy(attrs, p.Attributes)
	maps.Copy(attrs, extra)
	reverse := attrBool(attrs, "reverse")
	delete(attrs, "reverse")
	if _, ok := attrs[graph.AttrLine]; !ok && p.Line > 0 {
		attrs[graph.AttrLine] = p.Line
	}
	if reverse {
		return graph.Relationship{SourceID: target, TargetID: p.OriginID, Kind: p.Kind, Attributes: attrs}
	}
	return graph.Relationship{SourceID: p.OriginID, TargetID: target, Kind: p.Kind, Attributes: attrs}
}

func (s *run) drop(p graph.PendingReference, reason string) {
	s.out.Stats.Dropped++
	s.out.Diagnostics = append(s.out.Diagnostics, Diagnostic{Kind: DiagDropped, Ref: p, Reason: reason})
	slog.Debug("resolve.drop", "origin", p.OriginID, "kind", p.Kind, "name", p.Name, "module", p.ModulePath, "reason", reason)
}

func hasParentFallback(l lang.Language) bool {
	spec := lang.ForLanguage(l)
	if spec == nil {
		return false
	}
	switch spec.ModuleStyle {
	case lang.DottedStyle, lang.NamespaceStyle, lang.RustStyle:
		return true
	}
	return false
}

// samePackageLookup reports whether files in one directory see each other's
// declarations without imports.
func samePackageLookup(l lang.Language) bool {
	switch l {
	case lang.CSharp, lang.Kotlin, lang.Scala, lang.PHP, lang.Java:
		return true
	}
	return false
}

func attrBool(attrs map[string]any, key string) bool {
	b, _ := attrs[key].(bool)
	return b
}
