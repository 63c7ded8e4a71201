// Package fqn computes module identifiers for corpus files and maps import
// specifiers, as written in source, to the module identifiers they may name.
//
// Module ids are corpus-relative, slash-separated paths with the extension
// stripped. Index files (index.js, __init__.py, mod.rs, init.lua) stand for
// their directory, and Go files map to their package directory. The corpus
// root is ".".
package fqn

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// Root is the module id of the corpus root directory.
const Root = "."

// Family groups languages whose files import each other: JavaScript and
// TypeScript share one module space, as do C and C++.
func Family(l lang.Language) string {
	switch l {
	case lang.JavaScript, lang.TypeScript, lang.TSX:
		return "ecmascript"
	case lang.C, lang.CPP:
		return "c"
	}
	return string(l)
}

// ModuleID returns the module id of the file at relPath.
func ModuleID(l lang.Language, relPath string) string {
	p := path.Clean(filepath.ToSlash(relPath))
	if l == lang.Go {
		return path.Dir(p)
	}
	return dropIndex(l, stripExt(p))
}

// Parent returns the module id one level up, Root for top-level modules.
func Parent(id string) string {
	return path.Dir(id)
}

// Join appends segments to a module id.
func Join(id string, segs ...string) string {
	return path.Join(append([]string{id}, segs...)...)
}

// QualifiedName renders a dotted name for a symbol in a module:
// "myproject.pkg.service.ProcessOrder".
func QualifiedName(project, moduleID, name string) string {
	var parts []string
	if project != "" {
		parts = append(parts, project)
	}
	if moduleID != Root && moduleID != "" {
		parts = append(parts, strings.Split(moduleID, "/")...)
	}
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, ".")
}

// stripExt removes a source extension. Unknown extensions are kept so that
// "./data.json" never matches a "data.js" module.
func stripExt(p string) string {
	ext := path.Ext(p)
	if ext == "" || lang.ForExtension(ext) == nil {
		return p
	}
	return strings.TrimSuffix(p, ext)
}

func dropIndex(l lang.Language, p string) string {
	spec := lang.ForLanguage(l)
	if spec == nil {
		return p
	}
	base := path.Base(p)
	for _, idx := range spec.IndexFileNames {
		if base == idx {
			return path.Dir(p)
		}
	}
	return p
}

// Options configures specifier resolution for one corpus.
type Options struct {
	// SourceRoots are directories that bare specifiers are also tried
	// under, e.g. "src" or "src/main/java".
	SourceRoots []string
	// GoModule is the module path declared in the corpus go.mod.
	GoModule string
	// Project is the corpus directory name. Go import paths without a
	// known module prefix are cut after a segment equal to it.
	Project string
}

// Candidates returns the module ids specifier may name when written in the
// file importer, most specific first. A candidate may also name a directory
// (a Go package, a Java package wildcard). Nothing here checks existence;
// the caller looks each candidate up in its module table.
func (o Options) Candidates(l lang.Language, importer, specifier string) []string {
	specifier = strings.TrimSpace(specifier)
	if specifier == "" {
		return nil
	}
	importer = path.Clean(filepath.ToSlash(importer))
	spec := lang.ForLanguage(l)
	if spec == nil {
		return nil
	}
	var raw []string
	switch spec.ModuleStyle {
	case lang.PathStyle:
		raw = o.pathStyle(l, importer, specifier)
	case lang.PythonStyle:
		raw = o.pythonStyle(importer, specifier)
	case lang.GoStyle:
		raw = o.goStyle(specifier)
	case lang.RustStyle:
		raw = rustStyle(importer, specifier)
	case lang.DottedStyle:
		raw = o.rooted(strings.ReplaceAll(specifier, ".", "/"))
	case lang.NamespaceStyle:
		raw = o.namespaceStyle(specifier)
	}
	return dedup(raw)
}

func (o Options) rooted(p string) []string {
	out := []string{p}
	for _, r := range o.SourceRoots {
		out = append(out, path.Join(filepath.ToSlash(r), p))
	}
	return out
}

func isRelative(s string) bool {
	return s == "." || s == ".." || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func (o Options) pathStyle(l lang.Language, importer, specifier string) []string {
	dir := path.Dir(importer)
	var raw []string
	switch {
	case isRelative(specifier):
		raw = []string{path.Join(dir, specifier)}
	case strings.HasPrefix(specifier, "/"):
		raw = []string{strings.TrimPrefix(specifier, "/")}
	default:
		if Family(l) == "c" {
			// #include "x.h" searches the including file's directory first.
			raw = append(raw, path.Join(dir, specifier))
		}
		raw = append(raw, o.rooted(specifier)...)
	}
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = path.Clean(p)
		if strings.HasPrefix(p, "../") || p == ".." {
			// Escapes the corpus.
			continue
		}
		out = append(out, familyIndex(l, stripExt(p)))
	}
	return out
}

// familyIndex drops an index file name valid anywhere in l's family, so
// "./lib/index" from a TypeScript file finds the "lib" module.
func familyIndex(l lang.Language, p string) string {
	for _, other := range lang.AllLanguages() {
		if Family(other) == Family(l) {
			if q := dropIndex(other, p); q != p {
				return q
			}
		}
	}
	return p
}

func (o Options) pythonStyle(importer, specifier string) []string {
	dots := len(specifier) - len(strings.TrimLeft(specifier, "."))
	rest := strings.ReplaceAll(strings.TrimLeft(specifier, "."), ".", "/")
	if dots == 0 {
		return o.rooted(rest)
	}
	dir := path.Dir(importer)
	for i := 1; i < dots; i++ {
		if dir == Root {
			return nil
		}
		dir = path.Dir(dir)
	}
	return []string{path.Join(dir, rest)}
}

func (o Options) goStyle(specifier string) []string {
	if o.GoModule != "" {
		if specifier == o.GoModule {
			return []string{Root}
		}
		if rest, ok := strings.CutPrefix(specifier, o.GoModule+"/"); ok {
			return []string{rest}
		}
	}
	out := []string{specifier}
	if o.Project != "" {
		parts := strings.Split(specifier, "/")
		for i, part := range parts {
			if part == o.Project && i < len(parts)-1 {
				out = append(out, strings.Join(parts[i+1:], "/"))
				break
			}
		}
	}
	return out
}

// rustStyle resolves crate::, self:: and super:: against the importing
// file's place in its crate. Other paths are tried from the crate root, which
// covers modules declared with `mod` in lib.rs or main.rs.
func rustStyle(importer, specifier string) []string {
	segs := strings.Split(specifier, "::")
	if segs[0] == "" {
		// ::std::x
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return nil
	}
	self := ModuleID(lang.Rust, importer)
	switch segs[0] {
	case "crate":
		return []string{Join(crateRoot(importer), segs[1:]...)}
	case "self":
		return []string{Join(self, segs[1:]...)}
	case "super":
		m := self
		for len(segs) > 0 && segs[0] == "super" {
			m = path.Dir(m)
			segs = segs[1:]
		}
		return []string{Join(m, segs...)}
	}
	return []string{Join(crateRoot(importer), segs...)}
}

// crateRoot is the directory holding lib.rs or main.rs: the nearest "src"
// ancestor, or the importer's own directory.
func crateRoot(importer string) string {
	dir := path.Dir(importer)
	parts := strings.Split(dir, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "src" {
			return strings.Join(parts[:i+1], "/")
		}
	}
	return dir
}

// namespaceStyle maps PHP namespaces to paths. PSR-4 layouts map the
// vendor prefix onto a source root ("App\Models\User" -> "src/Models/User"),
// so the first segment is also tried dropped and lower-cased.
func (o Options) namespaceStyle(specifier string) []string {
	p := strings.ReplaceAll(strings.TrimPrefix(specifier, `\`), `\`, "/")
	out := o.rooted(p)
	first, rest, ok := strings.Cut(p, "/")
	if !ok {
		return out
	}
	out = append(out, path.Join(strings.ToLower(first), rest))
	for _, r := range o.SourceRoots {
		out = append(out, path.Join(filepath.ToSlash(r), rest))
	}
	return out
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
