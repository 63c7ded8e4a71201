package pipeline

import (
	"sort"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/resolve"
)

// bucket is everything one file contributed.
type bucket struct {
	lang   lang.Language
	result *graph.Result
}

// Corpus is the merged first-pass output of every parsed file. It is not
// safe for concurrent use: the pipeline merges from a single goroutine after
// the parse barrier.
type Corpus struct {
	files map[string]*bucket
}

// NewCorpus returns an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{files: make(map[string]*bucket)}
}

// Merge adds the result of one file. Merging the same path again replaces
// the earlier contribution. Empty results are kept so the file is known,
// but they contribute nothing.
func (c *Corpus) Merge(relPath string, l lang.Language, res *graph.Result) {
	if res == nil {
		res = graph.Empty(relPath)
	}
	c.files[relPath] = &bucket{lang: l, result: res}
}

// Remove drops a file's contribution.
func (c *Corpus) Remove(relPath string) {
	delete(c.files, relPath)
}

// Len returns the number of merged files.
func (c *Corpus) Len() int { return len(c.files) }

// Files returns the merged paths in sorted order.
func (c *Corpus) Files() []string {
	out := make([]string, 0, len(c.files))
	for p := range c.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Entities returns every node by id. A later file never shadows an earlier
// one: ids embed the file path, so overlap only happens within one file.
func (c *Corpus) Entities() map[string]*graph.Entity {
	out := make(map[string]*graph.Entity)
	for _, p := range c.Files() {
		for id, e := range c.files[p].result.Entities {
			out[id] = e
		}
	}
	return out
}

// Relations returns the direct relationships of every file, in file order.
func (c *Corpus) Relations() []graph.Relationship {
	var out []graph.Relationship
	for _, p := range c.Files() {
		out = append(out, c.files[p].result.Relationships...)
	}
	return out
}

// Pending returns every pending reference tagged with its origin module
// and language, in file order.
func (c *Corpus) Pending() []graph.PendingReference {
	var out []graph.PendingReference
	for _, p := range c.Files() {
		b := c.files[p]
		key := resolve.KeyFor(b.lang, p)
		for _, ref := range b.result.Pending {
			ref.OriginModule = key.ID
			ref.OriginLangTag = string(b.lang)
			if ref.OriginFile == "" {
				ref.OriginFile = p
			}
			out = append(out, ref)
		}
	}
	return out
}

// Modules builds the module definition index, sorted by key.
func (c *Corpus) Modules() []*resolve.Module {
	mods := make(map[resolve.Key]*resolve.Module)
	for _, p := range c.Files() {
		b := c.files[p]
		if b.result.IsEmpty() {
			continue
		}
		key := resolve.KeyFor(b.lang, p)
		m := mods[key]
		if m == nil {
			m = resolve.NewModule(b.lang, p)
			mods[key] = m
		}
		m.AddFile(b.result)
	}
	keys := make([]resolve.Key, 0, len(mods))
	for k := range mods {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	out := make([]*resolve.Module, 0, len(keys))
	for _, k := range keys {
		out = append(out, mods[k])
	}
	return out
}

// Snapshot returns the read-only resolver input.
func (c *Corpus) Snapshot() resolve.Input {
	return resolve.Input{
		Entities:  c.Entities(),
		Relations: c.Relations(),
		Modules:   c.Modules(),
		Pending:   c.Pending(),
	}
}
