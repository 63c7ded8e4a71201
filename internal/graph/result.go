package graph

import (
	"fmt"
	"sort"
)

// Result is the output of one front-end invocation for one file.
type Result struct {
	FilePath      string
	Language      string
	Entities      map[string]*Entity
	Relationships []Relationship
	Pending       []PendingReference
	Exports       []Export

	// Conflicts lists ids that were added twice with different content.
	Conflicts []string
}

// NewResult returns a Result holding only the File entity for path.
func NewResult(path, language string, source []byte) *Result {
	r := &Result{
		FilePath: path,
		Language: language,
		Entities: make(map[string]*Entity),
	}
	lines := countLines(source)
	r.Entities[FileID(path)] = &Entity{
		ID:        FileID(path),
		Kind:      KindFile,
		Name:      path,
		FilePath:  path,
		StartLine: 0,
		EndLine:   lines,
		Attributes: map[string]any{
			AttrLanguage: language,
		},
	}
	return r
}

// Empty returns a result with no entities at all, used for failed files.
func Empty(path string) *Result {
	return &Result{FilePath: path, Entities: map[string]*Entity{}}
}

// File returns the File entity, or nil for an empty result.
func (r *Result) File() *Entity {
	return r.Entities[FileID(r.FilePath)]
}

// IsEmpty reports whether the result carries nothing.
func (r *Result) IsEmpty() bool {
	return len(r.Entities) == 0 && len(r.Relationships) == 0 && len(r.Pending) == 0
}

// AddEntity inserts e. Re-adding identical content is a no-op; re-adding
// the same id with different content is recorded as a conflict and the
// first record is kept. It returns false when e was not inserted.
func (r *Result) AddEntity(e *Entity) bool {
	if prev, ok := r.Entities[e.ID]; ok {
		if !prev.Same(e) {
			r.Conflicts = append(r.Conflicts, e.ID)
		}
		return false
	}
	if e.FilePath == "" {
		e.FilePath = r.FilePath
	}
	r.Entities[e.ID] = e
	return true
}

// Relate appends a relationship.
func (r *Result) Relate(source, target string, kind RelationKind, attrs map[string]any) {
	r.Relationships = append(r.Relationships, Relationship{
		SourceID:   source,
		TargetID:   target,
		Kind:       kind,
		Attributes: attrs,
	})
}

// Defer appends a pending reference originating in this file.
func (r *Result) Defer(p PendingReference) {
	p.OriginFile = r.FilePath
	r.Pending = append(r.Pending, p)
}

// Export records name as exported by this module and marks the entity.
func (r *Result) Export(name, entityID, kind string) {
	e := r.Entities[entityID]
	line := 0
	if e != nil {
		line = e.StartLine
		e.SetAttr(AttrExported, true)
		e.SetAttr(AttrExportKind, kind)
	}
	r.Exports = append(r.Exports, Export{Name: name, EntityID: entityID, Line: line, Kind: kind})
}

// EntitiesOfKind returns the entities of kind k ordered by line then name.
func (r *Result) EntitiesOfKind(k EntityKind) []*Entity {
	var out []*Entity
	for _, e := range r.Entities {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	SortEntities(out)
	return out
}

// FindEntity returns the first entity of kind k named name, by line.
func (r *Result) FindEntity(k EntityKind, name string) *Entity {
	for _, e := range r.EntitiesOfKind(k) {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// SortEntities orders entities by file, line, kind and name.
func SortEntities(es []*Entity) {
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
}

// SortRelationships orders relationships by their key.
func SortRelationships(rs []Relationship) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Key() < rs[j].Key() })
}

// Dedupe removes repeated (source, kind, target) triples, keeping the first.
func Dedupe(rs []Relationship) []Relationship {
	seen := make(map[string]struct{}, len(rs))
	out := rs[:0:0]
	for _, r := range rs {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: %d entities, %d relationships, %d pending, %d exports",
		r.FilePath, len(r.Entities), len(r.Relationships), len(r.Pending), len(r.Exports))
}

func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := 0
	for _, b := range src {
		if b == '\n' {
			n++
		}
	}
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}
