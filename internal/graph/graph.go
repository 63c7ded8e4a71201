// Package graph is the language-agnostic entity/relationship model every
// front-end emits into.
package graph

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// EntityKind is the label of a graph node.
type EntityKind string

const (
	KindFile     EntityKind = "File"
	KindClass    EntityKind = "Class"
	KindFunction EntityKind = "Function"
	KindVariable EntityKind = "Variable"
)

// ClassLike reports whether k can own members through DEFINES.
func (k EntityKind) ClassLike() bool {
	return k == KindClass
}

// RelationKind is the type of a graph edge.
type RelationKind string

const (
	RelContains RelationKind = "CONTAINS"
	RelDefines  RelationKind = "DEFINES"
	RelExtends  RelationKind = "EXTENDS"
	RelCalls    RelationKind = "CALLS"
	RelImports  RelationKind = "IMPORTS"
)

// Attribute keys shared across front-ends.
const (
	AttrLanguage        = "language"
	AttrExported        = "exported"
	AttrExportKind      = "export_kind"
	AttrSubkind         = "subkind"
	AttrClass           = "class"
	AttrParameters      = "parameters"
	AttrIsAsync         = "is_async"
	AttrIsStatic        = "is_static"
	AttrDeclarationType = "declaration_type"
	AttrFunctionStyle   = "function_style"
	AttrImportStyle     = "import_style"
	AttrAlias           = "alias"
	AttrLine            = "line"
	AttrReexport        = "reexport"
	AttrVia             = "via"
	AttrDecorators      = "decorators"
	AttrContentHash     = "content_hash"
)

// Export kinds.
const (
	ExportNamed   = "named"
	ExportDefault = "default"
)

// Import styles carried on IMPORTS pending references.
const (
	ImportNamed      = "named"
	ImportDefault    = "default"
	ImportNamespace  = "namespace"
	ImportSideEffect = "side-effect"
)

// Entity is a graph node. Identity is defined solely by ID.
type Entity struct {
	ID            string
	Kind          EntityKind
	Name          string
	FilePath      string
	StartLine     int
	EndLine       int
	Attributes    map[string]any
	SourceExcerpt string
}

// Attr returns the attribute value for key, or nil.
func (e *Entity) Attr(key string) any {
	if e.Attributes == nil {
		return nil
	}
	return e.Attributes[key]
}

// SetAttr sets an attribute, allocating the map when needed.
func (e *Entity) SetAttr(key string, v any) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = v
}

// Exported reports whether the entity carries exported=true.
func (e *Entity) Exported() bool {
	b, _ := e.Attr(AttrExported).(bool)
	return b
}

// Same reports whether two entity records carry identical content.
func (e *Entity) Same(o *Entity) bool {
	return e.ID == o.ID && e.Kind == o.Kind && e.Name == o.Name &&
		e.FilePath == o.FilePath && e.StartLine == o.StartLine &&
		e.EndLine == o.EndLine && e.SourceExcerpt == o.SourceExcerpt &&
		reflect.DeepEqual(e.Attributes, o.Attributes)
}

// Relationship is a graph edge.
type Relationship struct {
	SourceID   string
	TargetID   string
	Kind       RelationKind
	Attributes map[string]any
}

// Key returns the (source, kind, target) triple used for set semantics.
func (r Relationship) Key() string {
	return r.SourceID + "\x00" + string(r.Kind) + "\x00" + r.TargetID
}

func (r Relationship) String() string {
	return fmt.Sprintf("%s(%s -> %s)", r.Kind, r.SourceID, r.TargetID)
}

// PendingReference is a relationship whose target is not known until the
// whole corpus has been parsed.
type PendingReference struct {
	OriginID      string
	Name          string // referenced symbol; empty for namespace/side-effect imports
	ModulePath    string // specifier as written in source
	Kind          RelationKind
	Attributes    map[string]any
	Line          int
	ReexportAs    string // non-empty when the importing file re-exports Name under this name
	OriginFile    string
	OriginModule  string // filled by the aggregator
	OriginLangTag string // filled by the aggregator
}

// Export is one exported symbol of a module.
type Export struct {
	Name     string
	EntityID string
	Line     int
	Kind     string // ExportNamed or ExportDefault
}

// EntityID composes a deterministic id from immutable declaration fields.
func EntityID(kind EntityKind, filePath, name string, line int) string {
	if kind == KindFile {
		return FileID(filePath)
	}
	var b strings.Builder
	b.Grow(len(kind) + len(filePath) + len(name) + 8)
	b.WriteString(string(kind))
	b.WriteByte(':')
	b.WriteString(filePath)
	b.WriteByte(':')
	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(line))
	return b.String()
}

// FileID is the id of the File entity for path; it depends on nothing else.
func FileID(filePath string) string {
	return string(KindFile) + ":" + filePath
}

// IsFileID reports whether id names a File entity.
func IsFileID(id string) bool {
	return strings.HasPrefix(id, string(KindFile)+":")
}
