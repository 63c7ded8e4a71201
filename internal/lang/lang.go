package lang

import (
	"sort"
	"strings"
)

// Language is the tag a file is routed by.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	Go         Language = "go"
	Rust       Language = "rust"
	Java       Language = "java"
	C          Language = "c"
	CPP        Language = "cpp"
	CSharp     Language = "c-sharp"
	PHP        Language = "php"
	Ruby       Language = "ruby"
	Lua        Language = "lua"
	Scala      Language = "scala"
	Kotlin     Language = "kotlin"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{Python, JavaScript, TypeScript, TSX, Go, Rust, Java, C, CPP, CSharp, PHP, Ruby, Lua, Scala, Kotlin}
}

// ModuleStyle describes how import specifiers of a language name modules.
type ModuleStyle int

const (
	// PathStyle specifiers are file paths, relative ones start with "./" or "../".
	PathStyle ModuleStyle = iota
	// PythonStyle specifiers are dotted, leading dots are package-relative.
	PythonStyle
	// GoStyle specifiers are import paths naming a package directory.
	GoStyle
	// RustStyle specifiers are "::"-separated and may start with crate, self or super.
	RustStyle
	// DottedStyle specifiers are dotted names (Java, Kotlin, Scala, C#, Lua).
	DottedStyle
	// NamespaceStyle specifiers are backslash-separated namespaces (PHP).
	NamespaceStyle
)

// LanguageSpec defines the tree-sitter node types for a language.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string
	ModuleStyle    ModuleStyle

	FunctionNodeTypes []string
	ClassNodeTypes    []string
	FieldNodeTypes    []string // tree-sitter node kinds for struct/class fields
	VariableNodeTypes []string // module-level variable declaration node kinds
	CallNodeTypes     []string
	ImportNodeTypes   []string

	// SuperclassNodeTypes are the child kinds of a class node that list its parents.
	SuperclassNodeTypes []string
	// ContainerNodeTypes are wrappers (namespaces, packages, bodies) walked
	// through as if their children were top-level.
	ContainerNodeTypes []string
	// IndexFileNames are module file names that stand for their directory
	// (e.g. "__init__", "index", "mod").
	IndexFileNames    []string
	PackageIndicators []string
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".go").
func ForExtension(ext string) *LanguageSpec {
	return registry[strings.ToLower(ext)]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := ForExtension(ext)
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}

// Extensions returns every registered extension, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Parse maps a user-supplied language name to a Language.
func Parse(name string) (Language, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "js":
		n = string(JavaScript)
	case "ts":
		n = string(TypeScript)
	case "py":
		n = string(Python)
	case "c++":
		n = string(CPP)
	case "csharp", "cs":
		n = string(CSharp)
	case "golang":
		n = string(Go)
	}
	for _, l := range AllLanguages() {
		if string(l) == n {
			return l, true
		}
	}
	return "", false
}
