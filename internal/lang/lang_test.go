package lang

import "testing"

func TestForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		lang Language
	}{
		{".py", Python},
		{".go", Go},
		{".js", JavaScript},
		{".jsx", JavaScript},
		{".mjs", JavaScript},
		{".ts", TypeScript},
		{".tsx", TSX},
		{".rs", Rust},
		{".java", Java},
		{".c", C},
		{".cpp", CPP},
		{".h", CPP},
		{".cs", CSharp},
		{".php", PHP},
		{".rb", Ruby},
		{".lua", Lua},
		{".scala", Scala},
		{".kt", Kotlin},
		{".kts", Kotlin},
		{".PY", Python},
	}
	for _, tt := range tests {
		spec := ForExtension(tt.ext)
		if spec == nil {
			t.Errorf("ForExtension(%q) = nil, want %s", tt.ext, tt.lang)
			continue
		}
		if spec.Language != tt.lang {
			t.Errorf("ForExtension(%q).Language = %s, want %s", tt.ext, spec.Language, tt.lang)
		}
	}
}

func TestForLanguage(t *testing.T) {
	for _, lang := range AllLanguages() {
		spec := ForLanguage(lang)
		if spec == nil {
			t.Errorf("ForLanguage(%s) = nil", lang)
		}
	}
}

func TestUnknownExtension(t *testing.T) {
	if spec := ForExtension(".xyz"); spec != nil {
		t.Errorf("ForExtension(.xyz) should be nil, got %v", spec)
	}
	if _, ok := LanguageForExtension(".md"); ok {
		t.Error("LanguageForExtension(.md) should not be ok")
	}
}

func TestTSXSharesTypeScriptTables(t *testing.T) {
	ts, tsx := ForLanguage(TypeScript), ForLanguage(TSX)
	if ts == nil || tsx == nil {
		t.Fatal("typescript specs not registered")
	}
	if len(ts.ClassNodeTypes) != len(tsx.ClassNodeTypes) {
		t.Errorf("TSX ClassNodeTypes = %v, want %v", tsx.ClassNodeTypes, ts.ClassNodeTypes)
	}
	if tsx.FileExtensions[0] != ".tsx" {
		t.Errorf("TSX extensions = %v", tsx.FileExtensions)
	}
}

func TestModuleStyles(t *testing.T) {
	tests := []struct {
		lang  Language
		style ModuleStyle
	}{
		{JavaScript, PathStyle},
		{Python, PythonStyle},
		{Go, GoStyle},
		{Rust, RustStyle},
		{Java, DottedStyle},
		{PHP, NamespaceStyle},
	}
	for _, tt := range tests {
		if got := ForLanguage(tt.lang).ModuleStyle; got != tt.style {
			t.Errorf("%s ModuleStyle = %d, want %d", tt.lang, got, tt.style)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Language
		ok   bool
	}{
		{"python", Python, true},
		{"TS", TypeScript, true},
		{"golang", Go, true},
		{"c++", CPP, true},
		{"csharp", CSharp, true},
		{"cobol", "", false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Parse(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
