package lang

func init() {
	Register(&LanguageSpec{
		Language:            Python,
		FileExtensions:      []string{".py", ".pyi"},
		ModuleStyle:         PythonStyle,
		FunctionNodeTypes:   []string{"function_definition"},
		ClassNodeTypes:      []string{"class_definition"},
		VariableNodeTypes:   []string{"assignment", "augmented_assignment"},
		CallNodeTypes:       []string{"call"},
		ImportNodeTypes:     []string{"import_statement", "import_from_statement"},
		SuperclassNodeTypes: []string{"argument_list"},
		IndexFileNames:      []string{"__init__"},
		PackageIndicators:   []string{"__init__.py"},
	})
}
