package lang

func init() {
	Register(&LanguageSpec{
		Language:       CPP,
		FileExtensions: []string{".cpp", ".h", ".hpp", ".cc", ".cxx", ".hxx", ".hh"},
		ModuleStyle:    PathStyle,
		FunctionNodeTypes: []string{
			"function_definition",
			"template_declaration",
		},
		ClassNodeTypes: []string{
			"class_specifier",
			"struct_specifier",
			"union_specifier",
		},
		FieldNodeTypes:      []string{"field_declaration"},
		VariableNodeTypes:   []string{"declaration"},
		CallNodeTypes:       []string{"call_expression", "new_expression"},
		ImportNodeTypes:     []string{"preproc_include"},
		SuperclassNodeTypes: []string{"base_class_clause"},
		ContainerNodeTypes:  []string{"namespace_definition", "linkage_specification", "declaration_list"},
		PackageIndicators:   []string{"CMakeLists.txt", "Makefile", "conanfile.txt"},
	})
}
