package lang

func init() {
	Register(&LanguageSpec{
		Language:          C,
		FileExtensions:    []string{".c"},
		ModuleStyle:       PathStyle,
		FunctionNodeTypes: []string{"function_definition"},
		ClassNodeTypes:    []string{"struct_specifier", "union_specifier"},
		FieldNodeTypes:    []string{"field_declaration"},
		VariableNodeTypes: []string{"declaration"},
		CallNodeTypes:     []string{"call_expression"},
		ImportNodeTypes:   []string{"preproc_include"},
		PackageIndicators: []string{"Makefile", "CMakeLists.txt"},
	})
}
