package lang

func init() {
	Register(&LanguageSpec{
		Language:          Kotlin,
		FileExtensions:    []string{".kt", ".kts"},
		ModuleStyle:       DottedStyle,
		FunctionNodeTypes: []string{"function_declaration", "secondary_constructor"},
		ClassNodeTypes: []string{
			"class_declaration",
			"object_declaration",
		},
		FieldNodeTypes:      []string{"property_declaration"},
		VariableNodeTypes:   []string{"property_declaration"},
		CallNodeTypes:       []string{"call_expression"},
		ImportNodeTypes:     []string{"import_header", "import"},
		SuperclassNodeTypes: []string{"delegation_specifier", "delegation_specifiers"},
		ContainerNodeTypes:  []string{"class_body", "import_list"},
		PackageIndicators:   []string{"build.gradle.kts"},
	})
}
