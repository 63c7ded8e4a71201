package lang

func init() {
	Register(&LanguageSpec{
		Language:          PHP,
		FileExtensions:    []string{".php"},
		ModuleStyle:       NamespaceStyle,
		FunctionNodeTypes: []string{"function_definition", "method_declaration"},
		ClassNodeTypes: []string{
			"class_declaration",
			"interface_declaration",
			"trait_declaration",
		},
		FieldNodeTypes: []string{"property_declaration"},
		CallNodeTypes: []string{
			"function_call_expression",
			"member_call_expression",
			"scoped_call_expression",
			"object_creation_expression",
		},
		ImportNodeTypes:     []string{"namespace_use_declaration"},
		SuperclassNodeTypes: []string{"base_clause", "class_interface_clause"},
		ContainerNodeTypes:  []string{"namespace_definition", "compound_statement", "declaration_list"},
		PackageIndicators:   []string{"composer.json"},
	})
}
