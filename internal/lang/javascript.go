package lang

func init() {
	Register(&LanguageSpec{
		Language:       JavaScript,
		FileExtensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		ModuleStyle:    PathStyle,
		FunctionNodeTypes: []string{
			"function_declaration",
			"generator_function_declaration",
			"function_expression",
			"arrow_function",
			"method_definition",
		},
		ClassNodeTypes:      []string{"class_declaration", "class"},
		FieldNodeTypes:      []string{"field_definition"},
		VariableNodeTypes:   []string{"lexical_declaration", "variable_declaration"},
		CallNodeTypes:       []string{"call_expression", "new_expression"},
		ImportNodeTypes:     []string{"import_statement", "export_statement"},
		SuperclassNodeTypes: []string{"class_heritage"},
		IndexFileNames:      []string{"index"},
		PackageIndicators:   []string{"package.json"},
	})
}
