package lang

func init() {
	Register(typeScriptSpec(TypeScript, ".ts", ".mts", ".cts"))
}

// typeScriptSpec is shared by TypeScript and TSX, which differ only in grammar.
func typeScriptSpec(l Language, exts ...string) *LanguageSpec {
	return &LanguageSpec{
		Language:       l,
		FileExtensions: exts,
		ModuleStyle:    PathStyle,
		FunctionNodeTypes: []string{
			"function_declaration",
			"generator_function_declaration",
			"function_expression",
			"arrow_function",
			"method_definition",
			"function_signature",
		},
		ClassNodeTypes: []string{
			"class_declaration",
			"class",
			"abstract_class_declaration",
			"interface_declaration",
		},
		FieldNodeTypes:      []string{"public_field_definition"},
		VariableNodeTypes:   []string{"lexical_declaration", "variable_declaration"},
		CallNodeTypes:       []string{"call_expression", "new_expression"},
		ImportNodeTypes:     []string{"import_statement", "export_statement"},
		SuperclassNodeTypes: []string{"class_heritage", "extends_type_clause"},
		IndexFileNames:      []string{"index"},
		PackageIndicators:   []string{"package.json", "tsconfig.json"},
	}
}
