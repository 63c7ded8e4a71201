package lang

func init() {
	Register(&LanguageSpec{
		Language:          Scala,
		FileExtensions:    []string{".scala", ".sc"},
		ModuleStyle:       DottedStyle,
		FunctionNodeTypes: []string{"function_definition", "function_declaration"},
		ClassNodeTypes: []string{
			"class_definition",
			"object_definition",
			"trait_definition",
		},
		FieldNodeTypes:      []string{"val_definition", "var_definition"},
		CallNodeTypes:       []string{"call_expression"},
		ImportNodeTypes:     []string{"import_declaration"},
		SuperclassNodeTypes: []string{"extends_clause"},
		ContainerNodeTypes:  []string{"template_body", "package_clause"},
		PackageIndicators:   []string{"build.sbt"},
	})
}
