package lang

func init() {
	Register(&LanguageSpec{
		Language:          Java,
		FileExtensions:    []string{".java"},
		ModuleStyle:       DottedStyle,
		FunctionNodeTypes: []string{"method_declaration", "constructor_declaration"},
		ClassNodeTypes: []string{
			"class_declaration",
			"interface_declaration",
			"enum_declaration",
			"record_declaration",
		},
		FieldNodeTypes:      []string{"field_declaration"},
		CallNodeTypes:       []string{"method_invocation", "object_creation_expression"},
		ImportNodeTypes:     []string{"import_declaration"},
		SuperclassNodeTypes: []string{"superclass", "super_interfaces"},
		PackageIndicators:   []string{"pom.xml", "build.gradle"},
	})
}
