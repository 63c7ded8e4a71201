package lang

func init() {
	Register(&LanguageSpec{
		Language:       CSharp,
		FileExtensions: []string{".cs"},
		ModuleStyle:    DottedStyle,
		FunctionNodeTypes: []string{
			"method_declaration",
			"constructor_declaration",
			"destructor_declaration",
		},
		ClassNodeTypes: []string{
			"class_declaration",
			"struct_declaration",
			"interface_declaration",
			"record_declaration",
		},
		FieldNodeTypes:      []string{"field_declaration", "property_declaration"},
		CallNodeTypes:       []string{"invocation_expression", "object_creation_expression"},
		ImportNodeTypes:     []string{"using_directive"},
		SuperclassNodeTypes: []string{"base_list"},
		ContainerNodeTypes: []string{
			"namespace_declaration",
			"file_scoped_namespace_declaration",
			"declaration_list",
		},
	})
}
