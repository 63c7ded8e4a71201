package lang

func init() {
	Register(&LanguageSpec{
		Language:          Rust,
		FileExtensions:    []string{".rs"},
		ModuleStyle:       RustStyle,
		FunctionNodeTypes: []string{"function_item", "function_signature_item"},
		ClassNodeTypes: []string{
			"struct_item",
			"enum_item",
			"union_item",
			"trait_item",
		},
		FieldNodeTypes:     []string{"field_declaration"},
		VariableNodeTypes:  []string{"const_item", "static_item"},
		CallNodeTypes:      []string{"call_expression", "macro_invocation"},
		ImportNodeTypes:    []string{"use_declaration"},
		ContainerNodeTypes: []string{"impl_item", "declaration_list"},
		IndexFileNames:     []string{"mod", "lib", "main"},
		PackageIndicators:  []string{"Cargo.toml"},
	})
}
