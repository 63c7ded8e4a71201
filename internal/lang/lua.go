package lang

func init() {
	Register(&LanguageSpec{
		Language:          Lua,
		FileExtensions:    []string{".lua"},
		ModuleStyle:       DottedStyle,
		FunctionNodeTypes: []string{"function_declaration"},
		VariableNodeTypes: []string{"variable_declaration"},
		CallNodeTypes:     []string{"function_call"},
		ImportNodeTypes:   []string{"function_call"},
		IndexFileNames:    []string{"init"},
	})
}
