package lang

func init() {
	Register(&LanguageSpec{
		Language:            Ruby,
		FileExtensions:      []string{".rb", ".rake"},
		ModuleStyle:         PathStyle,
		FunctionNodeTypes:   []string{"method", "singleton_method"},
		ClassNodeTypes:      []string{"class", "module"},
		CallNodeTypes:       []string{"call"},
		ImportNodeTypes:     []string{"call"},
		SuperclassNodeTypes: []string{"superclass"},
		ContainerNodeTypes:  []string{"body_statement"},
		PackageIndicators:   []string{"Gemfile"},
	})
}
