package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	schemaURI   = "schema://kg"
	examplesURI = "cypher://examples"
)

const cypherExamples = `# Query examples

Queries are read-only: one MATCH pattern, an optional WHERE and an
optional RETURN. Labels are entity kinds (File, Class, Function,
Variable) or subkind labels such as Dataclass.

1. A function by name:

    MATCH (f:Function) WHERE f.name = "process_data" RETURN f

2. Everything that calls a function:

    MATCH (caller)-[:CALLS]->(callee:Function)
    WHERE callee.name = $name
    RETURN caller.name, caller.file_path

3. Subclasses of a class, at any depth:

    MATCH (sub:Class)-[:EXTENDS*]->(super:Class {name: "BaseProcessor"})
    RETURN sub.qualified_name

4. Functions contained in a file:

    MATCH (file:File)-[:CONTAINS]->(fn:Function)
    WHERE file.path = "src/main.py"
    RETURN fn.name ORDER BY fn.name

5. Files importing from a module:

    MATCH (file:File)-[:IMPORTS]->(target)
    WHERE target.file_path STARTS WITH "src/models"
    RETURN DISTINCT file.path

6. Entity counts per file:

    MATCH (n:Function) RETURN n.file_path AS file, COUNT(*) AS functions
    ORDER BY functions DESC LIMIT 10

Operators: =, <>, =~ (full-match regex), CONTAINS, STARTS WITH,
ENDS WITH, >, <, >=, <=, with an optional NOT prefix. $name placeholders
are filled from the "parameters" argument of execute_cypher_query.
`

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         schemaURI,
		Name:        "Knowledge graph schema",
		Description: "Entity kinds, labels, relationship types and patterns of the default project",
		MIMEType:    "application/json",
	}, s.handleSchemaResource)

	s.mcp.AddResource(&mcp.Resource{
		URI:         examplesURI,
		Name:        "Query examples",
		Description: "Example queries for execute_cypher_query",
		MIMEType:    "text/markdown",
	}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: examplesURI, MIMEType: "text/markdown", Text: cypherExamples},
			},
		}, nil
	})
}

func (s *Server) handleSchemaResource(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	project, err := s.resolveProject(map[string]any{})
	if err != nil {
		return nil, err
	}
	schema, err := s.store.GetSchema(project)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	b, err := json.MarshalIndent(map[string]any{"project": project, "schema": schema}, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: schemaURI, MIMEType: "application/json", Text: string(b)},
		},
	}, nil
}

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "code_search_prompt",
		Description: "Search the indexed codebase for code related to a query",
		Arguments: []*mcp.PromptArgument{
			{Name: "query", Description: "What to look for", Required: true},
		},
	}, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		query := req.Params.Arguments["query"]
		if query == "" {
			return nil, fmt.Errorf("query is required")
		}
		return promptResult("Code search", fmt.Sprintf(`You are an expert on this codebase. Find the code related to:

%s

1. Use search_code to locate matching functions, classes and files.
2. Follow relationships with find_function_callers, find_function_callees and find_class_inheritance.
3. Explain what the code you found does.`, query)), nil
	})

	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "code_understanding_prompt",
		Description: "Explain a named code element and its relationships",
		Arguments: []*mcp.PromptArgument{
			{Name: "code_element", Description: "Function, class or file name", Required: true},
			{Name: "element_type", Description: "Entity kind: Function, Class, File or Variable"},
		},
	}, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		name := req.Params.Arguments["code_element"]
		if name == "" {
			return nil, fmt.Errorf("code_element is required")
		}
		kind := req.Params.Arguments["element_type"]
		if kind == "" {
			kind = "any kind"
		}
		return promptResult("Code understanding", fmt.Sprintf(`You are a code analysis expert. Help me understand this element:

Name: %s
Kind: %s

1. Fetch it with get_code_by_name and describe its purpose.
2. Describe how it relates to other code: callers, callees, parents and dependencies.
3. Show how it is used.`, name, kind)), nil
	})
}

func promptResult(desc, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: desc,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: text}},
		},
	}
}
