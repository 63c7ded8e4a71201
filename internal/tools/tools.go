// Package tools exposes the code graph as MCP tools.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/config"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/embed"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/store"
)

// Version is reported to MCP clients.
var Version = "dev"

// Options configures a Server.
type Options struct {
	// Config overrides the per-repository .cgrconfig when set.
	Config *config.Config
	// Enricher embeds indexed entities and search queries; nil disables
	// semantic search.
	Enricher *embed.Enricher
	Model    string
	Metrics  *diag.Metrics
}

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp   *mcp.Server
	store *store.Store
	opts  Options

	indexMu sync.Mutex
	// project is the last indexed project, used when a call names none.
	project string
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(s *store.Store, opts Options) *Server {
	srv := &Server{
		store: s,
		opts:  opts,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "graph-codebase",
				Version: Version,
			},
			nil,
		),
	}
	srv.registerTools()
	srv.registerResources()
	srv.registerPrompts()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

const projectProp = `"project": {
					"type": "string",
					"description": "Project name. Defaults to the last indexed project, or the only one."
				}`

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "index_repository",
		Description: "Index a repository into the code graph. Parses every supported source file, resolves imports, calls and inheritance across files, embeds functions and classes when an embedding service is configured, and stores the graph. Unchanged repositories are skipped.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_path": {
					"type": "string",
					"description": "Path to the repository root"
				},
				"force": {
					"type": "boolean",
					"description": "Re-index even if no file changed since the last run"
				}
			},
			"required": ["repo_path"]
		}`),
	}, s.handleIndexRepository)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "search_code",
		Description: "Search functions, classes and files. Uses embedding similarity when the project was indexed with embeddings, otherwise matches names and source text.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Natural language description or text to look for"
				},
				"kind": {
					"type": "string",
					"description": "Entity kind filter for text search: File, Class, Function, Variable"
				},
				"file_pattern": {
					"type": "string",
					"description": "Glob on the file path for text search (e.g. 'src/**/*.py')"
				},
				"limit": {
					"type": "integer",
					"description": "Max results (default 10, max 100)"
				},
				` + projectProp + `
			},
			"required": ["query"]
		}`),
	}, s.handleSearchCode)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_code_by_name",
		Description: "Return the entities with the given name, with their qualified name, location and source excerpt.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Entity name, e.g. 'getUser' or 'User'"
				},
				"kind": {
					"type": "string",
					"description": "Optional kind filter: File, Class, Function, Variable"
				},
				` + projectProp + `
			},
			"required": ["name"]
		}`),
	}, s.handleGetCodeByName)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_function_callers",
		Description: "Find the functions that call the named function, following CALLS edges inbound up to depth hops. The impact field grades callers by distance: 1 hop CRITICAL, 2 HIGH, 3 MEDIUM, further LOW.",
		InputSchema: json.RawMessage(traceSchema),
	}, s.handleFindCallers)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_function_callees",
		Description: "Find the functions the named function calls, following CALLS edges outbound up to depth hops.",
		InputSchema: json.RawMessage(traceSchema),
	}, s.handleFindCallees)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_class_inheritance",
		Description: "Return the parent classes and subclasses of the named class along EXTENDS edges.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Class name"
				},
				"depth": {
					"type": "integer",
					"description": "Maximum hops in each direction (1-10, default 5)"
				},
				` + projectProp + `
			},
			"required": ["name"]
		}`),
	}, s.handleFindInheritance)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_file_dependencies",
		Description: "List what a file imports and which files and entities import from it.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {
					"type": "string",
					"description": "File path relative to the repository root, e.g. 'src/app.js'"
				},
				` + projectProp + `
			},
			"required": ["file_path"]
		}`),
	}, s.handleFindFileDependencies)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_graph_schema",
		Description: "Return the schema of the indexed code graph: entity kinds and labels with counts, relationship types with counts, relationship patterns (e.g. Class-EXTENDS->Class), sample names and the number of embedded entities.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + projectProp + `
			}
		}`),
	}, s.handleGetGraphSchema)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "execute_cypher_query",
		Description: "Run a read-only graph query against one project. Supports a single MATCH pattern with labels, inline properties, typed and variable-length relationships (-[:CALLS*1..3]->), WHERE with =, <>, =~, CONTAINS, STARTS WITH, ENDS WITH and numeric comparisons joined by AND or OR, and RETURN with DISTINCT, COUNT, ORDER BY and LIMIT. See the cypher://examples resource.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Query text, e.g. MATCH (f:Function)-[:CALLS]->(g) WHERE f.name = $name RETURN g.name"
				},
				"parameters": {
					"type": "object",
					"description": "Values for $name placeholders in the query"
				},
				"max_rows": {
					"type": "integer",
					"description": "Row cap when the query has no LIMIT (1-1000, default 200)"
				},
				` + projectProp + `
			},
			"required": ["query"]
		}`),
	}, s.handleExecuteCypherQuery)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_projects",
		Description: "List all indexed projects with their indexed_at timestamp, root path, run id and entity/relationship counts.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleListProjects)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "delete_project",
		Description: "Delete an indexed project and all its graph data. This action is irreversible.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_name": {
					"type": "string",
					"description": "Name of the project to delete"
				}
			},
			"required": ["project_name"]
		}`),
	}, s.handleDeleteProject)
}

const traceSchema = `{
	"type": "object",
	"properties": {
		"name": {
			"type": "string",
			"description": "Function or method name (e.g. 'ProcessOrder')"
		},
		"depth": {
			"type": "integer",
			"description": "Maximum BFS depth (1-5, default 1)"
		},
		` + projectProp + `
	},
	"required": ["name"]
}`

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// getIntArg extracts an integer argument clamped to [lo, hi].
func getIntArg(args map[string]any, key string, def, lo, hi int) int {
	f, ok := args[key].(float64) // JSON numbers decode as float64
	if !ok {
		return def
	}
	return max(lo, min(int(f), hi))
}

// getBoolArg extracts a boolean argument from parsed args.
func getBoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// resolveProject picks the project a call refers to: the named one, else
// the last indexed one, else the only one in the store.
func (s *Server) resolveProject(args map[string]any) (string, error) {
	if name := getStringArg(args, "project"); name != "" {
		p, err := s.store.GetProject(name)
		if err != nil {
			return "", err
		}
		if p == nil {
			return "", fmt.Errorf("project not found: %s", name)
		}
		return name, nil
	}
	s.indexMu.Lock()
	last := s.project
	s.indexMu.Unlock()
	if last != "" {
		return last, nil
	}
	projects, err := s.store.ListProjects()
	if err != nil {
		return "", fmt.Errorf("list projects: %w", err)
	}
	switch len(projects) {
	case 0:
		return "", fmt.Errorf("no project indexed yet; call index_repository first")
	case 1:
		return projects[0].Name, nil
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	return "", fmt.Errorf("project is required (indexed: %s)", strings.Join(names, ", "))
}
