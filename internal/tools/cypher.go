package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/cypher"
)

func (s *Server) handleExecuteCypherQuery(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	query := getStringArg(args, "query")
	if query == "" {
		return errResult("query is required"), nil
	}
	params, _ := args["parameters"].(map[string]any)

	project, err := s.resolveProject(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	exec := &cypher.Executor{
		Store:   s.store,
		Project: project,
		MaxRows: getIntArg(args, "max_rows", cypher.DefaultMaxRows, 1, 1000),
	}
	res, err := exec.Execute(ctx, query, params)
	if err != nil {
		return errResult(fmt.Sprintf("query error: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"project":   project,
		"columns":   res.Columns,
		"rows":      res.Rows,
		"total":     len(res.Rows),
		"truncated": res.Truncated,
	}), nil
}
