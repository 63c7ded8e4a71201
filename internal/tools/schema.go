package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleGetGraphSchema(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	project, err := s.resolveProject(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	schema, err := s.store.GetSchema(project)
	if err != nil {
		return errResult(fmt.Sprintf("schema: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"project": project,
		"schema":  schema,
	}), nil
}
