package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleListProjects(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects()
	if err != nil {
		return errResult(fmt.Sprintf("list projects: %v", err)), nil
	}

	type projectInfo struct {
		Name          string `json:"name"`
		RootPath      string `json:"root_path"`
		IndexedAt     string `json:"indexed_at"`
		RunID         string `json:"run_id,omitempty"`
		Entities      int    `json:"entities"`
		Relationships int    `json:"relationships"`
	}

	result := make([]projectInfo, 0, len(projects))
	for _, p := range projects {
		nc, _ := s.store.CountNodes(p.Name)
		ec, _ := s.store.CountEdges(p.Name)
		result = append(result, projectInfo{
			Name:          p.Name,
			RootPath:      p.RootPath,
			IndexedAt:     p.IndexedAt,
			RunID:         p.RunID,
			Entities:      nc,
			Relationships: ec,
		})
	}

	return jsonResult(result), nil
}

func (s *Server) handleDeleteProject(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	name := getStringArg(args, "project_name")
	if name == "" {
		return errResult("project_name is required"), nil
	}

	proj, _ := s.store.GetProject(name)
	if proj == nil {
		return errResult(fmt.Sprintf("project not found: %s", name)), nil
	}

	// Entities, relationships, embeddings and file hashes cascade.
	if err := s.store.DeleteProject(name); err != nil {
		return errResult(fmt.Sprintf("delete failed: %v", err)), nil
	}

	s.indexMu.Lock()
	if s.project == name {
		s.project = ""
	}
	s.indexMu.Unlock()

	return jsonResult(map[string]any{
		"deleted": name,
		"status":  "ok",
	}), nil
}
