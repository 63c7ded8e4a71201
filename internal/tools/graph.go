package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/store"
)

func (s *Server) handleGetCodeByName(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := getStringArg(args, "name")
	if name == "" {
		return errResult("name is required"), nil
	}
	project, err := s.resolveProject(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	nodes, err := s.store.FindNodesByName(project, name, getStringArg(args, "kind"))
	if err != nil {
		return errResult(fmt.Sprintf("lookup: %v", err)), nil
	}
	if len(nodes) == 0 {
		return errResult(fmt.Sprintf("no entity named %q in project %q", name, project)), nil
	}
	return jsonResult(map[string]any{
		"project": project,
		"total":   len(nodes),
		"results": nodes,
	}), nil
}

func (s *Server) handleFindCallers(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.trace(req, "callers", s.store.Callers)
}

func (s *Server) handleFindCallees(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.trace(req, "callees", s.store.Callees)
}

type traceFunc func(project, id string, depth int) (*store.TraverseResult, error)

// trace runs fn from every function matching the name argument. Functions
// sharing a name in different files are traced separately.
func (s *Server) trace(req *mcp.CallToolRequest, direction string, fn traceFunc) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := getStringArg(args, "name")
	if name == "" {
		return errResult("name is required"), nil
	}
	project, err := s.resolveProject(args)
	if err != nil {
		return errResult(err.Error()), nil
	}
	depth := getIntArg(args, "depth", 1, 1, 5)

	roots, err := s.findRoots(project, name, string(graph.KindFunction))
	if err != nil {
		return errResult(err.Error()), nil
	}

	results := make([]*store.TraverseResult, 0, len(roots))
	var hops []*store.NodeHop
	for _, root := range roots {
		res, err := fn(project, root.ID, depth)
		if err != nil {
			return errResult(fmt.Sprintf("%s: %v", direction, err)), nil
		}
		results = append(results, res)
		hops = append(hops, res.Visited...)
	}
	out := map[string]any{
		"project":   project,
		"direction": direction,
		"depth":     depth,
		"results":   results,
	}
	if direction == "callers" {
		// Callers of any overload count once, at their nearest hop.
		out["impact"] = store.BuildImpactSummary(store.DeduplicateHops(hops))
	}
	return jsonResult(out), nil
}

func (s *Server) handleFindInheritance(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := getStringArg(args, "name")
	if name == "" {
		return errResult("name is required"), nil
	}
	project, err := s.resolveProject(args)
	if err != nil {
		return errResult(err.Error()), nil
	}
	depth := getIntArg(args, "depth", 5, 1, 10)

	roots, err := s.findRoots(project, name, string(graph.KindClass))
	if err != nil {
		return errResult(err.Error()), nil
	}

	type hierarchy struct {
		Class    *store.Node      `json:"class"`
		Parents  []*store.NodeHop `json:"parents"`
		Children []*store.NodeHop `json:"children"`
	}
	out := make([]hierarchy, 0, len(roots))
	for _, root := range roots {
		parents, children, err := s.store.Inheritance(project, root.ID, depth)
		if err != nil {
			return errResult(fmt.Sprintf("inheritance: %v", err)), nil
		}
		out = append(out, hierarchy{Class: root, Parents: parents.Visited, Children: children.Visited})
	}
	return jsonResult(map[string]any{
		"project": project,
		"results": out,
	}), nil
}

func (s *Server) handleFindFileDependencies(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	filePath := strings.TrimPrefix(getStringArg(args, "file_path"), "./")
	if filePath == "" {
		return errResult("file_path is required"), nil
	}
	project, err := s.resolveProject(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	deps, err := s.store.FileDependencies(project, filePath)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"project": project,
		"deps":    deps,
	}), nil
}

// findRoots returns the entities of kind named name. An ID (containing a
// colon) selects exactly that entity.
func (s *Server) findRoots(project, name, kind string) ([]*store.Node, error) {
	if strings.Contains(name, ":") {
		n, err := s.store.FindNodeByID(project, name)
		if err != nil {
			return nil, fmt.Errorf("lookup: %w", err)
		}
		if n != nil {
			return []*store.Node{n}, nil
		}
	}
	nodes, err := s.store.FindNodesByName(project, name, kind)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no %s named %q in project %q", strings.ToLower(kind), name, project)
	}
	return nodes, nil
}
