package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/store"
)

const (
	searchSemantic = "semantic"
	searchText     = "text"
)

func (s *Server) handleSearchCode(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	query := getStringArg(args, "query")
	if query == "" {
		return errResult("query is required"), nil
	}
	project, err := s.resolveProject(args)
	if err != nil {
		return errResult(err.Error()), nil
	}
	limit := getIntArg(args, "limit", 10, 1, 100)
	kind := getStringArg(args, "kind")
	pattern := getStringArg(args, "file_pattern")

	mode := searchText
	var matches []store.Match
	// Filters only apply to text search; a filtered query skips embeddings.
	if s.opts.Enricher != nil && kind == "" && pattern == "" {
		matches, err = s.semanticSearch(ctx, project, query, limit)
		if err != nil {
			slog.Warn("search.semantic", "project", project, "err", err)
		} else if len(matches) > 0 {
			mode = searchSemantic
		}
	}
	if mode == searchText {
		matches, err = s.store.Search(store.SearchParams{
			Project:     project,
			Query:       query,
			Kind:        kind,
			FilePattern: pattern,
			Limit:       limit,
		})
		if err != nil {
			return errResult(fmt.Sprintf("search: %v", err)), nil
		}
	}
	if matches == nil {
		matches = []store.Match{}
	}

	return jsonResult(map[string]any{
		"project": project,
		"mode":    mode,
		"total":   len(matches),
		"results": matches,
	}), nil
}

func (s *Server) semanticSearch(ctx context.Context, project, query string, limit int) ([]store.Match, error) {
	vec, err := s.opts.Enricher.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.store.SimilarTo(project, vec, limit)
}
