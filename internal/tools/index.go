package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/config"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/pipeline"
)

// Index runs the pipeline over repoPath against the server's store and
// makes the project the default for later calls.
func (s *Server) Index(ctx context.Context, repoPath string, force bool) (*pipeline.Result, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	cfg := s.opts.Config
	if cfg == nil {
		cfg = config.LoadDir(absPath)
		cfg.ApplyEnv(os.Getenv)
	}
	opts, err := pipeline.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts.Force = force

	// One run at a time, shared with the watcher.
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	p := pipeline.New(absPath, opts)
	p.Store = s.store
	if cfg.Embedding.Enabled == nil || *cfg.Embedding.Enabled {
		p.Enricher = s.opts.Enricher
	}
	p.Model = s.opts.Model
	p.Metrics = s.opts.Metrics
	res, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.project = res.Project
	return res, nil
}

func (s *Server) handleIndexRepository(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	repoPath := getStringArg(args, "repo_path")
	if repoPath == "" {
		return errResult("repo_path is required"), nil
	}

	res, err := s.Index(ctx, repoPath, getBoolArg(args, "force"))
	if err != nil {
		return errResult(fmt.Sprintf("indexing failed: %v", err)), nil
	}

	nodeCount, _ := s.store.CountNodes(res.Project)
	edgeCount, _ := s.store.CountEdges(res.Project)
	out := map[string]any{
		"project":       res.Project,
		"files":         res.Files,
		"entities":      nodeCount,
		"relationships": edgeCount,
		"up_to_date":    res.Summary.UpToDate,
		"summary":       res.Summary,
	}
	if res.Summary.StoreError != "" {
		out["store_error"] = res.Summary.StoreError
		r := jsonResult(out)
		r.IsError = true
		return r, nil
	}
	return jsonResult(out), nil
}
