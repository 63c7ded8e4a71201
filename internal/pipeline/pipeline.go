// Package pipeline runs one indexing pass over a repository: discover,
// parse every file, merge, resolve cross-file references, embed and save.
package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/config"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/coordinator"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/discover"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/embed"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/fqn"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/frontend"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/resolve"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/store"
)

// Options controls one run.
type Options struct {
	Discover discover.Options
	// Parallel enables the parse fan-out once there are at least MinFiles
	// files.
	Parallel   bool
	MinFiles   int
	MaxWorkers int
	Parse      coordinator.Options
	TieBreak   resolve.TieBreak
	// SourceRoots are tried as prefixes of bare import specifiers.
	SourceRoots []string
	// Force re-indexes even when no file changed since the last run.
	Force bool
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	opts, _ := FromConfig(config.Default())
	return opts
}

// FromConfig validates cfg and turns it into run options.
func FromConfig(cfg *config.Config) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, fmt.Errorf("config: %w", err)
	}
	langs, _ := cfg.EffectiveLanguages()
	tb, _ := cfg.EffectiveTieBreak()
	return Options{
		Discover: discover.Options{
			Exclude:        cfg.Exclude,
			Languages:      langs,
			IncludeUnknown: true,
		},
		Parallel:   cfg.EffectiveParallel(),
		MinFiles:   cfg.EffectiveMinFiles(),
		MaxWorkers: cfg.EffectiveMaxWorkers(),
		Parse: coordinator.Options{
			Timeout:        cfg.EffectiveTimeout(),
			Fallback:       cfg.EffectiveFallback(),
			TolerateSyntax: !cfg.EffectiveStrictSyntax(),
		},
		TieBreak:    tb,
		SourceRoots: cfg.Resolve.SourceRoots,
	}, nil
}

// Pipeline indexes one repository. Store and Enricher are optional.
type Pipeline struct {
	RepoPath    string
	ProjectName string
	Store       *store.Store
	Enricher    *embed.Enricher
	// Model names the embedding model in the store.
	Model    string
	Registry *frontend.Registry
	Metrics  *diag.Metrics

	opts Options
}

// New returns a pipeline for the repository at repoPath.
func New(repoPath string, opts Options) *Pipeline {
	if abs, err := filepath.Abs(repoPath); err == nil {
		repoPath = abs
	}
	return &Pipeline{
		RepoPath:    repoPath,
		ProjectName: ProjectNameFromPath(repoPath),
		Registry:    frontend.Default(),
		opts:        opts,
	}
}

// ProjectNameFromPath names a project after its root directory.
func ProjectNameFromPath(absPath string) string {
	name := filepath.Base(filepath.Clean(absPath))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "root"
	}
	return name
}

// Result is the outcome of one run. The graph is present even when saving
// it failed; it is empty when the run found nothing changed.
type Result struct {
	Project       string
	Files         int
	Entities      []*graph.Entity
	Relationships []graph.Relationship
	Diagnostics   []resolve.Diagnostic
	Embeddings    map[string][]float32
	Summary       diag.Summary
}

// Run indexes the repository. It only fails for configuration errors,
// a bad repository path or cancellation; per-file and collaborator
// failures end up in the summary.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	sink := diag.New(p.Metrics)
	slog.Info("pipeline.start", "project", p.ProjectName, "path", p.RepoPath, "run", sink.RunID())

	if err := p.Registry.Require(p.opts.Discover.Languages); err != nil {
		return nil, err
	}
	files, err := discover.Discover(ctx, p.RepoPath, &p.opts.Discover)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	slog.Info("pipeline.discovered", "files", len(files))

	hashes := hashFiles(ctx, files)
	if p.upToDate(hashes) {
		slog.Info("incremental.noop", "project", p.ProjectName, "reason", "no_changes")
		sink.UpToDate()
		return &Result{Project: p.ProjectName, Files: len(files), Summary: sink.Summary()}, nil
	}

	t := time.Now()
	c := coordinator.New(p.Registry, p.opts.Parse, sink)
	outcomes, err := p.parse(ctx, c, files)
	if err != nil {
		return nil, err
	}
	slog.Info("pass.timing", "pass", "parse", "files", len(files), "elapsed", time.Since(t))

	corpus := NewCorpus()
	for _, o := range outcomes {
		corpus.Merge(o.File.RelPath, o.File.Language, o.Result)
	}

	t = time.Now()
	in := corpus.Snapshot()
	r := resolve.New(fqn.Options{
		SourceRoots: p.opts.SourceRoots,
		GoModule:    goModulePath(p.RepoPath),
		Project:     p.ProjectName,
	}, p.opts.TieBreak)
	out := r.Resolve(in)
	slog.Info("pass.timing", "pass", "resolve", "pending", len(in.Pending), "elapsed", time.Since(t))

	recordDiagnostics(sink, out.Diagnostics)
	sink.References(diag.RefStats{
		Resolved:  out.Stats.Resolved,
		FileLevel: out.Stats.FileLevel,
		Degraded:  out.Stats.Degraded,
		Dropped:   out.Stats.Dropped,
		Ambiguous: out.Stats.Ambiguous,
	})

	res := &Result{
		Project:       p.ProjectName,
		Files:         len(files),
		Entities:      make([]*graph.Entity, 0, len(in.Entities)),
		Relationships: out.Relationships,
		Diagnostics:   out.Diagnostics,
	}
	for _, e := range in.Entities {
		res.Entities = append(res.Entities, e)
	}
	graph.SortEntities(res.Entities)
	graph.SortRelationships(res.Relationships)
	sink.Graph(len(res.Entities), len(res.Relationships))

	if p.Enricher != nil {
		t = time.Now()
		vecs, err := p.Enricher.WithSink(sink).Enrich(ctx, res.Entities)
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		res.Embeddings = vecs
		slog.Info("pass.timing", "pass", "embed", "elapsed", time.Since(t))
	}

	if p.Store != nil {
		err := p.Store.Save(store.Snapshot{
			Project:       p.ProjectName,
			RootPath:      p.RepoPath,
			RunID:         sink.RunID(),
			Entities:      res.Entities,
			Relationships: res.Relationships,
			FileHashes:    hashes,
			Model:         p.Model,
			Embeddings:    res.Embeddings,
		})
		if err != nil {
			sink.StoreError(err)
		}
	}

	res.Summary = sink.Summary()
	slog.Info("pipeline.done", "project", p.ProjectName,
		"entities", len(res.Entities), "relationships", len(res.Relationships),
		"elapsed", res.Summary.Elapsed)
	return res, nil
}

// workers returns the parse fan-out for n files; 1 means sequential.
func (p *Pipeline) workers(n int) int {
	if !p.opts.Parallel || n < p.opts.MinFiles {
		return 1
	}
	w := p.opts.MaxWorkers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	return max(1, min(w, n))
}

// parse runs the coordinator over every file. Outcomes are indexed like
// files; nothing is merged until every worker has returned.
func (p *Pipeline) parse(ctx context.Context, c *coordinator.Coordinator, files []discover.FileInfo) ([]coordinator.Outcome, error) {
	outcomes := make([]coordinator.Outcome, len(files))
	workers := p.workers(len(files))
	slog.Info("pass.parse", "files", len(files), "workers", workers)

	if workers == 1 {
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = c.Parse(ctx, f)
		}
		return outcomes, ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = c.Parse(gctx, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Files parsed while ctx was being cancelled report timeouts, not
	// results; drop the whole run.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// upToDate reports whether every discovered file has the hash stored by the
// last run, with no file added or removed.
func (p *Pipeline) upToDate(hashes map[string]string) bool {
	if p.Store == nil || p.opts.Force || len(hashes) == 0 {
		return false
	}
	stored, err := p.Store.GetFileHashes(p.ProjectName)
	if err != nil {
		slog.Warn("incremental.hashes.err", "project", p.ProjectName, "err", err)
		return false
	}
	if len(stored) != len(hashes) {
		return false
	}
	for path, h := range hashes {
		if stored[path] != h {
			return false
		}
	}
	return true
}

// hashFiles hashes file contents in parallel. Unreadable files are left
// out, which makes the next run treat them as changed.
func hashFiles(ctx context.Context, files []discover.FileInfo) map[string]string {
	results := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			h, err := fileHash(f.Path)
			if err != nil {
				slog.Warn("hash.file.err", "path", f.RelPath, "err", err)
				return nil
			}
			results[i] = h
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(files))
	for i, f := range files {
		if results[i] != "" {
			out[f.RelPath] = results[i]
		}
	}
	return out
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// goModulePath returns the module path declared in the repository's go.mod,
// or "" when there is none.
func goModulePath(repoPath string) string {
	data, err := os.ReadFile(filepath.Join(repoPath, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

func recordDiagnostics(sink *diag.Sink, ds []resolve.Diagnostic) {
	for _, d := range ds {
		var ev diag.Event
		switch d.Kind {
		case resolve.DiagDropped:
			ev = diag.Unresolved
		case resolve.DiagDegraded:
			ev = diag.Degraded
		case resolve.DiagAmbiguous:
			ev = diag.Ambiguous
		default:
			continue
		}
		attrs := map[string]any{
			"kind":   string(d.Ref.Kind),
			"module": d.Ref.ModulePath,
			"name":   d.Ref.Name,
		}
		if d.Target != "" {
			attrs["target"] = d.Target
		}
		if len(d.Competing) > 0 {
			attrs["competing"] = d.Competing
		}
		sink.Record(diag.Record{
			Event:    ev,
			File:     d.Ref.OriginFile,
			Language: lang.Language(d.Ref.OriginLangTag),
			Line:     d.Ref.Line,
			Message:  d.Reason,
			Attrs:    attrs,
		})
	}
}
