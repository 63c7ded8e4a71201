// Package coordinator parses one file at a time through the front-end
// registry and turns every way that can fail into an empty result plus a
// diagnostic.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/discover"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/frontend"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// ErrTimeout is returned when a front-end exceeds the per-file budget.
var ErrTimeout = errors.New("parse timed out")

// ErrUnsupported is returned for files with no registered front-end.
var ErrUnsupported = errors.New("unsupported language")

// Status is the outcome class of one file.
type Status string

const (
	StatusOK      Status = diag.FileOK
	StatusSkipped Status = diag.FileSkipped
	StatusFailed  Status = diag.FileFailed
	StatusTimeout Status = diag.FileTimeout
)

// DefaultTimeout bounds a single front-end invocation.
const DefaultTimeout = 30 * time.Second

// Options controls failure handling.
type Options struct {
	// Timeout per file; zero means DefaultTimeout.
	Timeout time.Duration
	// Fallback retries a failed file with the language's alternate engine.
	Fallback bool
	// TolerateSyntax accepts the partial result of a tree with syntax
	// errors instead of failing the file.
	TolerateSyntax bool
}

// Outcome is what the coordinator reports for one file. Result is never
// nil: failed and skipped files carry an empty result.
type Outcome struct {
	File     discover.FileInfo
	Result   *graph.Result
	Status   Status
	Engine   string
	Fallback bool
	Err      error
	Duration time.Duration
	// Hash is the xxh3 hash of the file content, zero if it was not read.
	Hash uint64
}

// Coordinator is safe for concurrent use; it holds no per-file state.
type Coordinator struct {
	reg  *frontend.Registry
	opts Options
	sink *diag.Sink
}

// New returns a coordinator over reg. sink may be nil.
func New(reg *frontend.Registry, opts Options, sink *diag.Sink) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Coordinator{reg: reg, opts: opts, sink: sink}
}

// Parse reads and parses f.
func (c *Coordinator) Parse(ctx context.Context, f discover.FileInfo) Outcome {
	src, err := os.ReadFile(f.Path)
	if err != nil {
		out := Outcome{File: f, Result: graph.Empty(f.RelPath), Status: StatusFailed, Err: fmt.Errorf("read %s: %w", f.RelPath, err)}
		c.report(out)
		return out
	}
	return c.ParseSource(ctx, f, src)
}

// ParseSource parses src as the content of f.
func (c *Coordinator) ParseSource(ctx context.Context, f discover.FileInfo, src []byte) (out Outcome) {
	start := time.Now()
	out = Outcome{File: f, Hash: xxh3.Hash(src)}
	defer func() {
		out.Duration = time.Since(start)
		c.report(out)
	}()

	primary, ok := c.reg.Lookup(f.Language)
	if !ok {
		out.Result = graph.Empty(f.RelPath)
		out.Status = StatusSkipped
		out.Err = fmt.Errorf("%s: %w %q", f.RelPath, ErrUnsupported, f.Language)
		return out
	}

	res, err := c.run(ctx, primary, f.RelPath, src)
	out.Engine = primary.Name()
	if err != nil && !errors.Is(err, ErrTimeout) && c.opts.Fallback {
		if fb, ok := c.reg.Fallback(f.Language); ok {
			slog.Debug("parse.fallback", "file", f.RelPath, "engine", fb.Name(), "err", err)
			if fres, ferr := c.run(ctx, fb, f.RelPath, src); ferr == nil || c.tolerable(ferr, fres) {
				res, err = fres, ferr
				out.Engine = fb.Name()
				out.Fallback = true
			}
		}
	}

	switch {
	case err == nil:
		out.Status = StatusOK
	case c.tolerable(err, res):
		slog.Warn("parse.partial", "file", f.RelPath, "err", err)
		out.Status = StatusOK
		out.Err = err
	case errors.Is(err, ErrTimeout):
		out.Status = StatusTimeout
		out.Err = err
	default:
		out.Status = StatusFailed
		out.Err = err
	}
	if out.Status != StatusOK {
		// Partial results of failed files never reach the graph.
		out.Result = graph.Empty(f.RelPath)
		return out
	}
	if file := res.File(); file != nil {
		file.SetAttr(graph.AttrContentHash, strconv.FormatUint(out.Hash, 16))
	}
	out.Result = res
	return out
}

func (c *Coordinator) tolerable(err error, res *graph.Result) bool {
	return c.opts.TolerateSyntax && res != nil && errors.Is(err, frontend.ErrSyntax)
}

type parsed struct {
	res *graph.Result
	err error
}

// run invokes fe under the per-file timeout and turns a panic into an
// error. A timed-out invocation is abandoned and its result discarded;
// front-ends that take a context also stop parsing.
func (c *Coordinator) run(ctx context.Context, fe frontend.FrontEnd, path string, src []byte) (*graph.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	done := make(chan parsed, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("parse.panic", "file", path, "engine", fe.Name(), "panic", r, "stack", string(debug.Stack()))
				done <- parsed{err: fmt.Errorf("%s: %s panicked: %v", path, fe.Name(), r)}
			}
		}()
		var p parsed
		if cp, ok := fe.(frontend.ContextParser); ok {
			p.res, p.err = cp.ParseContext(ctx, path, src)
		} else {
			p.res, p.err = fe.Parse(path, src)
		}
		done <- p
	}()

	timedOut := func(err error) (*graph.Result, error) {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", path, c.opts.Timeout, ErrTimeout)
		}
		return nil, err
	}
	select {
	case p := <-done:
		if p.err != nil && ctx.Err() != nil && errors.Is(p.err, ctx.Err()) {
			// A context-aware front-end gave up first.
			return timedOut(ctx.Err())
		}
		if p.err == nil && p.res == nil {
			return nil, fmt.Errorf("%s: %s returned no result", path, fe.Name())
		}
		return p.res, p.err
	case <-ctx.Done():
		return timedOut(ctx.Err())
	}
}

func (c *Coordinator) report(out Outcome) {
	if c.sink == nil {
		return
	}
	c.sink.FileDone(out.File.Language, string(out.Status))
	if out.Err == nil || out.Status == StatusOK {
		return
	}
	ev := diag.ParseFailed
	switch out.Status {
	case StatusTimeout:
		ev = diag.ParseTimeout
	case StatusSkipped:
		ev = diag.Unsupported
	}
	attrs := map[string]any{"engine": out.Engine}
	if out.Fallback {
		attrs["fallback"] = true
	}
	c.sink.Record(diag.Record{
		Event:    ev,
		File:     out.File.RelPath,
		Language: out.File.Language,
		Message:  out.Err.Error(),
		Attrs:    attrs,
	})
}

// Supported reports whether l has a front-end in the coordinator's registry.
func (c *Coordinator) Supported(l lang.Language) bool {
	_, ok := c.reg.Lookup(l)
	return ok
}
