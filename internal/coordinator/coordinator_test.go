package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/discover"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/frontend"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// fakeFrontEnd returns a File-only result, or fails the way it is told to.
type fakeFrontEnd struct {
	name   string
	panics bool
	delay  time.Duration
	err    error
}

func (f *fakeFrontEnd) Name() string { return f.name }

func (f *fakeFrontEnd) Parse(path string, src []byte) (*graph.Result, error) {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	res := graph.NewResult(path, "python", src)
	if f.err != nil {
		return res, f.err
	}
	return res, nil
}

func file(rel string, l lang.Language) discover.FileInfo {
	return discover.FileInfo{Path: rel, RelPath: rel, Language: l}
}

func registry(primary, fallback frontend.FrontEnd) *frontend.Registry {
	r := frontend.NewRegistry()
	r.Register(lang.Python, primary)
	if fallback != nil {
		r.RegisterFallback(lang.Python, fallback)
	}
	return r
}

var syntaxErr = fmt.Errorf("bad.py: %w at line 1", frontend.ErrSyntax)

func TestParseStatuses(t *testing.T) {
	tests := []struct {
		name     string
		primary  *fakeFrontEnd
		fallback *fakeFrontEnd
		opts     Options
		status   Status
		engine   string
		empty    bool
		event    diag.Event
	}{
		{
			name:    "ok",
			primary: &fakeFrontEnd{name: "primary"},
			status:  StatusOK,
			engine:  "primary",
		},
		{
			name:    "panic is recovered",
			primary: &fakeFrontEnd{name: "primary", panics: true},
			status:  StatusFailed,
			empty:   true,
			event:   diag.ParseFailed,
		},
		{
			name:    "timeout",
			primary: &fakeFrontEnd{name: "primary", delay: 200 * time.Millisecond},
			opts:    Options{Timeout: 10 * time.Millisecond},
			status:  StatusTimeout,
			empty:   true,
			event:   diag.ParseTimeout,
		},
		{
			name:    "strict syntax fails",
			primary: &fakeFrontEnd{name: "primary", err: syntaxErr},
			status:  StatusFailed,
			empty:   true,
			event:   diag.ParseFailed,
		},
		{
			name:    "tolerant syntax keeps partial result",
			primary: &fakeFrontEnd{name: "primary", err: syntaxErr},
			opts:    Options{TolerateSyntax: true},
			status:  StatusOK,
			engine:  "primary",
		},
		{
			name:     "fallback rescues",
			primary:  &fakeFrontEnd{name: "primary", panics: true},
			fallback: &fakeFrontEnd{name: "fallback"},
			opts:     Options{Fallback: true},
			status:   StatusOK,
			engine:   "fallback",
		},
		{
			name:     "fallback disabled",
			primary:  &fakeFrontEnd{name: "primary", err: errors.New("engine crashed")},
			fallback: &fakeFrontEnd{name: "fallback"},
			status:   StatusFailed,
			empty:    true,
			event:    diag.ParseFailed,
		},
		{
			name:     "fallback also fails",
			primary:  &fakeFrontEnd{name: "primary", err: syntaxErr},
			fallback: &fakeFrontEnd{name: "fallback", err: syntaxErr},
			opts:     Options{Fallback: true},
			status:   StatusFailed,
			empty:    true,
			event:    diag.ParseFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fb frontend.FrontEnd
			if tt.fallback != nil {
				fb = tt.fallback
			}
			sink := diag.New(nil)
			c := New(registry(tt.primary, fb), tt.opts, sink)
			out := c.ParseSource(context.Background(), file("bad.py", lang.Python), []byte("x = 1\n"))
			if out.Status != tt.status {
				t.Fatalf("status = %s, want %s (err %v)", out.Status, tt.status, out.Err)
			}
			if out.Result == nil {
				t.Fatal("result must never be nil")
			}
			if got := out.Result.IsEmpty(); got != tt.empty {
				t.Errorf("empty = %v, want %v", got, tt.empty)
			}
			if tt.engine != "" && out.Engine != tt.engine {
				t.Errorf("engine = %s, want %s", out.Engine, tt.engine)
			}
			recs := sink.Records()
			if tt.event == "" {
				if len(recs) != 0 {
					t.Errorf("unexpected diagnostics %v", recs)
				}
				return
			}
			if len(recs) != 1 || recs[0].Event != tt.event || recs[0].File != "bad.py" {
				t.Errorf("diagnostics = %+v, want one %s", recs, tt.event)
			}
		})
	}
}

// blockingFrontEnd parses until its context is done.
type blockingFrontEnd struct {
	stopped chan struct{}
}

func (b *blockingFrontEnd) Name() string { return "blocking" }

func (b *blockingFrontEnd) Parse(path string, src []byte) (*graph.Result, error) {
	return b.ParseContext(context.Background(), path, src)
}

func (b *blockingFrontEnd) ParseContext(ctx context.Context, _ string, _ []byte) (*graph.Result, error) {
	<-ctx.Done()
	close(b.stopped)
	return nil, ctx.Err()
}

func TestTimeoutStopsContextParser(t *testing.T) {
	fe := &blockingFrontEnd{stopped: make(chan struct{})}
	c := New(registry(fe, nil), Options{Timeout: 10 * time.Millisecond}, nil)

	out := c.ParseSource(context.Background(), file("slow.py", lang.Python), []byte("x = 1\n"))
	if out.Status != StatusTimeout || !errors.Is(out.Err, ErrTimeout) {
		t.Fatalf("status = %s, err = %v", out.Status, out.Err)
	}
	select {
	case <-fe.stopped:
	case <-time.After(time.Second):
		t.Fatal("front-end kept running after the timeout")
	}
}

func TestUnknownLanguageIsSkipped(t *testing.T) {
	sink := diag.New(nil)
	c := New(frontend.NewRegistry(), Options{}, sink)
	out := c.ParseSource(context.Background(), file("notes.xyz", ""), []byte("hello"))
	if out.Status != StatusSkipped || !errors.Is(out.Err, ErrUnsupported) {
		t.Fatalf("outcome = %+v", out)
	}
	if !out.Result.IsEmpty() {
		t.Error("skipped file should have an empty result")
	}
	if sum := sink.Summary(); sum.Events[diag.Unsupported] != 1 {
		t.Errorf("events = %v", sum.Events)
	}
}

func TestParseReadsFileAndHashes(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "mod.py")
	if err := os.WriteFile(p, []byte("def f():\n    pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(frontend.Default(), Options{}, nil)
	out := c.Parse(context.Background(), discover.FileInfo{Path: p, RelPath: "mod.py", Language: lang.Python})
	if out.Status != StatusOK {
		t.Fatalf("status = %s: %v", out.Status, out.Err)
	}
	if out.Hash == 0 {
		t.Error("hash not computed")
	}
	if out.Result.File().Attr(graph.AttrContentHash) == nil {
		t.Error("content hash not recorded on the File entity")
	}
	if out.Result.FindEntity(graph.KindFunction, "f") == nil {
		t.Error("function f missing")
	}
}

func TestParseMissingFile(t *testing.T) {
	c := New(frontend.Default(), Options{}, nil)
	out := c.Parse(context.Background(), discover.FileInfo{Path: "/does/not/exist.py", RelPath: "exist.py", Language: lang.Python})
	if out.Status != StatusFailed || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestBadFileDoesNotAffectGoodFile(t *testing.T) {
	c := New(frontend.Default(), Options{}, nil)
	bad := c.ParseSource(context.Background(), file("bad.js", lang.JavaScript), []byte("function (\n"))
	good := c.ParseSource(context.Background(), file("good.js", lang.JavaScript), []byte("function ok() {}\n"))
	if bad.Status != StatusFailed || !bad.Result.IsEmpty() {
		t.Errorf("bad.js outcome = %s", bad.Status)
	}
	if good.Status != StatusOK || good.Result.FindEntity(graph.KindFunction, "ok") == nil {
		t.Errorf("good.js outcome = %s", good.Status)
	}
}
