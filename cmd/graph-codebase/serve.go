package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/tools"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/watcher"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		metricsAddr string
		watchPath   string
		transport   string
		addr        string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph as MCP tools over stdio or HTTP",
		Long: `Serve runs an MCP server exposing index_repository, search_code,
get_code_by_name, find_function_callers, find_function_callees,
find_class_inheritance, find_file_dependencies, get_graph_schema,
execute_cypher_query, list_projects and delete_project, plus the
schema://kg and cypher://examples resources.

The default transport is stdin/stdout. With --transport http the server
accepts streamable HTTP sessions on --addr under /mcp.

With --watch the given repository is indexed at startup and re-indexed
whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != transportStdio && transport != transportHTTP {
				return fmt.Errorf("unknown transport %q (want %s or %s)", transport, transportStdio, transportHTTP)
			}
			root := ""
			if watchPath != "" {
				abs, err := filepath.Abs(watchPath)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				root = abs
			}
			e, err := g.open(root)
			if err != nil {
				return err
			}
			defer e.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			e.metrics = diag.NewMetrics(reg)

			opts := tools.Options{Enricher: e.enricher, Model: e.model, Metrics: e.metrics}
			if g.configPath != "" {
				opts.Config = e.cfg
			}
			srv := tools.NewServer(e.store, opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			eg, ctx := errgroup.WithContext(ctx)

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
				eg.Go(func() error { return listen(ctx, "metrics", metricsAddr, mux) })
			}
			if root != "" {
				eg.Go(func() error { return watchServer(ctx, srv, root) })
			}
			eg.Go(func() error {
				slog.Info("serve.start", "version", version, "transport", transport, "db", e.store.Path())
				var err error
				if transport == transportHTTP {
					mux := http.NewServeMux()
					mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
						return srv.MCPServer()
					}, nil))
					err = listen(ctx, "mcp", addr, mux)
				} else {
					err = srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
				}
				stop()
				return err
			})
			if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().StringVar(&watchPath, "watch", "", "Index this repository at startup and keep it current")
	cmd.Flags().StringVar(&transport, "transport", transportStdio, "MCP transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address for --transport http")
	return cmd
}

// watchServer indexes root through srv so tool calls see it as the default
// project, then follows changes.
func watchServer(ctx context.Context, srv *tools.Server, root string) error {
	indexFn := func(ctx context.Context, root string) error {
		_, err := srv.Index(ctx, root, false)
		return err
	}
	if err := indexFn(ctx, root); err != nil {
		// The server stays up; index_repository can still be called.
		slog.Error("serve.index", "root", root, "err", err)
	}
	w, err := watcher.New(root, watcher.DefaultDebounce, indexFn)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx)
}

const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

// listen serves h on addr until ctx is done.
func listen(ctx context.Context, name, addr string, h http.Handler) error {
	hs := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()
	slog.Info("serve.listen", "server", name, "addr", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
