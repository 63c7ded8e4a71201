// Command graph-codebase indexes repositories into a code knowledge graph
// and serves it to MCP clients.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/config"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/embed"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/store"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/tools"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel   string
	dbPath     string
	configPath string
	noEmbed    bool
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   "graph-codebase",
		Short: "Cross-language code knowledge graph",
		Long: `graph-codebase parses a repository with tree-sitter, resolves imports,
calls and inheritance across files and languages, and stores the result
as a graph of files, classes, functions and variables in SQLite.

The graph is queried through MCP tools (serve) or rebuilt from the
command line (index, watch).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(g.logLevel)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.dbPath, "db", "", "Graph database path (default ~/.cache/graph-codebase/graph.db)")
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (default <repo>/.cgrconfig)")
	pf.BoolVar(&g.noEmbed, "no-embed", false, "Skip embeddings even when an API key is set")

	cmd.AddCommand(
		indexCmd(&g),
		watchCmd(&g),
		serveCmd(&g),
		parseCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "graph-codebase %s\n", version)
			},
		},
	)
	tools.Version = version
	return cmd
}

// setupLogging sends structured logs to stderr; stdout carries MCP traffic
// under serve.
func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// loadConfig reads --config, or .cgrconfig under repo, then applies the
// environment and --no-embed.
func (g *globalFlags) loadConfig(repo string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case g.configPath != "":
		cfg = config.Load(g.configPath)
	case repo != "":
		cfg = config.LoadDir(repo)
	default:
		cfg = config.Default()
	}
	cfg.ApplyEnv(os.Getenv)
	if g.noEmbed {
		off := false
		cfg.Embedding.Enabled = &off
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (g *globalFlags) openStore(cfg *config.Config) (*store.Store, error) {
	path := g.dbPath
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			return nil, err
		}
	}
	s, err := store.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return s, nil
}

// newEnricher returns nil when embeddings are off or no key is set.
func newEnricher(cfg *config.Config) (*embed.Enricher, string, error) {
	if !cfg.EffectiveEmbedding() {
		slog.Debug("embed.disabled")
		return nil, "", nil
	}
	model := cfg.EffectiveModel()
	client, err := embed.NewOpenAI(embed.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   model,
		APIKey:  cfg.Embedding.APIKey,
	})
	if err != nil {
		return nil, "", err
	}
	en, err := embed.NewEnricher(client, embed.Options{
		MaxAttempts: cfg.EffectiveMaxAttempts(),
		MaxChars:    cfg.EffectiveMaxChars(),
		CacheSize:   cfg.EffectiveCacheSize(),
	}, nil)
	if err != nil {
		return nil, "", err
	}
	return en, model, nil
}

// env is what an indexing command needs open for its lifetime.
type env struct {
	cfg      *config.Config
	store    *store.Store
	enricher *embed.Enricher
	model    string
	metrics  *diag.Metrics
}

func (g *globalFlags) open(repo string) (*env, error) {
	cfg, err := g.loadConfig(repo)
	if err != nil {
		return nil, err
	}
	s, err := g.openStore(cfg)
	if err != nil {
		return nil, err
	}
	en, model, err := newEnricher(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	return &env{cfg: cfg, store: s, enricher: en, model: model}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}
