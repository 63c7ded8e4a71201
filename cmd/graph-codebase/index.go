package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/pipeline"
)

func indexCmd(g *globalFlags) *cobra.Command {
	var (
		force   bool
		asJSON  bool
		project string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a repository into the graph",
		Long: `Index parses every supported file under path (default the current
directory), resolves references across files and writes the graph to the
database. A repository whose files are unchanged since the last run is
skipped unless --force is given.

Exits non-zero when the configuration is invalid, a configured language has
no front-end, or the graph could not be written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			e, err := g.open(root)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := e.index(ctx, root, project, force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res.Summary); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s: %d files\n%s", res.Project, res.Files, res.Summary)
			}
			if res.Summary.StoreError != "" {
				return errors.New("graph not stored: " + res.Summary.StoreError)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-index even if nothing changed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run summary as JSON")
	cmd.Flags().StringVar(&project, "project", "", "Project name (default the directory name)")
	return cmd
}

// index runs one pipeline over root against e's store.
func (e *env) index(ctx context.Context, root, project string, force bool) (*pipeline.Result, error) {
	opts, err := pipeline.FromConfig(e.cfg)
	if err != nil {
		return nil, err
	}
	opts.Force = force

	p := pipeline.New(root, opts)
	if project != "" {
		p.ProjectName = project
	}
	p.Store = e.store
	p.Enricher = e.enricher
	p.Model = e.model
	p.Metrics = e.metrics
	return p.Run(ctx)
}
