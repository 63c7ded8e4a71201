package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/coordinator"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/discover"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/frontend"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/parser"
)

// parseCmd is a debugging aid: it runs one file through its front-end and
// prints what the resolver would receive.
func parseCmd() *cobra.Command {
	var dumpAST bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Show the entities and pending references extracted from one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			l, ok := lang.LanguageForExtension(filepath.Ext(path))
			if !ok {
				return fmt.Errorf("no language for %s", filepath.Base(path))
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if dumpAST {
				tree, err := parser.Parse(l, src)
				if err != nil {
					return err
				}
				defer tree.Close()
				printAST(out, tree.RootNode(), src, 0)
				return nil
			}

			c := coordinator.New(frontend.Default(), coordinator.Options{Fallback: true, TolerateSyntax: true}, nil)
			f := discover.FileInfo{Path: path, RelPath: filepath.Base(path), Language: l}
			res := c.ParseSource(cmd.Context(), f, src)
			if res.Err != nil {
				return fmt.Errorf("%s: %w", res.Status, res.Err)
			}
			printResult(out, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dumpAST, "ast", false, "Dump the tree-sitter syntax tree instead")
	return cmd
}

func printResult(w io.Writer, o coordinator.Outcome) {
	fmt.Fprintf(w, "%s (%s, engine=%s, %s)\n", o.File.RelPath, o.File.Language, o.Engine, o.Status)

	ids := make([]string, 0, len(o.Result.Entities))
	for id := range o.Result.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintln(w, "entities:")
	for _, id := range ids {
		e := o.Result.Entities[id]
		fmt.Fprintf(w, "  %s lines %d-%d\n", e.ID, e.StartLine, e.EndLine)
	}

	fmt.Fprintln(w, "relationships:")
	for _, r := range o.Result.Relationships {
		fmt.Fprintf(w, "  %s\n", r)
	}

	fmt.Fprintln(w, "pending:")
	for _, p := range o.Result.Pending {
		target := p.Name
		if p.ModulePath != "" {
			target = p.ModulePath + "#" + p.Name
		}
		fmt.Fprintf(w, "  %s %s -> %s line %d\n", p.Kind, p.OriginID, target, p.Line)
	}
}

func printAST(w io.Writer, node *tree_sitter.Node, source []byte, indent int) {
	if node == nil {
		return
	}
	text := string(source[node.StartByte():node.EndByte()])
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	fmt.Fprintf(w, "%s%s %q\n", strings.Repeat("  ", indent), node.Kind(), text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printAST(w, node.Child(i), source, indent+1)
	}
}
