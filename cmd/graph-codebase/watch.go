package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/watcher"
)

func watchCmd(g *globalFlags) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Index a repository and re-index it on every change",
		Args:  cobra.MaximumNArgs(1),
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
			return e.watch(ctx, root, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "Quiet period before a re-index")
	return cmd
}

// watch indexes root once, then on every settled change until ctx ends.
func (e *env) watch(ctx context.Context, root string, debounce time.Duration) error {
	indexFn := func(ctx context.Context, root string) error {
		res, err := e.index(ctx, root, "", false)
		if err != nil {
			return err
		}
		if res.Summary.StoreError != "" {
			return errors.New(res.Summary.StoreError)
		}
		return nil
	}
	if err := indexFn(ctx, root); err != nil {
		return err
	}

	w, err := watcher.New(root, debounce, indexFn)
	if err != nil {
		return err
	}
	defer w.Close()
	slog.Info("watch.ready", "root", root)
	return w.Run(ctx)
}
