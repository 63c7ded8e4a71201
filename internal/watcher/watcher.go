// Package watcher re-indexes a repository when its files change. fsnotify
// events are debounced into one re-index; a slow snapshot poll catches
// anything the event stream missed.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/discover"
)

// DefaultDebounce is how long the tree must stay quiet before a re-index.
const DefaultDebounce = 500 * time.Millisecond

const (
	basePoll = 10 * time.Second
	maxPoll  = 60 * time.Second
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// IndexFunc re-indexes the repository at rootPath.
type IndexFunc func(ctx context.Context, rootPath string) error

// Watcher watches one repository.
type Watcher struct {
	root     string
	indexFn  IndexFunc
	debounce time.Duration
	fsw      *fsnotify.Watcher
	snapshot map[string]fileSnapshot
}

// New creates a watcher for root. A zero debounce means DefaultDebounce.
func New(root string, debounce time.Duration, indexFn IndexFunc) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &Watcher{root: abs, indexFn: indexFn, debounce: debounce, fsw: fsw}, nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run blocks until ctx is cancelled or the event stream closes. It does
// not index on start; callers run the initial index themselves.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	snap, err := captureSnapshot(ctx, w.root)
	if err != nil {
		return err
	}
	w.snapshot = snap
	slog.Info("watcher.start", "root", w.root, "files", len(snap), "debounce", w.debounce)

	poll := time.NewTimer(pollInterval(len(snap)))
	defer poll.Stop()
	var quiet *time.Timer
	var quietC <-chan time.Time
	schedule := func() {
		if quiet == nil {
			quiet = time.NewTimer(w.debounce)
		} else {
			quiet.Reset(w.debounce)
		}
		quietC = quiet.C
	}
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						slog.Warn("watcher.add", "path", ev.Name, "err", err)
					}
				}
			}
			slog.Debug("watcher.event", "op", ev.Op.String(), "path", ev.Name)
			schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher.error", "err", err)
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				schedule()
			}

		case <-quietC:
			quietC = nil
			w.reindex(ctx, "event")

		case <-poll.C:
			w.poll(ctx)
			poll.Reset(pollInterval(len(w.snapshot)))
		}
	}
}

// poll compares a fresh snapshot with the last one and re-indexes on a
// difference.
func (w *Watcher) poll(ctx context.Context) {
	snap, err := captureSnapshot(ctx, w.root)
	if err != nil {
		slog.Warn("watcher.snapshot", "root", w.root, "err", err)
		return
	}
	if snapshotsEqual(w.snapshot, snap) {
		return
	}
	w.reindex(ctx, "poll")
}

func (w *Watcher) reindex(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	slog.Info("watcher.changed", "root", w.root, "trigger", trigger)
	if err := w.indexFn(ctx, w.root); err != nil {
		// Keep the old snapshot so the next poll retries.
		slog.Warn("watcher.index", "root", w.root, "err", err)
		return
	}
	if snap, err := captureSnapshot(ctx, w.root); err == nil {
		w.snapshot = snap
	}
}

// relevant drops chmod-only events and paths discovery would skip anyway.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if discover.IGNORE_PATTERNS[part] {
			return false
		}
	}
	for _, suffix := range discover.IGNORE_SUFFIXES {
		if strings.HasSuffix(rel, suffix) {
			return false
		}
	}
	return true
}

// addRecursive watches dir and every directory below it that discovery
// does not skip.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && discover.IGNORE_PATTERNS[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("watcher.add", "path", path, "err", err)
		}
		return nil
	})
}

// captureSnapshot records mtime and size of every discovered file.
func captureSnapshot(ctx context.Context, rootPath string) (map[string]fileSnapshot, error) {
	files, err := discover.Discover(ctx, rootPath, &discover.Options{IncludeUnknown: true})
	if err != nil {
		return nil, err
	}
	snap := make(map[string]fileSnapshot, len(files))
	for _, f := range files {
		info, statErr := os.Stat(f.Path)
		if statErr != nil {
			continue
		}
		snap[f.RelPath] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return snap, nil
}

// snapshotsEqual returns true if two snapshots have identical files with same mtime+size.
func snapshotsEqual(a, b map[string]fileSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for path, aSnap := range a {
		bSnap, ok := b[path]
		if !ok {
			return false
		}
		if !aSnap.modTime.Equal(bSnap.modTime) || aSnap.size != bSnap.size {
			return false
		}
	}
	return true
}

// pollInterval is 10s plus 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	d := basePoll + time.Duration(fileCount/500)*time.Second
	return min(d, maxPoll)
}
