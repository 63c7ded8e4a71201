package discover

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".claude": true, ".eclipse": true, ".eggs": true,
	".env": true, ".git": true, ".gradle": true, ".hg": true,
	".idea": true, ".maven": true, ".mypy_cache": true, ".nox": true,
	".npm": true, ".nyc_output": true, ".pnpm-store": true,
	".pytest_cache": true, ".ruff_cache": true, ".svn": true,
	".tmp": true, ".tox": true, ".venv": true, ".vs": true,
	".vscode": true, ".yarn": true, "__pycache__": true,
	"bower_components": true, "build": true, "coverage": true,
	"dist": true, "env": true, "htmlcov": true, "node_modules": true,
	"obj": true, "out": true, "Pods": true, "site-packages": true,
	"target": true, "temp": true, "tmp": true, "vendor": true,
	"venv": true,
}

// IGNORE_SUFFIXES are file suffixes to skip.
var IGNORE_SUFFIXES = []string{
	".tmp", "~", ".pyc", ".pyo", ".o", ".a", ".so", ".dll", ".class",
	".exe", ".png", ".jpg", ".gif", ".zip", ".gz", ".lock",
}

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to repo root, slash separated
	Language lang.Language // empty when IncludeUnknown picked the file up
}

// Options configures file discovery.
type Options struct {
	// IgnoreFile overrides <repo>/.cgrignore.
	IgnoreFile string
	// Exclude holds doublestar globs matched against the relative path.
	Exclude []string
	// Languages restricts discovery to these tags; empty means all.
	Languages []lang.Language
	// IncludeUnknown also yields files with no registered language so the
	// caller can report them as skipped.
	IncludeUnknown bool
	// NoGitignore disables .gitignore handling.
	NoGitignore bool
}

type matcher struct {
	gitignore *ignore.GitIgnore
	cgrignore *ignore.GitIgnore
	exclude   []string
	langs     map[lang.Language]bool
}

func newMatcher(repoPath string, opts *Options) (*matcher, error) {
	m := &matcher{}
	if opts == nil {
		opts = &Options{}
	}
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
		m.exclude = append(m.exclude, pattern)
	}
	if !opts.NoGitignore {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(repoPath, ".gitignore")); err == nil {
			m.gitignore = gi
		}
	}
	ignPath := opts.IgnoreFile
	if ignPath == "" {
		ignPath = filepath.Join(repoPath, ".cgrignore")
	}
	if lines, err := loadIgnoreFile(ignPath); err == nil && len(lines) > 0 {
		m.cgrignore = ignore.CompileIgnoreLines(lines...)
	}
	if len(opts.Languages) > 0 {
		m.langs = make(map[lang.Language]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			m.langs[l] = true
		}
	}
	return m, nil
}

// ignored reports whether rel (slash separated) is excluded by any rule.
func (m *matcher) ignored(rel string, isDir bool) bool {
	if isDir && IGNORE_PATTERNS[filepath.Base(rel)] {
		return true
	}
	probe := rel
	if isDir {
		probe += "/"
	}
	if m.gitignore != nil && m.gitignore.MatchesPath(probe) {
		return true
	}
	if m.cgrignore != nil && m.cgrignore.MatchesPath(probe) {
		return true
	}
	for _, pattern := range m.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}

// Discover walks a repository and returns its source files sorted by
// relative path.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", repoPath)
	}

	m, err := newMatcher(repoPath, opts)
	if err != nil {
		return nil, err
	}
	includeUnknown := opts != nil && opts.IncludeUnknown

	var files []FileInfo
	err = filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == repoPath {
			return nil
		}
		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if m.ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || m.ignored(rel, false) {
			return nil
		}
		for _, suffix := range IGNORE_SUFFIXES {
			if strings.HasSuffix(path, suffix) {
				return nil
			}
		}

		l, ok := lang.LanguageForExtension(filepath.Ext(path))
		switch {
		case ok && (m.langs == nil || m.langs[l]):
			files = append(files, FileInfo{Path: path, RelPath: rel, Language: l})
		case !ok && includeUnknown && filepath.Ext(path) != "":
			files = append(files, FileInfo{Path: path, RelPath: rel})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, scanner.Err()
}
