// Package config holds user-overridable indexing settings, loaded from
// .cgrconfig in the repository root (or an explicit file) and overridden by
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/resolve"
)

// FileName is the per-repository config file.
const FileName = ".cgrconfig"

// Config is the decoded YAML. Pointer fields distinguish "unset" from the
// zero value; use the Effective* accessors to read them.
type Config struct {
	Languages []string        `yaml:"languages"`
	Exclude   []string        `yaml:"exclude"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Parse     ParseConfig     `yaml:"parse"`
	Resolve   ResolveConfig   `yaml:"resolve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
}

// ParallelConfig controls the parse fan-out.
type ParallelConfig struct {
	Enabled    *bool `yaml:"enabled"`
	MinFiles   *int  `yaml:"min_files"`
	MaxWorkers *int  `yaml:"max_workers"`
}

// ParseConfig controls per-file failure handling.
type ParseConfig struct {
	// Timeout is a Go duration string, e.g. "30s".
	Timeout      string `yaml:"timeout"`
	Fallback     *bool  `yaml:"fallback"`
	StrictSyntax *bool  `yaml:"strict_syntax"`
}

// ResolveConfig controls cross-file resolution.
type ResolveConfig struct {
	TieBreak    string   `yaml:"tie_break"`
	SourceRoots []string `yaml:"source_roots"`
}

// EmbeddingConfig controls the embedding sink.
type EmbeddingConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	MaxAttempts *int   `yaml:"max_attempts"`
	MaxChars    *int   `yaml:"max_chars"`
	CacheSize   *int   `yaml:"cache_size"`
	// APIKey only ever comes from the environment.
	APIKey string `yaml:"-"`
}

// StoreConfig locates the graph database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{}
}

// Load reads path; an empty path means defaults. A missing or invalid
// file falls back to defaults with a warning.
func Load(path string) *Config {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("config.read", "path", path, "err", err)
		}
		return Default()
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("config.invalid", "path", path, "err", err)
		return Default()
	}
	return cfg
}

// LoadDir reads .cgrconfig from the given directory.
func LoadDir(dir string) *Config {
	return Load(filepath.Join(dir, FileName))
}

// ApplyEnv overrides settings from environment variables. getenv is
// os.Getenv outside tests. Unparseable values are ignored with a warning.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("PARALLEL_INDEXING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Parallel.Enabled = &b
		} else {
			slog.Warn("config.env.invalid", "key", "PARALLEL_INDEXING_ENABLED", "value", v)
		}
	}
	for key, dst := range map[string]**int{
		"MAX_WORKERS":            &c.Parallel.MaxWorkers,
		"MIN_FILES_FOR_PARALLEL": &c.Parallel.MinFiles,
	} {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = &n
			} else {
				slog.Warn("config.env.invalid", "key", key, "value", v)
			}
		}
	}
	if v := getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	} else if v := getenv("EMBEDDING_API_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
}

// Validate reports configuration errors that must stop a run before it
// starts.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.EffectiveLanguages(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.EffectiveTieBreak(); err != nil {
		errs = append(errs, err)
	}
	if c.Parse.Timeout != "" {
		if d, err := time.ParseDuration(c.Parse.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("parse.timeout %q is not a positive duration", c.Parse.Timeout))
		}
	}
	if c.Parallel.MaxWorkers != nil && *c.Parallel.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("parallel.max_workers must not be negative"))
	}
	return errors.Join(errs...)
}

// EffectiveLanguages returns the enabled languages; nil means all.
func (c *Config) EffectiveLanguages() ([]lang.Language, error) {
	if len(c.Languages) == 0 {
		return nil, nil
	}
	out := make([]lang.Language, 0, len(c.Languages))
	for _, name := range c.Languages {
		l, ok := lang.Parse(name)
		if !ok {
			return nil, fmt.Errorf("unknown language %q in languages", name)
		}
		out = append(out, l)
	}
	return out, nil
}

// EffectiveParallel returns whether parsing may fan out (default true).
func (c *Config) EffectiveParallel() bool {
	if c.Parallel.Enabled != nil {
		return *c.Parallel.Enabled
	}
	return true
}

// EffectiveMinFiles returns the file count below which parsing stays
// sequential (default 50).
func (c *Config) EffectiveMinFiles() int {
	if c.Parallel.MinFiles != nil {
		return *c.Parallel.MinFiles
	}
	return 50
}

// EffectiveMaxWorkers returns the worker cap (default: number of CPUs).
func (c *Config) EffectiveMaxWorkers() int {
	if c.Parallel.MaxWorkers != nil && *c.Parallel.MaxWorkers > 0 {
		return *c.Parallel.MaxWorkers
	}
	return runtime.NumCPU()
}

// EffectiveTimeout returns the per-file parse timeout (default 30s).
func (c *Config) EffectiveTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Parse.Timeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// EffectiveFallback returns whether alternate engines are tried (default true).
func (c *Config) EffectiveFallback() bool {
	if c.Parse.Fallback != nil {
		return *c.Parse.Fallback
	}
	return true
}

// EffectiveStrictSyntax returns whether syntax errors fail a file (default true).
func (c *Config) EffectiveStrictSyntax() bool {
	if c.Parse.StrictSyntax != nil {
		return *c.Parse.StrictSyntax
	}
	return true
}

// EffectiveTieBreak returns the duplicate-export policy.
func (c *Config) EffectiveTieBreak() (resolve.TieBreak, error) {
	return resolve.ParseTieBreak(c.Resolve.TieBreak)
}

// EffectiveEmbedding returns whether the embedding sink runs: enabled
// (default true) and an API key is present.
func (c *Config) EffectiveEmbedding() bool {
	if c.Embedding.Enabled != nil && !*c.Embedding.Enabled {
		return false
	}
	return c.Embedding.APIKey != ""
}

// EffectiveModel returns the embedding model (default text-embedding-3-small).
func (c *Config) EffectiveModel() string {
	if c.Embedding.Model != "" {
		return c.Embedding.Model
	}
	return "text-embedding-3-small"
}

// EffectiveMaxAttempts returns the rate-limit attempt cap (default 5).
func (c *Config) EffectiveMaxAttempts() int {
	if c.Embedding.MaxAttempts != nil && *c.Embedding.MaxAttempts > 0 {
		return *c.Embedding.MaxAttempts
	}
	return 5
}

// EffectiveMaxChars returns the pre-embedding truncation length (default 8000).
func (c *Config) EffectiveMaxChars() int {
	if c.Embedding.MaxChars != nil && *c.Embedding.MaxChars > 0 {
		return *c.Embedding.MaxChars
	}
	return 8000
}

// EffectiveCacheSize returns the embedding cache capacity (default 4096).
func (c *Config) EffectiveCacheSize() int {
	if c.Embedding.CacheSize != nil && *c.Embedding.CacheSize > 0 {
		return *c.Embedding.CacheSize
	}
	return 4096
}
