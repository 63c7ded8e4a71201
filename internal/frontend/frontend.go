// Package frontend turns the source text of one file into graph entities,
// relationships, pending references and module exports. Every language
// registers its front-end from init(); the registry maps a language tag to a
// primary implementation and an optional fallback.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

// ErrSyntax is returned (wrapped) together with a partial result when the
// parsed tree contains syntax errors.
var ErrSyntax = errors.New("syntax error")

// FrontEnd parses a single file. Implementations must be safe to call from
// many goroutines at once and must not retain state between calls.
type FrontEnd interface {
	// Name identifies the parsing engine (e.g. "tree-sitter", "go/parser").
	Name() string
	Parse(path string, src []byte) (*graph.Result, error)
}

// ContextParser is implemented by front-ends that stop parsing once ctx is
// done.
type ContextParser interface {
	ParseContext(ctx context.Context, path string, src []byte) (*graph.Result, error)
}

type entry struct {
	primary  FrontEnd
	fallback FrontEnd
}

// Registry maps language tags to front-ends.
type Registry struct {
	mu      sync.RWMutex
	entries map[lang.Language]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[lang.Language]*entry)}
}

// Register sets the primary front-end for l.
func (r *Registry) Register(l lang.Language, fe FrontEnd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[l]
	if e == nil {
		e = &entry{}
		r.entries[l] = e
	}
	e.primary = fe
}

// RegisterFallback sets the alternate front-end tried when the primary fails.
func (r *Registry) RegisterFallback(l lang.Language, fe FrontEnd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[l]
	if e == nil {
		e = &entry{}
		r.entries[l] = e
	}
	e.fallback = fe
}

// Lookup returns the primary front-end for l.
func (r *Registry) Lookup(l lang.Language) (FrontEnd, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entries[l]
	if e == nil || e.primary == nil {
		return nil, false
	}
	return e.primary, true
}

// Fallback returns the alternate front-end for l, if any.
func (r *Registry) Fallback(l lang.Language) (FrontEnd, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entries[l]
	if e == nil || e.fallback == nil {
		return nil, false
	}
	return e.fallback, true
}

// Languages returns the languages with a primary front-end, sorted.
func (r *Registry) Languages() []lang.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]lang.Language, 0, len(r.entries))
	for l, e := range r.entries {
		if e.primary != nil {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Require returns an error naming every language in langs that has no
// registered front-end. It is meant to be called once at startup.
func (r *Registry) Require(langs []lang.Language) error {
	var missing []string
	for _, l := range langs {
		if _, ok := r.Lookup(l); !ok {
			missing = append(missing, string(l))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no front-end registered for: %s", strings.Join(missing, ", "))
	}
	return nil
}

var defaultRegistry = NewRegistry()

// Default returns the registry populated by the built-in front-ends.
func Default() *Registry {
	return defaultRegistry
}
