package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
)

// Options tunes the Enricher.
type Options struct {
	// MaxAttempts bounds calls per text while rate limited.
	MaxAttempts int
	// MaxChars truncates texts before the first attempt.
	MaxChars  int
	CacheSize int
	Workers   int
	// NewBackOff returns the retry schedule for one text; nil means
	// exponential from 500ms.
	NewBackOff func() backoff.BackOff
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.MaxChars <= 0 {
		o.MaxChars = 8000
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 4096
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	return o
}

// Enricher embeds entities and never fails a run because of the service:
// rate limits are retried, oversized inputs truncated once, and anything
// else skips the entity with a diagnostic.
type Enricher struct {
	emb   Embedder
	opts  Options
	cache *lru.Cache[uint64, []float32]
	sink  *diag.Sink
}

// NewEnricher wraps emb. sink may be nil.
func NewEnricher(emb Embedder, opts Options, sink *diag.Sink) (*Enricher, error) {
	opts = opts.withDefaults()
	cache, err := lru.New[uint64, []float32](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Enricher{emb: emb, opts: opts, cache: cache, sink: sink}, nil
}

// WithSink returns an Enricher reporting to sink that shares en's cache.
func (en *Enricher) WithSink(sink *diag.Sink) *Enricher {
	cp := *en
	cp.sink = sink
	return &cp
}

// Embeddable reports whether e gets a vector; variables do not.
func Embeddable(e *graph.Entity) bool {
	switch e.Kind {
	case graph.KindFunction, graph.KindClass, graph.KindFile:
		return true
	}
	return false
}

// Text is what gets embedded for e: a header naming the entity, then its
// source excerpt.
func Text(e *graph.Entity) string {
	body := e.SourceExcerpt
	switch {
	case e.Kind == graph.KindFile:
		body = "File: " + e.Name
	case body == "":
		body = fmt.Sprintf("%s: %s", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s %s:\n%s", e.Kind, e.Name, body)
}

// Enrich embeds every embeddable entity and returns vectors by entity id.
// It only fails when ctx is done.
func (en *Enricher) Enrich(ctx context.Context, entities []*graph.Entity) (map[string][]float32, error) {
	var todo []*graph.Entity
	for _, e := range entities {
		if Embeddable(e) {
			todo = append(todo, e)
		}
	}
	sort.Slice(todo, func(i, j int) bool { return todo[i].ID < todo[j].ID })

	var mu sync.Mutex
	out := make(map[string][]float32, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(en.opts.Workers)
	for _, e := range todo {
		g.Go(func() error {
			v, err := en.EmbedText(gctx, Text(e))
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				en.skip(e, err)
				return nil
			}
			mu.Lock()
			out[e.ID] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if en.sink != nil {
		en.sink.Embedded(len(out))
	}
	slog.Info("embed.done", "embedded", len(out), "candidates", len(todo))
	return out, nil
}

// EmbedText embeds one text under the retry and truncation policy.
func (en *Enricher) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = truncate(text, en.opts.MaxChars)
	key := xxh3.HashString(text)
	if v, ok := en.cache.Get(key); ok {
		return v, nil
	}

	v, err := en.withRetry(ctx, text)
	if errors.Is(err, ErrInputTooLarge) {
		short := truncate(text, utf8.RuneCountInString(text)/2)
		slog.Warn("embed.truncated", "from", len(text), "to", len(short))
		v, err = en.withRetry(ctx, short)
	}
	if err != nil {
		return nil, err
	}
	en.cache.Add(key, v)
	return v, nil
}

func (en *Enricher) withRetry(ctx context.Context, text string) ([]float32, error) {
	var v []float32
	attempt := 0
	op := func() error {
		attempt++
		var err error
		v, err = en.emb.Embed(ctx, text)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRateLimited) {
			slog.Debug("embed.rate_limited", "attempt", attempt)
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(en.opts.NewBackOff(), uint64(en.opts.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return v, nil
}

func (en *Enricher) skip(e *graph.Entity, err error) {
	if en.sink == nil {
		slog.Warn("embed.skipped", "entity", e.ID, "err", err)
		return
	}
	en.sink.Record(diag.Record{
		Event:   diag.EmbedSkipped,
		File:    e.FilePath,
		Line:    e.StartLine,
		Message: err.Error(),
		Attrs:   map[string]any{"entity": e.ID},
	})
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
