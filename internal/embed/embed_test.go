package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/diag"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
)

func TestDimensions(t *testing.T) {
	tests := map[string]int{
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		"text-embedding-004":     768,
		"something-else":         1536,
	}
	for model, want := range tests {
		assert.Equal(t, want, Dimensions(model), model)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(Config{})
	require.Error(t, err)
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body.Model)
		assert.Equal(t, "Function getUser", body.Input)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,-1]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())

	v, err := c.Embed(context.Background(), "Function getUser")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1}, v)
}

func TestOpenAIErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`, ErrRateLimited},
		{"too long", http.StatusBadRequest, `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`, ErrInputTooLarge},
		{"entity too large", http.StatusRequestEntityTooLarge, `{"error":{"message":"payload"}}`, ErrInputTooLarge},
		{"server error", http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`, ErrUnavailable},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrUnavailable},
		{"other bad request", http.StatusBadRequest, `{"error":{"message":"unknown model"}}`, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "sk-test"})
			require.NoError(t, err)
			_, err = c.Embed(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAITransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewOpenAI(Config{BaseURL: url, APIKey: "sk-test"})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

// fakeEmbedder fails according to fn and counts calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
	fn    func(call int, text string) error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.fn != nil {
		if err := f.fn(call, text); err != nil {
			return nil, err
		}
	}
	return []float32{float32(len(text))}, nil
}

func fastOptions() Options {
	return Options{
		Workers:    1,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func fn(name, excerpt string) *graph.Entity {
	return &graph.Entity{
		ID:            graph.EntityID(graph.KindFunction, "a.py", name, 1),
		Kind:          graph.KindFunction,
		Name:          name,
		FilePath:      "a.py",
		StartLine:     1,
		SourceExcerpt: excerpt,
	}
}

func TestEnricherRetriesRateLimits(t *testing.T) {
	emb := &fakeEmbedder{fn: func(call int, _ string) error {
		if call < 3 {
			return ErrRateLimited
		}
		return nil
	}}
	en, err := NewEnricher(emb, fastOptions(), nil)
	require.NoError(t, err)

	out, err := en.Enrich(context.Background(), []*graph.Entity{fn("f", "def f(): pass")})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 3, emb.calls)
}

func TestEnricherGivesUpAfterMaxAttempts(t *testing.T) {
	emb := &fakeEmbedder{fn: func(int, string) error { return ErrRateLimited }}
	opts := fastOptions()
	opts.MaxAttempts = 3
	sink := diag.New(nil)
	en, err := NewEnricher(emb, opts, sink)
	require.NoError(t, err)

	out, err := en.Enrich(context.Background(), []*graph.Entity{fn("f", "def f(): pass")})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 3, emb.calls)
	assert.Equal(t, 1, sink.Summary().EmbedSkipped)
}

func TestEnricherTruncatesOnce(t *testing.T) {
	emb := &fakeEmbedder{fn: func(_ int, text string) error {
		if len(text) > 40 {
			return ErrInputTooLarge
		}
		return nil
	}}
	en, err := NewEnricher(emb, fastOptions(), nil)
	require.NoError(t, err)

	long := fn("f", strings.Repeat("x", 60))
	out, err := en.Enrich(context.Background(), []*graph.Entity{long})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, emb.texts, 2)
	assert.Less(t, len(emb.texts[1]), len(emb.texts[0]))

	// Still too large after one truncation: skipped.
	huge := fn("g", strings.Repeat("y", 500))
	emb.texts = nil
	out, err = en.Enrich(context.Background(), []*graph.Entity{huge})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, emb.texts, 2)
}

func TestEnricherSkipsUnavailable(t *testing.T) {
	emb := &fakeEmbedder{fn: func(_ int, text string) error {
		if strings.Contains(text, "broken") {
			return ErrUnavailable
		}
		return nil
	}}
	sink := diag.New(nil)
	en, err := NewEnricher(emb, fastOptions(), sink)
	require.NoError(t, err)

	out, err := en.Enrich(context.Background(), []*graph.Entity{fn("broken", ""), fn("ok", "")})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Contains(t, out, fn("ok", "").ID)

	recs := sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, diag.EmbedSkipped, recs[0].Event)
	assert.Equal(t, 1, sink.Summary().Embedded)
}

func TestEnricherCachesByText(t *testing.T) {
	emb := &fakeEmbedder{}
	en, err := NewEnricher(emb, fastOptions(), nil)
	require.NoError(t, err)

	a := fn("f", "same")
	b := fn("f", "same")
	b.ID = graph.EntityID(graph.KindFunction, "b.py", "f", 1)
	out, err := en.Enrich(context.Background(), []*graph.Entity{a, b})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, emb.calls)
}

func TestEnricherSkipsVariablesAndTruncates(t *testing.T) {
	emb := &fakeEmbedder{}
	opts := fastOptions()
	opts.MaxChars = 16
	en, err := NewEnricher(emb, opts, nil)
	require.NoError(t, err)

	v := &graph.Entity{ID: "Variable:a.py:x:1", Kind: graph.KindVariable, Name: "x"}
	out, err := en.Enrich(context.Background(), []*graph.Entity{v, fn("f", strings.Repeat("é", 50))})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	require.Len(t, emb.texts, 1)
	assert.Equal(t, 16, len([]rune(emb.texts[0])))
}

func TestEnricherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emb := &fakeEmbedder{fn: func(int, string) error {
		cancel()
		return ErrRateLimited
	}}
	en, err := NewEnricher(emb, fastOptions(), nil)
	require.NoError(t, err)
	_, err = en.Enrich(ctx, []*graph.Entity{fn("f", "")})
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}

func TestText(t *testing.T) {
	assert.Equal(t, "Function f:\ndef f(): pass", Text(fn("f", "def f(): pass")))
	assert.Equal(t, "Function g:\nFunction: g", Text(fn("g", "")))
	file := &graph.Entity{ID: graph.FileID("a.py"), Kind: graph.KindFile, Name: "a.py"}
	assert.Equal(t, "File a.py:\nFile: a.py", Text(file))
}
