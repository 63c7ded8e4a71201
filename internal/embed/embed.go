// Package embed turns entity text into vectors through an OpenAI-compatible
// embeddings endpoint.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Errors every Embedder reports through errors.Is.
var (
	ErrRateLimited   = errors.New("embedding rate limited")
	ErrInputTooLarge = errors.New("embedding input too large")
	ErrUnavailable   = errors.New("embedding service unavailable")
)

// Embedder returns the vector of one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-3-small"

// Dimensions returns the vector size a model produces, 1536 when unknown.
func Dimensions(model string) int {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "text-embedding-3-large"):
		return 3072
	case strings.Contains(name, "text-embedding-3-small"), strings.Contains(name, "ada-002"):
		return 1536
	case strings.Contains(name, "text-embedding-004"), strings.Contains(name, "gemma"):
		return 768
	}
	return 1536
}

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// OpenAI calls the /embeddings endpoint of an OpenAI-compatible server.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI returns a client; it fails without an API key.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding API key is not set (OPENAI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are the Enricher's job.
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAI{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Model returns the configured model name.
func (c *OpenAI) Model() string { return c.model }

// Embed implements Embedder.
func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(c.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}

// classify maps a client error onto the package errors.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	case code == http.StatusRequestEntityTooLarge,
		code == http.StatusBadRequest && (tooLong(apiErr.Message) || tooLong(apiErr.RawJSON())):
		return fmt.Errorf("%w: %s", ErrInputTooLarge, apiErr.Message)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, code, apiErr.Message)
	}
}

func tooLong(msg string) bool {
	m := strings.ToLower(msg)
	for _, s := range []string{"maximum context length", "too long", "too large", "too many tokens", "input length"} {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}
