// Package ollama is the embedding provider client. It talks to Ollama's HTTP
// embed endpoint and shares one rate limiter and circuit breaker across all
// callers.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/pkg/fn"
	"github.com/WessleyAI/docsearch/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures an EmbedClient.
type Options struct {
	// Dimensions is the expected vector length. Zero disables the check.
	Dimensions int
	// BatchSize caps how many texts go into one request.
	BatchSize int
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	Limiter resilience.LimiterOpts
	Breaker resilience.BreakerOpts
}

// DefaultOptions returns settings suited to a local Ollama.
func DefaultOptions() Options {
	return Options{
		Dimensions: 768,
		BatchSize:  32,
		Timeout:    30 * time.Second,
		Limiter:    resilience.LimiterOpts{Rate: 20, Burst: 5},
		Breaker:    resilience.DefaultBreakerOpts,
	}
}

// EmbedClient produces embeddings through Ollama's /api/embed endpoint.
type EmbedClient struct {
	baseURL string
	model   string
	opts    Options
	client  *http.Client
	limiter *resilience.Limiter
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string, opts Options, logger *slog.Logger) *EmbedClient {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	bo := opts.Breaker
	bo.IsFailure = isUpstreamFailure
	prev := bo.OnStateChange
	bo.OnStateChange = func(from, to resilience.State) {
		logger.Warn("ollama: breaker state change", "from", from.String(), "to", to.String())
		if prev != nil {
			prev(from, to)
		}
	}
	return &EmbedClient{
		baseURL: baseURL,
		model:   model,
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limiter: resilience.NewLimiter(opts.Limiter),
		breaker: resilience.NewBreaker(bo),
		logger:  logger,
	}
}

// Dimensions returns the configured vector length.
func (c *EmbedClient) Dimensions() int { return c.opts.Dimensions }

// Model returns the embedding model name.
func (c *EmbedClient) Model() string { return c.model }

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// statusError is a non-2xx response from Ollama.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// isUpstreamFailure counts transport errors and 5xx responses. Client-side
// mistakes and caller cancellation leave the breaker alone.
func isUpstreamFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return true
}

// EmbedQuery embeds a single search query.
func (c *EmbedClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.Embed(ctx, text)
}

// Embed embeds one text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in order, splitting into requests of at most
// BatchSize inputs.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range fn.Batches(texts, c.opts.BatchSize) {
		start := len(out)
		vecs, err := c.call(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: batch [%d:%d]: %w", domain.ErrEmbedding, start, start+len(batch), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *EmbedClient) call(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out [][]float32
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		vecs, err := c.post(ctx, texts)
		out = vecs
		return err
	})
	return out, err
}

func (c *EmbedClient) post(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedReq{Model: c.model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(msg))}
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		if c.opts.Dimensions > 0 && len(e) != c.opts.Dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(e), c.opts.Dimensions)
		}
		v := make([]float32, len(e))
		for j, x := range e {
			v[j] = float32(x)
		}
		out[i] = v
	}
	c.logger.Debug("ollama: embedded", "inputs", len(texts))
	return out, nil
}
