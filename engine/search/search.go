// Package search answers free-text queries: it embeds the query, runs a
// filtered vector search, rebuilds page and chunk views from payloads and
// attaches citations. Responses are cached per engine.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/WessleyAI/docsearch/engine/citation"
	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/engine/semantic"
	"github.com/WessleyAI/docsearch/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector store surface the engine reads from.
type Store interface {
	Search(ctx context.Context, vector []float32, params semantic.SearchParams) ([]semantic.Hit, error)
	GetPageChunks(ctx context.Context, pageID string) ([]semantic.Point, error)
}

// Options configures the engine.
type Options struct {
	EmbedTimeout time.Duration
	StoreTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		EmbedTimeout: 10 * time.Second,
		StoreTimeout: 5 * time.Second,
	}
}

// Engine is safe for concurrent use.
type Engine struct {
	embedder QueryEmbedder
	store    Store
	citer    *citation.Extractor
	cache    *Cache
	opts     Options
	logger   *slog.Logger
	metrics  *engineMetrics
}

type engineMetrics struct {
	queries     *metrics.Counter
	failures    *metrics.Counter
	cacheHits   *metrics.Counter
	cacheMisses *metrics.Counter
	latency     *metrics.Histogram
	results     *metrics.Histogram
}

func newEngineMetrics(reg *metrics.Registry) *engineMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	return &engineMetrics{
		queries:     reg.Counter("docsearch_search_queries_total", "Search requests received."),
		failures:    reg.Counter("docsearch_search_failures_total", "Search requests that failed."),
		cacheHits:   reg.Counter(metrics.WithLabels("docsearch_search_cache_total", "result", "hit"), "Search cache lookups."),
		cacheMisses: reg.Counter(metrics.WithLabels("docsearch_search_cache_total", "result", "miss"), "Search cache lookups."),
		latency:     reg.Histogram("docsearch_search_duration_seconds", "Search latency.", nil),
		results:     reg.Histogram("docsearch_search_results", "Results per search.", []float64{0, 1, 3, 5, 10, 20, 50}),
	}
}

// New creates an Engine. A nil cache gets a default one; a nil registry keeps
// metrics private to the engine.
func New(embedder QueryEmbedder, store Store, citer *citation.Extractor, cache *Cache, reg *metrics.Registry, opts Options, logger *slog.Logger) *Engine {
	if citer == nil {
		citer = citation.New()
	}
	if cache == nil {
		cache = NewCache(DefaultCacheLimit, DefaultCacheEvict)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		citer:    citer,
		cache:    cache,
		opts:     opts,
		logger:   logger,
		metrics:  newEngineMetrics(reg),
	}
}

// Cache returns the engine's result cache.
func (e *Engine) Cache() *Cache { return e.cache }

// Search runs query under cfg. Invalid input yields a validation error; an
// embedding or store failure yields an error wrapping domain.ErrRetrieval.
// A query that matches nothing is a successful empty response.
func (e *Engine) Search(ctx context.Context, query string, cfg domain.SearchConfig) (*domain.SearchResponse, error) {
	ctx, span := otel.Tracer("engine/search").Start(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.query", query),
		attribute.Int("search.top_k", cfg.TopK),
		attribute.Bool("search.use_cache", cfg.UseCache),
	)
	e.metrics.queries.Inc()
	start := time.Now()
	defer e.metrics.latency.Since(start)

	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	compute := func(ctx context.Context) (*domain.SearchResponse, error) {
		return e.run(ctx, query, cfg, start)
	}

	var (
		resp *domain.SearchResponse
		hit  bool
		err  error
	)
	if cfg.UseCache {
		resp, hit, err = e.cache.GetOrCompute(ctx, CacheKey(query, cfg), cfg.CacheTTL, compute)
	} else {
		resp, err = compute(ctx)
	}
	if err != nil {
		e.metrics.failures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("search failed", "query", query, "err", err)
		return nil, err
	}
	if cfg.UseCache {
		if hit {
			e.metrics.cacheHits.Inc()
		} else {
			e.metrics.cacheMisses.Inc()
		}
	}
	span.SetAttributes(attribute.Bool("search.cache_hit", hit), attribute.Int("search.results", resp.TotalResults))
	e.metrics.results.Observe(float64(resp.TotalResults))
	e.logger.Debug("search", "query", query, "results", resp.TotalResults, "cache_hit", hit, "ms", resp.SearchTimeMS)
	return resp, nil
}

func (e *Engine) run(ctx context.Context, query string, cfg domain.SearchConfig, start time.Time) (*domain.SearchResponse, error) {
	vector, err := e.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", domain.ErrRetrieval, domain.ErrEmbedding, err)
	}

	storeCtx, cancel := withTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	hits, err := e.store.Search(storeCtx, vector, semantic.SearchParams{
		Limit:          cfg.TopK,
		SpaceKeys:      cfg.SpaceKeys,
		Labels:         cfg.Labels,
		ChunkTypes:     cfg.ChunkTypes,
		ScoreThreshold: float32(cfg.MinScore),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", domain.ErrRetrieval, domain.ErrStore, err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		score := float64(h.Score)
		if score < cfg.MinScore {
			continue
		}
		results = append(results, e.buildResult(h, score, query, cfg))
	}
	return &domain.SearchResponse{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
		SearchTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

func (e *Engine) embed(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, e.opts.EmbedTimeout)
	defer cancel()
	return e.embedder.EmbedQuery(ctx, query)
}

func (e *Engine) buildResult(h semantic.Hit, score float64, query string, cfg domain.SearchConfig) domain.SearchResult {
	page := semantic.DecodePage(h.Payload)
	chunk := semantic.DecodeChunk(h.Payload)
	res := domain.SearchResult{
		ChunkID:        chunk.ChunkID,
		Content:        chunk.Content,
		RelevanceScore: score,
		Citations:      []domain.Citation{},
		Page:           page,
		ContextPath:    chunk.ContextPath,
	}
	if cfg.IncludeCitations {
		if cits := e.citer.ExtractN(chunk, page, query, score, cfg.MaxCitationsPerResult); cits != nil {
			res.Citations = cits
		}
	}
	return res
}

// GetPage rebuilds a page and its chunks, ordered by position, from stored
// points. An unindexed page yields nil and no chunks.
func (e *Engine) GetPage(ctx context.Context, pageID string) (*domain.Page, []domain.Chunk, error) {
	ctx, span := otel.Tracer("engine/search").Start(ctx, "search.GetPage")
	defer span.End()
	span.SetAttributes(attribute.String("page.id", pageID))

	ctx, cancel := withTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	points, err := e.store.GetPageChunks(ctx, pageID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("%w: %w: %w", domain.ErrRetrieval, domain.ErrStore, err)
	}
	if len(points) == 0 {
		return nil, []domain.Chunk{}, nil
	}
	chunks := make([]domain.Chunk, len(points))
	for i, p := range points {
		chunks[i] = semantic.DecodeChunk(p.Payload)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].PositionInPage < chunks[j].PositionInPage })
	page := semantic.DecodePage(points[0].Payload)
	return &page, chunks, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
